package notify

import (
	"context"
	"encoding/json"
)

// Envelope is the payload FanRide publishes on the bus: the projector
// wraps one derived-state change and the hub fans it to stream subscribers
// unchanged, so the wire shape here is exactly the hub's broadcast shape.
type Envelope struct {
	StreamID string          `json:"streamId"`
	Kind     string          `json:"kind"` // matchState, tesHistory, leaderboard, trainerEffect
	Payload  json.RawMessage `json:"payload"`
}

const streamUpdatesStream = "fanride-updates"
const streamUpdatesConsumer = "hub"

// Subject returns the bus subject a stream's derived-state changes are
// published under. The hub subscribes with a wildcard pattern covering
// every stream so one consumer serves all subscription groups.
func Subject(streamID string) string {
	return "fanride.stream." + streamID
}

// SubjectAll is the wildcard pattern matching every stream's subject.
const SubjectAll = "fanride.stream.*"

// Bus adapts a generic Provider to FanRide's envelope-over-subject scheme,
// decoupling the projector (producer) from hub instances (consumers) so
// either can run in a separate process without code changes.
type Bus struct {
	provider Provider
}

func NewBus(p Provider) *Bus { return &Bus{provider: p} }

// Publisher returns a Publisher bound to the shared updates stream.
func (b *Bus) Publisher() (Publisher, error) {
	return b.provider.NewPublisher(PublisherOptions{StreamName: streamUpdatesStream})
}

// Consumer returns a durable Consumer subscribed to every stream's subject
// under one consumer name, so only one hub instance's delivery advances
// the shared cursor per partition (when backed by NATS JetStream).
func (b *Bus) Consumer() (Consumer, error) {
	return b.provider.NewConsumer(ConsumerOptions{
		StreamName:     streamUpdatesStream,
		ConsumerName:   streamUpdatesConsumer,
		FilterSubject:  SubjectAll,
		ChannelBufSize: DefaultConsumerOptions().ChannelBufSize,
	})
}

// Publish marshals env and publishes it under env.StreamID's subject.
func Publish(ctx context.Context, pub Publisher, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, Subject(env.StreamID), data)
}
