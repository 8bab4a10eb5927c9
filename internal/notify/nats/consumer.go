package nats

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"fanride/internal/notify"
)

// JetStream is the subset of jetstream.JetStream this package depends on:
// ensuring a stream exists, creating a durable consumer, and publishing.
// Keeping it narrow (rather than depending on the full nats.go management
// interface, which also covers KV buckets, object stores, and stream
// listing) lets tests satisfy it with MockJetStream instead of stubbing
// dozens of unused methods.
type JetStream interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NewJetStream opens a JetStream context on an existing NATS connection,
// rejecting a nil connection up front instead of deferring to whatever
// jetstream.New does with it.
func NewJetStream(nc *nats.Conn) (JetStream, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	return jetstream.New(nc)
}

// JetStreamNew is a package var rather than a plain call to NewJetStream so
// tests can substitute a fake that skips the network entirely.
var JetStreamNew = NewJetStream

// jetStreamConsumer implements notify.Consumer using NATS JetStream.
type jetStreamConsumer struct {
	js   JetStream
	opts notify.ConsumerOptions
}

// NewConsumer creates a new Consumer backed by NATS JetStream.
func NewConsumer(nc *nats.Conn, opts notify.ConsumerOptions) (notify.Consumer, error) {
	js, err := JetStreamNew(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	if opts.ChannelBufSize <= 0 {
		opts.ChannelBufSize = notify.DefaultConsumerOptions().ChannelBufSize
	}
	if opts.StreamName == "" {
		return nil, fmt.Errorf("stream name is required")
	}

	return &jetStreamConsumer{js: js, opts: opts}, nil
}

// Subscribe starts consuming messages and returns a channel.
func (c *jetStreamConsumer) Subscribe(ctx context.Context) (<-chan notify.Message, error) {
	// Ensure stream exists
	filterSubject := c.opts.FilterSubject
	if filterSubject == "" {
		filterSubject = c.opts.StreamName + ".>"
	}

	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.opts.StreamName,
		Subjects: []string{filterSubject},
		Storage:  jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	// Create durable consumer
	consumerName := c.opts.ConsumerName
	if consumerName == "" {
		consumerName = "consumer"
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.opts.StreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: filterSubject,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	// Create message channel
	msgCh := make(chan notify.Message, c.opts.ChannelBufSize)

	// Track if we're closing to avoid sending to closed channel
	var closing atomic.Bool

	// Start consuming
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if closing.Load() {
			msg.Nak()
			return
		}
		select {
		case msgCh <- WrapMessage(msg):
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		close(msgCh)
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	log.Printf("[notify] Consumer subscribed, stream=%s", c.opts.StreamName)

	// Goroutine to handle shutdown
	go func() {
		<-ctx.Done()
		log.Println("[notify] Stopping consumer...")
		closing.Store(true)
		cc.Stop()
		close(msgCh)
		log.Println("[notify] Consumer stopped")
	}()

	return msgCh, nil
}
