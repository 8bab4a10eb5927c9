package hub

import (
	"context"
	"encoding/json"
	"log/slog"

	"fanride/internal/notify"
)

// RunBridge drains consumer and re-broadcasts each delivery to h's
// matching stream group, decoupling the projector (which only knows about
// notify.Publisher) from however many hub instances are subscribed. Each
// message is acked immediately after being queued on the hub's buffered
// broadcast channel: a dropped client-side send is not redelivered, matching
// the hub's own at-most-once-per-connection fan-out semantics.
func RunBridge(ctx context.Context, h *Hub, consumer notify.Consumer) error {
	deliveries, err := consumer.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			var env notify.Envelope
			if err := json.Unmarshal(msg.Data(), &env); err != nil {
				slog.Warn("hub: malformed bus envelope", "error", err)
				_ = msg.Ack()
				continue
			}
			h.Broadcast(env.StreamID, Message{Type: env.Kind, Payload: env.Payload})
			if err := msg.Ack(); err != nil {
				slog.Warn("hub: ack failed", "error", err)
			}
		}
	}
}
