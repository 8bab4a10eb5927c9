package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fanride/internal/notify"
	notifytesting "fanride/internal/notify/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBridge_RebroadcastsToMatchingGroup(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan Message, 1)}
	h.Register(client)
	h.JoinStream(client, "m1")

	consumer := notifytesting.NewMockConsumer()
	done := make(chan error, 1)
	go func() { done <- RunBridge(ctx, h, consumer) }()

	// let RunBridge's Subscribe call land before sending.
	time.Sleep(10 * time.Millisecond)

	payload, err := json.Marshal(notify.Envelope{
		StreamID: "m1",
		Kind:     "matchState",
		Payload:  json.RawMessage(`{"quarter":2}`),
	})
	require.NoError(t, err)
	msg := notifytesting.NewMockMessage("fanride-updates.m1", payload)
	consumer.Send(msg)

	select {
	case got := <-client.send:
		assert.Equal(t, "matchState", got.Type)
		assert.JSONEq(t, `{"quarter":2}`, string(got.Payload))
	case <-time.After(time.Second):
		t.Fatal("client did not receive rebroadcast message")
	}

	assert.Eventually(t, msg.IsAcked, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunBridge did not exit after cancellation")
	}
}

func TestRunBridge_MalformedEnvelopeIsAckedAndSkipped(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	consumer := notifytesting.NewMockConsumer()
	done := make(chan error, 1)
	go func() { done <- RunBridge(ctx, h, consumer) }()

	time.Sleep(10 * time.Millisecond)

	msg := notifytesting.NewMockMessage("fanride-updates.m1", []byte("not json"))
	consumer.Send(msg)

	assert.Eventually(t, msg.IsAcked, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunBridge did not exit after cancellation")
	}
}
