// Package memory implements notify.Provider without a NATS server, for
// the ingestion worker and projector tests and for single-process
// deployments that don't need the hub to scale past one instance.
package memory

import (
	"fanride/internal/notify"
)

// Compile-time check that Engine implements notify.Provider
var _ notify.Provider = (*Engine)(nil)

// Engine provides the public API for in-memory notify.
// It mirrors the NATS JetStream interface for consistent usage.
type Engine struct {
	broker *broker
}

// New creates a new in-memory pubsub engine.
func New() *Engine {
	e := &Engine{}
	e.broker = newBroker(e)
	return e
}

// NewPublisher creates a new in-memory Publisher.
func (e *Engine) NewPublisher(opts notify.PublisherOptions) (notify.Publisher, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &memoryPublisher{
		engine: e,
		broker: e.broker,
		opts:   opts,
	}, nil
}

// NewConsumer creates a new in-memory Consumer.
func (e *Engine) NewConsumer(opts notify.ConsumerOptions) (notify.Consumer, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &memoryConsumer{
		engine: e,
		broker: e.broker,
		opts:   opts,
	}, nil
}

// Close shuts down the engine and all subscriptions.
func (e *Engine) Close() error {
	return e.broker.close()
}

// IsClosed returns true if the engine is closed.
func (e *Engine) IsClosed() bool {
	return e.broker.isClosed()
}
