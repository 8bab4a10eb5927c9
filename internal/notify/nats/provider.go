package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"fanride/internal/notify"
)

// Provider implements notify.Provider using NATS JetStream. It owns the
// underlying connection; Connect must succeed before NewPublisher or
// NewConsumer are called, since both delegate to a package-level
// constructor that opens its own JetStream context from nc (see
// consumer.go's NewConsumer and publisher.go's NewPublisher).
type Provider struct {
	url string
	nc  *nats.Conn
}

// Compile-time check that Provider implements notify.Provider
var _ notify.Provider = (*Provider)(nil)

// NewProvider creates a new NATS-based pubsub provider. Connect must be
// called before it's usable.
func NewProvider(url string) (*Provider, error) {
	return &Provider{url: url}, nil
}

// Connect establishes the NATS connection. This must be called before
// using NewPublisher or NewConsumer.
func (p *Provider) Connect(ctx context.Context) error {
	nc, err := nats.Connect(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	p.nc = nc

	slog.Info("Connected to NATS", "url", p.url)
	return nil
}

// NewPublisher creates a new Publisher backed by NATS JetStream.
func (p *Provider) NewPublisher(opts notify.PublisherOptions) (notify.Publisher, error) {
	if p.nc == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return NewPublisher(p.nc, opts)
}

// NewConsumer creates a new Consumer backed by NATS JetStream.
func (p *Provider) NewConsumer(opts notify.ConsumerOptions) (notify.Consumer, error) {
	if p.nc == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return NewConsumer(p.nc, opts)
}

// Close closes the NATS connection.
func (p *Provider) Close() error {
	if p.nc != nil {
		slog.Info("Closing NATS connection...")
		p.nc.Close()
		p.nc = nil
	}
	return nil
}
