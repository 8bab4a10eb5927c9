package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/mock"
)

// MockMsg stands in for a jetstream.Msg delivery in publisher/consumer
// tests, so the ack/nak/term paths can be exercised without a running
// NATS server. Each method forwards to testify separately (rather than
// through a shared helper) because mock.Mock.Called infers the expected
// method name from its immediate caller's frame.
type MockMsg struct {
	mock.Mock
	data    []byte
	subject string
}

func NewMockMsg(subject string, data []byte) *MockMsg {
	return &MockMsg{subject: subject, data: data}
}

func (m *MockMsg) Data() []byte         { return m.data }
func (m *MockMsg) Subject() string      { return m.subject }
func (m *MockMsg) Reply() string        { return "" }
func (m *MockMsg) Headers() nats.Header { return nil }

func (m *MockMsg) Ack() error {
	return m.Called().Error(0)
}

func (m *MockMsg) Nak() error {
	return m.Called().Error(0)
}

func (m *MockMsg) NakWithDelay(d time.Duration) error {
	return m.Called(d).Error(0)
}

func (m *MockMsg) Term() error {
	return m.Called().Error(0)
}

func (m *MockMsg) TermWithReason(reason string) error {
	return m.Called(reason).Error(0)
}

func (m *MockMsg) InProgress() error {
	return m.Called().Error(0)
}

func (m *MockMsg) DoubleAck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockMsg) Metadata() (*jetstream.MsgMetadata, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jetstream.MsgMetadata), args.Error(1)
}

// MockJetStream mocks the three JetStream methods provider.go and
// publisher.go actually call: ensuring a stream, creating a durable
// consumer, and publishing.
type MockJetStream struct {
	mock.Mock
}

func (m *MockJetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.Stream), args.Error(1)
}

func (m *MockJetStream) CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	args := m.Called(ctx, stream, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.Consumer), args.Error(1)
}

func (m *MockJetStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	args := m.Called(ctx, subject, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jetstream.PubAck), args.Error(1)
}

// MockConsumer mocks jetstream.Consumer. Embedding the real interface lets
// it satisfy jetstream.Consumer without stubbing every method; only
// Consume is ever exercised. handlerCh captures the delivery callback
// Consume registers so a test can drive it directly.
type MockConsumer struct {
	mock.Mock
	jetstream.Consumer
	handlerCh chan jetstream.MessageHandler
}

func NewMockConsumer() *MockConsumer {
	return &MockConsumer{handlerCh: make(chan jetstream.MessageHandler, 1)}
}

func (m *MockConsumer) Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error) {
	args := m.Called(handler)
	select {
	case m.handlerCh <- handler:
	default:
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.ConsumeContext), args.Error(1)
}

// HandlerCh delivers the handler passed to Consume, for tests that need
// to invoke it directly rather than waiting on a real subscription.
func (m *MockConsumer) HandlerCh() <-chan jetstream.MessageHandler {
	return m.handlerCh
}

// MockConsumeContext mocks jetstream.ConsumeContext. Stop additionally
// closes stopCh (idempotently) so a test can block on the consumer's
// shutdown goroutine actually having called it, rather than racing on
// mock.Mock's call-count bookkeeping.
type MockConsumeContext struct {
	mock.Mock
	jetstream.ConsumeContext
	stopCh chan struct{}
}

func NewMockConsumeContext() *MockConsumeContext {
	return &MockConsumeContext{stopCh: make(chan struct{})}
}

func (m *MockConsumeContext) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	m.Called()
}

func (m *MockConsumeContext) Drain() {
	m.Called()
}
