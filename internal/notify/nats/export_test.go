package nats

import (
	"github.com/nats-io/nats.go"
)

// SetJetStreamNew swaps the package's JetStreamNew var for the duration of
// a test and returns a func that restores it.
func SetJetStreamNew(f func(nc *nats.Conn) (JetStream, error)) func() {
	original := JetStreamNew
	JetStreamNew = f
	return func() {
		JetStreamNew = original
	}
}
