// Package model holds the shapes written into the "es" container and read
// back out of the three read-model containers. None of these types know
// about storage: the event store and projector translate between them and
// store.Document bodies.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Kind discriminates an event document's payload shape.
type Kind string

const (
	KindMatchStateUpdated     Kind = "MatchStateUpdated"
	KindTrainerMetricsCaptured Kind = "TrainerMetricsCaptured"
)

// NormalizeKind matches a caller-supplied kind string case-insensitively
// against the known set; anything else passes through unchanged so it can
// still be appended and later ignored by the projector.
func NormalizeKind(raw string) Kind {
	switch strings.ToLower(raw) {
	case "matchstateupdated":
		return KindMatchStateUpdated
	case "trainermetricscaptured":
		return KindTrainerMetricsCaptured
	default:
		return Kind(raw)
	}
}

// HasOutboxEffect reports whether an accepted event of this kind produces
// an outbox entry.
func (k Kind) HasOutboxEffect() bool {
	return k == KindTrainerMetricsCaptured
}

// OutboxKindFor returns the outbox document's own kind for an event kind
// that produces one.
func OutboxKindFor(k Kind) string {
	switch k {
	case KindTrainerMetricsCaptured:
		return "trainerEffect"
	default:
		return ""
	}
}

// Score is the home/away score pair inside AggregateState.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// AggregateState is the canonical snapshot body for a match stream.
type AggregateState struct {
	Score   Score  `json:"score"`
	Quarter int    `json:"quarter"`
	Clock   string `json:"clock"`
}

// Equal reports structural equality of the aggregate fields, used by the
// ingestion worker to skip appends when the external feed hasn't moved.
func (a AggregateState) Equal(b AggregateState) bool {
	return a.Score == b.Score && a.Quarter == b.Quarter && a.Clock == b.Clock
}

// TrainerMetrics is the payload carried by a TrainerMetricsCaptured event.
type TrainerMetrics struct {
	RiderID   string  `json:"riderId,omitempty"`
	Watts     float64 `json:"watts"`
	Cadence   float64 `json:"cadence"`
	HeartRate float64 `json:"heartRate"`
}

// EventDoc is the on-store shape of one immutable event document.
type EventDoc struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"` // always "event"
	StreamID string          `json:"streamId"`
	Seq      int             `json:"seq"`
	Kind     string          `json:"kind"`
	Data     interface{}     `json:"data"`
	Ts       time.Time       `json:"ts"`
}

// SnapshotDoc is the on-store shape of the per-stream singleton snapshot.
type SnapshotDoc struct {
	Type       string         `json:"type"` // always "snapshot"
	StreamID   string         `json:"streamId"`
	AggVersion int            `json:"aggVersion"`
	State      AggregateState `json:"state"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// OutboxDoc is the on-store shape of a per-event transactional side-effect.
type OutboxDoc struct {
	Type        string      `json:"type"` // always "outbox"
	StreamID    string      `json:"streamId"`
	Kind        string      `json:"kind"`
	Payload     interface{} `json:"payload"`
	Ts          time.Time   `json:"ts"`
	ProcessedAt *time.Time  `json:"processedAt,omitempty"`
}

// MatchStateRow is the current-match-state read model, one row per stream.
type MatchStateRow struct {
	StreamID   string         `json:"streamId"`
	State      AggregateState `json:"state"`
	AggVersion int            `json:"aggVersion"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// MomentumRow is one momentum-history row, one per TrainerMetricsCaptured
// event; id = "<streamId>-<seq>".
type MomentumRow struct {
	StreamID string         `json:"streamId"`
	Metrics  TrainerMetrics `json:"metrics"`
	Ts       time.Time      `json:"ts"`
}

// LeaderboardRow is the per-stream leaderboard row, overwritten on each
// TrainerMetricsCaptured event.
type LeaderboardRow struct {
	StreamID  string         `json:"streamId"`
	Metrics   TrainerMetrics `json:"metrics"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func SnapshotDocID(streamID string) string { return "snap-" + streamID }
func OutboxDocID(eventID string) string    { return "out-" + eventID }
func MomentumDocID(streamID string, seq int) string {
	return streamID + "-" + strconv.Itoa(seq)
}
