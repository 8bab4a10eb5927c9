// Package eventstore implements the per-stream atomic append: events, a
// refreshed snapshot, and outbox entries land in one transactional batch
// on the store adapter, guarded by optimistic concurrency on the
// snapshot's ETag.
package eventstore

import (
	"context"
	"time"

	ferrors "fanride/internal/errors"
	"fanride/internal/model"
	"fanride/internal/store"

	"github.com/google/uuid"
)

const containerES = "es"

// NewEvent is one caller-supplied event to append; Data is marshaled as-is
// into the event document's "data" field.
type NewEvent struct {
	ID   string
	Kind string
	Data interface{}
}

// AppendRequest carries everything AppendWithSnapshot needs to enqueue one
// atomic batch for a stream.
type AppendRequest struct {
	StreamID        string
	ExpectedVersion int
	// ExpectedEtag is the last observed snapshot ETag. Empty means "no
	// snapshot exists yet"; the guard step becomes a Create instead of a
	// Replace.
	ExpectedEtag  string
	SnapshotState model.AggregateState
	Events        []NewEvent
}

// Store is the event-sourced write path over one store.Backend.
type Store struct {
	backend store.Backend
}

func New(backend store.Backend) *Store {
	return &Store{backend: backend}
}

// AppendWithSnapshot runs the four-step atomic batch described by the
// design: guard the snapshot ETag, create the new events with contiguous
// seq numbers, upsert the refreshed snapshot, and create outbox entries
// for event kinds that carry an external effect. A PreconditionFailed or
// Conflict on the guard step means another writer moved the stream first;
// the caller must re-read and retry.
func (s *Store) AppendWithSnapshot(ctx context.Context, req AppendRequest) error {
	b := s.backend.NewBatch(containerES, req.StreamID)
	now := time.Now().UTC()

	snapID := model.SnapshotDocID(req.StreamID)
	guardStub := model.SnapshotDoc{
		Type:     "snapshot",
		StreamID: req.StreamID,
		UpdatedAt: now,
	}
	if req.ExpectedEtag != "" {
		b.Replace(snapID, guardStub, req.ExpectedEtag)
	} else {
		b.Create(snapID, guardStub)
	}

	// eventIDs holds the id actually assigned to each event (caller-supplied
	// or freshly generated), so the outbox derivation below reuses the same
	// id instead of re-reading the possibly-empty original.
	eventIDs := make([]string, len(req.Events))
	for i, ev := range req.Events {
		seq := req.ExpectedVersion + i + 1
		id := ev.ID
		if id == "" {
			id = uuid.NewString()
		}
		eventIDs[i] = id
		doc := model.EventDoc{
			ID:       id,
			Type:     "event",
			StreamID: req.StreamID,
			Seq:      seq,
			Kind:     ev.Kind,
			Data:     ev.Data,
			Ts:       now,
		}
		b.Create(id, doc)
	}

	snap := model.SnapshotDoc{
		Type:       "snapshot",
		StreamID:   req.StreamID,
		AggVersion: req.ExpectedVersion + len(req.Events),
		State:      req.SnapshotState,
		UpdatedAt:  now,
	}
	b.Upsert(snapID, snap)

	for i, ev := range req.Events {
		kind := model.NormalizeKind(ev.Kind)
		if !kind.HasOutboxEffect() {
			continue
		}
		outboxID := model.OutboxDocID(eventIDs[i])
		out := model.OutboxDoc{
			Type:     "outbox",
			StreamID: req.StreamID,
			Kind:     model.OutboxKindFor(kind),
			Payload:  ev.Data,
			Ts:       now,
		}
		b.Create(outboxID, out)
	}

	if err := b.Execute(ctx); err != nil {
		return err
	}
	return nil
}

// ReadSnapshot fetches the current snapshot for a stream, or
// errors.ErrNotFound for a brand-new stream.
func (s *Store) ReadSnapshot(ctx context.Context, streamID string) (*store.Document, error) {
	doc, err := s.backend.ReadItem(ctx, containerES, model.SnapshotDocID(streamID), streamID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// IsConcurrencyErr reports whether err is the guard-step failure a caller
// should react to by re-reading the snapshot and retrying the append.
func IsConcurrencyErr(err error) bool {
	return ferrors.Is(err, ferrors.KindPreconditionFailed) || ferrors.Is(err, ferrors.KindConflict)
}
