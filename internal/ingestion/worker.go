// Package ingestion polls an external sports feed and coalesces it into
// idempotent event-store appends: unchanged feed state produces no
// append, and a version conflict with another writer is retried a
// bounded number of times before being logged and skipped.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ferrors "fanride/internal/errors"
	"fanride/internal/eventstore"
	"fanride/internal/model"
	"fanride/internal/notify"
	"fanride/internal/retry"

	"github.com/google/uuid"
)

const defaultPollInterval = 5 * time.Second

// concurrencyRetryPolicy bounds the number of times one iteration retries
// an append that lost the optimistic-concurrency race against another
// writer on the same stream.
func concurrencyRetryPolicy() retry.Policy {
	return retry.Policy{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		MaxAttempts:  3,
		Multiplier:   1,
	}
}

// Config configures one Worker instance.
type Config struct {
	StreamID         string
	PollInterval     time.Duration
	OnMatchStateSent func(state model.AggregateState) // test hook; nil in production
}

// Worker runs the fetch/compare/append loop for one stream. It carries no
// state between iterations, so running more than one instance against the
// same stream is safe: the event store's optimistic guard serialises them.
type Worker struct {
	cfg       Config
	feed      FeedClient
	events    *eventstore.Store
	publisher notify.Publisher
}

func New(cfg Config, feed FeedClient, events *eventstore.Store, publisher notify.Publisher) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Worker{cfg: cfg, feed: feed, events: events, publisher: publisher}
}

// Run loops until ctx is cancelled, completing the current iteration
// before exiting.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.iterate(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.iterate(ctx)
		}
	}
}

func (w *Worker) iterate(ctx context.Context) {
	fetched, err := w.feed.Fetch(ctx)
	if err != nil {
		slog.Warn("ingestion: feed fetch failed, skipping iteration", "streamId", w.cfg.StreamID, "error", err)
		return
	}

	var sent bool
	err = retry.Do(ctx, concurrencyRetryPolicy(), eventstore.IsConcurrencyErr, func(ctx context.Context) error {
		snap, err := w.events.ReadSnapshot(ctx, w.cfg.StreamID)
		var current model.SnapshotDoc
		var expectedVersion int
		var expectedEtag string
		switch {
		case err == nil:
			if jsonErr := json.Unmarshal(snap.Body, &current); jsonErr != nil {
				return fmt.Errorf("malformed snapshot: %w", jsonErr)
			}
			expectedVersion = current.AggVersion
			expectedEtag = snap.ETag

			if current.State.Equal(fetched) {
				return nil
			}
		case errors.Is(err, ferrors.ErrNotFound):
			// Brand-new stream: append at version 0 with no ETag guard.
		default:
			return fmt.Errorf("snapshot read failed: %w", err)
		}

		appendErr := w.events.AppendWithSnapshot(ctx, eventstore.AppendRequest{
			StreamID:        w.cfg.StreamID,
			ExpectedVersion: expectedVersion,
			ExpectedEtag:    expectedEtag,
			SnapshotState:   fetched,
			Events: []eventstore.NewEvent{{
				ID:   uuid.NewString(),
				Kind: string(model.KindMatchStateUpdated),
				Data: fetched,
			}},
		})
		if appendErr == nil {
			sent = true
		}
		return appendErr
	})

	if sent {
		w.notifyMatchState(ctx, fetched)
		if w.cfg.OnMatchStateSent != nil {
			w.cfg.OnMatchStateSent(fetched)
		}
		return
	}
	if err != nil {
		slog.Warn("ingestion: iteration failed", "streamId", w.cfg.StreamID, "error", err)
	}
}

func (w *Worker) notifyMatchState(ctx context.Context, state model.AggregateState) {
	if w.publisher == nil {
		return
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := notify.Publish(ctx, w.publisher, notify.Envelope{StreamID: w.cfg.StreamID, Kind: "matchState", Payload: raw}); err != nil {
		slog.Warn("ingestion: notify failed", "streamId", w.cfg.StreamID, "error", err)
	}
}
