// Package projector is the durable change-feed consumer that materialises
// read models from the event container and notifies the hub of derived
// state changes. Dispatch is sharded by stream across a fixed worker pool
// so that documents belonging to the same partition are always handled by
// the same worker and therefore stay in commit order, while unrelated
// streams process concurrently.
package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fanride/internal/model"
	"fanride/internal/notify"
	"fanride/internal/readmodel"
	"fanride/internal/retry"
	"fanride/internal/store"
)

const (
	containerES          = "es"
	containerLeases      = "leases"
	containerMatchState  = "rm_match_state"
	containerMomentum    = "rm_tes_history"
	containerLeaderboard = "rm_leaderboard"

	consumerName = "fanride-projector"

	defaultNumWorkers     = 16
	defaultChannelBufSize = 64
)

// Mode selects where the projector's change-feed subscription starts.
type Mode int

const (
	// Live begins tailing at the current end of the event container.
	Live Mode = iota
	// Rebuild purges all lease documents, then replays the event
	// container from the beginning. Upserts are deterministic, so a
	// rebuild converges to the same read-model state as a live run.
	Rebuild
)

// Projector drives the change-feed subscription and dispatches documents
// to read-model upserts and hub notifications.
type Projector struct {
	backend    store.Backend
	publisher  notify.Publisher
	reads      *readmodel.Service
	numWorkers int
	bufSize    int

	lastAlive atomic.Int64 // unix nanos, written from Run's select loop
}

func New(backend store.Backend, publisher notify.Publisher) *Projector {
	return &Projector{
		backend:    backend,
		publisher:  publisher,
		reads:      readmodel.New(backend),
		numWorkers: defaultNumWorkers,
		bufSize:    defaultChannelBufSize,
	}
}

// Alive reports whether Run's select loop has made forward progress within
// maxAge, used by the health endpoint to distinguish a live-but-idle
// subscription from one whose goroutine has wedged.
func (p *Projector) Alive(maxAge time.Duration) error {
	last := p.lastAlive.Load()
	if last == 0 {
		return fmt.Errorf("projector: not yet started")
	}
	age := time.Since(time.Unix(0, last))
	if age > maxAge {
		return fmt.Errorf("projector: no activity for %s", age.Round(time.Second))
	}
	return nil
}

// Run subscribes to the event container's change feed and processes
// deliveries until ctx is cancelled. On cancellation the in-flight batch
// is allowed to finish; the lease is only advanced for documents whose
// handler has fully completed.
func (p *Projector) Run(ctx context.Context, mode Mode) error {
	start := store.FromNow
	if mode == Rebuild {
		start = store.FromBeginning
	}

	changes, err := p.backend.Watch(ctx, containerES, containerLeases, consumerName, start)
	if err != nil {
		return err
	}

	workerChans := make([]chan store.ChangeEvent, p.numWorkers)
	var wg sync.WaitGroup
	for i := range workerChans {
		workerChans[i] = make(chan store.ChangeEvent, p.bufSize)
		wg.Add(1)
		go p.workerLoop(ctx, workerChans[i], &wg)
	}

	heartbeat := time.NewTicker(5 * time.Second)
	defer heartbeat.Stop()
	p.lastAlive.Store(time.Now().UnixNano())

	for {
		select {
		case <-ctx.Done():
			for _, ch := range workerChans {
				close(ch)
			}
			wg.Wait()
			return nil
		case <-heartbeat.C:
			p.lastAlive.Store(time.Now().UnixNano())
		case ev, ok := <-changes:
			if !ok {
				for _, ch := range workerChans {
					close(ch)
				}
				wg.Wait()
				return nil
			}
			p.lastAlive.Store(time.Now().UnixNano())
			idx := shardFor(ev, p.numWorkers)
			select {
			case workerChans[idx] <- ev:
			case <-ctx.Done():
			}
		}
	}
}

func shardFor(ev store.ChangeEvent, numWorkers int) int {
	h := fnv.New32a()
	h.Write([]byte(ev.PartitionKey))
	return int(h.Sum32() % uint32(numWorkers))
}

func (p *Projector) workerLoop(ctx context.Context, ch <-chan store.ChangeEvent, wg *sync.WaitGroup) {
	defer wg.Done()
	for ev := range ch {
		if err := p.handle(ctx, ev); err != nil {
			slog.Error("projector: handler failed, batch will be redelivered", "error", err, "partition", ev.PartitionKey)
			continue
		}
		if ev.Ack != nil {
			if err := ev.Ack(ctx); err != nil {
				slog.Error("projector: failed to advance lease", "error", err, "partition", ev.PartitionKey)
			}
		}
	}
}

// handle dispatches one change-feed document by its "type" discriminator.
// Every branch is idempotent: redelivery on restart or a prior failure
// must reproduce the same read-model state.
func (p *Projector) handle(ctx context.Context, ev store.ChangeEvent) error {
	if ev.Document == nil {
		return nil
	}
	var head struct {
		Type string `json:"type"`
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(ev.Document.Body, &head); err != nil {
		slog.Warn("projector: malformed document, skipping", "error", err)
		return nil
	}

	switch head.Type {
	case "snapshot":
		return p.handleSnapshot(ctx, ev.Document)
	case "event":
		if model.NormalizeKind(head.Kind) == model.KindTrainerMetricsCaptured {
			return p.handleTrainerMetrics(ctx, ev.Document)
		}
		return nil
	case "outbox":
		if head.Kind == "trainerEffect" {
			return p.handleOutbox(ctx, ev.Document)
		}
		return nil
	default:
		return nil
	}
}

func (p *Projector) handleSnapshot(ctx context.Context, doc *store.Document) error {
	var snap model.SnapshotDoc
	if err := json.Unmarshal(doc.Body, &snap); err != nil {
		return err
	}

	row := model.MatchStateRow{
		StreamID:   snap.StreamID,
		State:      snap.State,
		AggVersion: snap.AggVersion,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := p.upsertWithRetry(ctx, containerMatchState, snap.StreamID, snap.StreamID, row); err != nil {
		return err
	}

	view, ok, err := p.reads.GetMatchStateJSON(ctx, snap.StreamID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return p.notifyJSON(ctx, snap.StreamID, "matchState", view)
}

func (p *Projector) handleTrainerMetrics(ctx context.Context, doc *store.Document) error {
	var ed model.EventDoc
	if err := json.Unmarshal(doc.Body, &ed); err != nil {
		return err
	}
	var metrics model.TrainerMetrics
	if err := remarshal(ed.Data, &metrics); err != nil {
		return err
	}

	momentumID := model.MomentumDocID(ed.StreamID, ed.Seq)
	momentumRow := model.MomentumRow{StreamID: ed.StreamID, Metrics: metrics, Ts: ed.Ts}
	if err := p.upsertWithRetry(ctx, containerMomentum, ed.StreamID, momentumID, momentumRow); err != nil {
		return err
	}

	leaderboardRow := model.LeaderboardRow{StreamID: ed.StreamID, Metrics: metrics, UpdatedAt: time.Now().UTC()}
	if err := p.upsertWithRetry(ctx, containerLeaderboard, ed.StreamID, ed.StreamID, leaderboardRow); err != nil {
		return err
	}

	momentum, ok, err := p.reads.GetMomentumJSON(ctx, ed.StreamID)
	if err != nil {
		return err
	}
	if ok {
		if err := p.notifyJSON(ctx, ed.StreamID, "tesHistory", momentum); err != nil {
			return err
		}
	}

	leaderboard, err := p.reads.GetLeaderboardJSON(ctx)
	if err != nil {
		return err
	}
	return p.notifyJSON(ctx, ed.StreamID, "leaderboard", leaderboard)
}

func (p *Projector) handleOutbox(ctx context.Context, doc *store.Document) error {
	var out model.OutboxDoc
	if err := json.Unmarshal(doc.Body, &out); err != nil {
		return err
	}

	if err := p.notify(ctx, out.StreamID, "trainerEffect", out.Payload); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := p.backend.PatchItem(ctx, containerES, doc.ID, out.StreamID, []store.PatchOp{
		{Path: "processedAt", Value: now},
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (p *Projector) upsertWithRetry(ctx context.Context, container, partitionKey, id string, body interface{}) error {
	return retry.Do(ctx, retry.DefaultPolicy(), retryableOnly, func(ctx context.Context) error {
		_, err := p.backend.UpsertItem(ctx, container, partitionKey, id, body)
		return err
	})
}

func (p *Projector) notify(ctx context.Context, streamID, kind string, payload interface{}) error {
	if p.publisher == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return notify.Publish(ctx, p.publisher, notify.Envelope{StreamID: streamID, Kind: kind, Payload: raw})
}

// notifyJSON publishes a payload already shaped by readmodel.Service, so
// the broadcast a live client receives is byte-for-byte what a client
// subscribing at that instant would have been primed with.
func (p *Projector) notifyJSON(ctx context.Context, streamID, kind string, payload json.RawMessage) error {
	if p.publisher == nil {
		return nil
	}
	return notify.Publish(ctx, p.publisher, notify.Envelope{StreamID: streamID, Kind: kind, Payload: payload})
}

func remarshal(src interface{}, dst interface{}) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
