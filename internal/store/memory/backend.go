// Package memory implements store.Backend in process memory, backing
// event-store and projector unit tests without a live MongoDB. It mirrors
// the mongo backend's semantics (container discriminator, ETag-guarded
// writes, at-least-once change delivery) but is not concurrency-bounded
// the way a real cluster is.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	ferrors "fanride/internal/errors"
	"fanride/internal/store"
)

type entry struct {
	doc     store.Document
	deleted bool
}

// Backend is a goroutine-safe, map-based store.Backend.
type Backend struct {
	mu   sync.Mutex
	docs map[string]*entry // key: container + "/" + partitionKey + "/" + id

	leases map[string]string // leaseContainer:name -> last acked seq key

	subsMu sync.Mutex
	subs   map[string][]chan store.ChangeEvent // container -> subscriber channels

	seq []seqEntry // global append-order log for replay
}

type seqEntry struct {
	key       string
	container string
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		docs:   make(map[string]*entry),
		leases: make(map[string]string),
		subs:   make(map[string][]chan store.ChangeEvent),
	}
}

func key(container, partitionKey, id string) string {
	return container + "/" + partitionKey + "/" + id
}

func cloneBody(body interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *Backend) ReadItem(ctx context.Context, container, id, partitionKey string) (*store.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.docs[key(container, partitionKey, id)]
	if !ok || e.deleted {
		return nil, ferrors.ErrNotFound
	}
	d := e.doc
	return &d, nil
}

func (b *Backend) UpsertItem(ctx context.Context, container, partitionKey, id string, body interface{}) (string, error) {
	raw, err := cloneBody(body)
	if err != nil {
		return "", ferrors.New(ferrors.KindFatal, "UpsertItem", err)
	}
	etag := store.NewETag()

	b.mu.Lock()
	k := key(container, partitionKey, id)
	b.docs[k] = &entry{doc: store.Document{
		ID: id, PartitionKey: partitionKey, Container: container, Body: raw, ETag: etag,
	}}
	b.seq = append(b.seq, seqEntry{key: k, container: container})
	b.mu.Unlock()

	b.publish(container, store.EventUpdate, k)
	return etag, nil
}

func (b *Backend) PatchItem(ctx context.Context, container, id, partitionKey string, ops []store.PatchOp) error {
	b.mu.Lock()
	k := key(container, partitionKey, id)
	e, ok := b.docs[k]
	if !ok || e.deleted {
		b.mu.Unlock()
		return ferrors.ErrNotFound
	}
	var m map[string]interface{}
	if err := json.Unmarshal(e.doc.Body, &m); err != nil {
		b.mu.Unlock()
		return ferrors.New(ferrors.KindFatal, "PatchItem", err)
	}
	for _, op := range ops {
		m[op.Path] = op.Value
	}
	raw, err := json.Marshal(m)
	if err != nil {
		b.mu.Unlock()
		return ferrors.New(ferrors.KindFatal, "PatchItem", err)
	}
	e.doc.Body = raw
	e.doc.ETag = store.NewETag()
	b.seq = append(b.seq, seqEntry{key: k, container: container})
	b.mu.Unlock()

	b.publish(container, store.EventUpdate, k)
	return nil
}

func (b *Backend) Query(ctx context.Context, q store.Query) ([]*store.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*store.Document
	for _, e := range b.docs {
		if e.deleted || e.doc.Container != q.Container {
			continue
		}
		if q.PartitionKey != "" && e.doc.PartitionKey != q.PartitionKey {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal(e.doc.Body, &m); err != nil {
			continue
		}
		if !matchesAll(m, q.Filters) {
			continue
		}
		d := e.doc
		out = append(out, &d)
	}

	if len(q.OrderBy) > 0 {
		sort.Slice(out, func(i, j int) bool {
			return less(out[i], out[j], q.OrderBy)
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchesAll(m map[string]interface{}, filters []store.Filter) bool {
	for _, f := range filters {
		v := getPath(m, f.Field)
		if v == nil {
			return false
		}
		if !compare(v, f.Op, f.Value) {
			return false
		}
	}
	return true
}

func compare(a interface{}, op string, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch op {
		case "==", "":
			return af == bf
		case "!=":
			return af != bf
		case ">":
			return af > bf
		case ">=":
			return af >= bf
		case "<":
			return af < bf
		case "<=":
			return af <= bf
		}
	}
	switch op {
	case "==", "":
		return a == b
	case "!=":
		return a != b
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// getPath looks up a dot-separated field path (e.g. "metrics.watts")
// against a decoded document body.
func getPath(m map[string]interface{}, path string) interface{} {
	cur := interface{}(m)
	for _, part := range strings.Split(path, ".") {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = asMap[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// lessValue orders two field values: numerically when both parse as
// numbers, lexicographically otherwise (ISO-8601 timestamps sort
// correctly as plain strings).
func lessValue(a, b interface{}) (lt, eq bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf, af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs, as == bs
	}
	return false, true
}

func less(a, b *store.Document, orderBy []store.Order) bool {
	var am, bm map[string]interface{}
	_ = json.Unmarshal(a.Body, &am)
	_ = json.Unmarshal(b.Body, &bm)
	for _, o := range orderBy {
		av := getPath(am, o.Field)
		bv := getPath(bm, o.Field)
		lt, eq := lessValue(av, bv)
		if eq {
			continue
		}
		if o.Direction == "desc" {
			return !lt
		}
		return lt
	}
	return false
}

func (b *Backend) PurgeLeases(ctx context.Context, leaseContainer, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.leases, leaseContainer+":"+name)
	return nil
}

func (b *Backend) publish(container string, evType store.EventType, k string) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.mu.Lock()
	e, ok := b.docs[k]
	var d store.Document
	if ok {
		d = e.doc
	}
	b.mu.Unlock()
	for _, ch := range b.subs[container] {
		doc := d
		select {
		case ch <- store.ChangeEvent{
			Type:         evType,
			Document:     &doc,
			PartitionKey: doc.PartitionKey,
			ResumeToken:  k,
			Ack:          func(context.Context) error { return nil },
		}:
		default:
		}
	}
}

// Watch returns a live feed of changes to sourceContainer. FromBeginning
// first replays every live document in append order before switching to
// live delivery; FromNow delivers only documents changed after Watch is
// called. The in-memory backend does not persist resume tokens across
// process restarts, so FromNow/FromBeginning is the caller's only lease
// control in tests.
func (b *Backend) Watch(ctx context.Context, sourceContainer, leaseContainer, name string, start store.StartMode) (<-chan store.ChangeEvent, error) {
	out := make(chan store.ChangeEvent, 256)
	ch := make(chan store.ChangeEvent, 256)

	b.subsMu.Lock()
	b.subs[sourceContainer] = append(b.subs[sourceContainer], ch)
	b.subsMu.Unlock()

	go func() {
		defer close(out)

		if start == store.FromBeginning {
			b.mu.Lock()
			var backlog []string
			for _, s := range b.seq {
				if s.container == sourceContainer {
					backlog = append(backlog, s.key)
				}
			}
			b.mu.Unlock()
			for _, k := range backlog {
				b.mu.Lock()
				e, ok := b.docs[k]
				b.mu.Unlock()
				if !ok {
					continue
				}
				doc := e.doc
				select {
				case out <- store.ChangeEvent{
					Type:         store.EventUpdate,
					Document:     &doc,
					PartitionKey: doc.PartitionKey,
					ResumeToken:  k,
					Ack:          func(context.Context) error { return nil },
				}:
				case <-ctx.Done():
					return
				}
			}
		}

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
