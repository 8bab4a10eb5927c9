package memory

import (
	"context"

	ferrors "fanride/internal/errors"
	"fanride/internal/store"
)

type op struct {
	kind string
	id   string
	body interface{}
	etag string
}

type batch struct {
	backend      *Backend
	container    string
	partitionKey string
	ops          []op
}

func (b *Backend) NewBatch(container, partitionKey string) store.Batch {
	return &batch{backend: b, container: container, partitionKey: partitionKey}
}

func (b *batch) Create(id string, body interface{}) store.Batch {
	b.ops = append(b.ops, op{kind: "create", id: id, body: body})
	return b
}

func (b *batch) Upsert(id string, body interface{}) store.Batch {
	b.ops = append(b.ops, op{kind: "upsert", id: id, body: body})
	return b
}

func (b *batch) Replace(id string, body interface{}, ifMatch string) store.Batch {
	b.ops = append(b.ops, op{kind: "replace", id: id, body: body, etag: ifMatch})
	return b
}

// Execute applies every queued operation atomically: either every op
// succeeds or none is visible. Ops are staged against a scratch map keyed
// by doc key rather than mutating bk.docs directly, so a failure partway
// through leaves the backend exactly as it was — mirroring the guarantee
// internal/store/mongo gets for free from session.WithTransaction.
func (b *batch) Execute(ctx context.Context) error {
	bk := b.backend
	bk.mu.Lock()

	scratch := make(map[string]*entry, len(b.ops))
	newSeq := make([]seqEntry, 0, len(b.ops))
	applied := make([]string, 0, len(b.ops))

	lookup := func(k string) (*entry, bool) {
		if e, ok := scratch[k]; ok {
			return e, true
		}
		e, ok := bk.docs[k]
		return e, ok
	}

	for _, o := range b.ops {
		k := key(b.container, b.partitionKey, o.id)
		switch o.kind {
		case "create":
			if e, ok := lookup(k); ok && !e.deleted {
				bk.mu.Unlock()
				return ferrors.New(ferrors.KindConflict, "Batch.Create", nil)
			}
			raw, err := cloneBody(o.body)
			if err != nil {
				bk.mu.Unlock()
				return ferrors.New(ferrors.KindFatal, "Batch.Create", err)
			}
			scratch[k] = &entry{doc: store.Document{
				ID: o.id, PartitionKey: b.partitionKey, Container: b.container,
				Body: raw, ETag: store.NewETag(),
			}}
			newSeq = append(newSeq, seqEntry{key: k, container: b.container})
			applied = append(applied, k)

		case "replace":
			e, ok := lookup(k)
			if !ok || e.deleted {
				bk.mu.Unlock()
				return ferrors.New(ferrors.KindPreconditionFailed, "Batch.Replace", nil)
			}
			if e.doc.ETag != o.etag {
				bk.mu.Unlock()
				return ferrors.New(ferrors.KindPreconditionFailed, "Batch.Replace", nil)
			}
			raw, err := cloneBody(o.body)
			if err != nil {
				bk.mu.Unlock()
				return ferrors.New(ferrors.KindFatal, "Batch.Replace", err)
			}
			next := *e
			next.doc.Body = raw
			next.doc.ETag = store.NewETag()
			scratch[k] = &next
			newSeq = append(newSeq, seqEntry{key: k, container: b.container})
			applied = append(applied, k)

		case "upsert":
			raw, err := cloneBody(o.body)
			if err != nil {
				bk.mu.Unlock()
				return ferrors.New(ferrors.KindFatal, "Batch.Upsert", err)
			}
			scratch[k] = &entry{doc: store.Document{
				ID: o.id, PartitionKey: b.partitionKey, Container: b.container,
				Body: raw, ETag: store.NewETag(),
			}}
			newSeq = append(newSeq, seqEntry{key: k, container: b.container})
			applied = append(applied, k)
		}
	}

	// Every op validated and staged; commit all of it.
	for k, e := range scratch {
		bk.docs[k] = e
	}
	bk.seq = append(bk.seq, newSeq...)
	bk.mu.Unlock()

	for _, k := range applied {
		bk.publish(b.container, store.EventUpdate, k)
	}
	return nil
}
