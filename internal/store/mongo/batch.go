package mongo

import (
	"context"

	ferrors "fanride/internal/errors"
	"fanride/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type queuedOp struct {
	kind  string // "create", "upsert", "replace"
	id    string
	body  interface{}
	etag  string
}

// batch is a store.Batch scoped to one container+partition, executed as a
// single MongoDB multi-document transaction. The caller enqueues the guard
// Replace/Create first, then events, then the snapshot Upsert, then outbox
// Creates, exactly as the event store's append algorithm requires; ordering
// within Execute follows enqueue order.
type batch struct {
	backend      *Backend
	container    string
	partitionKey string
	ops          []queuedOp
}

func (b *Backend) NewBatch(container, partitionKey string) store.Batch {
	return &batch{backend: b, container: container, partitionKey: partitionKey}
}

func (b *batch) Create(id string, body interface{}) store.Batch {
	b.ops = append(b.ops, queuedOp{kind: "create", id: id, body: body})
	return b
}

func (b *batch) Upsert(id string, body interface{}) store.Batch {
	b.ops = append(b.ops, queuedOp{kind: "upsert", id: id, body: body})
	return b
}

func (b *batch) Replace(id string, body interface{}, ifMatch string) store.Batch {
	b.ops = append(b.ops, queuedOp{kind: "replace", id: id, body: body, etag: ifMatch})
	return b
}

func (b *batch) Execute(ctx context.Context) error {
	session, err := b.backend.client.StartSession()
	if err != nil {
		return ferrors.New(ferrors.KindTransient, "Batch.Execute", err)
	}
	defer session.EndSession(ctx)

	coll := b.backend.db.Collection(b.backend.data)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		for _, op := range b.ops {
			if err := b.applyOne(sessCtx, coll, op); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return classifyBatchErr(err)
	}
	return nil
}

func (b *batch) applyOne(ctx context.Context, coll *mongo.Collection, op queuedOp) error {
	filter := bson.M{"_id": op.id, "container": b.container, "partitionKey": b.partitionKey}

	switch op.kind {
	case "create":
		var existing record
		err := coll.FindOne(ctx, filter).Decode(&existing)
		if err == nil {
			return ferrors.New(ferrors.KindConflict, "Batch.Create", nil)
		}
		if err != mongo.ErrNoDocuments {
			return ferrors.New(ferrors.KindTransient, "Batch.Create", err)
		}
		r, err := toRecord(b.container, b.partitionKey, op.id, op.body, store.NewETag())
		if err != nil {
			return ferrors.New(ferrors.KindFatal, "Batch.Create", err)
		}
		if _, err := coll.InsertOne(ctx, r); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ferrors.New(ferrors.KindConflict, "Batch.Create", err)
			}
			return ferrors.New(ferrors.KindTransient, "Batch.Create", err)
		}
		return nil

	case "replace":
		var existing record
		err := coll.FindOne(ctx, filter).Decode(&existing)
		if err == mongo.ErrNoDocuments {
			return ferrors.New(ferrors.KindPreconditionFailed, "Batch.Replace", nil)
		}
		if err != nil {
			return ferrors.New(ferrors.KindTransient, "Batch.Replace", err)
		}
		if existing.ETag != op.etag {
			return ferrors.New(ferrors.KindPreconditionFailed, "Batch.Replace", nil)
		}
		r, err := toRecord(b.container, b.partitionKey, op.id, op.body, store.NewETag())
		if err != nil {
			return ferrors.New(ferrors.KindFatal, "Batch.Replace", err)
		}
		if _, err := coll.ReplaceOne(ctx, filter, r); err != nil {
			return ferrors.New(ferrors.KindTransient, "Batch.Replace", err)
		}
		return nil

	case "upsert":
		r, err := toRecord(b.container, b.partitionKey, op.id, op.body, store.NewETag())
		if err != nil {
			return ferrors.New(ferrors.KindFatal, "Batch.Upsert", err)
		}
		_, err = coll.ReplaceOne(ctx, filter, r, options.Replace().SetUpsert(true))
		if err != nil {
			return ferrors.New(ferrors.KindTransient, "Batch.Upsert", err)
		}
		return nil

	default:
		return ferrors.New(ferrors.KindFatal, "Batch.Execute", nil)
	}
}

// classifyBatchErr preserves a Kind already attached by applyOne; falls
// back to Transient for infrastructure errors surfaced by WithTransaction
// itself (e.g. a transient transaction commit error).
func classifyBatchErr(err error) error {
	if ferrors.Is(err, ferrors.KindPreconditionFailed) || ferrors.Is(err, ferrors.KindConflict) ||
		ferrors.Is(err, ferrors.KindFatal) {
		return err
	}
	return ferrors.New(ferrors.KindTransient, "Batch.Execute", err)
}
