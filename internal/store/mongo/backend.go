// Package mongo implements the store.Backend contract over a MongoDB
// cluster, standing in for the Cosmos-DB-style strongly consistent
// partitioned document store the design assumes: multi-document
// transactions back the per-partition TransactionalBatch, and a change
// stream backs the change-feed subscription.
package mongo

import (
	"context"
	"fmt"
	"time"

	ferrors "fanride/internal/errors"
	"fanride/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// record is the on-wire shape of every document, regardless of container.
// Containers are modeled as a discriminator field within one physical
// collection, the way the donor backend multiplexes "collection" within
// one Mongo collection rather than provisioning one collection per kind.
type record struct {
	ID           string    `bson:"_id"`
	Container    string    `bson:"container"`
	PartitionKey string    `bson:"partitionKey"`
	Body         bson.Raw  `bson:"body"`
	ETag         string    `bson:"etag"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// leaseRecord tracks one consumer's per-container resume position.
type leaseRecord struct {
	ID          string `bson:"_id"` // "<leaseContainer>:<name>"
	ResumeToken string `bson:"resumeToken,omitempty"`
}

// Backend is a store.Backend backed by a single MongoDB database.
type Backend struct {
	client *mongo.Client
	db     *mongo.Database
	data   string // data collection name
	leases string // lease collection name
}

// New connects to uri and ensures the supporting indexes exist.
func New(ctx context.Context, uri, dbName, dataCollection, leaseCollection string) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	b := &Backend{
		client: client,
		db:     client.Database(dbName),
		data:   dataCollection,
		leases: leaseCollection,
	}
	if err := b.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) ensureIndexes(ctx context.Context) error {
	coll := b.db.Collection(b.data)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "container", Value: 1}, {Key: "partitionKey", Value: 1}}},
	})
	return err
}

func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

func toRecord(container, partitionKey, id string, body interface{}, etag string) (record, error) {
	raw, err := bson.Marshal(body)
	if err != nil {
		return record{}, err
	}
	return record{
		ID:           id,
		Container:    container,
		PartitionKey: partitionKey,
		Body:         raw,
		ETag:         etag,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

func toDocument(r record) (*store.Document, error) {
	js, err := bson.MarshalExtJSON(r.Body, false, false)
	if err != nil {
		return nil, err
	}
	return &store.Document{
		ID:           r.ID,
		PartitionKey: r.PartitionKey,
		Container:    r.Container,
		Body:         js,
		ETag:         r.ETag,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func (b *Backend) ReadItem(ctx context.Context, container, id, partitionKey string) (*store.Document, error) {
	var r record
	err := b.db.Collection(b.data).FindOne(ctx, bson.M{
		"_id": id, "container": container, "partitionKey": partitionKey,
	}).Decode(&r)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ferrors.ErrNotFound
		}
		return nil, ferrors.New(ferrors.KindTransient, "ReadItem", err)
	}
	return toDocument(r)
}

func (b *Backend) UpsertItem(ctx context.Context, container, partitionKey, id string, body interface{}) (string, error) {
	etag := store.NewETag()
	r, err := toRecord(container, partitionKey, id, body, etag)
	if err != nil {
		return "", ferrors.New(ferrors.KindFatal, "UpsertItem", err)
	}
	_, err = b.db.Collection(b.data).ReplaceOne(ctx,
		bson.M{"_id": id, "container": container, "partitionKey": partitionKey},
		r, options.Replace().SetUpsert(true))
	if err != nil {
		return "", classifyMongoErr("UpsertItem", err)
	}
	return etag, nil
}

func (b *Backend) PatchItem(ctx context.Context, container, id, partitionKey string, ops []store.PatchOp) error {
	set := bson.M{"updatedAt": time.Now().UTC(), "etag": store.NewETag()}
	for _, op := range ops {
		set["body."+op.Path] = op.Value
	}
	res, err := b.db.Collection(b.data).UpdateOne(ctx,
		bson.M{"_id": id, "container": container, "partitionKey": partitionKey},
		bson.M{"$set": set})
	if err != nil {
		return classifyMongoErr("PatchItem", err)
	}
	if res.MatchedCount == 0 {
		return ferrors.ErrNotFound
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, q store.Query) ([]*store.Document, error) {
	filter := bson.M{"container": q.Container}
	if q.PartitionKey != "" {
		filter["partitionKey"] = q.PartitionKey
	}
	for _, f := range q.Filters {
		filter["body."+f.Field] = filterValue(f)
	}

	opts := options.Find()
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if len(q.OrderBy) > 0 {
		sort := bson.D{}
		for _, o := range q.OrderBy {
			dir := 1
			if o.Direction == "desc" {
				dir = -1
			}
			sort = append(sort, bson.E{Key: "body." + o.Field, Value: dir})
		}
		opts.SetSort(sort)
	}

	cur, err := b.db.Collection(b.data).Find(ctx, filter, opts)
	if err != nil {
		return nil, classifyMongoErr("Query", err)
	}
	defer cur.Close(ctx)

	var recs []record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, classifyMongoErr("Query", err)
	}
	docs := make([]*store.Document, 0, len(recs))
	for _, r := range recs {
		d, err := toDocument(r)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func filterValue(f store.Filter) bson.M {
	switch f.Op {
	case "==", "":
		return bson.M{"$eq": f.Value}
	case "!=":
		return bson.M{"$ne": f.Value}
	case ">":
		return bson.M{"$gt": f.Value}
	case ">=":
		return bson.M{"$gte": f.Value}
	case "<":
		return bson.M{"$lt": f.Value}
	case "<=":
		return bson.M{"$lte": f.Value}
	default:
		return bson.M{"$eq": f.Value}
	}
}

func classifyMongoErr(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return ferrors.New(ferrors.KindConflict, op, err)
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return ferrors.New(ferrors.KindTransient, op, err)
	}
	return ferrors.New(ferrors.KindFatal, op, err)
}

func (b *Backend) PurgeLeases(ctx context.Context, leaseContainer, name string) error {
	_, err := b.db.Collection(b.leases).DeleteOne(ctx, bson.M{"_id": leaseContainer + ":" + name})
	if err != nil {
		return classifyMongoErr("PurgeLeases", err)
	}
	return nil
}
