package mongo

import (
	"context"
	"errors"

	ferrors "fanride/internal/errors"
	"fanride/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func leaseID(leaseContainer, name string) string {
	return leaseContainer + ":" + name
}

func (b *Backend) loadLease(ctx context.Context, leaseContainer, name string) (leaseRecord, error) {
	var lr leaseRecord
	err := b.db.Collection(b.leases).FindOne(ctx, bson.M{"_id": leaseID(leaseContainer, name)}).Decode(&lr)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return leaseRecord{ID: leaseID(leaseContainer, name)}, nil
		}
		return leaseRecord{}, err
	}
	return lr, nil
}

func (b *Backend) saveLease(ctx context.Context, leaseContainer, name, resumeToken string) error {
	_, err := b.db.Collection(b.leases).UpdateOne(ctx,
		bson.M{"_id": leaseID(leaseContainer, name)},
		bson.M{"$set": bson.M{"resumeToken": resumeToken}},
		options.Update().SetUpsert(true))
	return err
}

// Watch opens a change stream against the shared data collection, filtered
// to documents belonging to sourceContainer, and durably tracks the
// consumer's resume position in the lease collection under name. Each
// delivered ChangeEvent's Ack persists the stream's resume token for this
// consumer; callers that never Ack will be redelivered the same document
// on the next Watch call after a restart, as at-least-once delivery
// requires.
func (b *Backend) Watch(ctx context.Context, sourceContainer, leaseContainer, name string, start store.StartMode) (<-chan store.ChangeEvent, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "fullDocument.container", Value: sourceContainer},
		}}},
	}

	streamOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	if start != store.FromBeginning {
		lr, err := b.loadLease(ctx, leaseContainer, name)
		if err != nil {
			return nil, ferrors.New(ferrors.KindTransient, "Watch", err)
		}
		if lr.ResumeToken != "" {
			streamOpts.SetResumeAfter(bson.Raw(lr.ResumeToken))
		}
	} else {
		if err := b.PurgeLeases(ctx, leaseContainer, name); err != nil {
			return nil, err
		}
	}

	stream, err := b.db.Collection(b.data).Watch(ctx, pipeline, streamOpts)
	if err != nil {
		return nil, ferrors.New(ferrors.KindFatal, "Watch", err)
	}

	out := make(chan store.ChangeEvent, 64)

	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var raw struct {
				OperationType string   `bson:"operationType"`
				FullDocument  *record  `bson:"fullDocument"`
				DocumentKey   bson.Raw `bson:"documentKey"`
			}
			if err := stream.Decode(&raw); err != nil {
				continue
			}

			var evType store.EventType
			switch raw.OperationType {
			case "insert":
				evType = store.EventCreate
			case "update", "replace":
				evType = store.EventUpdate
			case "delete":
				evType = store.EventDelete
			default:
				continue
			}

			var doc *store.Document
			if raw.FullDocument != nil {
				d, err := toDocument(*raw.FullDocument)
				if err != nil {
					continue
				}
				doc = d
			}

			token := string(stream.ResumeToken())
			ce := store.ChangeEvent{
				Type:        evType,
				Document:    doc,
				ResumeToken: token,
				Ack: func(ackCtx context.Context) error {
					return b.saveLease(ackCtx, leaseContainer, name, token)
				},
			}
			if doc != nil {
				ce.PartitionKey = doc.PartitionKey
			}

			select {
			case out <- ce:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			// Stream ended abnormally; consumer must re-Watch, resuming from
			// the last acked lease position.
			_ = err
		}
	}()

	return out, nil
}
