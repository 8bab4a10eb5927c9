// Package store is the typed adapter over the partitioned document store
// backing every FanRide stream: partitioned reads, ETag-guarded replaces,
// per-partition transactional batches, and change-feed subscriptions.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Document is a single stored JSON document, scoped to a container and
// partitioned by PartitionKey (the streamId for the "es" container).
type Document struct {
	ID           string          `json:"id"`
	PartitionKey string          `json:"partitionKey"`
	Container    string          `json:"-"`
	Body         json.RawMessage `json:"body"`
	ETag         string          `json:"etag"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// WatchOptions configures a change-feed subscription.
type WatchOptions struct {
	IncludeBefore bool
}

// StartMode controls where a change-feed subscription begins reading.
type StartMode int

const (
	// FromNow begins tailing at the current end of the container.
	FromNow StartMode = iota
	// FromBeginning replays the entire container from the first document.
	FromBeginning
)

// EventType classifies a change-feed delivery.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent is a single change-feed delivery for one document. Ack must
// be called once the handler has fully applied the event's effects; it
// durably advances the consumer's lease past this document. Redelivery on
// restart or handler failure is expected and handlers must be idempotent.
type ChangeEvent struct {
	Type         EventType
	Document     *Document
	Before       *Document
	PartitionKey string
	ResumeToken  string
	Ack          func(ctx context.Context) error
}

// Filter is a single equality/comparison predicate used by Query and by
// optimistic-concurrency preconditions on Patch.
type Filter struct {
	Field string
	Op    string // "==", "!=", ">", ">=", "<", "<="
	Value interface{}
}

// Order is a single sort key for Query.
type Order struct {
	Field     string
	Direction string // "asc" or "desc"
}

// Query describes a read against one container, scoped to a single
// partition when PartitionKey is non-empty.
type Query struct {
	Container    string
	PartitionKey string
	Filters      []Filter
	OrderBy      []Order
	Limit        int
}

// PatchOp is a single field mutation applied by PatchItem.
type PatchOp struct {
	Path  string
	Value interface{}
}

// Backend is the typed surface every document-store implementation (Mongo,
// in-memory fake) must provide. It has no notion of FanRide's event/
// snapshot/outbox schema — that lives one layer up, in the event store.
type Backend interface {
	// ReadItem fetches a single document by id within a partition.
	// Returns errors.ErrNotFound if absent.
	ReadItem(ctx context.Context, container, id, partitionKey string) (*Document, error)

	// UpsertItem creates or replaces a document and returns its new ETag.
	UpsertItem(ctx context.Context, container, partitionKey string, id string, body interface{}) (string, error)

	// PatchItem applies field-level ops to an existing document.
	// errors.ErrNotFound is tolerated by callers that treat it as a no-op.
	PatchItem(ctx context.Context, container, id, partitionKey string, ops []PatchOp) error

	// Query runs a filtered, sorted read restricted to one container
	// (and, when set, one partition) and returns a finite result set.
	Query(ctx context.Context, q Query) ([]*Document, error)

	// NewBatch starts a transactional batch scoped to one container+partition.
	NewBatch(container, partitionKey string) Batch

	// Watch opens a change-feed subscription against sourceContainer,
	// durably tracking progress in leaseContainer under the given
	// consumer name. The returned channel is closed when ctx is done or
	// the subscription fails fatally.
	Watch(ctx context.Context, sourceContainer, leaseContainer, name string, start StartMode) (<-chan ChangeEvent, error)

	// PurgeLeases deletes all lease documents for name, so the next Watch
	// call with FromBeginning replays the source container from scratch.
	PurgeLeases(ctx context.Context, leaseContainer, name string) error
}

// Batch is a builder for a transactional batch scoped to one partition.
// All queued operations either all apply or none do.
type Batch interface {
	// Create fails the whole batch if id already exists in the partition.
	Create(id string, body interface{}) Batch
	// Upsert creates or overwrites id unconditionally.
	Upsert(id string, body interface{}) Batch
	// Replace fails the whole batch (PreconditionFailed) if the current
	// ETag for id does not equal ifMatch.
	Replace(id string, body interface{}, ifMatch string) Batch
	// Execute runs all queued operations atomically.
	Execute(ctx context.Context) error
}
