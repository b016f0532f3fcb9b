package ports

import (
	"context"
	"time"

	"mixmirror/internal/engine/graph"
)

// GraphStore abstracts the storage gateway the persistence actor drives.
// Implementations are not safe for concurrent use; exactly one goroutine
// owns a GraphStore.
type GraphStore interface {
	UpsertClient(ctx context.Context, client graph.Client) error
	UpsertNode(ctx context.Context, node graph.Node) error
	UpsertDevice(ctx context.Context, device graph.Device) error
	UpsertLink(ctx context.Context, link graph.Link) error
	UpsertMetadata(ctx context.Context, metadata graph.Metadata) error
	UpsertMetadataProperty(ctx context.Context, id graph.ObjectID, subject uint32, key, value string) error
	RemoveMetadataProperty(ctx context.Context, id graph.ObjectID, subject uint32, key string) error
	ClearMetadataProperties(ctx context.Context, id graph.ObjectID, subject uint32) error
	RemoveObject(ctx context.Context, id graph.ObjectID) error
	Close() error
}

// MutationSink accepts mutations from producers without blocking on storage.
type MutationSink interface {
	Send(m graph.Mutation) error
}

// MutationSource is the single-consumer end of the mutation queue.
type MutationSource interface {
	Receive(ctx context.Context) (graph.Mutation, error)
	Close() error
	Len() int
}

// SpoolRow is a dead-lettered mutation awaiting replay.
type SpoolRow struct {
	ID        int64
	Mutation  graph.Mutation
	Attempts  int
	LastError string
}

// DeadLetterSpool records mutations that failed to apply so they can be
// inspected or replayed after the underlying fault is fixed.
type DeadLetterSpool interface {
	Enqueue(m graph.Mutation, cause error) error
	DequeueBatch(ctx context.Context, maxItems int) ([]SpoolRow, error)
	Ack(ids []int64) error
	Nack(rows []SpoolRow, nextAttemptAt time.Time, lastErr string) error
	// Purge drops the rows spooled for object id with a row id below
	// beforeID, or all of them when beforeID <= 0, and reports how many
	// rows it removed.
	Purge(ctx context.Context, id graph.ObjectID, beforeID int64) (int, error)
	PendingCount(ctx context.Context) (int, error)
	Close() error
}
