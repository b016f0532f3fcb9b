package app

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"mixmirror/internal/data/queue"
	"mixmirror/internal/data/store"
	"mixmirror/internal/engine/graph"
)

// recordingStore logs every gateway call as "op:id" and can be told to fail
// or panic for specific ids, or to fail one "op:id" call.
type recordingStore struct {
	mu      sync.Mutex
	calls   []string
	failIDs map[graph.ObjectID]error
	failOps map[string]error
	panicID graph.ObjectID
	closed  bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		failIDs: make(map[graph.ObjectID]error),
		failOps: make(map[string]error),
	}
}

func (s *recordingStore) record(op string, id graph.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := fmt.Sprintf("%s:%d", op, id)
	s.calls = append(s.calls, call)
	if s.panicID != 0 && id == s.panicID {
		panic("storage exploded")
	}
	if err, ok := s.failOps[call]; ok {
		return err
	}
	return s.failIDs[id]
}

func (s *recordingStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingStore) UpsertClient(_ context.Context, c graph.Client) error {
	return s.record("client", c.ObjectID)
}

func (s *recordingStore) UpsertNode(_ context.Context, n graph.Node) error {
	return s.record("node", n.ObjectID)
}

func (s *recordingStore) UpsertDevice(_ context.Context, d graph.Device) error {
	return s.record("device", d.ObjectID)
}

func (s *recordingStore) UpsertLink(_ context.Context, l graph.Link) error {
	return s.record("link", l.ObjectID)
}

func (s *recordingStore) UpsertMetadata(_ context.Context, m graph.Metadata) error {
	return s.record("metadata", m.ObjectID)
}

func (s *recordingStore) UpsertMetadataProperty(_ context.Context, id graph.ObjectID, _ uint32, _, _ string) error {
	return s.record("metadata_property", id)
}

func (s *recordingStore) RemoveMetadataProperty(_ context.Context, id graph.ObjectID, _ uint32, _ string) error {
	return s.record("remove_metadata_property", id)
}

func (s *recordingStore) ClearMetadataProperties(_ context.Context, id graph.ObjectID, _ uint32) error {
	return s.record("clear_metadata_properties", id)
}

func (s *recordingStore) RemoveObject(_ context.Context, id graph.ObjectID) error {
	return s.record("remove", id)
}

func (s *recordingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func newMemoryStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.MemoryTarget, store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestSpool(t *testing.T) *queue.SQLiteSpool {
	t.Helper()
	spool, err := queue.OpenSQLiteSpool(t.TempDir()+"/dead.db", "test")
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	t.Cleanup(func() { _ = spool.Close() })
	return spool
}

func mustSend(t *testing.T, q *queue.MemoryQueue, m graph.Mutation) {
	t.Helper()
	if err := q.Send(m); err != nil {
		t.Fatalf("send %s: %v", m.Kind(), err)
	}
}

func float32NaN() float32 {
	return float32(math.NaN())
}
