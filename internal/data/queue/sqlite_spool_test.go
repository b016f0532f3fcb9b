package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mixmirror/internal/engine/graph"
)

func TestSQLiteSpool_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dead.db")

	spool, err := OpenSQLiteSpool(path, "mirror-a")
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	client := graph.UpsertClient{Client: graph.Client{ObjectID: 42, Props: graph.Properties{"application.name": "Test"}}}
	if err := spool.Enqueue(client, errors.New("disk full")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := spool.Close(); err != nil {
		t.Fatalf("close spool: %v", err)
	}

	spool, err = OpenSQLiteSpool(path, "mirror-a")
	if err != nil {
		t.Fatalf("reopen spool: %v", err)
	}
	defer spool.Close()

	rows, err := spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got, ok := rows[0].Mutation.(graph.UpsertClient)
	if !ok {
		t.Fatalf("expected UpsertClient, got %T", rows[0].Mutation)
	}
	if got.Client.ObjectID != 42 || got.Client.Props["application.name"] != "Test" {
		t.Fatalf("unexpected client: %#v", got.Client)
	}
	if rows[0].LastError != "disk full" {
		t.Fatalf("expected last error to be kept, got %q", rows[0].LastError)
	}
}

func TestSQLiteSpool_PartitionsByTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead.db")
	a, err := OpenSQLiteSpool(path, "a")
	if err != nil {
		t.Fatalf("open spool a: %v", err)
	}
	defer a.Close()
	if err := a.Enqueue(graph.RemoveObject{ObjectID: 1}, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_ = a.Close()

	b, err := OpenSQLiteSpool(path, "b")
	if err != nil {
		t.Fatalf("open spool b: %v", err)
	}
	defer b.Close()
	count, err := b.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected target b to see no rows, got %d", count)
	}
}

func TestSQLiteSpool_AckDeletesRows(t *testing.T) {
	spool := newTestSpool(t)
	defer spool.Close()
	if err := spool.Enqueue(graph.RemoveObject{ObjectID: 5}, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rows, err := spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if err := spool.Ack([]int64{rows[0].ID}); err != nil {
		t.Fatalf("ack: %v", err)
	}
	count, err := spool.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected pending count 0, got %d", count)
	}
}

func TestSQLiteSpool_NackSchedulesRetry(t *testing.T) {
	spool := newTestSpool(t)
	defer spool.Close()

	if err := spool.Enqueue(graph.ClearMetadataProperties{ObjectID: 3, Subject: 0}, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rows, err := spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	next := time.Now().Add(150 * time.Millisecond)
	if err := spool.Nack(rows, next, "database is locked"); err != nil {
		t.Fatalf("nack: %v", err)
	}

	rows, err = spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue after nack: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no immediately retryable rows, got %d", len(rows))
	}

	time.Sleep(180 * time.Millisecond)
	rows, err = spool.DequeueBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dequeue after retry window: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after retry window, got %d", len(rows))
	}
	if rows[0].Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", rows[0].Attempts)
	}
	if rows[0].LastError != "database is locked" {
		t.Fatalf("expected nack error to be recorded, got %q", rows[0].LastError)
	}
}

func TestOpenSQLiteSpool_RejectsDirectory(t *testing.T) {
	if _, err := OpenSQLiteSpool(t.TempDir(), "x"); err == nil {
		t.Fatal("expected error for directory path")
	}
	if _, err := OpenSQLiteSpool("  ", "x"); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func newTestSpool(t *testing.T) *SQLiteSpool {
	t.Helper()
	dir := t.TempDir()
	spool, err := OpenSQLiteSpool(filepath.Join(dir, "dead.db"), "mirror-a")
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	return spool
}

func TestSQLiteSpool_PurgeDropsOlderRowsForObject(t *testing.T) {
	spool, err := OpenSQLiteSpool(filepath.Join(t.TempDir(), "dead.db"), "mirror")
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	defer spool.Close()
	ctx := context.Background()

	for _, m := range []graph.Mutation{
		graph.UpsertClient{Client: graph.Client{ObjectID: 9, Props: graph.Properties{"v": "1"}}},
		graph.UpsertClient{Client: graph.Client{ObjectID: 10}},
		graph.UpsertClient{Client: graph.Client{ObjectID: 9, Props: graph.Properties{"v": "2"}}},
	} {
		if err := spool.Enqueue(m, errors.New("locked")); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	rows, err := spool.DequeueBatch(ctx, 10)
	if err != nil || len(rows) != 3 {
		t.Fatalf("dequeue: %d rows, %v", len(rows), err)
	}

	// Bounded: only the first row for object 9 sits below the last row's id.
	n, err := spool.Purge(ctx, 9, rows[2].ID)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}

	n, err = spool.Purge(ctx, 9, 0)
	if err != nil {
		t.Fatalf("purge all: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the remaining row for object 9 to be purged, got %d", n)
	}

	rows, err = spool.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(rows) != 1 || rows[0].Mutation.Target() != 10 {
		t.Fatalf("expected only object 10 to stay spooled, got %+v", rows)
	}
}
