package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mixmirror/internal/core/ports"
	"mixmirror/internal/engine/graph"
	"mixmirror/internal/shared/util"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

var _ ports.DeadLetterSpool = (*SQLiteSpool)(nil)

// SQLiteSpool keeps mutations that failed to apply. Rows are partitioned by
// the mirror storage target they were destined for, so one spool file can
// serve several mirrors.
type SQLiteSpool struct {
	db     *sql.DB
	target string
}

func OpenSQLiteSpool(path string, target string) (*SQLiteSpool, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("spool path must not be empty")
	}
	if err := util.PrepareFileTarget(cleanPath); err != nil {
		return nil, fmt.Errorf("prepare spool: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open spool sqlite %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping spool sqlite %q: %w", cleanPath, err)
	}
	if err := migrateSpoolSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	key := strings.TrimSpace(target)
	if key == "" {
		key = "default"
	}
	return &SQLiteSpool{db: db, target: key}, nil
}

func (s *SQLiteSpool) Enqueue(m graph.Mutation, cause error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("spool not initialized")
	}
	raw, err := graph.EncodeMutation(m)
	if err != nil {
		return fmt.Errorf("marshal spool payload: %w", err)
	}
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}
	now := time.Now().UTC().UnixMilli()
	_, err = s.db.Exec(`
INSERT INTO dead_letters (target, kind, object_id, payload, attempts, next_attempt_at, created_at, last_error)
VALUES (?, ?, ?, ?, 0, ?, ?, ?)
`, s.target, string(m.Kind()), int64(m.Target()), raw, now, now, lastErr)
	if err != nil {
		return fmt.Errorf("enqueue dead letter: %w", err)
	}
	return nil
}

func (s *SQLiteSpool) DequeueBatch(ctx context.Context, maxItems int) ([]ports.SpoolRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("spool not initialized")
	}
	if maxItems <= 0 {
		maxItems = 1
	}
	now := time.Now().UTC().UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
SELECT id, payload, attempts, last_error
FROM dead_letters
WHERE target = ? AND next_attempt_at <= ?
ORDER BY id ASC
LIMIT ?
`, s.target, now, maxItems)
	if err != nil {
		return nil, fmt.Errorf("dequeue dead letter batch: %w", err)
	}
	defer rows.Close()

	out := make([]ports.SpoolRow, 0, maxItems)
	for rows.Next() {
		var (
			id       int64
			raw      []byte
			attempts int
			lastErr  string
		)
		if err := rows.Scan(&id, &raw, &attempts, &lastErr); err != nil {
			return nil, fmt.Errorf("scan dead letter row: %w", err)
		}
		m, err := graph.DecodeMutation(raw)
		if err != nil {
			return nil, fmt.Errorf("decode dead letter id=%d: %w", id, err)
		}
		out = append(out, ports.SpoolRow{
			ID:        id,
			Mutation:  m,
			Attempts:  attempts,
			LastError: lastErr,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letter rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteSpool) Ack(ids []int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("spool not initialized")
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin dead letter ack tx: %w", err)
	}
	stmt, err := tx.Prepare(`DELETE FROM dead_letters WHERE target = ? AND id = ?`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare dead letter ack: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.Exec(s.target, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("ack dead letter %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dead letter ack tx: %w", err)
	}
	return nil
}

func (s *SQLiteSpool) Nack(rows []ports.SpoolRow, nextAttemptAt time.Time, lastErr string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("spool not initialized")
	}
	if len(rows) == 0 {
		return nil
	}
	nextMS := nextAttemptAt.UTC().UnixMilli()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin dead letter nack tx: %w", err)
	}
	stmt, err := tx.Prepare(`
UPDATE dead_letters
SET attempts = ?, next_attempt_at = ?, last_error = ?
WHERE target = ? AND id = ?
`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare dead letter nack: %w", err)
	}
	defer stmt.Close()
	for _, row := range rows {
		if _, err := stmt.Exec(row.Attempts+1, nextMS, lastErr, s.target, row.ID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("nack dead letter %d: %w", row.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dead letter nack tx: %w", err)
	}
	return nil
}

func (s *SQLiteSpool) Purge(ctx context.Context, id graph.ObjectID, beforeID int64) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("spool not initialized")
	}
	query := `DELETE FROM dead_letters WHERE target = ? AND object_id = ?`
	args := []any{s.target, int64(id)}
	if beforeID > 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters for object %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge dead letters for object %d: %w", id, err)
	}
	return int(n), nil
}

func (s *SQLiteSpool) PendingCount(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("spool not initialized")
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM dead_letters WHERE target = ?`, s.target).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return count, nil
}

func (s *SQLiteSpool) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
