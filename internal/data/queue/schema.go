package queue

import (
	"database/sql"
	"fmt"
)

func migrateSpoolSchema(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("spool db is nil")
	}
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS dead_letters (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  target TEXT NOT NULL,
  kind TEXT NOT NULL,
  object_id INTEGER NOT NULL DEFAULT 0,
  payload BLOB NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  next_attempt_at INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_target_next ON dead_letters(target, next_attempt_at, id);
CREATE INDEX IF NOT EXISTS idx_dead_letters_target_object ON dead_letters(target, object_id, id);
`)
	if err != nil {
		return fmt.Errorf("migrate spool schema: %w", err)
	}
	return nil
}
