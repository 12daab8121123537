package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the ledger tables.
// Each statement uses IF NOT EXISTS for idempotency.
// Counters are stored as the int64 bit pattern of the uint64 value.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		workers      INTEGER NOT NULL,
		chunk_size   INTEGER NOT NULL,
		start_cursor INTEGER NOT NULL,
		final_cursor INTEGER,
		outcome      TEXT NOT NULL DEFAULT '',
		payload      TEXT NOT NULL DEFAULT '',
		started_at   TEXT NOT NULL,
		finished_at  TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS chunks (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT NOT NULL REFERENCES runs(id),
		seq           INTEGER NOT NULL,
		slot          INTEGER NOT NULL,
		start_counter INTEGER NOT NULL,
		end_counter   INTEGER NOT NULL,
		pid           INTEGER NOT NULL DEFAULT 0,
		state         TEXT NOT NULL DEFAULT 'DISPATCHED',
		exit_code     INTEGER,
		dispatched_at TEXT NOT NULL,
		finished_at   TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_chunks_run_id ON chunks(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_state ON chunks(state)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
}{
	{
		table:    "chunks",
		column:   "last_counter",
		alterSQL: "ALTER TABLE chunks ADD COLUMN last_counter INTEGER",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
