package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/me/keysweep/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteLedger opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteLedger(dbPath string, logger *slog.Logger) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One writer, and ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteLedger{
		db:     db,
		logger: logger.With("component", "ledger"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteLedger) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workers, chunk_size, start_cursor, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Workers, toDB(run.ChunkSize), toDB(run.StartCursor), formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteLedger) FinishRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID)
	var finalCursor any
	if run.FinalCursor != nil {
		finalCursor = toDB(*run.FinalCursor)
	}
	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = formatTime(*run.FinishedAt)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET final_cursor = ?, outcome = ?, payload = ?, finished_at = ? WHERE id = ?`,
		finalCursor, string(run.Outcome), run.Payload, finishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *SQLiteLedger) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workers, chunk_size, start_cursor, final_cursor, outcome, payload, started_at, finished_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteLedger) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, error) {
	opts.Clamp()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workers, chunk_size, start_cursor, final_cursor, outcome, payload, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Chunks ---

func (s *SQLiteLedger) RecordDispatch(ctx context.Context, rec *model.ChunkRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "chunks", "run_id", rec.RunID, "seq", rec.Seq)
	if rec.State == "" {
		rec.State = model.ChunkStateDispatched
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (run_id, seq, slot, start_counter, end_counter, pid, state, dispatched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Seq, rec.Slot, toDB(rec.Chunk.Start), toDB(rec.Chunk.End), rec.PID,
		string(rec.State), formatTime(rec.DispatchedAt),
	)
	if err != nil {
		return fmt.Errorf("insert chunk %s: %w", rec.Chunk, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("chunk id: %w", err)
	}
	rec.ID = id
	return nil
}

// FinishChunk moves a DISPATCHED chunk to its terminal state.
func (s *SQLiteLedger) FinishChunk(ctx context.Context, rec *model.ChunkRecord) error {
	s.logger.Debug("sql", "op", "update", "table", "chunks", "id", rec.ID, "state", rec.State)
	if !model.ChunkStateDispatched.CanTransitionTo(rec.State) {
		return &model.InvalidTransitionError{
			Entity: "chunk", ID: strconv.FormatInt(rec.ID, 10),
			From: string(model.ChunkStateDispatched), To: string(rec.State),
		}
	}

	var exitCode, lastCounter, finishedAt any
	if rec.ExitCode != nil {
		exitCode = *rec.ExitCode
	}
	if rec.LastCounter != nil {
		lastCounter = toDB(*rec.LastCounter)
	}
	if rec.FinishedAt != nil {
		finishedAt = formatTime(*rec.FinishedAt)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET state = ?, exit_code = ?, last_counter = ?, finished_at = ?, pid = ?
		 WHERE id = ? AND state = ?`,
		string(rec.State), exitCode, lastCounter, finishedAt, rec.PID, rec.ID, string(model.ChunkStateDispatched),
	)
	if err != nil {
		return fmt.Errorf("update chunk %d: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &model.InvalidTransitionError{
			Entity: "chunk", ID: strconv.FormatInt(rec.ID, 10),
			From: "(not DISPATCHED)", To: string(rec.State),
		}
	}
	return nil
}

// ListChunks returns chunks in dispatch order and the total matching count.
func (s *SQLiteLedger) ListChunks(ctx context.Context, opts model.ListOptions) ([]*model.ChunkRecord, int, error) {
	opts.Clamp()

	var where []string
	var args []any
	if opts.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, opts.RunID)
	}
	if opts.IncompleteOnly {
		where = append(where, "state IN (?, ?)")
		args = append(args, string(model.ChunkStateLost), string(model.ChunkStateInterrupted))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count chunks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, seq, slot, start_counter, end_counter, pid, state, exit_code, last_counter, dispatched_at, finished_at
		 FROM chunks`+clause+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []*model.ChunkRecord
	for rows.Next() {
		var rec model.ChunkRecord
		var start, end int64
		var state, dispatchedAt string
		var exitCode, lastCounter sql.NullInt64
		var finishedAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Seq, &rec.Slot, &start, &end, &rec.PID, &state,
			&exitCode, &lastCounter, &dispatchedAt, &finishedAt); err != nil {
			return nil, 0, err
		}
		rec.Chunk = model.Chunk{Start: fromDB(start), End: fromDB(end)}
		rec.State = model.ChunkState(state)
		rec.DispatchedAt = parseTime(dispatchedAt)
		if exitCode.Valid {
			v := int(exitCode.Int64)
			rec.ExitCode = &v
		}
		if lastCounter.Valid {
			v := fromDB(lastCounter.Int64)
			rec.LastCounter = &v
		}
		if finishedAt.Valid {
			ts := parseTime(finishedAt.String)
			rec.FinishedAt = &ts
		}
		out = append(out, &rec)
	}
	return out, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var chunkSize, startCursor int64
	var finalCursor sql.NullInt64
	var outcome, startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(&run.ID, &run.Workers, &chunkSize, &startCursor, &finalCursor, &outcome,
		&run.Payload, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.ChunkSize = fromDB(chunkSize)
	run.StartCursor = fromDB(startCursor)
	run.Outcome = model.Outcome(outcome)
	run.StartedAt = parseTime(startedAt)
	if finalCursor.Valid {
		v := fromDB(finalCursor.Int64)
		run.FinalCursor = &v
	}
	if finishedAt.Valid {
		ts := parseTime(finishedAt.String)
		run.FinishedAt = &ts
	}
	return &run, nil
}

func toDB(v uint64) int64   { return int64(v) }
func fromDB(v int64) uint64 { return uint64(v) }

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
