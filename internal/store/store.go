package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Schema creates the results table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS submission_results (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    verdict     TEXT NOT NULL DEFAULT '',
    reason      TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL,
    host        TEXT NOT NULL DEFAULT '',
    elapsed_ms  BIGINT NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    candidates  JSONB NOT NULL DEFAULT '[]',
    screenshot  BYTEA,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS submission_results_host_idx ON submission_results (host, finished_at DESC);
`

const sqlUpsertResult = `
        INSERT INTO submission_results (id, status, verdict, reason, url, host, elapsed_ms, error, candidates, screenshot, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            verdict = EXCLUDED.verdict,
            reason = EXCLUDED.reason,
            url = EXCLUDED.url,
            host = EXCLUDED.host,
            elapsed_ms = EXCLUDED.elapsed_ms,
            error = EXCLUDED.error,
            candidates = EXCLUDED.candidates,
            screenshot = EXCLUDED.screenshot,
            finished_at = EXCLUDED.finished_at;
    `

const sqlRecentResults = `
        SELECT id, status, verdict, reason, url, host, elapsed_ms, error, candidates, finished_at
        FROM submission_results
        WHERE host = $1
        ORDER BY finished_at DESC
        LIMIT $2;
    `

var resultColumns = []string{"id", "status", "verdict", "reason", "url", "host", "elapsed_ms", "error", "candidates", "screenshot", "finished_at"}

// Store persists submission results in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func row(r schemas.Result) ([]interface{}, error) {
	candidates := r.Candidates
	if candidates == nil {
		candidates = []schemas.CandidateTrace{}
	}
	encoded, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidates of %s: %w", r.ID, err)
	}
	var shot interface{}
	if len(r.Screenshot) > 0 {
		shot = r.Screenshot
	}
	return []interface{}{
		r.ID, string(r.Status), string(r.Verdict), r.Reason,
		r.URL, r.Host, r.ElapsedMS, r.Error,
		encoded, shot,
		r.FinishedAt.UTC(),
	}, nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error("Failed to rollback transaction", zap.Error(err))
	}
}

// SaveResult upserts one result.
func (s *Store) SaveResult(ctx context.Context, r schemas.Result) error {
	args, err := row(r)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if _, err := tx.Exec(ctx, sqlUpsertResult, args...); err != nil {
		return fmt.Errorf("failed to save result %s: %w", r.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveResults bulk-inserts results with COPY. Unlike SaveResult it does not
// upsert, so the IDs must be new.
func (s *Store) SaveResults(ctx context.Context, results []schemas.Result) error {
	if len(results) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(results))
	for i, r := range results {
		args, err := row(r)
		if err != nil {
			return err
		}
		rows[i] = args
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"submission_results"}, resultColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy results: %w", err)
	}
	if int(n) != len(results) {
		return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(results), n)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentResults returns up to limit results for host, newest first.
// Screenshots are not loaded.
func (s *Store) RecentResults(ctx context.Context, host string, limit int) ([]schemas.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlRecentResults, host, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []schemas.Result
	for rows.Next() {
		var (
			r               schemas.Result
			status, verdict string
			candidates      []byte
		)
		if err := rows.Scan(&r.ID, &status, &verdict, &r.Reason, &r.URL, &r.Host, &r.ElapsedMS, &r.Error, &candidates, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.Status = schemas.Status(status)
		r.Verdict = schemas.Verdict(verdict)
		if len(candidates) > 0 {
			if err := json.Unmarshal(candidates, &r.Candidates); err != nil {
				return nil, fmt.Errorf("failed to decode candidates of %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
