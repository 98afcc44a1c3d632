package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps finished records in an LRU since they never change.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time

	schemaOnce sync.Once
	schemaErr  error

	finished *lru.Cache[string, Record]
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, err := lru.New[string, Record](1024)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, now: time.Now, finished: cache}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS generation_runs (
  run_id TEXT PRIMARY KEY,
  mode TEXT NOT NULL DEFAULT '',
  strategy TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'running',
  items INTEGER NOT NULL DEFAULT 0,
  result JSONB,
  error TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_generation_runs_created_at ON generation_runs (created_at DESC);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	n, err := normalize(rec, s.now())
	if err != nil {
		return err
	}
	var result any
	if len(n.Result) > 0 {
		result = string(n.Result)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO generation_runs (
  run_id, mode, strategy, status, items, result, error, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (run_id)
DO UPDATE SET mode=EXCLUDED.mode,
  strategy=EXCLUDED.strategy,
  status=EXCLUDED.status,
  items=EXCLUDED.items,
  result=EXCLUDED.result,
  error=EXCLUDED.error,
  updated_at=EXCLUDED.updated_at`,
		n.ID, n.Mode, n.Strategy, string(n.Status), n.Items, result, n.Error, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", n.ID, err)
	}
	if n.Finished() {
		s.finished.Add(n.ID, n)
	} else {
		s.finished.Remove(n.ID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	if s == nil || s.db == nil {
		return Record{}, fmt.Errorf("store is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, ErrMissingID
	}
	if rec, ok := s.finished.Get(id); ok {
		return rec, nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return Record{}, fmt.Errorf("ensure schema: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT run_id, mode, strategy, status, items, result, error, created_at, updated_at
FROM generation_runs WHERE run_id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if rec.Finished() {
		s.finished.Add(rec.ID, rec)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, mode, strategy, status, items, result, error, created_at, updated_at
FROM generation_runs ORDER BY created_at DESC, run_id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec    Record
		status string
		result sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Mode, &rec.Strategy, &status, &rec.Items, &result, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	if result.Valid {
		rec.Result = []byte(result.String)
	}
	return rec, nil
}
