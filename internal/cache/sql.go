package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/beach-weather-cache/internal/weather"
)

const sqlSchema = `CREATE TABLE IF NOT EXISTS beach_cache (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	version    TEXT NOT NULL,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLStore keeps the cache as a single row guarded by a version column.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLStore opens a sqlite3 database and creates the cache table.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s := NewSQLStore(db)
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlSchema); err != nil {
		return fmt.Errorf("create beach_cache table: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Load(ctx context.Context) (Snapshot, error) {
	var version, body string
	err := s.db.QueryRowContext(ctx, `SELECT version, body FROM beach_cache WHERE id = 1`).Scan(&version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{Cache: weather.Cache{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load beach_cache: %w", err)
	}
	c, err := weather.DecodeCache([]byte(body))
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode beach_cache: %w", err)
	}
	return Snapshot{Cache: c, Version: version}, nil
}

func (s *SQLStore) Save(ctx context.Context, c weather.Cache, expectedVersion string) (string, error) {
	data, err := c.Encode()
	if err != nil {
		return "", err
	}
	version := contentVersion(data)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if expectedVersion == "" {
		res, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO beach_cache (id, version, body, updated_at) VALUES (1, ?, ?, ?)`,
			version, string(data), s.now().UTC())
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE beach_cache SET version = ?, body = ?, updated_at = ? WHERE id = 1 AND version = ?`,
			version, string(data), s.now().UTC(), expectedVersion)
	}
	if err != nil {
		return "", fmt.Errorf("write beach_cache: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: version %q is no longer current", ErrConflict, expectedVersion)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return version, nil
}
