package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

var createTables = []string{
	`CREATE TABLE IF NOT EXISTS generate_cache (
		cache_key TEXT PRIMARY KEY,
		response  BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stream_cache (
		cache_key TEXT PRIMARY KEY,
		fragments BLOB NOT NULL
	)`,
}

// SQLiteStore keeps both tables in SQLite. The default path ":memory:"
// keeps nothing beyond the process; a file path persists across runs.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens path and creates the tables if needed.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = configuration.DefaultSQLitePath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	for _, stmt := range createTables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate cache db: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetResponse(ctx context.Context, key string) (*transport.Response, bool, error) {
	var resp transport.Response
	found, err := s.get(ctx, `SELECT response FROM generate_cache WHERE cache_key = ?`, key, &resp)
	if !found || err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (s *SQLiteStore) PutResponse(ctx context.Context, key string, resp *transport.Response) error {
	return s.put(ctx, `INSERT OR REPLACE INTO generate_cache (cache_key, response) VALUES (?, ?)`, key, resp)
}

func (s *SQLiteStore) GetFragments(ctx context.Context, key string) ([]string, bool, error) {
	var frags []string
	found, err := s.get(ctx, `SELECT fragments FROM stream_cache WHERE cache_key = ?`, key, &frags)
	if !found || err != nil {
		return nil, false, err
	}
	if frags == nil {
		frags = []string{}
	}
	return frags, true, nil
}

func (s *SQLiteStore) PutFragments(ctx context.Context, key string, fragments []string) error {
	if fragments == nil {
		fragments = []string{}
	}
	return s.put(ctx, `INSERT OR REPLACE INTO stream_cache (cache_key, fragments) VALUES (?, ?)`, key, fragments)
}

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) get(ctx context.Context, query, key string, dst any) (bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached value: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) put(ctx context.Context, query, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached value: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}
