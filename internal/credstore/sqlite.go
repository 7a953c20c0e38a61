package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `create table if not exists credentials (
	key   text primary key,
	value text not null
)`

// SQLite is a durable partition backed by a local SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the
// credentials table exists.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("credstore: sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("credstore: open sqlite: %w", err)
	}
	p, err := NewSQLite(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// NewSQLite wraps an existing database handle and ensures the schema.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if db == nil {
		return nil, errors.New("credstore: db handle is required")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("credstore: ensure schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (p *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRowContext(ctx, "select value from credentials where key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (p *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx,
		"insert into credentials (key, value) values (?, ?) on conflict(key) do update set value = excluded.value",
		key, value)
	return err
}

func (p *SQLite) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, "delete from credentials where key = ?", key)
	return err
}

// Close releases the underlying database handle.
func (p *SQLite) Close() error {
	return p.db.Close()
}
