package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"sort"
	"sync"
	"time"

	"mfsync/pkg/sqliteutil"
)

//go:embed schema.sql
var Schema string

// KV is the durable key/value storage behind a Store. Set writes every
// value or none of them.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// SQLKV keeps values in the kv table of a sqlite or libsql database.
type SQLKV struct {
	db *sql.DB
}

// OpenSQLKV opens the configured database (a file, `:memory:` or a libsql
// url) and creates the kv table if needed.
func OpenSQLKV(config sqliteutil.Config) (SQLKV, error) {
	db, err := config.OpenDB(Schema)
	if err != nil {
		return SQLKV{}, err
	}
	return SQLKV{db: db}, nil
}

func (s SQLKV) Close() error {
	return s.db.Close()
}

func (s SQLKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "select value from kv where key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s SQLKV) Set(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, key := range sortedKeys(values) {
		_, err = tx.ExecContext(
			ctx,
			`insert into kv(key, value, updated_at) values (?, ?, ?)
			on conflict(key) do update set value = excluded.value, updated_at = excluded.updated_at`,
			key, values[key], now,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s SQLKV) Delete(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, key := range keys {
		_, err = tx.ExecContext(ctx, "delete from kv where key = ?", key)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MemoryKV is a KV that lives only as long as the process.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: map[string]string{}}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryKV) Set(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range values {
		m.values[key] = value
	}
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}
