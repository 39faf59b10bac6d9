package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rgb-ln/rlnd/internal/core/ports"
)

const sqliteDbFile = "sqlite.db"

const (
	selectValue = "SELECT value FROM kv WHERE key = ?"
	upsertValue = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteValue = "DELETE FROM kv WHERE key = ?"
	countKey    = "SELECT COUNT(1) FROM kv WHERE key = ?"
)

type store struct {
	db *sql.DB
}

// NewStore opens (and migrates) the sqlite database in the given dir.
func NewStore(config ...interface{}) (ports.KVStore, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok || len(baseDir) <= 0 {
		return nil, fmt.Errorf("invalid base directory")
	}

	db, err := OpenDb(filepath.Join(baseDir, sqliteDbFile))
	if err != nil {
		return nil, err
	}
	if err := MigrateDb(db); err != nil {
		db.Close()
		return nil, err
	}

	return &store{db}, nil
}

func (s *store) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.db.QueryRowContext(ctx, selectValue, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ports.ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (s *store) Write(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(
		ctx, upsertValue, key, value, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteValue, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *store) Exists(ctx context.Context, key string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, countKey, key).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *store) Close() {
	s.db.Close()
}
