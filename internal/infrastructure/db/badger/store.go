package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

const ledgerStoreDir = "ledger"

type kvEntry struct {
	Value []byte
}

type store struct {
	db *badgerhold.Store
	// nil for in-memory stores
	gc *valueLogGC
}

// NewStore expects the base directory and an optional badger logger. An empty
// directory makes the store in-memory.
func NewStore(config ...interface{}) (ports.KVStore, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, ledgerStoreDir)
	}
	db, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %s", err)
	}

	var gc *valueLogGC
	if len(dir) > 0 {
		gc = startValueLogGC(db, logger, gcInterval)
	}
	return &store{db, gc}, nil
}

func (s *store) Read(_ context.Context, key string) ([]byte, error) {
	var entry kvEntry
	if err := s.db.Get(key, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ports.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return entry.Value, nil
}

func (s *store) Write(_ context.Context, key string, value []byte) error {
	entry := kvEntry{value}
	err := s.db.Upsert(key, entry)
	attempts := 1
	for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
		time.Sleep(100 * time.Millisecond)
		err = s.db.Upsert(key, entry)
		attempts++
	}
	return err
}

func (s *store) Remove(_ context.Context, key string) error {
	if err := s.db.Delete(key, kvEntry{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *store) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := s.Read(ctx, key); err != nil {
		if errors.Is(err, ports.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *store) Close() {
	if s.gc != nil {
		s.gc.stop()
	}
	s.db.Close()
}
