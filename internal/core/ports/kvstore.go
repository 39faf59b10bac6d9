package ports

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// KVStore persists opaque blobs under flat keys. A Write is atomic: readers
// observe either the previous or the new value.
type KVStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close()
}
