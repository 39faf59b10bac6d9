package db

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

type blobCodec[K comparable, V any] interface {
	encode(m map[K]V) ([]byte, error)
	decode(buf []byte) (map[K]V, error)
}

// ledger keeps one map persisted as a single blob. Every mutation works on a
// copy of the current map and swaps it in only once the whole map has been
// written back, so memory never gets ahead of the store.
type ledger[K comparable, V any] struct {
	lock   sync.Mutex
	store  ports.KVStore
	key    string
	codec  blobCodec[K, V]
	loaded bool
	data   map[K]V
}

func newLedger[K comparable, V any](
	store ports.KVStore, key string, codec blobCodec[K, V],
) *ledger[K, V] {
	return &ledger[K, V]{
		store: store,
		key:   key,
		codec: codec,
	}
}

func (l *ledger[K, V]) load(ctx context.Context) (map[K]V, error) {
	if l.loaded {
		return l.data, nil
	}

	buf, err := l.store.Read(ctx, l.key)
	if err != nil {
		if !errors.Is(err, ports.ErrKeyNotFound) {
			return nil, fmt.Errorf("failed to read %s: %w", l.key, err)
		}
		l.data, l.loaded = make(map[K]V), true
		return l.data, nil
	}

	data, err := l.codec.decode(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", l.key, err)
	}
	l.data, l.loaded = data, true
	return l.data, nil
}

func (l *ledger[K, V]) view(ctx context.Context) (map[K]V, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	data, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return maps.Clone(data), nil
}

func (l *ledger[K, V]) get(ctx context.Context, key K) (V, bool, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	var empty V
	data, err := l.load(ctx)
	if err != nil {
		return empty, false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

// update applies fn to a copy of the map and persists the result. Nothing is
// written if fn fails.
func (l *ledger[K, V]) update(ctx context.Context, fn func(data map[K]V) error) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	data, err := l.load(ctx)
	if err != nil {
		return err
	}

	next := maps.Clone(data)
	if next == nil {
		next = make(map[K]V)
	}
	if err := fn(next); err != nil {
		return err
	}

	buf, err := l.codec.encode(next)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", l.key, err)
	}
	if err := l.store.Write(ctx, l.key, buf); err != nil {
		return &domain.DurabilityError{Key: l.key, Err: err}
	}

	l.data = next
	return nil
}
