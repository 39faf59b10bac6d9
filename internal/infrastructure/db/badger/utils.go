package badgerdb

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
)

const (
	maxRetries = 5
	gcInterval = 30 * time.Minute
)

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// valueLogGC periodically reclaims space from the badger value log.
type valueLogGC struct {
	quit chan struct{}
	done chan struct{}
}

func startValueLogGC(
	db *badgerhold.Store, logger badger.Logger, interval time.Duration,
) *valueLogGC {
	gc := &valueLogGC{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(gc.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-gc.quit:
				return
			case <-ticker.C:
				err := db.Badger().RunValueLogGC(0.5)
				if err != nil && err != badger.ErrNoRewrite && logger != nil {
					logger.Errorf("%s", err)
				}
			}
		}
	}()

	return gc
}

// stop returns once the gc goroutine exited, it must be called before
// closing the db.
func (gc *valueLogGC) stop() {
	close(gc.quit)
	<-gc.done
}
