package db

import (
	"fmt"

	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	badgerdb "github.com/rgb-ln/rlnd/internal/infrastructure/db/badger"
	filedb "github.com/rgb-ln/rlnd/internal/infrastructure/db/file"
	sqlitedb "github.com/rgb-ln/rlnd/internal/infrastructure/db/sqlite"
)

var kvStoreTypes = map[string]func(...interface{}) (ports.KVStore, error){
	"file":   filedb.NewStore,
	"badger": badgerdb.NewStore,
	"sqlite": sqlitedb.NewStore,
}

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	store            ports.KVStore
	inboundPayments  domain.InboundPaymentRepository
	outboundPayments domain.OutboundPaymentRepository
	makerSwaps       domain.SwapRepository
	takerSwaps       domain.SwapRepository
	channelIDs       domain.ChannelIDRepository
	spendCache       domain.SpendCacheRepository
	peerAddresses    domain.PeerAddressRepository
	trackedOutputs   domain.TrackedOutputsRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	storeFactory, ok := kvStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	store, err := storeFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create data store: %w", err)
	}

	return NewServiceWithStore(store), nil
}

// NewServiceWithStore builds every ledger on top of an already opened store.
func NewServiceWithStore(store ports.KVStore) ports.RepoManager {
	return &service{
		store:            store,
		inboundPayments:  NewInboundPaymentRepository(store),
		outboundPayments: NewOutboundPaymentRepository(store),
		makerSwaps:       NewMakerSwapRepository(store),
		takerSwaps:       NewTakerSwapRepository(store),
		channelIDs:       NewChannelIDRepository(store),
		spendCache:       NewSpendCacheRepository(store),
		peerAddresses:    NewPeerAddressRepository(store),
		trackedOutputs:   NewTrackedOutputsRepository(store),
	}
}

func (s *service) InboundPayments() domain.InboundPaymentRepository {
	return s.inboundPayments
}

func (s *service) OutboundPayments() domain.OutboundPaymentRepository {
	return s.outboundPayments
}

func (s *service) MakerSwaps() domain.SwapRepository {
	return s.makerSwaps
}

func (s *service) TakerSwaps() domain.SwapRepository {
	return s.takerSwaps
}

func (s *service) ChannelIDs() domain.ChannelIDRepository {
	return s.channelIDs
}

func (s *service) SpendCache() domain.SpendCacheRepository {
	return s.spendCache
}

func (s *service) PeerAddresses() domain.PeerAddressRepository {
	return s.peerAddresses
}

func (s *service) TrackedOutputs() domain.TrackedOutputsRepository {
	return s.trackedOutputs
}

func (s *service) Close() {
	s.store.Close()
}
