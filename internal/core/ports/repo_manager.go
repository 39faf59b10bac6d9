package ports

import "github.com/rgb-ln/rlnd/internal/core/domain"

type RepoManager interface {
	InboundPayments() domain.InboundPaymentRepository
	OutboundPayments() domain.OutboundPaymentRepository
	MakerSwaps() domain.SwapRepository
	TakerSwaps() domain.SwapRepository
	ChannelIDs() domain.ChannelIDRepository
	SpendCache() domain.SpendCacheRepository
	PeerAddresses() domain.PeerAddressRepository
	TrackedOutputs() domain.TrackedOutputsRepository
	Close()
}
