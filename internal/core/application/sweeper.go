package application

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// sweeper is an unexported service running while the main application service is started.
// It keeps track of the spendable outputs of closed channels and spends them
// through the colored output spender until the spend is deeply confirmed.
// Sweeps are attempted when the outputs are first tracked, at every new block
// and at every scheduler tick.
type sweeper struct {
	chain       ports.ChainSource
	wallet      ports.AssetWallet
	repoManager ports.RepoManager
	scheduler   ports.SchedulerService
	spender     *coloredOutputSpender
	sendLock    *sendLock
	interval    int64
	onFatal     func(err error)

	// serializes sweep rounds
	locker sync.Locker
}

func newSweeper(
	chain ports.ChainSource,
	wallet ports.AssetWallet,
	repoManager ports.RepoManager,
	scheduler ports.SchedulerService,
	spender *coloredOutputSpender,
	sendLock *sendLock,
	interval int64,
	onFatal func(err error),
) *sweeper {
	return &sweeper{
		chain,
		wallet,
		repoManager,
		scheduler,
		spender,
		sendLock,
		interval,
		onFatal,
		&sync.Mutex{},
	}
}

func (s *sweeper) start() error {
	s.scheduler.Start()

	if s.interval <= 0 {
		return nil
	}
	return s.scheduler.ScheduleTask(s.interval, false, func() {
		s.sweepAll(context.Background())
	})
}

func (s *sweeper) stop() {
	s.scheduler.Stop()
}

// track persists the outputs and makes a first attempt to sweep them.
func (s *sweeper) track(
	ctx context.Context, descriptors []domain.SpendableOutputDescriptor,
	channelID *lnwire.ChannelID,
) error {
	if len(descriptors) <= 0 {
		return nil
	}

	key, err := domain.DescriptorSetHash(descriptors)
	if err != nil {
		return err
	}
	outputs := domain.TrackedOutputs{
		Descriptors: descriptors,
		ChannelID:   channelID,
	}
	if err := s.repoManager.TrackedOutputs().Add(ctx, key, outputs); err != nil {
		return err
	}
	log.Debugf("tracking %d spendable outputs (set %s)", len(descriptors), key)

	s.locker.Lock()
	defer s.locker.Unlock()

	all, err := s.repoManager.TrackedOutputs().GetAll(ctx)
	if err != nil {
		return err
	}
	tracked, ok := all[key]
	if !ok {
		return nil
	}
	if err := s.sweep(ctx, key, tracked); err != nil {
		if domain.IsDurabilityFailure(err) {
			return err
		}
		log.WithError(err).Warnf("failed to sweep outputs %s, will retry", key)
	}
	return nil
}

// sweepAll is triggered by the scheduler and by the chain poller.
func (s *sweeper) sweepAll(ctx context.Context) {
	s.locker.Lock()
	defer s.locker.Unlock()

	all, err := s.repoManager.TrackedOutputs().GetAll(ctx)
	if err != nil {
		log.WithError(err).Error("failed to get tracked outputs")
		return
	}
	for key, tracked := range all {
		if err := s.sweep(ctx, key, tracked); err != nil {
			// A spend that could not be cached must not be rebuilt.
			if domain.IsDurabilityFailure(err) {
				s.onFatal(err)
				return
			}
			log.WithError(err).Errorf("failed to sweep outputs %s", key)
		}
	}
}

func (s *sweeper) sweep(
	ctx context.Context, key chainhash.Hash, tracked domain.TrackedOutputs,
) error {
	repo := s.repoManager.TrackedOutputs()

	if tracked.SpendTxid != nil {
		confirmations, err := s.chain.Confirmations(ctx, *tracked.SpendTxid)
		if err != nil {
			return err
		}
		if confirmations >= sweepConfirmations {
			log.Infof(
				"sweep %s of outputs %s reached %d confirmations, stop tracking",
				tracked.SpendTxid, key, confirmations,
			)
			return repo.Delete(ctx, key)
		}
		if confirmations > 0 {
			return nil
		}
	}

	if s.sendLock.isLocked() {
		log.Debugf("colored funding in progress, delaying sweep of outputs %s", key)
		return nil
	}

	tip, err := s.chain.BestTip(ctx)
	if err != nil {
		return err
	}
	changeScript, err := s.wallet.NewChangeScript(ctx)
	if err != nil {
		return err
	}

	tx, err := s.spender.spend(ctx, tracked.Descriptors, nil, changeScript, feeRatePerKw, nil)
	if err != nil {
		return err
	}

	txid := tx.TxHash()
	if err := s.chain.Broadcast(ctx, tx); err != nil {
		log.WithError(err).Warnf("failed to broadcast sweep %s", txid)
	} else {
		log.Infof("broadcasted sweep %s of outputs %s", txid, key)
	}

	tracked.SpendTxid = &txid
	tracked.BroadcastHeight = tip.Height
	return repo.Update(ctx, key, tracked)
}
