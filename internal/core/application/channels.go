package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

func (s *service) OnOpenChannelRequest(ctx context.Context, e domain.OpenChannelRequest) error {
	var userChannelID domain.UserChannelID
	entropy := s.entropy.SecureRandomBytes()
	copy(userChannelID[:], entropy[:len(userChannelID)])

	if err := s.engine.AcceptInboundChannel(
		ctx, e.TemporaryChannelID, e.CounterpartyNodeID, userChannelID,
	); err != nil {
		log.WithError(err).Errorf(
			"failed to accept inbound channel %s from peer %s",
			e.TemporaryChannelID, e.CounterpartyNodeID,
		)
		return nil
	}
	log.Infof(
		"accepted inbound channel %s from peer %s (funding %d sat, push %d msat)",
		e.TemporaryChannelID, e.CounterpartyNodeID, e.FundingSat, e.PushMsat,
	)
	return nil
}

func (s *service) OnChannelPending(ctx context.Context, e domain.ChannelPending) error {
	if err := s.repoManager.ChannelIDs().Add(
		ctx, e.FormerTemporaryChannelID, e.ChannelID,
	); err != nil {
		return err
	}
	log.Infof(
		"channel %s with peer %s is pending (temporary id %s)",
		e.ChannelID, e.CounterpartyNodeID, e.FormerTemporaryChannelID,
	)

	fundingTxid := e.FundingTxo.Hash.String()

	psbtKey := psbtHandoffKey(fundingTxid)
	found, err := s.handoff.Exists(ctx, psbtKey)
	if err != nil {
		return fmt.Errorf("failed to look for funding psbt: %w", err)
	}
	if found {
		return s.completeFunding(ctx, e.ChannelID, psbtKey)
	}

	consignmentKey := consignmentHandoffKey(fundingTxid)
	found, err = s.handoff.Exists(ctx, consignmentKey)
	if err != nil {
		return fmt.Errorf("failed to look for funding consignment: %w", err)
	}
	if found {
		return s.registerFundingAsset(ctx, e.ChannelID, consignmentKey)
	}
	return nil
}

// completeFunding broadcasts the funding we built, then releases the send-lock.
func (s *service) completeFunding(
	ctx context.Context, channelID lnwire.ChannelID, psbtKey string,
) error {
	defer s.sendLock.unlock()

	signedPsbt, err := s.handoff.Read(ctx, psbtKey)
	if err != nil {
		return fmt.Errorf("failed to read funding psbt: %w", err)
	}
	colored, err := s.colors.IsColored(ctx, channelID)
	if err != nil {
		return fmt.Errorf("failed to check channel %s color: %w", channelID, err)
	}

	txid, err := runWithResult(ctx, s.pool, func(ctx context.Context) (string, error) {
		if colored {
			return s.wallet.SendEnd(ctx, string(signedPsbt))
		}
		return s.wallet.SendBtcEnd(ctx, string(signedPsbt))
	})
	if err != nil {
		return fmt.Errorf("failed to broadcast funding of channel %s: %w", channelID, err)
	}
	log.Infof("broadcasted funding tx %s of channel %s", txid, channelID)

	if err := s.handoff.Remove(ctx, psbtKey); err != nil {
		log.WithError(err).Warnf("failed to remove funding psbt %s", psbtKey)
	}
	return nil
}

// registerFundingAsset makes the wallet aware of the asset received with an
// inbound colored channel.
func (s *service) registerFundingAsset(
	ctx context.Context, channelID lnwire.ChannelID, consignmentKey string,
) error {
	data, err := s.handoff.Read(ctx, consignmentKey)
	if err != nil {
		return fmt.Errorf("failed to read funding consignment: %w", err)
	}

	return s.pool.run(ctx, func(ctx context.Context) error {
		info, err := s.wallet.LoadConsignment(ctx, data)
		if err != nil {
			return fmt.Errorf("failed to load funding consignment: %w", err)
		}
		err = s.wallet.SaveNewAsset(ctx, info.Schema, info.ContractID)
		if errors.Is(err, domain.ErrAssetAlreadyRegistered) {
			log.Debugf("asset %s already registered", info.ContractID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to save asset %s: %w", info.ContractID, err)
		}
		log.Infof("registered asset %s received with channel %s", info.ContractID, channelID)
		return nil
	})
}

func (s *service) OnChannelReady(ctx context.Context, e domain.ChannelReady) error {
	log.Infof("channel %s with peer %s is ready to be used", e.ChannelID, e.CounterpartyNodeID)

	// Two rounds: the first settles the funding transfer, the second picks
	// up the allocations it created.
	for i := 0; i < 2; i++ {
		if err := s.pool.run(ctx, s.wallet.Refresh); err != nil {
			log.WithError(err).Warn("failed to refresh wallet")
			return nil
		}
	}
	return nil
}

func (s *service) OnChannelClosed(ctx context.Context, e domain.ChannelClosed) error {
	log.Infof("channel %s closed due to: %s", e.ChannelID, e.Reason)

	inbound, err := s.repoManager.InboundPayments().FailPending(ctx)
	if err != nil {
		return err
	}
	outbound, err := s.repoManager.OutboundPayments().FailPending(ctx)
	if err != nil {
		return err
	}
	if len(inbound)+len(outbound) > 0 {
		log.Infof(
			"failed %d pending inbound and %d pending outbound payments",
			len(inbound), len(outbound),
		)
	}

	return s.repoManager.ChannelIDs().DeleteByFinal(ctx, e.ChannelID)
}

func (s *service) OnDiscardFunding(ctx context.Context, e domain.DiscardFunding) error {
	log.Infof("discarding funding tx %s of channel %s", e.FundingTxid, e.ChannelID)
	s.sendLock.unlock()
	return s.repoManager.ChannelIDs().DeleteByFinal(ctx, e.ChannelID)
}

func (s *service) OnSpendableOutputs(ctx context.Context, e domain.SpendableOutputs) error {
	return s.sweeper.track(ctx, e.Outputs, e.ChannelID)
}
