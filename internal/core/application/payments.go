package application

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

func (s *service) OnPaymentClaimable(ctx context.Context, e domain.PaymentClaimable) error {
	log.Infof(
		"received payment from payment hash %s of %d millisatoshis",
		e.PaymentHash, e.AmountMsat,
	)
	if e.Purpose.Preimage == nil {
		log.Warnf("no preimage known for payment %s, not claiming it", e.PaymentHash)
		return nil
	}
	if err := s.engine.ClaimFunds(ctx, *e.Purpose.Preimage); err != nil {
		log.WithError(err).Errorf("failed to claim payment %s", e.PaymentHash)
	}
	return nil
}

func (s *service) OnPaymentClaimed(ctx context.Context, e domain.PaymentClaimed) error {
	log.Infof(
		"claimed payment from payment hash %s of %d millisatoshis",
		e.PaymentHash, e.AmountMsat,
	)

	s.updatePaymentAmounts(ctx, e.PaymentHash, true)

	handled, err := s.completeMakerSwap(ctx, e.PaymentHash, domain.SwapStatusSucceeded)
	if err != nil || handled {
		return err
	}

	amount := uint64(e.AmountMsat)
	err = s.repoManager.InboundPayments().Upsert(
		ctx, e.PaymentHash, domain.HTLCStatusSucceeded,
		e.Purpose.Preimage, e.Purpose.Secret, &amount,
	)
	return ignoreFinalized(err)
}

func (s *service) OnPaymentSent(ctx context.Context, e domain.PaymentSent) error {
	s.updatePaymentAmounts(ctx, e.PaymentHash, false)

	handled, err := s.completeMakerSwap(ctx, e.PaymentHash, domain.SwapStatusSucceeded)
	if err != nil || handled {
		return err
	}
	if e.PaymentID == nil {
		log.Warnf("sent payment %s has no payment id", e.PaymentHash)
		return nil
	}

	preimage := e.PaymentPreimage
	payment, err := s.repoManager.OutboundPayments().Update(
		ctx, *e.PaymentID, domain.HTLCStatusSucceeded, &preimage,
	)
	if err != nil {
		return ignoreFinalized(err)
	}

	msg := "sent payment"
	if payment.AmountMsat != nil {
		msg += " of " + fmtOptional(payment.AmountMsat) + " millisatoshis"
	}
	if e.FeePaidMsat != nil {
		msg += " (fee " + fmtOptional(e.FeePaidMsat) + ")"
	}
	log.Infof("%s from payment hash %s with preimage %s", msg, e.PaymentHash, preimage)
	return nil
}

func (s *service) OnPaymentFailed(ctx context.Context, e domain.PaymentFailed) error {
	log.Infof("failed to send payment to payment hash %s: %s", e.PaymentHash, e.Reason)

	handled, err := s.completeMakerSwap(ctx, e.PaymentHash, domain.SwapStatusFailed)
	if err != nil || handled {
		return err
	}

	err = s.repoManager.OutboundPayments().UpdateStatus(ctx, e.PaymentID, domain.HTLCStatusFailed)
	return ignoreFinalized(err)
}

func (s *service) OnInvoiceRequestFailed(ctx context.Context, e domain.InvoiceRequestFailed) error {
	log.Infof("failed to request invoice for payment id %s", e.PaymentID)
	err := s.repoManager.OutboundPayments().UpdateStatus(ctx, e.PaymentID, domain.HTLCStatusFailed)
	return ignoreFinalized(err)
}

func (s *service) OnPaymentForwarded(ctx context.Context, e domain.PaymentForwarded) error {
	if e.NextChannelID != nil && e.OutboundAmountForwardedRgb != nil {
		if err := s.colors.UpdateChannelAmount(
			ctx, *e.NextChannelID, *e.OutboundAmountForwardedRgb, 0,
		); err != nil {
			log.WithError(err).Errorf("failed to update color info of channel %s", e.NextChannelID)
		}
	}
	if e.PrevChannelID != nil && e.InboundAmountForwardedRgb != nil {
		if err := s.colors.UpdateChannelAmount(
			ctx, *e.PrevChannelID, 0, *e.InboundAmountForwardedRgb,
		); err != nil {
			log.WithError(err).Errorf("failed to update color info of channel %s", e.PrevChannelID)
		}
	}

	isTakerSwap, err := s.repoManager.TakerSwaps().Contains(ctx, e.PaymentHash)
	if err != nil {
		return err
	}
	if isTakerSwap {
		if _, err := s.repoManager.TakerSwaps().UpdateStatus(
			ctx, e.PaymentHash, domain.SwapStatusSucceeded,
		); err != nil {
			return ignoreFinalized(err)
		}
	}

	from, to := "an unknown node", "an unknown node"
	if e.PrevChannelID != nil {
		from = "channel " + e.PrevChannelID.String()
	}
	if e.NextChannelID != nil {
		to = "channel " + e.NextChannelID.String()
	}
	onchain := ""
	if e.ClaimFromOnchainTx {
		onchain = " from an on-chain transaction"
	}
	if e.TotalFeeEarnedMsat != nil {
		log.Infof(
			"forwarded payment %s from %s to %s, earning %d msat%s",
			e.PaymentHash, from, to, *e.TotalFeeEarnedMsat, onchain,
		)
	} else {
		log.Infof(
			"forwarded payment %s from %s to %s, claiming onchain%s",
			e.PaymentHash, from, to, onchain,
		)
	}
	return nil
}

func (s *service) updatePaymentAmounts(ctx context.Context, hash lntypes.Hash, receiver bool) {
	if err := s.colors.UpdatePaymentAmounts(ctx, hash, receiver); err != nil {
		log.WithError(err).Errorf("failed to update asset amounts of payment %s", hash)
	}
}

// completeMakerSwap moves the maker swap with the given hash, if any, to the
// given final status. It returns whether a maker swap was found.
func (s *service) completeMakerSwap(
	ctx context.Context, hash lntypes.Hash, status domain.SwapStatus,
) (bool, error) {
	isMakerSwap, err := s.repoManager.MakerSwaps().Contains(ctx, hash)
	if err != nil {
		return false, err
	}
	if !isMakerSwap {
		return false, nil
	}
	if _, err := s.repoManager.MakerSwaps().UpdateStatus(ctx, hash, status); err != nil {
		return true, ignoreFinalized(err)
	}
	log.Infof("maker swap %s is now %s", hash, status)
	return true, nil
}

// ignoreFinalized logs and drops attempts to change finalized records or
// records we don't know about. Anything else is returned.
func ignoreFinalized(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrPaymentFinalized),
		errors.Is(err, domain.ErrSwapFinalized),
		errors.Is(err, domain.ErrPaymentNotFound):
		log.WithError(err).Warn("ignoring status update")
		return nil
	default:
		return err
	}
}
