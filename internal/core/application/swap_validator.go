package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

var errSwapMismatch = errors.New("swap doesn't match the whitelisted info")

// swapLeg is what an intercepted HTLC moves on one of its two channels.
type swapLeg struct {
	contractID *string
	rgbAmount  *uint64
}

func (l swapLeg) carries(contractID *string, amount uint64) bool {
	return l.rgbAmount != nil && *l.rgbAmount == amount &&
		l.contractID != nil && contractID != nil && *l.contractID == *contractID
}

// checkSwap tells whether the intercepted HTLC moves exactly the amounts
// whitelisted for the swap.
func checkSwap(
	swap domain.SwapInfo, inboundMsat, expectedOutboundMsat lnwire.MilliSatoshi,
	inbound, outbound swapLeg,
) error {
	in, out := uint64(inboundMsat), uint64(expectedOutboundMsat)

	switch swap.Kind() {
	case domain.SwapKindFromBtc:
		if out < in || out-in != swap.QtyFrom {
			return fmt.Errorf(
				"%w: outbound %d - inbound %d msat differs from %d",
				errSwapMismatch, out, in, swap.QtyFrom,
			)
		}
		if !inbound.carries(swap.ToAsset, swap.QtyTo) {
			return fmt.Errorf("%w: inbound asset leg", errSwapMismatch)
		}
	case domain.SwapKindToBtc:
		var diff uint64
		if in > out {
			diff = in - out
		}
		if diff != swap.QtyTo {
			return fmt.Errorf(
				"%w: inbound %d - outbound %d msat differs from %d",
				errSwapMismatch, in, out, swap.QtyTo,
			)
		}
		if !outbound.carries(swap.FromAsset, swap.QtyFrom) {
			return fmt.Errorf("%w: outbound asset leg", errSwapMismatch)
		}
	default:
		if in != out {
			return fmt.Errorf(
				"%w: inbound %d and outbound %d msat don't net to zero",
				errSwapMismatch, in, out,
			)
		}
		if !outbound.carries(swap.FromAsset, swap.QtyFrom) {
			return fmt.Errorf("%w: outbound asset leg", errSwapMismatch)
		}
		if !inbound.carries(swap.ToAsset, swap.QtyTo) {
			return fmt.Errorf("%w: inbound asset leg", errSwapMismatch)
		}
	}
	return nil
}

func (s *service) OnHTLCIntercepted(ctx context.Context, e domain.HTLCIntercepted) error {
	if !e.IsSwap {
		log.Debugf("failing non swap intercepted htlc %s", e.InterceptID)
		return s.failInterceptedHTLC(ctx, e.InterceptID)
	}

	swap, err := s.repoManager.TakerSwaps().Get(ctx, e.PaymentHash)
	if err != nil {
		if !errors.Is(err, domain.ErrSwapNotFound) {
			return err
		}
		log.Errorf("rejecting non-whitelisted swap %s", e.PaymentHash)
		return s.failInterceptedHTLC(ctx, e.InterceptID)
	}
	if !swap.IsActive() {
		log.Errorf("rejecting swap %s in status %s", e.PaymentHash, swap.Status)
		return s.failInterceptedHTLC(ctx, e.InterceptID)
	}

	channels, err := s.engine.ListChannels(ctx)
	if err != nil {
		log.WithError(err).Error("failed to list channels, rejecting swap")
		return s.failInterceptedHTLC(ctx, e.InterceptID)
	}
	inboundChannel := findChannelByScid(channels, e.PrevShortChannelID)
	outboundChannel := findChannelByScid(channels, e.RequestedNextHopScid)

	inbound := swapLeg{rgbAmount: e.InboundRgbAmount}
	outbound := swapLeg{rgbAmount: e.ExpectedOutboundRgbAmount}
	if inboundChannel != nil {
		inbound.contractID = s.channelContractID(ctx, inboundChannel.ChannelID)
	}
	if outboundChannel != nil {
		outbound.contractID = s.channelContractID(ctx, outboundChannel.ChannelID)
	}

	log.Debugf(
		"requested swap %s with inbound_msat=%d outbound_msat=%d inbound_rgb=%s "+
			"outbound_rgb=%s inbound_contract_id=%s outbound_contract_id=%s",
		e.PaymentHash, e.InboundAmountMsat, e.ExpectedOutboundAmountMsat,
		fmtOptional(inbound.rgbAmount), fmtOptional(outbound.rgbAmount),
		fmtOptional(inbound.contractID), fmtOptional(outbound.contractID),
	)

	err = checkSwap(
		swap.Info, e.InboundAmountMsat, e.ExpectedOutboundAmountMsat, inbound, outbound,
	)
	if err == nil && (inboundChannel == nil || outboundChannel == nil) {
		err = fmt.Errorf("%w: unknown channel", errSwapMismatch)
	}
	if err != nil {
		log.WithError(err).Errorf("rejecting swap %s", e.PaymentHash)
		_, err := s.repoManager.TakerSwaps().UpdateStatus(
			ctx, e.PaymentHash, domain.SwapStatusFailed,
		)
		// The counterparty must see the htlc failed even if the status update did not go through.
		s.failInterceptedHTLC(ctx, e.InterceptID)
		return err
	}

	log.Debugf("swap %s is whitelisted, forwarding the htlc", e.PaymentHash)
	if _, err := s.repoManager.TakerSwaps().UpdateStatus(
		ctx, e.PaymentHash, domain.SwapStatusPending,
	); err != nil {
		return err
	}

	if err := s.engine.ForwardInterceptedHTLC(
		ctx, e.InterceptID, e.RequestedNextHopScid, outboundChannel.Counterparty,
		e.ExpectedOutboundAmountMsat, e.ExpectedOutboundRgbAmount,
	); err != nil {
		log.WithError(err).Errorf("failed to forward swap htlc %s", e.InterceptID)
	}
	return nil
}

// failInterceptedHTLC never returns an error: a failure to fail is logged.
func (s *service) failInterceptedHTLC(ctx context.Context, id domain.InterceptID) error {
	if err := s.engine.FailInterceptedHTLC(ctx, id); err != nil {
		log.WithError(err).Errorf("failed to fail intercepted htlc %s", id)
	}
	return nil
}

// channelContractID returns nil for uncolored channels. A failed lookup is
// treated the same way, which makes any swap over the channel mismatch.
func (s *service) channelContractID(ctx context.Context, channelID lnwire.ChannelID) *string {
	info, err := s.colors.ChannelInfo(ctx, channelID)
	if err != nil {
		log.WithError(err).Errorf("failed to get color info of channel %s", channelID)
		return nil
	}
	if info == nil {
		return nil
	}
	contractID := info.ContractID
	return &contractID
}

func findChannelByScid(
	channels []domain.ChannelDetails, scid lnwire.ShortChannelID,
) *domain.ChannelDetails {
	for i := range channels {
		if c := channels[i].ShortChannelID; c != nil && *c == scid {
			return &channels[i]
		}
	}
	return nil
}
