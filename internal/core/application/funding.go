package application

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

func (s *service) OnFundingGenerationReady(
	ctx context.Context, e domain.FundingGenerationReady,
) error {
	address, err := s.fundingAddress(e.OutputScript)
	if err != nil {
		return err
	}

	if !s.sendLock.lock() {
		log.Warnf("abandoning funding of channel %s", e.TemporaryChannelID)
		return ErrFundingInProgress
	}
	funded := false
	defer func() {
		if !funded {
			s.sendLock.unlock()
		}
	}()

	colored, err := s.colors.IsColored(ctx, e.TemporaryChannelID)
	if err != nil {
		return fmt.Errorf("failed to check channel %s color: %w", e.TemporaryChannelID, err)
	}

	var (
		unsignedPsbt string
		assetID      string
		recipientID  string
	)
	if colored {
		info, err := s.colors.PendingChannelInfo(ctx, e.TemporaryChannelID)
		if err != nil {
			return fmt.Errorf(
				"failed to get color info of channel %s: %w", e.TemporaryChannelID, err,
			)
		}
		assetID = info.ContractID

		recipientID, err = s.wallet.RecipientIDFromScript(ctx, e.OutputScript)
		if err != nil {
			return fmt.Errorf("failed to derive recipient id: %w", err)
		}

		blinding := StaticBlinding
		recipients := map[string][]ports.Recipient{
			assetID: {{
				RecipientID: recipientID,
				Witness: &ports.WitnessData{
					AmountSat: e.ChannelValueSat,
					Blinding:  &blinding,
				},
				Amount:             info.LocalAmount,
				TransportEndpoints: []string{s.cfg.ProxyEndpoint},
			}},
		}
		unsignedPsbt, err = runWithResult(ctx, s.pool, func(ctx context.Context) (string, error) {
			return s.wallet.SendBegin(ctx, recipients, true, FeeRate, MinChannelConfirmations)
		})
		if err != nil {
			return fmt.Errorf("failed to build colored funding psbt: %w", err)
		}
	} else {
		unsignedPsbt, err = runWithResult(ctx, s.pool, func(ctx context.Context) (string, error) {
			return s.wallet.SendBtcBegin(ctx, address, e.ChannelValueSat, FeeRate)
		})
		if err != nil {
			return fmt.Errorf("failed to build funding psbt: %w", err)
		}
	}

	signedPsbt, err := runWithResult(ctx, s.pool, func(ctx context.Context) (string, error) {
		return s.wallet.SignPsbt(ctx, unsignedPsbt)
	})
	if err != nil {
		return fmt.Errorf("failed to sign funding psbt: %w", err)
	}

	fundingTx, err := extractTxFromPsbt(signedPsbt)
	if err != nil {
		return err
	}
	fundingTxid := fundingTx.TxHash().String()

	if err := s.handoff.Write(ctx, psbtHandoffKey(fundingTxid), []byte(signedPsbt)); err != nil {
		return &domain.DurabilityError{Key: psbtHandoffKey(fundingTxid), Err: err}
	}

	if colored {
		if err := s.postFundingConsignment(ctx, fundingTxid, assetID, recipientID); err != nil {
			log.WithError(err).Error("cannot post consignment")
			return nil
		}
	}

	if err := s.engine.FundingTransactionGenerated(
		ctx, e.TemporaryChannelID, e.CounterpartyNodeID, fundingTx,
	); err != nil {
		log.WithError(err).Error(
			"channel went away before we could fund it, the peer disconnected " +
				"or refused the channel",
		)
		return nil
	}

	funded = true
	log.Infof(
		"funding tx %s generated for channel %s (colored: %t)",
		fundingTxid, e.TemporaryChannelID, colored,
	)
	return nil
}

func (s *service) fundingAddress(script []byte) (string, error) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(script, s.cfg.Network)
	if err != nil {
		return "", fmt.Errorf("invalid funding output script: %w", err)
	}
	switch class {
	case txscript.WitnessV0ScriptHashTy, txscript.WitnessV0PubKeyHashTy,
		txscript.WitnessV1TaprootTy:
	default:
		return "", errNotSegwitFunding
	}
	if len(addrs) != 1 {
		return "", errNotSegwitFunding
	}
	return addrs[0].EncodeAddress(), nil
}

// postFundingConsignment posts the consignment of the funding transfer. The
// funding txid is used as recipient id, the funding output is always at vout 0.
func (s *service) postFundingConsignment(
	ctx context.Context, fundingTxid, assetID, recipientID string,
) error {
	return s.pool.run(ctx, func(ctx context.Context) error {
		consignment, err := s.wallet.SendConsignment(ctx, fundingTxid, assetID, recipientID)
		if err != nil {
			return fmt.Errorf("failed to get funding consignment: %w", err)
		}
		vout := uint32(0)
		if err := s.proxy.PostConsignment(
			ctx, s.cfg.ProxyEndpoint, fundingTxid, fundingTxid, &vout, consignment,
		); err != nil {
			return fmt.Errorf("%w: %s", ErrConsignmentPost, err)
		}
		return nil
	})
}
