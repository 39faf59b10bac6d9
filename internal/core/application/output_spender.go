package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// coloredOutputSpender sweeps spendable outputs of closed channels keeping
// the assets allocated to them. Colored spends are cached by descriptor set so
// that a retried sweep returns the very same transaction.
type coloredOutputSpender struct {
	wallet        ports.AssetWallet
	signer        ports.OutputSigner
	colors        ports.ChannelColorSource
	proxy         ports.ConsignmentProxy
	handoff       ports.KVStore
	cache         domain.SpendCacheRepository
	pool          *workerPool
	proxyEndpoint string

	inflight singleflight.Group
}

func newColoredOutputSpender(
	wallet ports.AssetWallet, signer ports.OutputSigner,
	colors ports.ChannelColorSource, proxy ports.ConsignmentProxy,
	handoff ports.KVStore, cache domain.SpendCacheRepository,
	pool *workerPool, proxyEndpoint string,
) *coloredOutputSpender {
	return &coloredOutputSpender{
		wallet:        wallet,
		signer:        signer,
		colors:        colors,
		proxy:         proxy,
		handoff:       handoff,
		cache:         cache,
		pool:          pool,
		proxyEndpoint: proxyEndpoint,
	}
}

type assetAllocation struct {
	vout        uint32
	amount      uint64
	recipientID string
	inputs      []ports.Outpoint
}

func (s *coloredOutputSpender) spend(
	ctx context.Context, descriptors []domain.SpendableOutputDescriptor,
	outputs []*wire.TxOut, changeScript []byte, feeRate chainfee.SatPerKWeight,
	locktime *uint32,
) (*wire.MsgTx, error) {
	key, err := domain.DescriptorSetHash(descriptors)
	if err != nil {
		return nil, err
	}

	// Concurrent requests for the same set share a single build.
	res, err, _ := s.inflight.Do(key.String(), func() (interface{}, error) {
		tx, err := s.cache.Get(ctx, key)
		if err == nil {
			log.Debugf("found cached spend %s for descriptor set %s", tx.TxHash(), key)
			return tx, nil
		}
		if !errors.Is(err, domain.ErrSpendNotCached) {
			return nil, err
		}

		tx, colored, err := s.buildSpend(
			ctx, descriptors, outputs, changeScript, feeRate, locktime,
		)
		if err != nil {
			return nil, err
		}
		if !colored {
			return tx, nil
		}
		if err := s.cache.Add(ctx, key, tx); err != nil {
			return nil, err
		}
		return tx, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*wire.MsgTx).Copy(), nil
}

func (s *coloredOutputSpender) buildSpend(
	ctx context.Context, descriptors []domain.SpendableOutputDescriptor,
	outputs []*wire.TxOut, changeScript []byte, feeRate chainfee.SatPerKWeight,
	locktime *uint32,
) (*wire.MsgTx, bool, error) {
	txOuts := make([]*wire.TxOut, 0, len(outputs))
	for _, out := range outputs {
		txOuts = append(txOuts, wire.NewTxOut(out.Value, out.PkScript))
	}

	allocations := make(map[string]*assetAllocation)
	assetOrder := make([]string, 0)

	for _, d := range descriptors {
		txid := d.Outpoint.Hash
		info, err := s.colors.TransferInfo(ctx, txid)
		if err != nil {
			return nil, false, fmt.Errorf("failed to get transfer info of %s: %w", txid, err)
		}
		if info == nil || info.Amount == 0 {
			continue
		}

		if err := s.updateWitnesses(ctx, txid.String()); err != nil {
			return nil, false, err
		}

		input := ports.Outpoint{Txid: txid.String(), Vout: d.Outpoint.Index}
		if alloc, ok := allocations[info.ContractID]; ok {
			alloc.amount += info.Amount
			alloc.inputs = append(alloc.inputs, input)
			continue
		}

		receiveData, err := runWithResult(ctx, s.pool, func(ctx context.Context) (*ports.ReceiveData, error) {
			return s.wallet.WitnessReceive(ctx, []string{s.proxyEndpoint})
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to get receive data: %w", err)
		}
		script, err := s.wallet.ScriptFromRecipientID(ctx, receiveData.RecipientID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to get script of recipient: %w", err)
		}

		allocations[info.ContractID] = &assetAllocation{
			vout:        uint32(len(txOuts)),
			amount:      info.Amount,
			recipientID: receiveData.RecipientID,
			inputs:      []ports.Outpoint{input},
		}
		assetOrder = append(assetOrder, info.ContractID)
		txOuts = append(txOuts, wire.NewTxOut(DustLimitMsat/1000, script))
	}

	if len(allocations) == 0 {
		tx, err := runWithResult(ctx, s.pool, func(ctx context.Context) (*wire.MsgTx, error) {
			return s.signer.SpendSpendableOutputs(
				ctx, descriptors, txOuts, changeScript, feeRate, locktime,
			)
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to spend outputs: %w", err)
		}
		return tx, false, nil
	}

	packet, err := s.signer.CreateSpendableOutputsPsbt(
		ctx, descriptors, txOuts, changeScript, feeRatePerKw, locktime,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create spending psbt: %w", err)
	}

	coloringInfo := ports.ColoringInfo{
		AssetInfoMap: make(map[string]ports.AssetColoringInfo, len(allocations)),
	}
	for contractID, alloc := range allocations {
		coloringInfo.AssetInfoMap[contractID] = ports.AssetColoringInfo{
			Iface:          ports.AssetIfaceRGB20,
			OutputMap:      map[uint32]uint64{alloc.vout: alloc.amount},
			InputOutpoints: alloc.inputs,
		}
	}

	consignments, err := runWithResult(ctx, s.pool, func(ctx context.Context) ([]ports.Consignment, error) {
		return s.wallet.ColorPsbt(ctx, packet, coloringInfo)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to color psbt: %w", err)
	}

	signed, err := runWithResult(ctx, s.pool, func(ctx context.Context) (*psbt.Packet, error) {
		return s.signer.SignSpendableOutputsPsbt(ctx, descriptors, packet)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to sign psbt: %w", err)
	}
	tx, err := extractTx(signed)
	if err != nil {
		return nil, false, err
	}

	closingTxid := tx.TxHash().String()
	for _, consignment := range consignments {
		alloc, ok := allocations[consignment.ContractID]
		if !ok {
			return nil, false, fmt.Errorf(
				"wallet returned consignment for unexpected asset %s", consignment.ContractID,
			)
		}
		if err := s.postConsignment(ctx, closingTxid, alloc, consignment.Data); err != nil {
			return nil, false, err
		}
	}

	log.Infof(
		"built colored spend %s for %d descriptors moving %d assets",
		closingTxid, len(descriptors), len(assetOrder),
	)
	return tx, true, nil
}

func (s *coloredOutputSpender) updateWitnesses(ctx context.Context, txid string) error {
	return s.pool.run(ctx, func(ctx context.Context) error {
		height, err := s.wallet.GetTxHeight(ctx, txid)
		if err != nil {
			return fmt.Errorf("failed to get height of tx %s: %w", txid, err)
		}
		if height == nil {
			return fmt.Errorf("tx %s is not confirmed yet", txid)
		}
		failed, err := s.wallet.UpdateWitnesses(ctx, *height)
		if err != nil {
			return fmt.Errorf("failed to update witnesses: %w", err)
		}
		if len(failed) > 0 {
			return fmt.Errorf("failed to update witnesses of transfers %v", failed)
		}
		return nil
	})
}

// postConsignment goes through the consignment handoff file so that it can
// be recovered by hand if the post fails.
func (s *coloredOutputSpender) postConsignment(
	ctx context.Context, closingTxid string, alloc *assetAllocation, data []byte,
) error {
	key := consignmentHandoffKey(closingTxid)
	if err := s.handoff.Write(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save consignment: %w", err)
	}

	vout := alloc.vout
	if err := s.pool.run(ctx, func(ctx context.Context) error {
		return s.proxy.PostConsignment(
			ctx, s.proxyEndpoint, alloc.recipientID, closingTxid, &vout, data,
		)
	}); err != nil {
		log.WithError(err).Error("cannot post consignment")
		return fmt.Errorf("%w: %s", ErrConsignmentPost, err)
	}

	if err := s.handoff.Remove(ctx, key); err != nil {
		log.WithError(err).Warnf("failed to remove consignment file %s", key)
	}
	return nil
}
