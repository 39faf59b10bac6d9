package db

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/rgb-ln/rlnd/internal/core/domain"
)

// Ledger maps are stored as a varint entry count followed by, for each entry
// in ascending key order, the var-bytes key and the var-bytes TLV record of
// the value.

const (
	paymentPreimageType tlv.Type = 0
	paymentSecretType   tlv.Type = 2
	paymentStatusType   tlv.Type = 4
	paymentAmountType   tlv.Type = 6

	swapFromAssetType   tlv.Type = 0
	swapToAssetType     tlv.Type = 2
	swapQtyFromType     tlv.Type = 4
	swapQtyToType       tlv.Type = 6
	swapStatusType      tlv.Type = 8
	swapInitiatedAtType tlv.Type = 10
	swapCompletedAtType tlv.Type = 12

	channelIDFinalType tlv.Type = 0

	spendTxType tlv.Type = 0

	trackedDescriptorsType tlv.Type = 0
	trackedChannelIDType   tlv.Type = 2
	trackedSpendTxidType   tlv.Type = 4
	trackedHeightType      tlv.Type = 6
)

type mapCodec[K comparable, V any] struct {
	encodeKey   func(K) []byte
	decodeKey   func([]byte) (K, error)
	encodeValue func(V) ([]byte, error)
	decodeValue func([]byte) (V, error)
}

func (c mapCodec[K, V]) encode(m map[K]V) ([]byte, error) {
	type entry struct {
		key   []byte
		value V
	}
	entries := make([]entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, entry{c.encodeKey(k), v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	var (
		w       bytes.Buffer
		scratch [8]byte
	)
	if err := tlv.WriteVarInt(&w, uint64(len(entries)), &scratch); err != nil {
		return nil, err
	}
	for _, e := range entries {
		value, err := c.encodeValue(e.value)
		if err != nil {
			return nil, err
		}
		if err := writeVarBytes(&w, e.key, &scratch); err != nil {
			return nil, err
		}
		if err := writeVarBytes(&w, value, &scratch); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func (c mapCodec[K, V]) decode(buf []byte) (map[K]V, error) {
	var scratch [8]byte
	r := bytes.NewReader(buf)

	count, err := tlv.ReadVarInt(r, &scratch)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry count: %w", err)
	}
	if count > uint64(len(buf)) {
		return nil, fmt.Errorf("invalid entry count %d", count)
	}

	m := make(map[K]V, count)
	for i := uint64(0); i < count; i++ {
		rawKey, err := readVarBytes(r, &scratch)
		if err != nil {
			return nil, fmt.Errorf("failed to read key of entry %d: %w", i, err)
		}
		rawValue, err := readVarBytes(r, &scratch)
		if err != nil {
			return nil, fmt.Errorf("failed to read value of entry %d: %w", i, err)
		}
		key, err := c.decodeKey(rawKey)
		if err != nil {
			return nil, err
		}
		value, err := c.decodeValue(rawValue)
		if err != nil {
			return nil, err
		}
		m[key] = value
	}
	return m, nil
}

func writeVarBytes(w io.Writer, b []byte, scratch *[8]byte) error {
	if err := tlv.WriteVarInt(w, uint64(len(b)), scratch); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r *bytes.Reader, scratch *[8]byte) ([]byte, error) {
	l, err := tlv.ReadVarInt(r, scratch)
	if err != nil {
		return nil, err
	}
	if l > uint64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func encodeRecords(records ...tlv.Record) ([]byte, error) {
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecords(buf []byte, records ...tlv.Record) (tlv.TypeMap, error) {
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}
	return stream.DecodeWithParsedTypes(bytes.NewReader(buf))
}

func fixedKey32[K ~[32]byte](name string) (func(K) []byte, func([]byte) (K, error)) {
	encode := func(k K) []byte {
		b := [32]byte(k)
		return b[:]
	}
	decode := func(b []byte) (K, error) {
		var k [32]byte
		if len(b) != len(k) {
			return K(k), fmt.Errorf("invalid %s key length %d", name, len(b))
		}
		copy(k[:], b)
		return K(k), nil
	}
	return encode, decode
}

func encodePaymentInfo(p domain.PaymentInfo) ([]byte, error) {
	var (
		preimage [32]byte
		secret   [32]byte
		status   = uint8(p.Status)
		amount   uint64
	)

	records := make([]tlv.Record, 0, 4)
	if p.Preimage != nil {
		preimage = *p.Preimage
		records = append(records, tlv.MakePrimitiveRecord(paymentPreimageType, &preimage))
	}
	if p.Secret != nil {
		secret = *p.Secret
		records = append(records, tlv.MakePrimitiveRecord(paymentSecretType, &secret))
	}
	records = append(records, tlv.MakePrimitiveRecord(paymentStatusType, &status))
	if p.AmountMsat != nil {
		amount = *p.AmountMsat
		records = append(records, tlv.MakePrimitiveRecord(paymentAmountType, &amount))
	}
	return encodeRecords(records...)
}

func decodePaymentInfo(buf []byte) (domain.PaymentInfo, error) {
	var (
		preimage [32]byte
		secret   [32]byte
		status   uint8
		amount   uint64
		info     domain.PaymentInfo
	)

	parsed, err := decodeRecords(
		buf,
		tlv.MakePrimitiveRecord(paymentPreimageType, &preimage),
		tlv.MakePrimitiveRecord(paymentSecretType, &secret),
		tlv.MakePrimitiveRecord(paymentStatusType, &status),
		tlv.MakePrimitiveRecord(paymentAmountType, &amount),
	)
	if err != nil {
		return info, fmt.Errorf("failed to decode payment: %w", err)
	}
	if _, ok := parsed[paymentStatusType]; !ok {
		return info, fmt.Errorf("failed to decode payment: missing status")
	}

	info.Status = domain.HTLCStatus(status)
	if _, ok := parsed[paymentPreimageType]; ok {
		p := lntypes.Preimage(preimage)
		info.Preimage = &p
	}
	if _, ok := parsed[paymentSecretType]; ok {
		s := domain.PaymentSecret(secret)
		info.Secret = &s
	}
	if _, ok := parsed[paymentAmountType]; ok {
		info.AmountMsat = &amount
	}
	return info, nil
}

func encodeSwapData(s domain.SwapData) ([]byte, error) {
	var (
		fromAsset   []byte
		toAsset     []byte
		qtyFrom     = s.Info.QtyFrom
		qtyTo       = s.Info.QtyTo
		status      = uint8(s.Status)
		initiatedAt uint64
		completedAt uint64
	)

	records := make([]tlv.Record, 0, 7)
	if s.Info.FromAsset != nil {
		fromAsset = []byte(*s.Info.FromAsset)
		records = append(records, tlv.MakePrimitiveRecord(swapFromAssetType, &fromAsset))
	}
	if s.Info.ToAsset != nil {
		toAsset = []byte(*s.Info.ToAsset)
		records = append(records, tlv.MakePrimitiveRecord(swapToAssetType, &toAsset))
	}
	records = append(
		records,
		tlv.MakePrimitiveRecord(swapQtyFromType, &qtyFrom),
		tlv.MakePrimitiveRecord(swapQtyToType, &qtyTo),
		tlv.MakePrimitiveRecord(swapStatusType, &status),
	)
	if s.InitiatedAt != nil {
		initiatedAt = uint64(s.InitiatedAt.Unix())
		records = append(records, tlv.MakePrimitiveRecord(swapInitiatedAtType, &initiatedAt))
	}
	if s.CompletedAt != nil {
		completedAt = uint64(s.CompletedAt.Unix())
		records = append(records, tlv.MakePrimitiveRecord(swapCompletedAtType, &completedAt))
	}
	return encodeRecords(records...)
}

func decodeSwapData(buf []byte) (domain.SwapData, error) {
	var (
		fromAsset   []byte
		toAsset     []byte
		qtyFrom     uint64
		qtyTo       uint64
		status      uint8
		initiatedAt uint64
		completedAt uint64
		swap        domain.SwapData
	)

	parsed, err := decodeRecords(
		buf,
		tlv.MakePrimitiveRecord(swapFromAssetType, &fromAsset),
		tlv.MakePrimitiveRecord(swapToAssetType, &toAsset),
		tlv.MakePrimitiveRecord(swapQtyFromType, &qtyFrom),
		tlv.MakePrimitiveRecord(swapQtyToType, &qtyTo),
		tlv.MakePrimitiveRecord(swapStatusType, &status),
		tlv.MakePrimitiveRecord(swapInitiatedAtType, &initiatedAt),
		tlv.MakePrimitiveRecord(swapCompletedAtType, &completedAt),
	)
	if err != nil {
		return swap, fmt.Errorf("failed to decode swap: %w", err)
	}
	for _, typ := range []tlv.Type{swapQtyFromType, swapQtyToType, swapStatusType} {
		if _, ok := parsed[typ]; !ok {
			return swap, fmt.Errorf("failed to decode swap: missing record %d", typ)
		}
	}

	swap.Info.QtyFrom = qtyFrom
	swap.Info.QtyTo = qtyTo
	swap.Status = domain.SwapStatus(status)
	if _, ok := parsed[swapFromAssetType]; ok {
		asset := string(fromAsset)
		swap.Info.FromAsset = &asset
	}
	if _, ok := parsed[swapToAssetType]; ok {
		asset := string(toAsset)
		swap.Info.ToAsset = &asset
	}
	if _, ok := parsed[swapInitiatedAtType]; ok {
		t := time.Unix(int64(initiatedAt), 0)
		swap.InitiatedAt = &t
	}
	if _, ok := parsed[swapCompletedAtType]; ok {
		t := time.Unix(int64(completedAt), 0)
		swap.CompletedAt = &t
	}
	return swap, nil
}

func encodeChannelID(id lnwire.ChannelID) ([]byte, error) {
	final := [32]byte(id)
	return encodeRecords(tlv.MakePrimitiveRecord(channelIDFinalType, &final))
}

func decodeChannelID(buf []byte) (lnwire.ChannelID, error) {
	var final [32]byte
	parsed, err := decodeRecords(buf, tlv.MakePrimitiveRecord(channelIDFinalType, &final))
	if err != nil {
		return lnwire.ChannelID{}, fmt.Errorf("failed to decode channel id: %w", err)
	}
	if _, ok := parsed[channelIDFinalType]; !ok {
		return lnwire.ChannelID{}, fmt.Errorf("failed to decode channel id: missing record")
	}
	return lnwire.ChannelID(final), nil
}

func encodeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	raw := buf.Bytes()
	return encodeRecords(tlv.MakePrimitiveRecord(spendTxType, &raw))
}

func decodeTx(buf []byte) (*wire.MsgTx, error) {
	var raw []byte
	parsed, err := decodeRecords(buf, tlv.MakePrimitiveRecord(spendTxType, &raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tx: %w", err)
	}
	if _, ok := parsed[spendTxType]; !ok {
		return nil, fmt.Errorf("failed to decode tx: missing record")
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to decode tx: %w", err)
	}
	return tx, nil
}

func encodeTrackedOutputs(o domain.TrackedOutputs) ([]byte, error) {
	var descriptors bytes.Buffer
	if err := wire.WriteVarInt(&descriptors, 0, uint64(len(o.Descriptors))); err != nil {
		return nil, err
	}
	for _, d := range o.Descriptors {
		if err := d.Serialize(&descriptors); err != nil {
			return nil, err
		}
	}

	var (
		rawDescriptors = descriptors.Bytes()
		channelID      [32]byte
		spendTxid      [32]byte
		height         = o.BroadcastHeight
	)
	records := []tlv.Record{tlv.MakePrimitiveRecord(trackedDescriptorsType, &rawDescriptors)}
	if o.ChannelID != nil {
		channelID = *o.ChannelID
		records = append(records, tlv.MakePrimitiveRecord(trackedChannelIDType, &channelID))
	}
	if o.SpendTxid != nil {
		spendTxid = *o.SpendTxid
		records = append(records, tlv.MakePrimitiveRecord(trackedSpendTxidType, &spendTxid))
	}
	records = append(records, tlv.MakePrimitiveRecord(trackedHeightType, &height))
	return encodeRecords(records...)
}

func decodeTrackedOutputs(buf []byte) (domain.TrackedOutputs, error) {
	var (
		rawDescriptors []byte
		channelID      [32]byte
		spendTxid      [32]byte
		height         uint32
		outputs        domain.TrackedOutputs
	)

	parsed, err := decodeRecords(
		buf,
		tlv.MakePrimitiveRecord(trackedDescriptorsType, &rawDescriptors),
		tlv.MakePrimitiveRecord(trackedChannelIDType, &channelID),
		tlv.MakePrimitiveRecord(trackedSpendTxidType, &spendTxid),
		tlv.MakePrimitiveRecord(trackedHeightType, &height),
	)
	if err != nil {
		return outputs, fmt.Errorf("failed to decode tracked outputs: %w", err)
	}

	r := bytes.NewReader(rawDescriptors)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return outputs, fmt.Errorf("failed to decode tracked outputs: %w", err)
	}
	if count > uint64(len(rawDescriptors)) {
		return outputs, fmt.Errorf("invalid descriptor count %d", count)
	}
	outputs.Descriptors = make([]domain.SpendableOutputDescriptor, 0, count)
	for i := uint64(0); i < count; i++ {
		d, err := domain.DeserializeDescriptor(r)
		if err != nil {
			return outputs, fmt.Errorf("failed to decode descriptor %d: %w", i, err)
		}
		outputs.Descriptors = append(outputs.Descriptors, *d)
	}

	if _, ok := parsed[trackedChannelIDType]; ok {
		id := lnwire.ChannelID(channelID)
		outputs.ChannelID = &id
	}
	if _, ok := parsed[trackedSpendTxidType]; ok {
		txid := chainhash.Hash(spendTxid)
		outputs.SpendTxid = &txid
	}
	outputs.BroadcastHeight = height
	return outputs, nil
}

var (
	inboundPaymentsCodec  = newPaymentCodec[lntypes.Hash]("payment hash")
	outboundPaymentsCodec = newPaymentCodec[domain.PaymentID]("payment id")
	swapsCodec            = newSwapCodec()
	channelIDsCodec       = newChannelIDsCodec()
	spendCacheCodec       = newSpendCacheCodec()
	trackedOutputsCodec   = newTrackedOutputsCodec()
)

func newPaymentCodec[K ~[32]byte](name string) mapCodec[K, domain.PaymentInfo] {
	encodeKey, decodeKey := fixedKey32[K](name)
	return mapCodec[K, domain.PaymentInfo]{
		encodeKey:   encodeKey,
		decodeKey:   decodeKey,
		encodeValue: encodePaymentInfo,
		decodeValue: decodePaymentInfo,
	}
}

func newSwapCodec() mapCodec[lntypes.Hash, domain.SwapData] {
	encodeKey, decodeKey := fixedKey32[lntypes.Hash]("payment hash")
	return mapCodec[lntypes.Hash, domain.SwapData]{
		encodeKey:   encodeKey,
		decodeKey:   decodeKey,
		encodeValue: encodeSwapData,
		decodeValue: decodeSwapData,
	}
}

func newChannelIDsCodec() mapCodec[lnwire.ChannelID, lnwire.ChannelID] {
	encodeKey, decodeKey := fixedKey32[lnwire.ChannelID]("channel id")
	return mapCodec[lnwire.ChannelID, lnwire.ChannelID]{
		encodeKey:   encodeKey,
		decodeKey:   decodeKey,
		encodeValue: encodeChannelID,
		decodeValue: decodeChannelID,
	}
}

func newSpendCacheCodec() mapCodec[chainhash.Hash, *wire.MsgTx] {
	encodeKey, decodeKey := fixedKey32[chainhash.Hash]("descriptor set hash")
	return mapCodec[chainhash.Hash, *wire.MsgTx]{
		encodeKey:   encodeKey,
		decodeKey:   decodeKey,
		encodeValue: encodeTx,
		decodeValue: decodeTx,
	}
}

func newTrackedOutputsCodec() mapCodec[chainhash.Hash, domain.TrackedOutputs] {
	encodeKey, decodeKey := fixedKey32[chainhash.Hash]("descriptor set hash")
	return mapCodec[chainhash.Hash, domain.TrackedOutputs]{
		encodeKey:   encodeKey,
		decodeKey:   decodeKey,
		encodeValue: encodeTrackedOutputs,
		decodeValue: decodeTrackedOutputs,
	}
}
