package rpcbridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/rgb-ln/rlnd/internal/core/domain"
)

// Fixed size ids travel as hex strings.
type hex16 [16]byte

func (h hex16) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *hex16) UnmarshalText(text []byte) error {
	return decodeFixed(text, h[:])
}

type hex32 [32]byte

func (h hex32) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *hex32) UnmarshalText(text []byte) error {
	return decodeFixed(text, h[:])
}

type hex33 [33]byte

func (h hex33) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *hex33) UnmarshalText(text []byte) error {
	return decodeFixed(text, h[:])
}

type hexBytes []byte

func (h hexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

func (h *hexBytes) UnmarshalText(text []byte) error {
	buf, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	*h = buf
	return nil
}

func decodeFixed(text, dst []byte) error {
	buf, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(buf) != len(dst) {
		return fmt.Errorf("invalid length %d, expected %d", len(buf), len(dst))
	}
	copy(dst, buf)
	return nil
}

func outpoint(s string) (wire.OutPoint, error) {
	op, err := wire.NewOutPointFromString(s)
	if err != nil {
		return wire.OutPoint{}, err
	}
	return *op, nil
}

func msatPtr(v *uint64) *lnwire.MilliSatoshi {
	if v == nil {
		return nil
	}
	m := lnwire.MilliSatoshi(*v)
	return &m
}

func channelIDPtr(h *hex32) *lnwire.ChannelID {
	if h == nil {
		return nil
	}
	id := lnwire.ChannelID(*h)
	return &id
}

type eventEnvelope struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

type jsonPurpose struct {
	Preimage    *hex32 `json:"preimage"`
	Secret      *hex32 `json:"payment_secret"`
	Spontaneous bool   `json:"spontaneous"`
}

func (p jsonPurpose) toDomain() domain.PaymentPurpose {
	purpose := domain.PaymentPurpose{Spontaneous: p.Spontaneous}
	if p.Preimage != nil {
		preimage := lntypes.Preimage(*p.Preimage)
		purpose.Preimage = &preimage
	}
	if p.Secret != nil {
		secret := domain.PaymentSecret(*p.Secret)
		purpose.Secret = &secret
	}
	return purpose
}

type jsonDescriptor struct {
	Kind     string   `json:"kind"`
	Outpoint string   `json:"outpoint"`
	Value    int64    `json:"value"`
	Script   hexBytes `json:"script_pubkey"`
	Opaque   hexBytes `json:"opaque"`
}

var descriptorKinds = map[string]domain.OutputDescriptorKind{
	domain.StaticPaymentOutput.String():  domain.StaticPaymentOutput,
	domain.DelayedPaymentOutput.String(): domain.DelayedPaymentOutput,
	domain.StaticOutput.String():         domain.StaticOutput,
}

func (d jsonDescriptor) toDomain() (domain.SpendableOutputDescriptor, error) {
	kind, ok := descriptorKinds[d.Kind]
	if !ok {
		return domain.SpendableOutputDescriptor{}, fmt.Errorf("unknown descriptor kind %s", d.Kind)
	}
	op, err := outpoint(d.Outpoint)
	if err != nil {
		return domain.SpendableOutputDescriptor{}, err
	}
	return domain.SpendableOutputDescriptor{
		Kind:     kind,
		Outpoint: op,
		Output:   wire.TxOut{Value: d.Value, PkScript: d.Script},
		Opaque:   d.Opaque,
	}, nil
}

func fromDescriptors(descriptors []domain.SpendableOutputDescriptor) []jsonDescriptor {
	res := make([]jsonDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		res = append(res, jsonDescriptor{
			Kind:     d.Kind.String(),
			Outpoint: d.Outpoint.String(),
			Value:    d.Output.Value,
			Script:   d.Output.PkScript,
			Opaque:   d.Opaque,
		})
	}
	return res
}

type eventDecoder func(json.RawMessage) (domain.Event, error)

var eventDecoders = map[string]eventDecoder{
	"funding_generation_ready": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			TemporaryChannelID hex32    `json:"temporary_channel_id"`
			Counterparty       hex33    `json:"counterparty_node_id"`
			ChannelValueSat    uint64   `json:"channel_value_satoshis"`
			OutputScript       hexBytes `json:"output_script"`
			UserChannelID      hex16    `json:"user_channel_id"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.FundingGenerationReady{
			TemporaryChannelID: lnwire.ChannelID(e.TemporaryChannelID),
			CounterpartyNodeID: route.Vertex(e.Counterparty),
			ChannelValueSat:    e.ChannelValueSat,
			OutputScript:       e.OutputScript,
			UserChannelID:      domain.UserChannelID(e.UserChannelID),
		}, nil
	},
	"payment_claimable": func(raw json.RawMessage) (domain.Event, error) {
		var e jsonClaim
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.PaymentClaimable{
			PaymentHash: lntypes.Hash(e.PaymentHash),
			Purpose:     e.Purpose.toDomain(),
			AmountMsat:  lnwire.MilliSatoshi(e.AmountMsat),
		}, nil
	},
	"payment_claimed": func(raw json.RawMessage) (domain.Event, error) {
		var e jsonClaim
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.PaymentClaimed{
			PaymentHash: lntypes.Hash(e.PaymentHash),
			Purpose:     e.Purpose.toDomain(),
			AmountMsat:  lnwire.MilliSatoshi(e.AmountMsat),
		}, nil
	},
	"payment_sent": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			PaymentID   *hex32  `json:"payment_id"`
			Preimage    hex32   `json:"payment_preimage"`
			PaymentHash hex32   `json:"payment_hash"`
			FeePaidMsat *uint64 `json:"fee_paid_msat"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		event := domain.PaymentSent{
			PaymentPreimage: lntypes.Preimage(e.Preimage),
			PaymentHash:     lntypes.Hash(e.PaymentHash),
			FeePaidMsat:     msatPtr(e.FeePaidMsat),
		}
		if e.PaymentID != nil {
			id := domain.PaymentID(*e.PaymentID)
			event.PaymentID = &id
		}
		return event, nil
	},
	"payment_failed": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			PaymentID   hex32  `json:"payment_id"`
			PaymentHash hex32  `json:"payment_hash"`
			Reason      string `json:"reason"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.PaymentFailed{
			PaymentID:   domain.PaymentID(e.PaymentID),
			PaymentHash: lntypes.Hash(e.PaymentHash),
			Reason:      e.Reason,
		}, nil
	},
	"invoice_request_failed": func(raw json.RawMessage) (domain.Event, error) {
		var e jsonPaymentRef
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.InvoiceRequestFailed{PaymentID: domain.PaymentID(e.PaymentID)}, nil
	},
	"payment_path_successful": func(raw json.RawMessage) (domain.Event, error) {
		var e jsonPaymentRef
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		event := domain.PaymentPathSuccessful{PaymentID: domain.PaymentID(e.PaymentID)}
		if e.PaymentHash != nil {
			hash := lntypes.Hash(*e.PaymentHash)
			event.PaymentHash = &hash
		}
		return event, nil
	},
	"payment_path_failed": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			PaymentID   *hex32 `json:"payment_id"`
			PaymentHash hex32  `json:"payment_hash"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		event := domain.PaymentPathFailed{PaymentHash: lntypes.Hash(e.PaymentHash)}
		if e.PaymentID != nil {
			id := domain.PaymentID(*e.PaymentID)
			event.PaymentID = &id
		}
		return event, nil
	},
	"probe_successful": func(raw json.RawMessage) (domain.Event, error) {
		var e jsonPaymentRef
		if err := json.Unmarshal(raw, &e); err != nil || e.PaymentHash == nil {
			return nil, missingHash(err)
		}
		return domain.ProbeSuccessful{
			PaymentID: domain.PaymentID(e.PaymentID), PaymentHash: lntypes.Hash(*e.PaymentHash),
		}, nil
	},
	"probe_failed": func(raw json.RawMessage) (domain.Event, error) {
		var e jsonPaymentRef
		if err := json.Unmarshal(raw, &e); err != nil || e.PaymentHash == nil {
			return nil, missingHash(err)
		}
		return domain.ProbeFailed{
			PaymentID: domain.PaymentID(e.PaymentID), PaymentHash: lntypes.Hash(*e.PaymentHash),
		}, nil
	},
	"open_channel_request": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			TemporaryChannelID hex32  `json:"temporary_channel_id"`
			Counterparty       hex33  `json:"counterparty_node_id"`
			FundingSat         uint64 `json:"funding_satoshis"`
			PushMsat           uint64 `json:"push_msat"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.OpenChannelRequest{
			TemporaryChannelID: lnwire.ChannelID(e.TemporaryChannelID),
			CounterpartyNodeID: route.Vertex(e.Counterparty),
			FundingSat:         e.FundingSat,
			PushMsat:           lnwire.MilliSatoshi(e.PushMsat),
		}, nil
	},
	"payment_forwarded": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			PaymentHash        hex32   `json:"payment_hash"`
			PrevChannelID      *hex32  `json:"prev_channel_id"`
			NextChannelID      *hex32  `json:"next_channel_id"`
			TotalFeeEarnedMsat *uint64 `json:"total_fee_earned_msat"`
			OutboundMsat       *uint64 `json:"outbound_amount_forwarded_msat"`
			OutboundRgb        *uint64 `json:"outbound_amount_forwarded_rgb"`
			InboundRgb         *uint64 `json:"inbound_amount_forwarded_rgb"`
			ClaimFromOnchainTx bool    `json:"claim_from_onchain_tx"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.PaymentForwarded{
			PaymentHash:                 lntypes.Hash(e.PaymentHash),
			PrevChannelID:               channelIDPtr(e.PrevChannelID),
			NextChannelID:               channelIDPtr(e.NextChannelID),
			TotalFeeEarnedMsat:          msatPtr(e.TotalFeeEarnedMsat),
			OutboundAmountForwardedMsat: msatPtr(e.OutboundMsat),
			OutboundAmountForwardedRgb:  e.OutboundRgb,
			InboundAmountForwardedRgb:   e.InboundRgb,
			ClaimFromOnchainTx:          e.ClaimFromOnchainTx,
		}, nil
	},
	"htlc_handling_failed": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			PrevChannelID hex32 `json:"prev_channel_id"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.HTLCHandlingFailed{PrevChannelID: lnwire.ChannelID(e.PrevChannelID)}, nil
	},
	"pending_htlcs_forwardable": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			TimeForwardableMs int64 `json:"time_forwardable_ms"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.PendingHTLCsForwardable{
			TimeForwardable: time.Duration(e.TimeForwardableMs) * time.Millisecond,
		}, nil
	},
	"spendable_outputs": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			Outputs   []jsonDescriptor `json:"outputs"`
			ChannelID *hex32           `json:"channel_id"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		outputs := make([]domain.SpendableOutputDescriptor, 0, len(e.Outputs))
		for _, o := range e.Outputs {
			d, err := o.toDomain()
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, d)
		}
		return domain.SpendableOutputs{Outputs: outputs, ChannelID: channelIDPtr(e.ChannelID)}, nil
	},
	"channel_pending": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			ChannelID     hex32  `json:"channel_id"`
			UserChannelID hex16  `json:"user_channel_id"`
			FormerTempID  hex32  `json:"former_temporary_channel_id"`
			Counterparty  hex33  `json:"counterparty_node_id"`
			FundingTxo    string `json:"funding_txo"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		txo, err := outpoint(e.FundingTxo)
		if err != nil {
			return nil, err
		}
		return domain.ChannelPending{
			ChannelID:                lnwire.ChannelID(e.ChannelID),
			UserChannelID:            domain.UserChannelID(e.UserChannelID),
			FormerTemporaryChannelID: lnwire.ChannelID(e.FormerTempID),
			CounterpartyNodeID:       route.Vertex(e.Counterparty),
			FundingTxo:               txo,
		}, nil
	},
	"channel_ready": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			ChannelID     hex32 `json:"channel_id"`
			UserChannelID hex16 `json:"user_channel_id"`
			Counterparty  hex33 `json:"counterparty_node_id"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.ChannelReady{
			ChannelID:          lnwire.ChannelID(e.ChannelID),
			UserChannelID:      domain.UserChannelID(e.UserChannelID),
			CounterpartyNodeID: route.Vertex(e.Counterparty),
		}, nil
	},
	"channel_closed": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			ChannelID     hex32   `json:"channel_id"`
			UserChannelID hex16   `json:"user_channel_id"`
			Counterparty  *hex33  `json:"counterparty_node_id"`
			Reason        string  `json:"reason"`
			CapacitySat   *uint64 `json:"channel_capacity_sats"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		event := domain.ChannelClosed{
			ChannelID:     lnwire.ChannelID(e.ChannelID),
			UserChannelID: domain.UserChannelID(e.UserChannelID),
			Reason:        e.Reason,
			CapacitySat:   e.CapacitySat,
		}
		if e.Counterparty != nil {
			node := route.Vertex(*e.Counterparty)
			event.CounterpartyNodeID = &node
		}
		return event, nil
	},
	"discard_funding": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			ChannelID   hex32  `json:"channel_id"`
			FundingTxid string `json:"funding_txid"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		txid, err := chainhash.NewHashFromStr(e.FundingTxid)
		if err != nil {
			return nil, err
		}
		return domain.DiscardFunding{
			ChannelID: lnwire.ChannelID(e.ChannelID), FundingTxid: *txid,
		}, nil
	},
	"htlc_intercepted": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			InterceptID          hex32   `json:"intercept_id"`
			IsSwap               bool    `json:"is_swap"`
			PaymentHash          hex32   `json:"payment_hash"`
			RequestedNextHopScid uint64  `json:"requested_next_hop_scid"`
			PrevShortChannelID   uint64  `json:"prev_short_channel_id"`
			InboundAmountMsat    uint64  `json:"inbound_amount_msat"`
			ExpectedOutboundMsat uint64  `json:"expected_outbound_amount_msat"`
			InboundRgbAmount     *uint64 `json:"inbound_rgb_amount"`
			ExpectedOutboundRgb  *uint64 `json:"expected_outbound_rgb_amount"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.HTLCIntercepted{
			InterceptID:                domain.InterceptID(e.InterceptID),
			IsSwap:                     e.IsSwap,
			PaymentHash:                lntypes.Hash(e.PaymentHash),
			RequestedNextHopScid:       lnwire.NewShortChanIDFromInt(e.RequestedNextHopScid),
			PrevShortChannelID:         lnwire.NewShortChanIDFromInt(e.PrevShortChannelID),
			InboundAmountMsat:          lnwire.MilliSatoshi(e.InboundAmountMsat),
			ExpectedOutboundAmountMsat: lnwire.MilliSatoshi(e.ExpectedOutboundMsat),
			InboundRgbAmount:           e.InboundRgbAmount,
			ExpectedOutboundRgbAmount:  e.ExpectedOutboundRgb,
		}, nil
	},
	"bump_transaction": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			ChannelID hex32 `json:"channel_id"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.BumpTransaction{
			ChannelID: lnwire.ChannelID(e.ChannelID), Payload: append([]byte(nil), raw...),
		}, nil
	},
	"connection_needed": func(raw json.RawMessage) (domain.Event, error) {
		var e struct {
			NodeID    hex33    `json:"node_id"`
			Addresses []string `json:"addresses"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return domain.ConnectionNeeded{NodeID: route.Vertex(e.NodeID), Addresses: e.Addresses}, nil
	},
}

type jsonClaim struct {
	PaymentHash hex32       `json:"payment_hash"`
	Purpose     jsonPurpose `json:"purpose"`
	AmountMsat  uint64      `json:"amount_msat"`
}

type jsonPaymentRef struct {
	PaymentID   hex32  `json:"payment_id"`
	PaymentHash *hex32 `json:"payment_hash"`
}

func missingHash(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("missing payment hash")
}

func decodeEvent(buf []byte) (domain.Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(buf, &envelope); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	decode, ok := eventDecoders[envelope.Type]
	if !ok {
		return nil, fmt.Errorf("unknown event type %s", envelope.Type)
	}
	event, err := decode(envelope.Event)
	if err != nil {
		return nil, fmt.Errorf("malformed %s event: %w", envelope.Type, err)
	}
	return event, nil
}
