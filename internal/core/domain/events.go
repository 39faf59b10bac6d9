package domain

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
)

// Event is one item of the Lightning engine event feed. Every variant
// dispatches itself to the matching EventHandler method.
type Event interface {
	Dispatch(ctx context.Context, h EventHandler) error
}

// EventHandler has exactly one method per Event variant.
type EventHandler interface {
	OnFundingGenerationReady(ctx context.Context, e FundingGenerationReady) error
	OnPaymentClaimable(ctx context.Context, e PaymentClaimable) error
	OnPaymentClaimed(ctx context.Context, e PaymentClaimed) error
	OnPaymentSent(ctx context.Context, e PaymentSent) error
	OnPaymentFailed(ctx context.Context, e PaymentFailed) error
	OnInvoiceRequestFailed(ctx context.Context, e InvoiceRequestFailed) error
	OnPaymentPathSuccessful(ctx context.Context, e PaymentPathSuccessful) error
	OnPaymentPathFailed(ctx context.Context, e PaymentPathFailed) error
	OnProbeSuccessful(ctx context.Context, e ProbeSuccessful) error
	OnProbeFailed(ctx context.Context, e ProbeFailed) error
	OnOpenChannelRequest(ctx context.Context, e OpenChannelRequest) error
	OnPaymentForwarded(ctx context.Context, e PaymentForwarded) error
	OnHTLCHandlingFailed(ctx context.Context, e HTLCHandlingFailed) error
	OnPendingHTLCsForwardable(ctx context.Context, e PendingHTLCsForwardable) error
	OnSpendableOutputs(ctx context.Context, e SpendableOutputs) error
	OnChannelPending(ctx context.Context, e ChannelPending) error
	OnChannelReady(ctx context.Context, e ChannelReady) error
	OnChannelClosed(ctx context.Context, e ChannelClosed) error
	OnDiscardFunding(ctx context.Context, e DiscardFunding) error
	OnHTLCIntercepted(ctx context.Context, e HTLCIntercepted) error
	OnBumpTransaction(ctx context.Context, e BumpTransaction) error
	OnConnectionNeeded(ctx context.Context, e ConnectionNeeded) error
}

type FundingGenerationReady struct {
	TemporaryChannelID lnwire.ChannelID
	CounterpartyNodeID route.Vertex
	ChannelValueSat    uint64
	OutputScript       []byte
	UserChannelID      UserChannelID
}

// PaymentPurpose carries whatever the payee knows about a received payment.
// Spontaneous payments have no secret.
type PaymentPurpose struct {
	Preimage    *lntypes.Preimage
	Secret      *PaymentSecret
	Spontaneous bool
}

type PaymentClaimable struct {
	PaymentHash lntypes.Hash
	Purpose     PaymentPurpose
	AmountMsat  lnwire.MilliSatoshi
}

type PaymentClaimed struct {
	PaymentHash lntypes.Hash
	Purpose     PaymentPurpose
	AmountMsat  lnwire.MilliSatoshi
}

type PaymentSent struct {
	PaymentID       *PaymentID
	PaymentPreimage lntypes.Preimage
	PaymentHash     lntypes.Hash
	FeePaidMsat     *lnwire.MilliSatoshi
}

type PaymentFailed struct {
	PaymentID   PaymentID
	PaymentHash lntypes.Hash
	Reason      string
}

type InvoiceRequestFailed struct {
	PaymentID PaymentID
}

type PaymentPathSuccessful struct {
	PaymentID   PaymentID
	PaymentHash *lntypes.Hash
}

type PaymentPathFailed struct {
	PaymentID   *PaymentID
	PaymentHash lntypes.Hash
}

type ProbeSuccessful struct {
	PaymentID   PaymentID
	PaymentHash lntypes.Hash
}

type ProbeFailed struct {
	PaymentID   PaymentID
	PaymentHash lntypes.Hash
}

type OpenChannelRequest struct {
	TemporaryChannelID lnwire.ChannelID
	CounterpartyNodeID route.Vertex
	FundingSat         uint64
	PushMsat           lnwire.MilliSatoshi
}

type PaymentForwarded struct {
	PaymentHash                 lntypes.Hash
	PrevChannelID               *lnwire.ChannelID
	NextChannelID               *lnwire.ChannelID
	TotalFeeEarnedMsat          *lnwire.MilliSatoshi
	OutboundAmountForwardedMsat *lnwire.MilliSatoshi
	OutboundAmountForwardedRgb  *uint64
	InboundAmountForwardedRgb   *uint64
	ClaimFromOnchainTx          bool
}

type HTLCHandlingFailed struct {
	PrevChannelID lnwire.ChannelID
}

type PendingHTLCsForwardable struct {
	TimeForwardable time.Duration
}

type SpendableOutputs struct {
	Outputs   []SpendableOutputDescriptor
	ChannelID *lnwire.ChannelID
}

type ChannelPending struct {
	ChannelID                lnwire.ChannelID
	UserChannelID            UserChannelID
	FormerTemporaryChannelID lnwire.ChannelID
	CounterpartyNodeID       route.Vertex
	FundingTxo               wire.OutPoint
}

type ChannelReady struct {
	ChannelID          lnwire.ChannelID
	UserChannelID      UserChannelID
	CounterpartyNodeID route.Vertex
}

type ChannelClosed struct {
	ChannelID          lnwire.ChannelID
	UserChannelID      UserChannelID
	CounterpartyNodeID *route.Vertex
	Reason             string
	CapacitySat        *uint64
}

type DiscardFunding struct {
	ChannelID   lnwire.ChannelID
	FundingTxid chainhash.Hash
}

type HTLCIntercepted struct {
	InterceptID                InterceptID
	IsSwap                     bool
	PaymentHash                lntypes.Hash
	RequestedNextHopScid       lnwire.ShortChannelID
	PrevShortChannelID         lnwire.ShortChannelID
	InboundAmountMsat          lnwire.MilliSatoshi
	ExpectedOutboundAmountMsat lnwire.MilliSatoshi
	InboundRgbAmount           *uint64
	ExpectedOutboundRgbAmount  *uint64
}

// BumpTransaction is opaque to the node: it is handed back to the engine's
// fee bumping handler as is.
type BumpTransaction struct {
	ChannelID lnwire.ChannelID
	Payload   []byte
}

type ConnectionNeeded struct {
	NodeID    route.Vertex
	Addresses []string
}

func (e FundingGenerationReady) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnFundingGenerationReady(ctx, e)
}
func (e PaymentClaimable) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnPaymentClaimable(ctx, e)
}
func (e PaymentClaimed) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnPaymentClaimed(ctx, e)
}
func (e PaymentSent) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnPaymentSent(ctx, e)
}
func (e PaymentFailed) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnPaymentFailed(ctx, e)
}
func (e InvoiceRequestFailed) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnInvoiceRequestFailed(ctx, e)
}
func (e PaymentPathSuccessful) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnPaymentPathSuccessful(ctx, e)
}
func (e PaymentPathFailed) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnPaymentPathFailed(ctx, e)
}
func (e ProbeSuccessful) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnProbeSuccessful(ctx, e)
}
func (e ProbeFailed) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnProbeFailed(ctx, e)
}
func (e OpenChannelRequest) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnOpenChannelRequest(ctx, e)
}
func (e PaymentForwarded) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnPaymentForwarded(ctx, e)
}
func (e HTLCHandlingFailed) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnHTLCHandlingFailed(ctx, e)
}
func (e PendingHTLCsForwardable) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnPendingHTLCsForwardable(ctx, e)
}
func (e SpendableOutputs) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnSpendableOutputs(ctx, e)
}
func (e ChannelPending) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnChannelPending(ctx, e)
}
func (e ChannelReady) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnChannelReady(ctx, e)
}
func (e ChannelClosed) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnChannelClosed(ctx, e)
}
func (e DiscardFunding) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnDiscardFunding(ctx, e)
}
func (e HTLCIntercepted) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnHTLCIntercepted(ctx, e)
}
func (e BumpTransaction) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnBumpTransaction(ctx, e)
}
func (e ConnectionNeeded) Dispatch(ctx context.Context, h EventHandler) error {
	return h.OnConnectionNeeded(ctx, e)
}
