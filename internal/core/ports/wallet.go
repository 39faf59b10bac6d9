package ports

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/rgb-ln/rlnd/internal/core/domain"
)

type AssetIface string

const AssetIfaceRGB20 AssetIface = "RGB20"

type AssetSchema string

const (
	AssetSchemaNia AssetSchema = "Nia"
	AssetSchemaUda AssetSchema = "Uda"
	AssetSchemaCfa AssetSchema = "Cfa"
)

type WitnessData struct {
	AmountSat uint64
	Blinding  *uint64
}

type Recipient struct {
	RecipientID        string
	Witness            *WitnessData
	Amount             uint64
	TransportEndpoints []string
}

type Outpoint struct {
	Txid string
	Vout uint32
}

type AssetColoringInfo struct {
	Iface          AssetIface
	OutputMap      map[uint32]uint64
	InputOutpoints []Outpoint
}

type ColoringInfo struct {
	AssetInfoMap map[string]AssetColoringInfo
}

type Consignment struct {
	ContractID string
	Data       []byte
}

type ConsignmentInfo struct {
	ContractID string
	Schema     AssetSchema
}

type ReceiveData struct {
	RecipientID string
}

// AssetWallet is the asset-aware on-chain wallet. Every method may block on
// disk or network access.
type AssetWallet interface {
	SendBegin(
		ctx context.Context, recipients map[string][]Recipient, donation bool,
		feeRate float32, minConfirmations uint8,
	) (string, error)
	SendBtcBegin(ctx context.Context, address string, amountSat uint64, feeRate float32) (string, error)
	SignPsbt(ctx context.Context, unsignedPsbt string) (string, error)
	SendEnd(ctx context.Context, signedPsbt string) (string, error)
	SendBtcEnd(ctx context.Context, signedPsbt string) (string, error)
	// SendConsignment returns the consignment produced for the transfer of
	// assetID to recipientID by the given funding transaction.
	SendConsignment(ctx context.Context, txid, assetID, recipientID string) ([]byte, error)
	ColorPsbt(ctx context.Context, packet *psbt.Packet, info ColoringInfo) ([]Consignment, error)
	LoadConsignment(ctx context.Context, data []byte) (*ConsignmentInfo, error)
	// SaveNewAsset fails with domain.ErrAssetAlreadyRegistered if the contract
	// is already known.
	SaveNewAsset(ctx context.Context, schema AssetSchema, contractID string) error
	WitnessReceive(ctx context.Context, transportEndpoints []string) (*ReceiveData, error)
	Refresh(ctx context.Context) error
	GetTxHeight(ctx context.Context, txid string) (*uint32, error)
	// UpdateWitnesses returns the ids of the transfers that failed to update.
	UpdateWitnesses(ctx context.Context, afterHeight uint32) ([]string, error)
	RecipientIDFromScript(ctx context.Context, script []byte) (string, error)
	ScriptFromRecipientID(ctx context.Context, recipientID string) ([]byte, error)
	NewChangeScript(ctx context.Context) ([]byte, error)
	Close()
}

// OutputSigner builds and signs transactions spending outputs of closed
// channels.
type OutputSigner interface {
	SpendSpendableOutputs(
		ctx context.Context, descriptors []domain.SpendableOutputDescriptor,
		outputs []*wire.TxOut, changeScript []byte,
		feeRate chainfee.SatPerKWeight, locktime *uint32,
	) (*wire.MsgTx, error)
	CreateSpendableOutputsPsbt(
		ctx context.Context, descriptors []domain.SpendableOutputDescriptor,
		outputs []*wire.TxOut, changeScript []byte,
		feeRate chainfee.SatPerKWeight, locktime *uint32,
	) (*psbt.Packet, error)
	SignSpendableOutputsPsbt(
		ctx context.Context, descriptors []domain.SpendableOutputDescriptor,
		packet *psbt.Packet,
	) (*psbt.Packet, error)
}
