package rpcbridge

import (
	"context"
	"encoding/base64"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

type jsonWitness struct {
	AmountSat uint64  `json:"amount_sat"`
	Blinding  *uint64 `json:"blinding"`
}

type jsonRecipient struct {
	RecipientID        string       `json:"recipient_id"`
	Witness            *jsonWitness `json:"witness_data"`
	Amount             uint64       `json:"amount"`
	TransportEndpoints []string     `json:"transport_endpoints"`
}

type jsonOutpoint struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

type jsonAssetColoring struct {
	Iface          ports.AssetIface  `json:"iface"`
	OutputMap      map[uint32]uint64 `json:"output_map"`
	InputOutpoints []jsonOutpoint    `json:"input_outpoints"`
}

type jsonConsignment struct {
	ContractID string `json:"contract_id"`
	Data       string `json:"data"`
}

type wallet struct {
	rpc *conn
}

// NewWallet returns the asset wallet served by the wallet sidecar.
func NewWallet(cfg ConnConfig) (ports.AssetWallet, error) {
	rpc, err := dial("wallet", cfg)
	if err != nil {
		return nil, err
	}
	return &wallet{rpc}, nil
}

func (w *wallet) SendBegin(
	ctx context.Context, recipients map[string][]ports.Recipient, donation bool,
	feeRate float32, minConfirmations uint8,
) (string, error) {
	params := make(map[string][]jsonRecipient, len(recipients))
	for assetID, list := range recipients {
		for _, r := range list {
			recipient := jsonRecipient{
				RecipientID:        r.RecipientID,
				Amount:             r.Amount,
				TransportEndpoints: r.TransportEndpoints,
			}
			if r.Witness != nil {
				recipient.Witness = &jsonWitness{r.Witness.AmountSat, r.Witness.Blinding}
			}
			params[assetID] = append(params[assetID], recipient)
		}
	}

	var unsigned string
	err := w.rpc.call(ctx, "sendbegin", &unsigned, params, donation, feeRate, minConfirmations)
	return unsigned, err
}

func (w *wallet) SendBtcBegin(
	ctx context.Context, address string, amountSat uint64, feeRate float32,
) (string, error) {
	var unsigned string
	err := w.rpc.call(ctx, "sendbtcbegin", &unsigned, address, amountSat, feeRate)
	return unsigned, err
}

func (w *wallet) SignPsbt(ctx context.Context, unsignedPsbt string) (string, error) {
	var signed string
	err := w.rpc.call(ctx, "signpsbt", &signed, unsignedPsbt)
	return signed, err
}

func (w *wallet) SendEnd(ctx context.Context, signedPsbt string) (string, error) {
	var txid string
	err := w.rpc.call(ctx, "sendend", &txid, signedPsbt)
	return txid, err
}

func (w *wallet) SendBtcEnd(ctx context.Context, signedPsbt string) (string, error) {
	var txid string
	err := w.rpc.call(ctx, "sendbtcend", &txid, signedPsbt)
	return txid, err
}

func (w *wallet) SendConsignment(
	ctx context.Context, txid, assetID, recipientID string,
) ([]byte, error) {
	var b64 string
	if err := w.rpc.call(ctx, "sendconsignment", &b64, txid, assetID, recipientID); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(b64)
}

func (w *wallet) ColorPsbt(
	ctx context.Context, packet *psbt.Packet, info ports.ColoringInfo,
) ([]ports.Consignment, error) {
	b64, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}

	assets := make(map[string]jsonAssetColoring, len(info.AssetInfoMap))
	for contractID, a := range info.AssetInfoMap {
		inputs := make([]jsonOutpoint, 0, len(a.InputOutpoints))
		for _, op := range a.InputOutpoints {
			inputs = append(inputs, jsonOutpoint{op.Txid, op.Vout})
		}
		assets[contractID] = jsonAssetColoring{a.Iface, a.OutputMap, inputs}
	}

	var reply struct {
		Psbt         string            `json:"psbt"`
		Consignments []jsonConsignment `json:"consignments"`
	}
	if err := w.rpc.call(ctx, "colorpsbt", &reply, b64, assets); err != nil {
		return nil, err
	}

	// The commitment lands in the packet the caller goes on signing.
	colored, err := decodePsbt(reply.Psbt)
	if err != nil {
		return nil, err
	}
	*packet = *colored

	consignments := make([]ports.Consignment, 0, len(reply.Consignments))
	for _, c := range reply.Consignments {
		data, err := base64.StdEncoding.DecodeString(c.Data)
		if err != nil {
			return nil, err
		}
		consignments = append(consignments, ports.Consignment{ContractID: c.ContractID, Data: data})
	}
	return consignments, nil
}

func (w *wallet) LoadConsignment(ctx context.Context, data []byte) (*ports.ConsignmentInfo, error) {
	var reply struct {
		ContractID string            `json:"contract_id"`
		Schema     ports.AssetSchema `json:"schema"`
	}
	err := w.rpc.call(ctx, "loadconsignment", &reply, base64.StdEncoding.EncodeToString(data))
	if err != nil {
		return nil, err
	}
	return &ports.ConsignmentInfo{ContractID: reply.ContractID, Schema: reply.Schema}, nil
}

func (w *wallet) SaveNewAsset(
	ctx context.Context, schema ports.AssetSchema, contractID string,
) error {
	err := w.rpc.call(ctx, "savenewasset", nil, schema, contractID)
	if hasErrorCode(err, errCodeAssetAlreadyRegistered) {
		return domain.ErrAssetAlreadyRegistered
	}
	return err
}

func (w *wallet) WitnessReceive(
	ctx context.Context, transportEndpoints []string,
) (*ports.ReceiveData, error) {
	var reply struct {
		RecipientID string `json:"recipient_id"`
	}
	if err := w.rpc.call(ctx, "witnessreceive", &reply, transportEndpoints); err != nil {
		return nil, err
	}
	return &ports.ReceiveData{RecipientID: reply.RecipientID}, nil
}

func (w *wallet) Refresh(ctx context.Context) error {
	return w.rpc.call(ctx, "refresh", nil)
}

func (w *wallet) GetTxHeight(ctx context.Context, txid string) (*uint32, error) {
	var height *uint32
	if err := w.rpc.call(ctx, "gettxheight", &height, txid); err != nil {
		return nil, err
	}
	return height, nil
}

func (w *wallet) UpdateWitnesses(ctx context.Context, afterHeight uint32) ([]string, error) {
	var failed []string
	if err := w.rpc.call(ctx, "updatewitnesses", &failed, afterHeight); err != nil {
		return nil, err
	}
	return failed, nil
}

func (w *wallet) RecipientIDFromScript(ctx context.Context, script []byte) (string, error) {
	var recipientID string
	err := w.rpc.call(ctx, "recipientidfromscript", &recipientID, hexBytes(script))
	return recipientID, err
}

func (w *wallet) ScriptFromRecipientID(ctx context.Context, recipientID string) ([]byte, error) {
	var script hexBytes
	if err := w.rpc.call(ctx, "scriptfromrecipientid", &script, recipientID); err != nil {
		return nil, err
	}
	return script, nil
}

func (w *wallet) NewChangeScript(ctx context.Context) ([]byte, error) {
	var script hexBytes
	if err := w.rpc.call(ctx, "newchangescript", &script); err != nil {
		return nil, err
	}
	return script, nil
}

func (w *wallet) Close() {
	w.rpc.close()
}
