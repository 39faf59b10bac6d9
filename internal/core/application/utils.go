package application

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

func fmtOptional[T any](v *T) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprint(*v)
}

func extractTxFromPsbt(b64 string) (*wire.MsgTx, error) {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(b64), true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse psbt: %w", err)
	}
	return extractTx(packet)
}

func extractTx(packet *psbt.Packet) (*wire.MsgTx, error) {
	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return nil, fmt.Errorf("failed to finalize psbt: %w", err)
	}
	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("failed to extract tx: %w", err)
	}
	return tx, nil
}

func psbtHandoffKey(txid string) string {
	return "psbt_" + txid
}

func consignmentHandoffKey(txid string) string {
	return "consignment_" + txid
}
