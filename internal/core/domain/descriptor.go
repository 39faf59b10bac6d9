package domain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	StaticPaymentOutput OutputDescriptorKind = iota
	DelayedPaymentOutput
	StaticOutput
)

type OutputDescriptorKind uint8

func (k OutputDescriptorKind) String() string {
	switch k {
	case StaticPaymentOutput:
		return "static_payment"
	case DelayedPaymentOutput:
		return "delayed_payment"
	case StaticOutput:
		return "static"
	default:
		return "unknown"
	}
}

// SpendableOutputDescriptor describes an output we can claim after a channel
// closed. Opaque carries the engine specific data the signer needs and is
// treated as an identity component only.
type SpendableOutputDescriptor struct {
	Kind     OutputDescriptorKind
	Outpoint wire.OutPoint
	Output   wire.TxOut
	Opaque   []byte
}

func (d SpendableOutputDescriptor) Serialize(w io.Writer) error {
	var buf [8]byte

	if _, err := w.Write([]byte{byte(d.Kind)}); err != nil {
		return err
	}
	if _, err := w.Write(d.Outpoint.Hash[:]); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[:4], d.Outpoint.Index)
	if _, err := w.Write(buf[:4]); err != nil {
		return err
	}
	if err := wire.WriteTxOut(w, 0, 0, &d.Output); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, 0, d.Opaque)
}

func DeserializeDescriptor(r io.Reader) (*SpendableOutputDescriptor, error) {
	var (
		d   SpendableOutputDescriptor
		buf [8]byte
	)

	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return nil, err
	}
	d.Kind = OutputDescriptorKind(buf[0])
	if d.Kind > StaticOutput {
		return nil, fmt.Errorf("unknown descriptor kind %d", d.Kind)
	}
	if _, err := io.ReadFull(r, d.Outpoint.Hash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, buf[:4]); err != nil {
		return nil, err
	}
	d.Outpoint.Index = binary.BigEndian.Uint32(buf[:4])
	if err := wire.ReadTxOut(r, 0, 0, &d.Output); err != nil {
		return nil, err
	}
	opaque, err := wire.ReadVarBytes(r, 0, wire.MaxMessagePayload, "opaque")
	if err != nil {
		return nil, err
	}
	d.Opaque = opaque
	return &d, nil
}

// DescriptorSetHash is the identity of a batch of descriptors: the same
// descriptors in the same order always hash the same.
func DescriptorSetHash(descriptors []SpendableOutputDescriptor) (chainhash.Hash, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(descriptors))); err != nil {
		return chainhash.Hash{}, err
	}
	for _, d := range descriptors {
		if err := d.Serialize(&buf); err != nil {
			return chainhash.Hash{}, err
		}
	}
	return chainhash.HashH(buf.Bytes()), nil
}
