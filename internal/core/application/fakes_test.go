package application

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

// channelsAccount holds the assets locked in channel funding outputs.
const channelsAccount = "channels"

// assetLedger is the shared view of a single asset's ownership across nodes.
type assetLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
}

func newAssetLedger() *assetLedger {
	return &assetLedger{balances: make(map[string]uint64)}
}

func (l *assetLedger) issue(owner string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[owner] += amount
}

func (l *assetLedger) move(from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("%s owns %d, cannot move %d", from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *assetLedger) balance(owner string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[owner]
}

// fakeWallet is an asset wallet owning the balance of node in the ledger.
type fakeWallet struct {
	mu         sync.Mutex
	node       string
	contractID string
	ledger     *assetLedger

	inputs      uint32
	pending     map[chainhash.Hash]uint64
	fundingTxid chainhash.Hash
	sendEnds    int
	colorCalls  int
	refreshes   int
	savedAssets []string
}

func newFakeWallet(node, contractID string, ledger *assetLedger) *fakeWallet {
	return &fakeWallet{
		node:       node,
		contractID: contractID,
		ledger:     ledger,
		pending:    make(map[chainhash.Hash]uint64),
	}
}

func (w *fakeWallet) send(to string, amount uint64) error {
	return w.ledger.move(w.node, to, amount)
}

func (w *fakeWallet) newFundingPsbt(amount uint64) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.inputs++
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{
		Hash:  chainhash.HashH([]byte(fmt.Sprintf("%s-utxo-%d", w.node, w.inputs))),
		Index: 0,
	}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(100000, testScript(0x01)))

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return "", err
	}
	w.pending[tx.TxHash()] = amount
	w.fundingTxid = tx.TxHash()
	return packet.B64Encode()
}

func (w *fakeWallet) SendBegin(
	_ context.Context, recipients map[string][]ports.Recipient, _ bool, _ float32, _ uint8,
) (string, error) {
	var amount uint64
	for _, rr := range recipients[w.contractID] {
		amount += rr.Amount
	}
	return w.newFundingPsbt(amount)
}

func (w *fakeWallet) SendBtcBegin(context.Context, string, uint64, float32) (string, error) {
	return w.newFundingPsbt(0)
}

func (w *fakeWallet) SignPsbt(_ context.Context, unsignedPsbt string) (string, error) {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(unsignedPsbt), true)
	if err != nil {
		return "", err
	}
	signPacket(packet)
	return packet.B64Encode()
}

func (w *fakeWallet) sendEnd(signedPsbt string) (string, error) {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(signedPsbt), true)
	if err != nil {
		return "", err
	}
	txid := packet.UnsignedTx.TxHash()

	w.mu.Lock()
	defer w.mu.Unlock()
	amount, ok := w.pending[txid]
	if !ok {
		return "", fmt.Errorf("unknown funding %s", txid)
	}
	if err := w.ledger.move(w.node, channelsAccount, amount); err != nil {
		return "", err
	}
	delete(w.pending, txid)
	w.sendEnds++
	return txid.String(), nil
}

func (w *fakeWallet) SendEnd(_ context.Context, signedPsbt string) (string, error) {
	return w.sendEnd(signedPsbt)
}

func (w *fakeWallet) SendBtcEnd(_ context.Context, signedPsbt string) (string, error) {
	return w.sendEnd(signedPsbt)
}

func (w *fakeWallet) SendConsignment(_ context.Context, txid, assetID, _ string) ([]byte, error) {
	return []byte(fmt.Sprintf("consignment|%s|%s", assetID, txid)), nil
}

func (w *fakeWallet) ColorPsbt(
	_ context.Context, _ *psbt.Packet, info ports.ColoringInfo,
) ([]ports.Consignment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.colorCalls++

	consignments := make([]ports.Consignment, 0, len(info.AssetInfoMap))
	for contractID, assetInfo := range info.AssetInfoMap {
		for _, amount := range assetInfo.OutputMap {
			if err := w.ledger.move(channelsAccount, w.node, amount); err != nil {
				return nil, err
			}
		}
		consignments = append(consignments, ports.Consignment{
			ContractID: contractID,
			Data:       []byte("consignment|" + contractID),
		})
	}
	return consignments, nil
}

func (w *fakeWallet) LoadConsignment(_ context.Context, data []byte) (*ports.ConsignmentInfo, error) {
	contractID, ok := strings.CutPrefix(string(data), "consignment|")
	if !ok {
		return nil, fmt.Errorf("invalid consignment")
	}
	contractID, _, _ = strings.Cut(contractID, "|")
	return &ports.ConsignmentInfo{ContractID: contractID, Schema: ports.AssetSchemaNia}, nil
}

func (w *fakeWallet) SaveNewAsset(_ context.Context, _ ports.AssetSchema, contractID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, saved := range w.savedAssets {
		if saved == contractID {
			return domain.ErrAssetAlreadyRegistered
		}
	}
	w.savedAssets = append(w.savedAssets, contractID)
	return nil
}

func (w *fakeWallet) WitnessReceive(context.Context, []string) (*ports.ReceiveData, error) {
	return &ports.ReceiveData{RecipientID: w.node + "-recipient"}, nil
}

func (w *fakeWallet) Refresh(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refreshes++
	return nil
}

func (w *fakeWallet) GetTxHeight(context.Context, string) (*uint32, error) {
	height := uint32(100)
	return &height, nil
}

func (w *fakeWallet) UpdateWitnesses(context.Context, uint32) ([]string, error) {
	return nil, nil
}

func (w *fakeWallet) RecipientIDFromScript(context.Context, []byte) (string, error) {
	return w.node + "-funding", nil
}

func (w *fakeWallet) ScriptFromRecipientID(context.Context, string) ([]byte, error) {
	return testScript(0x02), nil
}

func (w *fakeWallet) NewChangeScript(context.Context) ([]byte, error) {
	return testScript(0x03), nil
}

func (w *fakeWallet) Close() {}

type fakeSigner struct{}

func (fakeSigner) buildTx(
	descriptors []domain.SpendableOutputDescriptor, outputs []*wire.TxOut,
	changeScript []byte, locktime *uint32,
) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	var total int64
	for _, d := range descriptors {
		outpoint := d.Outpoint
		tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
		total += d.Output.Value
	}
	for _, out := range outputs {
		tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
		total -= out.Value
	}
	tx.AddTxOut(wire.NewTxOut(total-1000, changeScript))
	if locktime != nil {
		tx.LockTime = *locktime
	}
	return tx
}

func (s fakeSigner) SpendSpendableOutputs(
	_ context.Context, descriptors []domain.SpendableOutputDescriptor,
	outputs []*wire.TxOut, changeScript []byte, _ chainfee.SatPerKWeight, locktime *uint32,
) (*wire.MsgTx, error) {
	tx := s.buildTx(descriptors, outputs, changeScript, locktime)
	for _, in := range tx.TxIn {
		in.Witness = wire.TxWitness{{0x00}}
	}
	return tx, nil
}

func (s fakeSigner) CreateSpendableOutputsPsbt(
	_ context.Context, descriptors []domain.SpendableOutputDescriptor,
	outputs []*wire.TxOut, changeScript []byte, _ chainfee.SatPerKWeight, locktime *uint32,
) (*psbt.Packet, error) {
	return psbt.NewFromUnsignedTx(s.buildTx(descriptors, outputs, changeScript, locktime))
}

func (fakeSigner) SignSpendableOutputsPsbt(
	_ context.Context, _ []domain.SpendableOutputDescriptor, packet *psbt.Packet,
) (*psbt.Packet, error) {
	signPacket(packet)
	return packet, nil
}

type postedConsignment struct {
	recipientID string
	txid        string
	vout        uint32
}

type fakeProxy struct {
	mu    sync.Mutex
	posts []postedConsignment
	err   error
}

func (p *fakeProxy) PostConsignment(
	_ context.Context, _, recipientID, txid string, vout *uint32, _ []byte,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.posts = append(p.posts, postedConsignment{recipientID, txid, *vout})
	return nil
}

func (p *fakeProxy) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

type rgbPayment struct {
	channelID lnwire.ChannelID
	amount    uint64
}

// fakeColors keeps the asset split of the channels of a single node.
type fakeColors struct {
	mu        sync.Mutex
	pending   map[lnwire.ChannelID]domain.RgbChannelInfo
	channels  map[lnwire.ChannelID]*domain.RgbChannelInfo
	payments  map[lntypes.Hash]rgbPayment
	transfers map[chainhash.Hash]domain.TransferInfo
}

func newFakeColors() *fakeColors {
	return &fakeColors{
		pending:   make(map[lnwire.ChannelID]domain.RgbChannelInfo),
		channels:  make(map[lnwire.ChannelID]*domain.RgbChannelInfo),
		payments:  make(map[lntypes.Hash]rgbPayment),
		transfers: make(map[chainhash.Hash]domain.TransferInfo),
	}
}

func (c *fakeColors) IsColored(_ context.Context, channelID lnwire.ChannelID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, pending := c.pending[channelID]
	_, open := c.channels[channelID]
	return pending || open, nil
}

func (c *fakeColors) PendingChannelInfo(
	_ context.Context, channelID lnwire.ChannelID,
) (*domain.RgbChannelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.pending[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s is not colored", channelID)
	}
	return &info, nil
}

func (c *fakeColors) ChannelInfo(
	_ context.Context, channelID lnwire.ChannelID,
) (*domain.RgbChannelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.channels[channelID]
	if !ok {
		return nil, nil
	}
	res := *info
	return &res, nil
}

func (c *fakeColors) UpdatePaymentAmounts(
	_ context.Context, hash lntypes.Hash, receiver bool,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	payment, ok := c.payments[hash]
	if !ok {
		return nil
	}
	info := c.channels[payment.channelID]
	if receiver {
		info.LocalAmount += payment.amount
		info.RemoteAmount -= payment.amount
	} else {
		info.LocalAmount -= payment.amount
		info.RemoteAmount += payment.amount
	}
	return nil
}

func (c *fakeColors) UpdateChannelAmount(
	_ context.Context, channelID lnwire.ChannelID, offered, received uint64,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s is not colored", channelID)
	}
	info.LocalAmount = info.LocalAmount - offered + received
	info.RemoteAmount = info.RemoteAmount + offered - received
	return nil
}

func (c *fakeColors) TransferInfo(
	_ context.Context, txid chainhash.Hash,
) (*domain.TransferInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.transfers[txid]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// signPacket finalizes every input with a single one byte witness item.
func signPacket(packet *psbt.Packet) {
	for i := range packet.Inputs {
		packet.Inputs[i].FinalScriptWitness = []byte{0x01, 0x01, 0x00}
	}
}

// testScript returns a p2wsh script.
func testScript(tag byte) []byte {
	program := bytes.Repeat([]byte{tag}, 32)
	script, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).AddData(program).Script()
	return script
}
