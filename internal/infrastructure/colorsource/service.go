package colorsource

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	pendingSuffix  = "_pending"
	transferSuffix = "_transfer_info"
	inboundSuffix  = "_inbound"
	outboundSuffix = "_outbound"
)

type channelInfo struct {
	ContractID   string `json:"contract_id"`
	LocalAmount  uint64 `json:"local_rgb_amount"`
	RemoteAmount uint64 `json:"remote_rgb_amount"`
}

type paymentInfo struct {
	ContractID  string `json:"contract_id"`
	Amount      uint64 `json:"amount"`
	ChannelID   string `json:"channel_id"`
	SwapPayment bool   `json:"swap_payment"`
	Inbound     bool   `json:"inbound"`
	Applied     bool   `json:"applied"`
}

type transferInfo struct {
	ContractID string `json:"contract_id"`
	Amount     uint64 `json:"rgb_amount"`
}

type service struct {
	store ports.KVStore
	lock  sync.Mutex
}

// NewService reads the asset split of channels, payments and closing
// transactions from the files the engine keeps in its data dir.
func NewService(store ports.KVStore) ports.ChannelColorSource {
	return &service{store: store}
}

func (s *service) IsColored(ctx context.Context, channelID lnwire.ChannelID) (bool, error) {
	for _, key := range []string{channelKey(channelID), channelKey(channelID) + pendingSuffix} {
		exists, err := s.store.Exists(ctx, key)
		if err != nil || exists {
			return exists, err
		}
	}
	return false, nil
}

func (s *service) PendingChannelInfo(
	ctx context.Context, channelID lnwire.ChannelID,
) (*domain.RgbChannelInfo, error) {
	info, err := s.readChannel(ctx, channelKey(channelID)+pendingSuffix)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("no pending asset info for channel %s", channelID)
	}
	return info.toDomain(), nil
}

func (s *service) ChannelInfo(
	ctx context.Context, channelID lnwire.ChannelID,
) (*domain.RgbChannelInfo, error) {
	info, err := s.readChannel(ctx, channelKey(channelID))
	if err != nil || info == nil {
		return nil, err
	}
	return info.toDomain(), nil
}

func (s *service) UpdatePaymentAmounts(
	ctx context.Context, hash lntypes.Hash, receiver bool,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	key := hash.String() + outboundSuffix
	if receiver {
		key = hash.String() + inboundSuffix
	}

	var payment paymentInfo
	found, err := s.readJSON(ctx, key, &payment)
	if err != nil {
		return err
	}
	if !found {
		log.Debugf("payment %s carries no asset", hash)
		return nil
	}
	if payment.Applied {
		return nil
	}

	chanID, err := parseChannelID(payment.ChannelID)
	if err != nil {
		return err
	}
	offered, received := payment.Amount, uint64(0)
	if receiver {
		offered, received = 0, payment.Amount
	}
	if err := s.updateChannel(ctx, chanID, offered, received); err != nil {
		return err
	}

	payment.Applied = true
	return s.writeJSON(ctx, key, payment)
}

func (s *service) UpdateChannelAmount(
	ctx context.Context, channelID lnwire.ChannelID, offered, received uint64,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.updateChannel(ctx, channelID, offered, received)
}

func (s *service) TransferInfo(
	ctx context.Context, txid chainhash.Hash,
) (*domain.TransferInfo, error) {
	var info transferInfo
	found, err := s.readJSON(ctx, txid.String()+transferSuffix, &info)
	if err != nil || !found {
		return nil, err
	}
	return &domain.TransferInfo{ContractID: info.ContractID, Amount: info.Amount}, nil
}

func (s *service) updateChannel(
	ctx context.Context, channelID lnwire.ChannelID, offered, received uint64,
) error {
	key := channelKey(channelID)
	info, err := s.readChannel(ctx, key)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("channel %s is not colored", channelID)
	}
	if info.LocalAmount+received < offered || info.RemoteAmount+offered < received {
		return fmt.Errorf(
			"asset amounts of channel %s would underflow: local %d remote %d offered %d received %d",
			channelID, info.LocalAmount, info.RemoteAmount, offered, received,
		)
	}

	info.LocalAmount = info.LocalAmount + received - offered
	info.RemoteAmount = info.RemoteAmount + offered - received
	return s.writeJSON(ctx, key, info)
}

func (s *service) readChannel(ctx context.Context, key string) (*channelInfo, error) {
	var info channelInfo
	found, err := s.readJSON(ctx, key, &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

func (s *service) readJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	buf, err := s.store.Read(ctx, key)
	if err != nil {
		if errors.Is(err, ports.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return false, fmt.Errorf("malformed asset info %s: %w", key, err)
	}
	return true, nil
}

func (s *service) writeJSON(ctx context.Context, key string, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.store.Write(ctx, key, buf)
}

func (i channelInfo) toDomain() *domain.RgbChannelInfo {
	return &domain.RgbChannelInfo{
		ContractID:   i.ContractID,
		LocalAmount:  i.LocalAmount,
		RemoteAmount: i.RemoteAmount,
	}
}

func channelKey(channelID lnwire.ChannelID) string {
	return hex.EncodeToString(channelID[:])
}

func parseChannelID(s string) (lnwire.ChannelID, error) {
	var id lnwire.ChannelID
	buf, err := hex.DecodeString(s)
	if err != nil || len(buf) != len(id) {
		return id, fmt.Errorf("invalid channel id %q", s)
	}
	copy(id[:], buf)
	return id, nil
}
