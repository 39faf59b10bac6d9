package colorsource_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
	"github.com/rgb-ln/rlnd/internal/infrastructure/colorsource"
	filedb "github.com/rgb-ln/rlnd/internal/infrastructure/db/file"
	"github.com/stretchr/testify/require"
)

const contractID = "rgb:2dkSTbr-jFhznbPmo-TQafzswCN-av4gTsJjX-ttx6CNou5-M98k8Zd"

var ctx = context.Background()

func newStore(t *testing.T) ports.KVStore {
	store, err := filedb.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func writeFile(t *testing.T, store ports.KVStore, key, content string) {
	require.NoError(t, store.Write(ctx, key, []byte(content)))
}

func channelInfo(local, remote uint64) string {
	return fmt.Sprintf(
		`{"contract_id":"%s","local_rgb_amount":%d,"remote_rgb_amount":%d}`,
		contractID, local, remote,
	)
}

func TestChannelInfo(t *testing.T) {
	store := newStore(t)
	svc := colorsource.NewService(store)

	pending, open, plain := lnwire.ChannelID{1}, lnwire.ChannelID{2}, lnwire.ChannelID{3}
	writeFile(t, store, hex.EncodeToString(pending[:])+"_pending", channelInfo(600, 0))
	writeFile(t, store, hex.EncodeToString(open[:]), channelInfo(500, 100))

	for _, id := range []lnwire.ChannelID{pending, open} {
		colored, err := svc.IsColored(ctx, id)
		require.NoError(t, err)
		require.True(t, colored)
	}
	colored, err := svc.IsColored(ctx, plain)
	require.NoError(t, err)
	require.False(t, colored)

	info, err := svc.PendingChannelInfo(ctx, pending)
	require.NoError(t, err)
	require.Equal(t, &domain.RgbChannelInfo{ContractID: contractID, LocalAmount: 600}, info)

	_, err = svc.PendingChannelInfo(ctx, plain)
	require.Error(t, err)

	info, err = svc.ChannelInfo(ctx, open)
	require.NoError(t, err)
	require.Equal(t, uint64(500), info.LocalAmount)
	require.Equal(t, uint64(100), info.RemoteAmount)

	info, err = svc.ChannelInfo(ctx, plain)
	require.NoError(t, err)
	require.Nil(t, info)

	writeFile(t, store, hex.EncodeToString(plain[:]), "{")
	_, err = svc.ChannelInfo(ctx, plain)
	require.Error(t, err)
}

func TestUpdateChannelAmount(t *testing.T) {
	store := newStore(t)
	svc := colorsource.NewService(store)

	id := lnwire.ChannelID{1}
	writeFile(t, store, hex.EncodeToString(id[:]), channelInfo(500, 100))

	tests := []struct {
		name             string
		offered          uint64
		received         uint64
		expectedLocal    uint64
		expectedRemote   uint64
		expectedErr bool
	}{
		{"offered", 200, 0, 300, 300, false},
		{"received", 0, 50, 350, 250, false},
		{"underflow", 1000, 0, 350, 250, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.UpdateChannelAmount(ctx, id, tt.offered, tt.received)
			if tt.expectedErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			info, err := svc.ChannelInfo(ctx, id)
			require.NoError(t, err)
			require.Equal(t, tt.expectedLocal, info.LocalAmount)
			require.Equal(t, tt.expectedRemote, info.RemoteAmount)
		})
	}

	err := svc.UpdateChannelAmount(ctx, lnwire.ChannelID{9}, 1, 0)
	require.Error(t, err)
}

func TestUpdatePaymentAmounts(t *testing.T) {
	store := newStore(t)
	svc := colorsource.NewService(store)

	id := lnwire.ChannelID{1}
	writeFile(t, store, hex.EncodeToString(id[:]), channelInfo(500, 100))

	preimage := lntypes.Preimage{7}
	hash := preimage.Hash()
	writeFile(t, store, hash.String()+"_inbound", fmt.Sprintf(
		`{"contract_id":"%s","amount":40,"channel_id":"%s","swap_payment":false,"inbound":true}`,
		contractID, hex.EncodeToString(id[:]),
	))

	// Applied once even when the claim is reported twice.
	for i := 0; i < 2; i++ {
		require.NoError(t, svc.UpdatePaymentAmounts(ctx, hash, true))
	}
	info, err := svc.ChannelInfo(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(540), info.LocalAmount)
	require.Equal(t, uint64(60), info.RemoteAmount)

	// No outbound record: nothing to apply.
	require.NoError(t, svc.UpdatePaymentAmounts(ctx, hash, false))
	require.NoError(t, svc.UpdatePaymentAmounts(ctx, lntypes.Hash{}, true))
}

func TestTransferInfo(t *testing.T) {
	store := newStore(t)
	svc := colorsource.NewService(store)

	txid := chainhash.HashH([]byte("closing"))
	writeFile(t, store, txid.String()+"_transfer_info",
		fmt.Sprintf(`{"contract_id":"%s","rgb_amount":250}`, contractID))

	info, err := svc.TransferInfo(ctx, txid)
	require.NoError(t, err)
	require.Equal(t, &domain.TransferInfo{ContractID: contractID, Amount: 250}, info)

	info, err = svc.TransferInfo(ctx, chainhash.Hash{})
	require.NoError(t, err)
	require.Nil(t, info)
}
