package db

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/rgb-ln/rlnd/internal/core/domain"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

const channelIDsKey = "channel_ids"

// channelIDRepository maps temporary channel ids to final ones.
type channelIDRepository struct {
	ledger *ledger[lnwire.ChannelID, lnwire.ChannelID]
}

func NewChannelIDRepository(store ports.KVStore) domain.ChannelIDRepository {
	ids := newLedger[lnwire.ChannelID, lnwire.ChannelID](store, channelIDsKey, channelIDsCodec)
	return &channelIDRepository{ids}
}

func (r *channelIDRepository) Add(ctx context.Context, temporary, final lnwire.ChannelID) error {
	return r.ledger.update(ctx, func(ids map[lnwire.ChannelID]lnwire.ChannelID) error {
		ids[temporary] = final
		return nil
	})
}

func (r *channelIDRepository) GetFinal(
	ctx context.Context, temporary lnwire.ChannelID,
) (lnwire.ChannelID, error) {
	final, ok, err := r.ledger.get(ctx, temporary)
	if err != nil {
		return lnwire.ChannelID{}, err
	}
	if !ok {
		return lnwire.ChannelID{}, fmt.Errorf("%w: %s", domain.ErrChannelIDNotFound, temporary)
	}
	return final, nil
}

func (r *channelIDRepository) GetAll(ctx context.Context) ([]domain.ChannelIDs, error) {
	ids, err := r.ledger.view(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]domain.ChannelIDs, 0, len(ids))
	for temporary, final := range ids {
		list = append(list, domain.ChannelIDs{Temporary: temporary, Final: final})
	}
	return list, nil
}

// DeleteByFinal drops every entry pointing at the given final id. It is a
// no-op when there is none.
func (r *channelIDRepository) DeleteByFinal(ctx context.Context, final lnwire.ChannelID) error {
	ids, err := r.ledger.view(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, v := range ids {
		if v == final {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	return r.ledger.update(ctx, func(ids map[lnwire.ChannelID]lnwire.ChannelID) error {
		for temporary, v := range ids {
			if v == final {
				delete(ids, temporary)
			}
		}
		return nil
	})
}
