package dataengine

import (
	"fmt"

	"github.com/37miners/concord/internal/keymodel"
	"github.com/37miners/concord/internal/kvstore"
)

// GetChannels lists every channel on one server.
func (e *Engine) GetChannels(serverPubkey [32]byte, serverID [8]byte) ([]ChannelRecord, error) {
	var out []ChannelRecord
	err := e.store.View(func(b *kvstore.Batch) error {
		for _, entry := range b.ScanPrefix(keymodel.ChannelPrefix(serverPubkey, serverID)) {
			c, err := unmarshalChannel(entry.Value)
			if err != nil {
				return fmt.Errorf("decode channel: %w", err)
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get channels: %w", err)
	}
	return out, nil
}

// AddChannel assigns a fresh channel id from a persisted monotonic counter
// (the same readCounter/writeCounter pattern nextMemberBatch and the
// message seqno counters use) and writes the channel record. A live scan
// count would collide: DeleteChannel removing a record without
// decrementing anything means a later AddChannel could reassign an id that
// is still in use.
func (e *Engine) AddChannel(serverPubkey [32]byte, serverID [8]byte, name, description string) (uint64, error) {
	var id uint64
	err := e.store.Update(func(b *kvstore.Batch) error {
		key := keymodel.ChannelMetaDataKey(serverPubkey, serverID)
		count, err := readCounter(b, key)
		if err != nil {
			return fmt.Errorf("read channel count: %w", err)
		}
		id = count
		if err := writeCounter(b, key, count+1); err != nil {
			return fmt.Errorf("advance channel count: %w", err)
		}
		rec := ChannelRecord{ServerPubkey: serverPubkey, ServerID: serverID, ChannelID: id, Name: name, Description: description}
		return b.Put(keymodel.ChannelKey(serverPubkey, serverID, id), rec.marshal())
	})
	if err != nil {
		return 0, fmt.Errorf("add channel: %w", err)
	}
	return id, nil
}

// SetChannel (ModifyChannel) updates name/description in place.
func (e *Engine) SetChannel(serverPubkey [32]byte, serverID [8]byte, channelID uint64, name, description *string) error {
	err := e.store.Update(func(b *kvstore.Batch) error {
		key := keymodel.ChannelKey(serverPubkey, serverID, channelID)
		v, ok := b.Get(key)
		if !ok {
			return ErrChannelNotFound
		}
		rec, err := unmarshalChannel(v)
		if err != nil {
			return fmt.Errorf("decode channel: %w", err)
		}
		if name != nil {
			rec.Name = *name
		}
		if description != nil {
			rec.Description = *description
		}
		return b.Put(key, rec.marshal())
	})
	if err != nil {
		return fmt.Errorf("set channel: %w", err)
	}
	return nil
}

// DeleteChannel removes a channel record. Idempotent — deleting an absent
// channel is not an error (spec.md §3 "Deletion is idempotent").
func (e *Engine) DeleteChannel(serverPubkey [32]byte, serverID [8]byte, channelID uint64) error {
	err := e.store.Update(func(b *kvstore.Batch) error {
		return b.Delete(keymodel.ChannelKey(serverPubkey, serverID, channelID))
	})
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}
