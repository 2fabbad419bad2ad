package dataengine

import (
	"fmt"

	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/keymodel"
	"github.com/37miners/concord/internal/kvstore"
)

// PostMessage assigns msg.Seqno as the channel's prior message_count, then
// advances that counter and writes the message keyed for chronological scan
// within its batch (spec.md §4.3).
func (e *Engine) PostMessage(msg MessageRecord) (MessageRecord, error) {
	err := e.store.Update(func(b *kvstore.Batch) error {
		metaKey := keymodel.MessageMetadataKey(msg.ServerPubkey, msg.ServerID, msg.ChannelID)
		count, err := readCounter(b, metaKey)
		if err != nil {
			return fmt.Errorf("read message count: %w", err)
		}
		msg.Seqno = count
		msg.BatchNum = count / constants.MessageBatchSize
		if err := writeCounter(b, metaKey, count+1); err != nil {
			return fmt.Errorf("advance message count: %w", err)
		}
		key := keymodel.MessageKey(msg.ServerPubkey, msg.ServerID, msg.ChannelID, msg.BatchNum, msg.TimestampMs, msg.UserPubkey, msg.Nonce)
		return b.Put(key, msg.marshal())
	})
	if err != nil {
		return MessageRecord{}, fmt.Errorf("post message: %w", err)
	}
	return msg, nil
}

// AnnotatedMessage pairs a stored message with its author's profile at read
// time, falling back to an empty profile when none exists.
type AnnotatedMessage struct {
	MessageRecord
	Username string
	Bio      string
}

// GetMessages clamps batchNum to message_count / MessageBatchSize (the batch
// the next posted message lands in, which is still empty when the count is
// an exact multiple of MessageBatchSize) and returns every message in it,
// annotated with the author's current profile.
func (e *Engine) GetMessages(serverPubkey [32]byte, serverID [8]byte, channelID uint64, batchNum uint64) ([]AnnotatedMessage, error) {
	var out []AnnotatedMessage
	err := e.store.View(func(b *kvstore.Batch) error {
		count, err := readCounter(b, keymodel.MessageMetadataKey(serverPubkey, serverID, channelID))
		if err != nil {
			return fmt.Errorf("read message count: %w", err)
		}
		maxBatch := uint64(0)
		if count > 0 {
			maxBatch = count / constants.MessageBatchSize
		}
		if batchNum > maxBatch {
			batchNum = maxBatch
		}
		prefix := keymodel.MessageBatchPrefix(serverPubkey, serverID, channelID, batchNum)
		for _, entry := range b.ScanPrefix(prefix) {
			m, err := unmarshalMessage(entry.Value)
			if err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			am := AnnotatedMessage{MessageRecord: m}
			if v, ok := b.Get(keymodel.ProfileKey(m.UserPubkey, serverPubkey, serverID)); ok {
				if p, err := unmarshalProfile(v); err == nil {
					am.Username, am.Bio = p.Username, p.Bio
				}
			}
			out = append(out, am)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return out, nil
}
