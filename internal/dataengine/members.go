package dataengine

import (
	"fmt"

	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/keymodel"
	"github.com/37miners/concord/internal/kvstore"
)

// indexKey returns the MEMBER_ITT or MEMBER_AUTH key for m, depending on
// whether it currently carries any auth flag.
func indexKey(m MemberRecord) []byte {
	if m.AuthFlags == 0 {
		return keymodel.MemberIttKey(m.ServerPubkey, m.ServerID, m.BatchNum, m.UserPubkey)
	}
	return keymodel.MemberAuthKey(m.ServerPubkey, m.ServerID, m.BatchNum, m.UserPubkey)
}

func getMember(b *kvstore.Batch, serverPubkey [32]byte, serverID [8]byte, userPubkey [32]byte) (MemberRecord, bool, error) {
	v, ok := b.Get(keymodel.MemberHashKey(serverPubkey, serverID, userPubkey))
	if !ok {
		return MemberRecord{}, false, nil
	}
	m, err := unmarshalMember(v)
	if err != nil {
		return MemberRecord{}, false, fmt.Errorf("decode member: %w", err)
	}
	return m, true, nil
}

func nextMemberBatch(b *kvstore.Batch, serverPubkey [32]byte, serverID [8]byte) (uint64, error) {
	key := keymodel.MemberMetaDataKey(serverPubkey, serverID)
	count, err := readCounter(b, key)
	if err != nil {
		return 0, fmt.Errorf("read member count: %w", err)
	}
	batch := count / constants.MemberBatchSize
	if err := writeCounter(b, key, count+1); err != nil {
		return 0, fmt.Errorf("advance member count: %w", err)
	}
	return batch, nil
}

// upsertMember writes m to its hash entry and to whichever of
// MEMBER_ITT/MEMBER_AUTH matches its current auth_flags, deleting any stale
// entry in the other index (spec.md §4.3, "writes to exactly one of the two
// indexes and deletes from the other").
func upsertMember(b *kvstore.Batch, m MemberRecord) error {
	prev, existed, err := getMember(b, m.ServerPubkey, m.ServerID, m.UserPubkey)
	if err != nil {
		return err
	}
	if existed {
		// batch_num is fixed when the member is first written.
		m.BatchNum = prev.BatchNum
	}
	if existed && prev.AuthFlags != m.AuthFlags && indexKeyHasDifferentBucket(prev, m) {
		if err := b.Delete(indexKey(prev)); err != nil {
			return fmt.Errorf("drop stale member index entry: %w", err)
		}
	}
	raw := m.marshal()
	if err := b.Put(keymodel.MemberHashKey(m.ServerPubkey, m.ServerID, m.UserPubkey), raw); err != nil {
		return fmt.Errorf("write member hash entry: %w", err)
	}
	if err := b.Put(indexKey(m), raw); err != nil {
		return fmt.Errorf("write member index entry: %w", err)
	}
	return nil
}

func indexKeyHasDifferentBucket(a, b MemberRecord) bool {
	return (a.AuthFlags == 0) != (b.AuthFlags == 0)
}

// IsMember reports whether userPubkey's current Member record at
// (serverPubkey, serverID) carries requiredFlag, without consulting any
// token — the authorization check ServerSession uses for already-Authed
// connections, which track only a bound pubkey (spec.md §4.5), not a
// retained token.
func (e *Engine) IsMember(serverPubkey [32]byte, serverID [8]byte, userPubkey [32]byte, requiredFlag uint64) (bool, error) {
	authorized := false
	err := e.store.View(func(b *kvstore.Batch) error {
		m, found, err := getMember(b, serverPubkey, serverID, userPubkey)
		if err != nil {
			return err
		}
		if found && m.AuthFlags&requiredFlag != 0 {
			authorized = true
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return authorized, nil
}

// GetMembers scans the unauthorized (auth=false) or authorized (auth=true)
// index for one batch of one server.
func (e *Engine) GetMembers(serverPubkey [32]byte, serverID [8]byte, batchNum uint64, auth bool) ([]MemberRecord, error) {
	var out []MemberRecord
	err := e.store.View(func(b *kvstore.Batch) error {
		var prefix []byte
		if auth {
			prefix = keymodel.MemberAuthBatchPrefix(serverPubkey, serverID, batchNum)
		} else {
			prefix = keymodel.MemberIttBatchPrefix(serverPubkey, serverID, batchNum)
		}
		for _, entry := range b.ScanPrefix(prefix) {
			m, err := unmarshalMember(entry.Value)
			if err != nil {
				return fmt.Errorf("decode member: %w", err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get members: %w", err)
	}
	return out, nil
}
