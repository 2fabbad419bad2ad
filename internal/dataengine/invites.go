package dataengine

import (
	"crypto/rand"
	"fmt"

	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/keymodel"
	"github.com/37miners/concord/internal/kvstore"
)

func randomID16() ([16]byte, error) {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

// CreateInvite samples a random 128-bit id and writes the invite under both
// INVITE and INVITE_ID (spec.md §4.3).
func (e *Engine) CreateInvite(inviter [32]byte, serverID [8]byte, expiryMs, maxUses uint64) ([16]byte, error) {
	id, err := randomID16()
	if err != nil {
		return id, err
	}
	rec := InviteRecord{Inviter: inviter, ServerID: serverID, ExpiryMs: expiryMs, Cur: 0, Max: maxUses, ID: id}
	err = e.store.Update(func(b *kvstore.Batch) error {
		raw := rec.marshal()
		if err := b.Put(keymodel.InviteKey(serverID, inviter, id), raw); err != nil {
			return fmt.Errorf("write invite: %w", err)
		}
		return b.Put(keymodel.InviteIDKey(id), raw)
	})
	if err != nil {
		return id, fmt.Errorf("create invite: %w", err)
	}
	return id, nil
}

// CheckInvite returns join info only when the invite exists and has
// remaining uses.
func (e *Engine) CheckInvite(id [16]byte) (InviteRecord, bool, error) {
	var rec InviteRecord
	found := false
	err := e.store.View(func(b *kvstore.Batch) error {
		v, ok := b.Get(keymodel.InviteIDKey(id))
		if !ok {
			return nil
		}
		var err error
		if rec, err = unmarshalInvite(v); err != nil {
			return fmt.Errorf("decode invite: %w", err)
		}
		if rec.Cur < rec.Max {
			found = true
		}
		return nil
	})
	if err != nil {
		return rec, false, fmt.Errorf("check invite: %w", err)
	}
	return rec, found, nil
}

// AcceptInvite fails silently (returns found=false) when the invite is
// missing or exhausted; otherwise it increments Cur and upserts a MEMBER
// with the supplied profile.
func (e *Engine) AcceptInvite(id [16]byte, userPubkey, serverPubkey [32]byte, username, bio string, avatar []byte, nowMs uint64) (found bool, err error) {
	err = e.store.Update(func(b *kvstore.Batch) error {
		v, ok := b.Get(keymodel.InviteIDKey(id))
		if !ok {
			return nil
		}
		rec, err := unmarshalInvite(v)
		if err != nil {
			return fmt.Errorf("decode invite: %w", err)
		}
		if rec.Cur >= rec.Max {
			return nil
		}
		rec.Cur++
		raw := rec.marshal()
		if err := b.Put(keymodel.InviteIDKey(id), raw); err != nil {
			return fmt.Errorf("advance invite: %w", err)
		}
		if err := b.Put(keymodel.InviteKey(rec.ServerID, rec.Inviter, id), raw); err != nil {
			return fmt.Errorf("advance invite: %w", err)
		}

		batch, err := nextMemberBatch(b, serverPubkey, rec.ServerID)
		if err != nil {
			return err
		}
		m := MemberRecord{
			UserPubkey: userPubkey, ServerPubkey: serverPubkey, ServerID: rec.ServerID,
			AuthFlags: constants.MemberFlag, JoinTimeMs: nowMs, ModifiedTimeMs: nowMs, BatchNum: batch,
		}
		if err := upsertMember(b, m); err != nil {
			return err
		}
		p := ProfileRecord{UserPubkey: userPubkey, ServerPubkey: serverPubkey, ServerID: rec.ServerID, Avatar: avatar, Username: username, Bio: bio}
		if err := b.Put(keymodel.ProfileKey(userPubkey, serverPubkey, rec.ServerID), p.marshal()); err != nil {
			return fmt.Errorf("write accepted profile: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("accept invite: %w", err)
	}
	return found, nil
}

// DeleteInvite resolves id via INVITE_ID and deletes both entries.
func (e *Engine) DeleteInvite(id [16]byte) error {
	err := e.store.Update(func(b *kvstore.Batch) error {
		v, ok := b.Get(keymodel.InviteIDKey(id))
		if !ok {
			return nil
		}
		rec, err := unmarshalInvite(v)
		if err != nil {
			return fmt.Errorf("decode invite: %w", err)
		}
		if err := b.Delete(keymodel.InviteIDKey(id)); err != nil {
			return fmt.Errorf("delete invite id entry: %w", err)
		}
		return b.Delete(keymodel.InviteKey(rec.ServerID, rec.Inviter, id))
	})
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}

// ListInvites lists every invite on serverID, optionally filtered to one
// inviter.
func (e *Engine) ListInvites(serverID [8]byte, inviter *[32]byte) ([]InviteRecord, error) {
	var out []InviteRecord
	err := e.store.View(func(b *kvstore.Batch) error {
		var prefix []byte
		if inviter != nil {
			prefix = keymodel.InviteInviterPrefix(serverID, *inviter)
		} else {
			prefix = keymodel.InviteServerPrefix(serverID)
		}
		for _, entry := range b.ScanPrefix(prefix) {
			rec, err := unmarshalInvite(entry.Value)
			if err != nil {
				return fmt.Errorf("decode invite: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return out, nil
}
