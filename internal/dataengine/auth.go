package dataengine

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/keymodel"
	"github.com/37miners/concord/internal/kvstore"
)

// CreateAuthChallenge samples a fresh 8-byte challenge, overwriting any
// outstanding one for userPubkey.
func (e *Engine) CreateAuthChallenge(userPubkey [32]byte) ([8]byte, error) {
	var challenge [8]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return challenge, fmt.Errorf("generate challenge: %w", err)
	}
	err := e.store.Update(func(b *kvstore.Batch) error {
		return b.Put(keymodel.ChallengeKey(userPubkey), challenge[:])
	})
	if err != nil {
		return challenge, fmt.Errorf("create auth challenge: %w", err)
	}
	return challenge, nil
}

// ValidateChallenge compares challenge against the stored value in constant
// time; on match it mints a fresh token and, when authFlags carries OWNER,
// additionally upserts an owner membership in the global scope.
func (e *Engine) ValidateChallenge(userPubkey, serverPubkey [32]byte, challenge [8]byte, expirationMs uint64, authFlags uint64, nowMs uint64) (token [16]byte, ok bool, err error) {
	err = e.store.Update(func(b *kvstore.Batch) error {
		stored, present := b.Get(keymodel.ChallengeKey(userPubkey))
		if !present || subtle.ConstantTimeCompare(stored, challenge[:]) != 1 {
			return nil
		}
		var genErr error
		if token, genErr = randomID16(); genErr != nil {
			return genErr
		}
		tv := tokenValue{CreationMs: nowMs, LastAccessMs: nowMs, ExpirationMs: expirationMs}
		if err := b.Put(keymodel.TokenKey(userPubkey, token), tv.marshal()); err != nil {
			return fmt.Errorf("write token: %w", err)
		}
		if authFlags&constants.OwnerFlag != 0 {
			batch, err := nextMemberBatch(b, serverPubkey, keymodel.GlobalServerID)
			if err != nil {
				return err
			}
			m := MemberRecord{
				UserPubkey: userPubkey, ServerPubkey: serverPubkey, ServerID: keymodel.GlobalServerID,
				AuthFlags: authFlags, JoinTimeMs: nowMs, ModifiedTimeMs: nowMs, BatchNum: batch,
			}
			if err := upsertMember(b, m); err != nil {
				return err
			}
		}
		ok = true
		return nil
	})
	if err != nil {
		return token, false, fmt.Errorf("validate challenge: %w", err)
	}
	return token, ok, nil
}

// IsAuthorized reads the token record, rejecting stale tokens, then requires
// the member's auth_flags to carry requiredFlag.
func (e *Engine) IsAuthorized(userPubkey, serverPubkey [32]byte, token [16]byte, serverID [8]byte, requiredFlag uint64, nowMs uint64) (bool, error) {
	authorized := false
	err := e.store.View(func(b *kvstore.Batch) error {
		v, ok := b.Get(keymodel.TokenKey(userPubkey, token))
		if !ok {
			return nil
		}
		tv, err := unmarshalToken(v)
		if err != nil {
			return fmt.Errorf("decode token: %w", err)
		}
		if nowMs-tv.LastAccessMs > tv.ExpirationMs {
			return nil
		}
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
		return false, fmt.Errorf("is authorized: %w", err)
	}
	return authorized, nil
}

// BootstrapOwner upserts the process's own identity as OWNER|MEMBER in the
// global scope, without going through a challenge — called once at startup
// so the process-local bootstrap token (see MintProcessToken) has a member
// record to authorize against.
func (e *Engine) BootstrapOwner(processPubkey [32]byte, nowMs uint64) error {
	err := e.store.Update(func(b *kvstore.Batch) error {
		batch, err := nextMemberBatch(b, processPubkey, keymodel.GlobalServerID)
		if err != nil {
			return err
		}
		m := MemberRecord{
			UserPubkey: processPubkey, ServerPubkey: processPubkey, ServerID: keymodel.GlobalServerID,
			AuthFlags: constants.OwnerFlag | constants.MemberFlag, JoinTimeMs: nowMs, ModifiedTimeMs: nowMs, BatchNum: batch,
		}
		return upsertMember(b, m)
	})
	if err != nil {
		return fmt.Errorf("bootstrap owner: %w", err)
	}
	return nil
}

// MintProcessToken writes an AuthToken directly for the process's own
// identity, bypassing the challenge/response dance — the token GET /auth
// places in the operator's cookie once the single-use startup token
// (MintBootstrapToken) has been consumed.
func (e *Engine) MintProcessToken(processPubkey [32]byte, expirationMs, nowMs uint64) ([16]byte, error) {
	token, err := randomID16()
	if err != nil {
		return token, err
	}
	tv := tokenValue{CreationMs: nowMs, LastAccessMs: nowMs, ExpirationMs: expirationMs}
	err = e.store.Update(func(b *kvstore.Batch) error {
		return b.Put(keymodel.TokenKey(processPubkey, token), tv.marshal())
	})
	if err != nil {
		return token, fmt.Errorf("mint process token: %w", err)
	}
	return token, nil
}

// PurgeTokens scans the TOKEN prefix and removes every entry whose
// last_access has aged past its expiration.
func (e *Engine) PurgeTokens(nowMs uint64) (int, error) {
	removed := 0
	err := e.store.Update(func(b *kvstore.Batch) error {
		for _, entry := range b.ScanPrefix(keymodel.TokenPrefix()) {
			tv, err := unmarshalToken(entry.Value)
			if err != nil {
				return fmt.Errorf("decode token: %w", err)
			}
			if nowMs-tv.LastAccessMs > tv.ExpirationMs {
				if err := b.Delete(entry.Key); err != nil {
					return fmt.Errorf("purge token: %w", err)
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("purge tokens: %w", err)
	}
	return removed, nil
}
