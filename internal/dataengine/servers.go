package dataengine

import (
	"crypto/rand"
	"fmt"

	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/keymodel"
	"github.com/37miners/concord/internal/kvstore"
)

func randomServerID() ([8]byte, error) {
	var id [8]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generate server id: %w", err)
	}
	return id, nil
}

// GetServers returns every joined server hosted under serverPubkey, with
// icon bytes resolved from the filesystem store when one is configured.
func (e *Engine) GetServers(serverPubkey [32]byte) ([]ServerRecord, error) {
	var out []ServerRecord
	err := e.store.View(func(b *kvstore.Batch) error {
		for _, entry := range b.ScanPrefix(keymodel.ServerPrefix(serverPubkey)) {
			s, err := unmarshalServer(entry.Value)
			if err != nil {
				return fmt.Errorf("decode server: %w", err)
			}
			if s.Joined {
				out = append(out, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get servers: %w", err)
	}
	if e.icons != nil {
		for i := range out {
			if icon, found, err := e.icons.Read(out[i].ServerID, out[i].ServerPubkey); err == nil && found {
				out[i].Icon = icon
			}
		}
	}
	return out, nil
}

// GetServerIcon resolves a single server's icon bytes, preferring the
// filesystem store when configured over whatever is inline in the record.
func (e *Engine) GetServerIcon(serverPubkey [32]byte, serverID [8]byte) ([]byte, bool, error) {
	if e.icons != nil {
		return e.icons.Read(serverID, serverPubkey)
	}
	var icon []byte
	found := false
	err := e.store.View(func(b *kvstore.Batch) error {
		v, ok := b.Get(keymodel.ServerKey(serverPubkey, serverID))
		if !ok {
			return nil
		}
		rec, err := unmarshalServer(v)
		if err != nil {
			return fmt.Errorf("decode server: %w", err)
		}
		icon, found = rec.Icon, len(rec.Icon) > 0
		return nil
	})
	return icon, found, err
}

// storeIcon routes icon bytes to the filesystem store when one is
// configured, returning the bytes that should still be written inline (nil
// once the filesystem owns them).
func (e *Engine) storeIcon(serverID [8]byte, serverPubkey [32]byte, icon []byte) ([]byte, error) {
	if e.icons == nil {
		return icon, nil
	}
	if err := e.icons.Write(serverID, serverPubkey, icon); err != nil {
		return nil, err
	}
	return nil, nil
}

// AddServer creates a server namespace and upserts the owner's membership.
// When serverID is nil, a fresh random id is sampled. remote distinguishes a
// locally created server (owner gets OWNER|MEMBER) from one joined through
// federation (owner gets MEMBER only, per spec.md §4.3).
func (e *Engine) AddServer(serverPubkey [32]byte, name string, icon []byte, serverID *[8]byte, ownerPubkey [32]byte, remote bool, nowMs uint64) ([8]byte, error) {
	var id [8]byte
	var err error
	if serverID != nil {
		id = *serverID
	} else if id, err = randomServerID(); err != nil {
		return id, err
	}

	inlineIcon, err := e.storeIcon(id, serverPubkey, icon)
	if err != nil {
		return id, fmt.Errorf("add server: %w", err)
	}

	err = e.store.Update(func(b *kvstore.Batch) error {
		rec := ServerRecord{ServerID: id, ServerPubkey: serverPubkey, Name: name, Icon: inlineIcon, Joined: true, Remote: remote}
		if err := b.Put(keymodel.ServerKey(serverPubkey, id), rec.marshal()); err != nil {
			return fmt.Errorf("write server: %w", err)
		}

		flags := constants.MemberFlag
		if !remote {
			flags |= constants.OwnerFlag
		}
		batch, err := nextMemberBatch(b, serverPubkey, id)
		if err != nil {
			return err
		}
		m := MemberRecord{
			UserPubkey: ownerPubkey, ServerPubkey: serverPubkey, ServerID: id,
			AuthFlags: flags, JoinTimeMs: nowMs, ModifiedTimeMs: nowMs, BatchNum: batch,
		}
		if err := upsertMember(b, m); err != nil {
			return err
		}

		// Attach the existing global profile, if any, to this new scope.
		if v, ok := b.Get(keymodel.ProfileKey(ownerPubkey, serverPubkey, keymodel.GlobalServerID)); ok {
			p, err := unmarshalProfile(v)
			if err != nil {
				return fmt.Errorf("decode global profile: %w", err)
			}
			p.ServerID = id
			if err := b.Put(keymodel.ProfileKey(ownerPubkey, serverPubkey, id), p.marshal()); err != nil {
				return fmt.Errorf("attach profile to new server: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return id, fmt.Errorf("add server: %w", err)
	}
	return id, nil
}

// DeleteServer removes a server's record. Idempotent.
func (e *Engine) DeleteServer(serverPubkey [32]byte, serverID [8]byte) error {
	err := e.store.Update(func(b *kvstore.Batch) error {
		return b.Delete(keymodel.ServerKey(serverPubkey, serverID))
	})
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	return nil
}

// ModifyServer updates name and/or icon in place.
func (e *Engine) ModifyServer(serverPubkey [32]byte, serverID [8]byte, name *string, icon []byte, iconSet bool) error {
	var inlineIcon []byte
	var err error
	if iconSet {
		if inlineIcon, err = e.storeIcon(serverID, serverPubkey, icon); err != nil {
			return fmt.Errorf("modify server: %w", err)
		}
	}

	err = e.store.Update(func(b *kvstore.Batch) error {
		key := keymodel.ServerKey(serverPubkey, serverID)
		v, ok := b.Get(key)
		if !ok {
			return ErrServerNotFound
		}
		rec, err := unmarshalServer(v)
		if err != nil {
			return fmt.Errorf("decode server: %w", err)
		}
		if name != nil {
			rec.Name = *name
		}
		if iconSet {
			rec.Icon = inlineIcon
		}
		return b.Put(key, rec.marshal())
	})
	if err != nil {
		return fmt.Errorf("modify server: %w", err)
	}
	return nil
}

// AddRemoteServer installs a server mirrored from a federation peer: its
// channels and members are inserted transactionally before the server
// record itself is written (spec.md §4.3).
func (e *Engine) AddRemoteServer(serverPubkey [32]byte, serverID [8]byte, name string, icon []byte, channels []ChannelRecord, members []MemberRecord) error {
	inlineIcon, err := e.storeIcon(serverID, serverPubkey, icon)
	if err != nil {
		return fmt.Errorf("add remote server: %w", err)
	}

	err = e.store.Update(func(b *kvstore.Batch) error {
		for _, c := range channels {
			c.ServerPubkey, c.ServerID = serverPubkey, serverID
			if err := b.Put(keymodel.ChannelKey(serverPubkey, serverID, c.ChannelID), c.marshal()); err != nil {
				return fmt.Errorf("write mirrored channel: %w", err)
			}
		}
		for _, m := range members {
			m.ServerPubkey, m.ServerID = serverPubkey, serverID
			batch, err := nextMemberBatch(b, serverPubkey, serverID)
			if err != nil {
				return err
			}
			m.BatchNum = batch
			if err := upsertMember(b, m); err != nil {
				return fmt.Errorf("write mirrored member: %w", err)
			}
		}
		rec := ServerRecord{ServerID: serverID, ServerPubkey: serverPubkey, Name: name, Icon: inlineIcon, Joined: true, Remote: true}
		return b.Put(keymodel.ServerKey(serverPubkey, serverID), rec.marshal())
	})
	if err != nil {
		return fmt.Errorf("add remote server: %w", err)
	}
	return nil
}
