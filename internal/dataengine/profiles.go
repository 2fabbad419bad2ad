package dataengine

import (
	"fmt"

	"github.com/37miners/concord/internal/keymodel"
	"github.com/37miners/concord/internal/kvstore"
)

// GetProfile returns the stored profile for (userPubkey, serverPubkey,
// serverID), or absent if none has ever been set.
func (e *Engine) GetProfile(userPubkey, serverPubkey [32]byte, serverID [8]byte) (ProfileRecord, bool, error) {
	var rec ProfileRecord
	found := false
	err := e.store.View(func(b *kvstore.Batch) error {
		v, ok := b.Get(keymodel.ProfileKey(userPubkey, serverPubkey, serverID))
		if !ok {
			return nil
		}
		var err error
		if rec, err = unmarshalProfile(v); err != nil {
			return fmt.Errorf("decode profile: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return rec, false, fmt.Errorf("get profile: %w", err)
	}
	return rec, found, nil
}

// SaveProfile writes the full profile record, preserving the previously
// stored avatar when the incoming one is empty (spec.md §3).
func (e *Engine) SaveProfile(userPubkey, serverPubkey [32]byte, serverID [8]byte, avatar []byte, username, bio string) error {
	err := e.store.Update(func(b *kvstore.Batch) error {
		key := keymodel.ProfileKey(userPubkey, serverPubkey, serverID)
		if len(avatar) == 0 {
			if v, ok := b.Get(key); ok {
				if prev, err := unmarshalProfile(v); err == nil {
					avatar = prev.Avatar
				}
			}
		}
		rec := ProfileRecord{UserPubkey: userPubkey, ServerPubkey: serverPubkey, ServerID: serverID, Avatar: avatar, Username: username, Bio: bio}
		return b.Put(key, rec.marshal())
	})
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// SetProfileImage updates only the avatar, preserving an existing stored
// avatar when image is empty.
func (e *Engine) SetProfileImage(userPubkey, serverPubkey [32]byte, serverID [8]byte, image []byte) error {
	err := e.store.Update(func(b *kvstore.Batch) error {
		key := keymodel.ProfileKey(userPubkey, serverPubkey, serverID)
		var rec ProfileRecord
		if v, ok := b.Get(key); ok {
			var err error
			if rec, err = unmarshalProfile(v); err != nil {
				return fmt.Errorf("decode profile: %w", err)
			}
		} else {
			rec = ProfileRecord{UserPubkey: userPubkey, ServerPubkey: serverPubkey, ServerID: serverID}
		}
		if len(image) > 0 {
			rec.Avatar = image
		}
		return b.Put(key, rec.marshal())
	})
	if err != nil {
		return fmt.Errorf("set profile image: %w", err)
	}
	return nil
}

// SetProfileData updates only username/bio.
func (e *Engine) SetProfileData(userPubkey, serverPubkey [32]byte, serverID [8]byte, username, bio string) error {
	err := e.store.Update(func(b *kvstore.Batch) error {
		key := keymodel.ProfileKey(userPubkey, serverPubkey, serverID)
		var rec ProfileRecord
		if v, ok := b.Get(key); ok {
			var err error
			if rec, err = unmarshalProfile(v); err != nil {
				return fmt.Errorf("decode profile: %w", err)
			}
		} else {
			rec = ProfileRecord{UserPubkey: userPubkey, ServerPubkey: serverPubkey, ServerID: serverID}
		}
		rec.Username, rec.Bio = username, bio
		return b.Put(key, rec.marshal())
	})
	if err != nil {
		return fmt.Errorf("set profile data: %w", err)
	}
	return nil
}

// GetProfileImages returns the avatar bytes for each requested (userPubkey,
// serverPubkey, serverID) triple that has one, in the same order as input.
func (e *Engine) GetProfileImages(userPubkeys [][32]byte, serverPubkey [32]byte, serverID [8]byte) ([][]byte, error) {
	out := make([][]byte, len(userPubkeys))
	err := e.store.View(func(b *kvstore.Batch) error {
		for i, up := range userPubkeys {
			if v, ok := b.Get(keymodel.ProfileKey(up, serverPubkey, serverID)); ok {
				p, err := unmarshalProfile(v)
				if err != nil {
					return fmt.Errorf("decode profile: %w", err)
				}
				out[i] = p.Avatar
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get profile images: %w", err)
	}
	return out, nil
}

// GetProfileData returns the (username, bio) pair, or zero values if unset.
func (e *Engine) GetProfileData(userPubkey, serverPubkey [32]byte, serverID [8]byte) (username, bio string, err error) {
	rec, _, err := e.GetProfile(userPubkey, serverPubkey, serverID)
	if err != nil {
		return "", "", err
	}
	return rec.Username, rec.Bio, nil
}
