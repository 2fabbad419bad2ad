package dataengine

import (
	"fmt"

	"github.com/37miners/concord/internal/keymodel"
	"github.com/37miners/concord/internal/kvstore"
)

// MintBootstrapToken stores a single-use web bootstrap token, distinct from
// the websocket AuthToken index — it backs the operator-facing GET /auth
// cookie endpoint (spec.md §6) and is consumed on first use.
func (e *Engine) MintBootstrapToken() ([16]byte, error) {
	token, err := randomID16()
	if err != nil {
		return token, err
	}
	err = e.store.Update(func(b *kvstore.Batch) error {
		return b.Put(keymodel.StoredAuthTokenKey(token), []byte{1})
	})
	if err != nil {
		return token, fmt.Errorf("mint bootstrap token: %w", err)
	}
	return token, nil
}

// ConsumeBootstrapToken reports whether token matches an unconsumed
// bootstrap token, deleting it on success so it cannot be replayed.
func (e *Engine) ConsumeBootstrapToken(token [16]byte) (bool, error) {
	matched := false
	err := e.store.Update(func(b *kvstore.Batch) error {
		key := keymodel.StoredAuthTokenKey(token)
		if _, ok := b.Get(key); !ok {
			return nil
		}
		if err := b.Delete(key); err != nil {
			return fmt.Errorf("consume bootstrap token: %w", err)
		}
		matched = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("consume bootstrap token: %w", err)
	}
	return matched, nil
}
