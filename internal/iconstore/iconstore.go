// Package iconstore persists server icons to the local filesystem, the one
// piece of durable Concord state spec.md places outside the KVStore:
// "Server icons live at <root>/www/images/user_images/servers-<b58(server_id)>-<b58(pubkey)>".
package iconstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcutil/base58"
)

// Store roots every icon under <rootDir>/www/images/user_images.
type Store struct {
	dir string
}

// New wraps the Concord root data directory.
func New(rootDir string) *Store {
	return &Store{dir: filepath.Join(rootDir, "www", "images", "user_images")}
}

func (s *Store) path(serverID [8]byte, serverPubkey [32]byte) string {
	name := fmt.Sprintf("servers-%s-%s", base58.Encode(serverID[:]), base58.Encode(serverPubkey[:]))
	return filepath.Join(s.dir, name)
}

// Write stores icon bytes for (serverID, serverPubkey), creating the
// user_images directory on first use. An empty icon deletes any existing
// file rather than writing a zero-byte one.
func (s *Store) Write(serverID [8]byte, serverPubkey [32]byte, icon []byte) error {
	if len(icon) == 0 {
		return s.Delete(serverID, serverPubkey)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create icon dir: %w", err)
	}
	if err := os.WriteFile(s.path(serverID, serverPubkey), icon, 0o644); err != nil {
		return fmt.Errorf("write icon: %w", err)
	}
	return nil
}

// Read returns the icon bytes for (serverID, serverPubkey), or found=false
// if none has been set.
func (s *Store) Read(serverID [8]byte, serverPubkey [32]byte) (icon []byte, found bool, err error) {
	icon, err = os.ReadFile(s.path(serverID, serverPubkey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read icon: %w", err)
	}
	return icon, true, nil
}

// Delete removes a server's icon file, if any. Idempotent.
func (s *Store) Delete(serverID [8]byte, serverPubkey [32]byte) error {
	if err := os.Remove(s.path(serverID, serverPubkey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete icon: %w", err)
	}
	return nil
}
