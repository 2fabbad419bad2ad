// Package cryptoid is the cryptographic identity collaborator: ed25519
// sign/verify over byte buffers, and the PublicKey <-> onion-v3 address
// encoding. Concord uses a server's ed25519 public key directly as its
// routable identity, the same convention Tor-adjacent anonymous-messaging
// projects in the ecosystem use (cwtch-server, katzenpost-client both
// address peers by an ed25519-derived onion identity).
package cryptoid

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// version is the Tor onion service version byte embedded in the checksum.
const version = 0x03

// GenerateIdentity creates a fresh ed25519 keypair for a process identity.
func GenerateIdentity() (pub [32]byte, priv ed25519.PrivateKey, err error) {
	p, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return pub, nil, fmt.Errorf("generate identity: %w", err)
	}
	copy(pub[:], p)
	return pub, sk, nil
}

// Sign signs message with priv.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Verify reports whether signature is a valid ed25519 signature over
// message under pub.
func Verify(pub [32]byte, message, signature []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, signature)
}

// checksum computes the Tor v3 onion checksum: SHA3-256(".onion checksum" ||
// pubkey || version)[:2].
func checksum(pub [32]byte) [2]byte {
	h := sha3.New256()
	h.Write([]byte(".onion checksum"))
	h.Write(pub[:])
	h.Write([]byte{version})
	sum := h.Sum(nil)
	var out [2]byte
	copy(out[:], sum[:2])
	return out
}

// ToOnion encodes pub as a 56-character onion-v3 address (without the
// ".onion" suffix — callers append it when dialing).
func ToOnion(pub [32]byte) string {
	sum := checksum(pub)
	buf := make([]byte, 0, 35)
	buf = append(buf, pub[:]...)
	buf = append(buf, sum[:]...)
	buf = append(buf, version)
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
}

// ToOnionFQDN encodes pub as a full onion FQDN suitable for OnionDialer.
func ToOnionFQDN(pub [32]byte) string {
	return ToOnion(pub) + ".onion"
}

// FromOnion decodes an onion-v3 address (with or without the ".onion"
// suffix) back to a public key, verifying the embedded checksum.
func FromOnion(addr string) (pub [32]byte, err error) {
	addr = strings.TrimSuffix(strings.ToLower(addr), ".onion")
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(addr))
	if err != nil {
		return pub, fmt.Errorf("decode onion address: %w", err)
	}
	if len(raw) != 35 {
		return pub, fmt.Errorf("decode onion address: unexpected length %d", len(raw))
	}
	copy(pub[:], raw[:32])
	if raw[34] != version {
		return pub, fmt.Errorf("decode onion address: unsupported version %d", raw[34])
	}
	want := checksum(pub)
	if raw[32] != want[0] || raw[33] != want[1] {
		return pub, fmt.Errorf("decode onion address: checksum mismatch")
	}
	return pub, nil
}
