package httpapi

import (
	"encoding/base64"
	"fmt"
	"math/big"
)

// decodeB64 decodes a URL-safe, unpadded base64 query parameter into
// exactly wantLen bytes (spec.md §6's "url(b64(...))" encoding).
func decodeB64(s string, wantLen int) ([]byte, error) {
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) != wantLen {
		return nil, fmt.Errorf("decode base64: expected %d bytes, got %d", wantLen, len(raw))
	}
	return raw, nil
}

func encodeB64(b []byte) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b)
}

func parsePubkey(s string) (pub [32]byte, err error) {
	raw, err := decodeB64(s, 32)
	if err != nil {
		return pub, err
	}
	copy(pub[:], raw)
	return pub, nil
}

func parseChallenge(s string) (c [8]byte, err error) {
	raw, err := decodeB64(s, 8)
	if err != nil {
		return c, err
	}
	copy(c[:], raw)
	return c, nil
}

func parseSignature(s string) ([]byte, error) {
	return decodeB64(s, 64)
}

// parseID16Decimal parses a 128-bit id rendered in decimal — the same
// convention authengine's connIDMessage uses for the signed challenge
// string, reused here for tokens and invite ids exchanged over HTTP.
func parseID16Decimal(s string) (id [16]byte, err error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return id, fmt.Errorf("parse decimal id: invalid value %q", s)
	}
	raw := n.Bytes()
	if len(raw) > 16 {
		return id, fmt.Errorf("parse decimal id: value too large")
	}
	copy(id[16-len(raw):], raw)
	return id, nil
}

func id16ToDecimal(id [16]byte) string {
	return new(big.Int).SetBytes(id[:]).String()
}

func parseID16B64(s string) (id [16]byte, err error) {
	raw, err := decodeB64(s, 16)
	if err != nil {
		return id, err
	}
	copy(id[:], raw)
	return id, nil
}
