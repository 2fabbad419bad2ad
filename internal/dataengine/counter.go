package dataengine

import (
	"encoding/binary"
	"fmt"

	"github.com/37miners/concord/internal/kvstore"
)

// readCounter loads a bare big-endian u64 counter, defaulting to 0 when key
// is absent.
func readCounter(b *kvstore.Batch, key []byte) (uint64, error) {
	v, ok := b.Get(key)
	if !ok {
		return 0, nil
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("dataengine: malformed counter at key (%d bytes)", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

func writeCounter(b *kvstore.Batch, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return b.Put(key, buf)
}
