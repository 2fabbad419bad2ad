// Package kvstore is the durable byte-map collaborator the data engine is
// built on: a sorted byte-key/byte-value store with atomic batches and
// prefix iteration. It is backed by go.etcd.io/bbolt, the single-file
// ordered B+tree store used for the same anonymous-messaging shape of
// problem elsewhere in the ecosystem (cwtch-server, katzenpost-client both
// keep peer/channel state in a bbolt-family store).
package kvstore

import (
	"bytes"
	"fmt"
	"os"

	"go.etcd.io/bbolt"
)

// bucketName is the single bucket every prefix-tagged key lives in; the
// prefix byte itself provides the namespacing described in keymodel.
var bucketName = []byte("concord")

// Store wraps one bbolt database file.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the bbolt database at path and ensures the root
// bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open kvstore: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init kvstore bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Batch is one atomic read/write transaction against the store. Callers
// must not retain a Batch or any slice it returns past the call to
// View/Update that produced it — bbolt read slices are only valid for the
// lifetime of the transaction, so Batch methods always copy on read.
type Batch struct {
	tx *bbolt.Tx
}

func (b *Batch) bucket() *bbolt.Bucket {
	return b.tx.Bucket(bucketName)
}

// Get returns a copy of the value at key, or (nil, false) if absent.
func (b *Batch) Get(key []byte) ([]byte, bool) {
	v := b.bucket().Get(key)
	if v == nil {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Put writes key/value, overwriting any existing value.
func (b *Batch) Put(key, value []byte) error {
	return b.bucket().Put(key, value)
}

// Delete removes key. Deleting an absent key is not an error.
func (b *Batch) Delete(key []byte) error {
	return b.bucket().Delete(key)
}

// Entry is one key/value pair returned by a prefix scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// ScanPrefix returns every entry whose key starts with prefix, in
// ascending key order. Composite keys are built (see internal/keymodel)
// so that this ordering is exactly the ordering callers need.
func (b *Batch) ScanPrefix(prefix []byte) []Entry {
	c := b.bucket().Cursor()
	var out []Entry
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		key := make([]byte, len(k))
		copy(key, k)
		val := make([]byte, len(v))
		copy(val, v)
		out = append(out, Entry{Key: key, Value: val})
	}
	return out
}

// View runs fn in a read-only transaction. The returned error (if any) is
// propagated unchanged; View never partially applies writes because fn may
// not write.
func (s *Store) View(fn func(b *Batch) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&Batch{tx: tx})
	})
}

// Update runs fn in a read-write transaction that commits atomically on a
// nil return and rolls back entirely on a non-nil return — the "one batch,
// atomic commit, no partial effect" contract every DataEngine operation
// relies on.
func (s *Store) Update(fn func(b *Batch) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&Batch{tx: tx})
	})
}

// Backup writes a consistent snapshot of the whole database to outPath,
// taken inside a read-only transaction so it never blocks concurrent
// writers for longer than the copy itself.
func (s *Store) Backup(outPath string) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create backup file: %w", err)
		}
		defer f.Close()
		if _, err := tx.WriteTo(f); err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
		return nil
	})
}
