package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bboltBucket = []byte("default")

// BboltDB implements DB using bbolt. The plot store uses it for index_map
// and tag_map: both are small, single-writer/many-reader keyed stores
// where bbolt's single-file, ordered-bucket model fits more naturally than
// Badger's LSM tree, which the ledger's larger metablocks/balances store
// uses instead.
type BboltDB struct {
	db *bolt.DB
}

// NewBbolt opens (creating if absent) a bbolt database at path with a
// single default bucket.
func NewBbolt(path string) (*BboltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt database at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bboltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bbolt bucket: %w", err)
	}
	return &BboltDB{db: db}, nil
}

// Get retrieves a value by key. Returns an error if the key does not exist.
func (b *BboltDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bboltBucket).Get(key)
		if v == nil {
			return fmt.Errorf("key not found")
		}
		val = make([]byte, len(v))
		copy(val, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Put stores a key-value pair.
func (b *BboltDB) Put(key, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bboltBucket).Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("bbolt put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (b *BboltDB) Delete(key []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bboltBucket).Delete(key)
	})
	if err != nil {
		return fmt.Errorf("bbolt delete: %w", err)
	}
	return nil
}

// Has checks if a key exists.
func (b *BboltDB) Has(key []byte) (bool, error) {
	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bboltBucket).Get(key) != nil
		return nil
	})
	return exists, err
}

// ForEach iterates over all keys with the given prefix in key order — the
// plot's tag_map range scans depend on bbolt's lexicographic ordering.
func (b *BboltDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bboltBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(append([]byte(nil), k...), append([]byte(nil), v...)); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(key, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(key) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if key[i] != p {
			return false
		}
	}
	return true
}

// Close closes the database.
func (b *BboltDB) Close() error {
	return b.db.Close()
}

// NewBatch returns an atomic batch backed by a single bbolt transaction.
func (b *BboltDB) NewBatch() Batch {
	return &bboltBatch{db: b.db}
}

type bboltBatch struct {
	db  *bolt.DB
	ops []func(tx *bolt.Tx) error
}

func (bb *bboltBatch) Put(key, value []byte) error {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	bb.ops = append(bb.ops, func(tx *bolt.Tx) error {
		return tx.Bucket(bboltBucket).Put(k, v)
	})
	return nil
}

func (bb *bboltBatch) Delete(key []byte) error {
	k := append([]byte(nil), key...)
	bb.ops = append(bb.ops, func(tx *bolt.Tx) error {
		return tx.Bucket(bboltBucket).Delete(k)
	})
	return nil
}

func (bb *bboltBatch) Commit() error {
	err := bb.db.Update(func(tx *bolt.Tx) error {
		for _, op := range bb.ops {
			if err := op(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bbolt batch commit: %w", err)
	}
	return nil
}
