// Package boltstore provides a storage.Backend persisted in a BBolt database file.
package boltstore

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-stitch-auth/storage"
	"go.etcd.io/bbolt"
)

// DefaultBucket holds every key when no bucket is configured.
const DefaultBucket = "stitch_auth"

var _ storage.Backend = (*Backend)(nil)

// Backend stores keys in a single bucket of a BBolt database.
type Backend struct {
	db     *bbolt.DB
	bucket []byte
}

// New returns a Backend using bucket inside db, creating the bucket if needed.
func New(db *bbolt.DB, bucket string) (*Backend, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	b := &Backend{db: db, bucket: []byte(bucket)}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b.bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	return b, nil
}

// NewFromFile opens a BBolt database at path and returns a Backend on the default bucket.
func NewFromFile(path string, options *bbolt.Options) (*Backend, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	b, err := New(db, DefaultBucket)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the underlying BBolt database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Get(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		// data is only valid for the life of the transaction
		value, found = string(data), true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (b *Backend) Remove(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}
