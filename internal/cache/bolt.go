package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/utafrali/searchandising/internal/filter"
)

var (
	bucketQueries = []byte("queries")
	bucketTags    = []byte("tags")
)

// BoltTier stores compiled queries in a local bbolt file, for CLI runs that
// have no Redis. Each tag is a nested bucket listing the keys carrying it.
type BoltTier struct {
	db *bbolt.DB
}

// OpenBoltTier opens or creates the cache file at path.
func OpenBoltTier(path string) (*BoltTier, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketQueries, bucketTags} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltTier{db: db}, nil
}

// Close closes the underlying file.
func (t *BoltTier) Close() error {
	return t.db.Close()
}

// Get reads one compiled query.
func (t *BoltTier) Get(_ context.Context, key string) (filter.Compiled, bool, error) {
	var (
		value filter.Compiled
		found bool
	)
	err := t.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketQueries).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &value)
	})
	if err != nil {
		return filter.Compiled{}, false, fmt.Errorf("read cached query: %w", err)
	}
	return value, found, nil
}

// Set writes one compiled query and registers it under its tags.
func (t *BoltTier) Set(_ context.Context, key string, value filter.Compiled, tags []string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached query: %w", err)
	}

	return t.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketQueries).Put([]byte(key), data); err != nil {
			return err
		}
		tagRoot := tx.Bucket(bucketTags)
		for _, tag := range tags {
			tb, err := tagRoot.CreateBucketIfNotExists([]byte(tag))
			if err != nil {
				return fmt.Errorf("create tag bucket %s: %w", tag, err)
			}
			if err := tb.Put([]byte(key), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}

// InvalidateTags deletes every query registered under tags, and the tags.
func (t *BoltTier) InvalidateTags(_ context.Context, tags ...string) error {
	return t.db.Update(func(tx *bbolt.Tx) error {
		queries := tx.Bucket(bucketQueries)
		tagRoot := tx.Bucket(bucketTags)
		for _, tag := range tags {
			tb := tagRoot.Bucket([]byte(tag))
			if tb == nil {
				continue
			}
			err := tb.ForEach(func(k, _ []byte) error {
				return queries.Delete(k)
			})
			if err != nil {
				return err
			}
			if err := tagRoot.DeleteBucket([]byte(tag)); err != nil {
				return fmt.Errorf("delete tag bucket %s: %w", tag, err)
			}
		}
		return nil
	})
}
