// Package boltstore provides persistent local state using BoltDB (bbolt).
// It keeps the last known good filtered-users list so a restart does not
// depend on the remote API being reachable.
package boltstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for organizing data
var (
	// BucketFilteredUsers stores globally filtered DIDs keyed by DID
	BucketFilteredUsers = []byte("filtered_users")

	// BucketMeta stores bookkeeping values such as snapshot timestamps
	BucketMeta = []byte("meta")
)

// Store wraps a BoltDB database and provides access to specialized stores.
type Store struct {
	db *bolt.DB
}

// Options configures the BoltDB store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode
}

// DefaultOptions returns sensible defaults for development.
func DefaultOptions() Options {
	return Options{
		Path:     "state.db",
		Timeout:  5 * time.Second,
		FileMode: 0600,
	}
}

// Open creates or opens a BoltDB database at the specified path.
// It creates all necessary buckets if they don't exist.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = "state.db"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}

	// Ensure parent directory exists
	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{BucketFilteredUsers, BucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying BoltDB instance for advanced operations.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// FilteredStore returns the filtered-users snapshot store backed by this database.
func (s *Store) FilteredStore() *FilteredStore {
	return &FilteredStore{db: s.db}
}

// Stats returns database statistics.
func (s *Store) Stats() bolt.Stats {
	return s.db.Stats()
}
