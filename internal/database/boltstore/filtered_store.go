package boltstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var keyFilteredUpdatedAt = []byte("filtered_users_updated_at")

// FilteredUser is one entry of the filtered-users snapshot.
type FilteredUser struct {
	DID     string    `json:"did"`
	AddedAt time.Time `json:"added_at"`
}

// FilteredStore persists the most recent filtered-users list.
type FilteredStore struct {
	db *bolt.DB
}

// Save replaces the snapshot with dids, stamped with updatedAt, in one
// transaction. Entries that were already present keep their AddedAt.
func (s *FilteredStore) Save(dids []string, updatedAt time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketFilteredUsers)
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}

		keep := make(map[string]struct{}, len(dids))
		for _, did := range dids {
			keep[did] = struct{}{}
		}

		// Collect stale keys first; deleting while iterating skips entries.
		var stale [][]byte
		err := bucket.ForEach(func(k, _ []byte) error {
			if _, ok := keep[string(k)]; !ok {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		for did := range keep {
			if bucket.Get([]byte(did)) != nil {
				continue
			}
			data, err := json.Marshal(FilteredUser{DID: did, AddedAt: updatedAt})
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(did), data); err != nil {
				return err
			}
		}

		ts, err := updatedAt.UTC().MarshalText()
		if err != nil {
			return err
		}
		return tx.Bucket(BucketMeta).Put(keyFilteredUpdatedAt, ts)
	})
}

// Load returns the snapshot and the time it was saved. An empty store
// returns no DIDs and the zero time.
func (s *FilteredStore) Load() ([]string, time.Time, error) {
	var (
		dids      []string
		updatedAt time.Time
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketFilteredUsers)
		if bucket == nil {
			return nil
		}
		if err := bucket.ForEach(func(k, _ []byte) error {
			dids = append(dids, string(k))
			return nil
		}); err != nil {
			return err
		}

		if ts := tx.Bucket(BucketMeta).Get(keyFilteredUpdatedAt); ts != nil {
			if err := updatedAt.UnmarshalText(ts); err != nil {
				return fmt.Errorf("decode snapshot timestamp: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	return dids, updatedAt, nil
}

// ListWithMetadata returns all stored users with their metadata.
func (s *FilteredStore) ListWithMetadata() []FilteredUser {
	var users []FilteredUser

	s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketFilteredUsers)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var user FilteredUser
			if err := json.Unmarshal(v, &user); err != nil {
				// Fallback for simple keys without metadata
				user = FilteredUser{DID: string(k)}
			}
			users = append(users, user)
			return nil
		})
	})

	return users
}

// Count returns the number of stored users.
func (s *FilteredStore) Count() int {
	var count int

	s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketFilteredUsers)
		if bucket == nil {
			return nil
		}

		count = bucket.Stats().KeyN
		return nil
	})

	return count
}
