package list

import (
	"context"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/broadcaster/internal/storage"
)

var (
	bucketLists = []byte("lists")
	keyLists    = []byte("broadcastLists")
)

// Store persists the serialized list collection as a single blob
type Store interface {
	// Load returns the stored blob, or nil if nothing was stored yet
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored blob
	Save(ctx context.Context, data []byte) error
}

// BoltStore keeps the collection under one well-known key in BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new list store using the provided BoltDB instance
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	if err := storage.EnsureBuckets(db, bucketLists); err != nil {
		return nil, fmt.Errorf("failed to create lists bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Load returns a copy of the stored blob
func (s *BoltStore) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLists).Get(keyLists)
		if v != nil {
			// Bolt values are only valid inside the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}

// Save overwrites the stored blob
func (s *BoltStore) Save(ctx context.Context, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLists).Put(keyLists, data)
	})
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

// NewMemoryStore creates a store preloaded with data
func NewMemoryStore(data []byte) *MemoryStore {
	return &MemoryStore{data: data}
}

// Load returns the current blob
func (s *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...), nil
}

// Save replaces the blob unless a failure was injected
func (s *MemoryStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data = append([]byte(nil), data...)
	s.saves++
	return nil
}

// Saves returns how many successful saves happened
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// FailWith makes subsequent saves return err (nil restores saving)
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
