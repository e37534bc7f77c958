// Package store keeps the chat history: an in-memory ordered cache backed by
// an append-only badger log. The cache is the serving copy; the log exists so
// history survives a restart.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"parley/internal/types"
)

// ErrPersistence wraps any durable-append failure. The message is still
// cached and broadcast; the durable log is stale until the operator
// reconciles.
var ErrPersistence = errors.New("message persistence failed")

var msgPrefix = []byte("msg/")

type Store struct {
	mu    sync.Mutex
	db    *badger.DB
	cache []types.Message
	seq   uint64
	log   *slog.Logger

	lag atomic.Int64
}

// Open loads the durable log into memory. A missing or empty log is a fresh
// install, not an error; an unopenable one is fatal to startup.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open message log at %s: %w", path, err)
	}

	s := &Store{db: db, log: log}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load message log: %w", err)
	}
	s.log.Info("message log loaded", "messages", len(s.cache))
	return s, nil
}

func (s *Store) load() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(msgPrefix); it.ValidForPrefix(msgPrefix); it.Next() {
			item := it.Item()
			var msg types.Message
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return fmt.Errorf("decode entry %x: %w", item.Key(), err)
			}
			s.cache = append(s.cache, msg)
			s.seq = binary.BigEndian.Uint64(item.Key()[len(msgPrefix):])
		}
		return nil
	})
}

// Append adds the message to the cache and the durable log. The in-memory
// addition always happens; a durable write failure is returned (wrapping
// ErrPersistence) so the caller can report it, and the message remains
// cached. Appends serialize on the store lock, which also makes CreatedAt
// non-decreasing across the sequence: a timestamp older than the previous
// entry is clamped, so ties break by insertion order.
func (s *Store) Append(msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.cache); n > 0 && msg.CreatedAt.Before(s.cache[n-1].CreatedAt) {
		msg.CreatedAt = s.cache[n-1].CreatedAt
	}
	s.seq++
	s.cache = append(s.cache, *msg)

	val, err := json.Marshal(msg)
	if err == nil {
		key := make([]byte, len(msgPrefix)+8)
		copy(key, msgPrefix)
		binary.BigEndian.PutUint64(key[len(msgPrefix):], s.seq)
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, val)
		})
	}
	if err != nil {
		s.lag.Add(1)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// All returns a snapshot of the ordered message sequence. It reflects every
// cached append, including ones whose durable write failed.
func (s *Store) All() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.cache))
	copy(out, s.cache)
	return out
}

// Len reports the cached message count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// Lag reports how many appends are missing from the durable log.
func (s *Store) Lag() int64 {
	return s.lag.Load()
}

func (s *Store) Close() error {
	return s.db.Close()
}
