// Package cache keeps completed portal searches on disk so an interrupted run
// can resume without repeating them.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"crossref/internal/logging"
	"crossref/internal/types"
)

const queryPrefix = "q:"

type entry struct {
	StoredAt time.Time          `json:"stored_at"`
	Result   types.OnlineResult `json:"result"`
}

// Store is a leveldb-backed query -> result cache with a TTL.
type Store struct {
	db  *leveldb.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens (or creates) the cache at path.
func Open(path string, ttl time.Duration) (*Store, error) {
	const op = "cache.Open"

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(query string) []byte {
	return []byte(queryPrefix + strings.ToLower(strings.Join(strings.Fields(query), " ")))
}

// Get returns a cached result for query if present and not expired.
func (s *Store) Get(query string) (*types.OnlineResult, bool) {
	data, err := s.db.Get(key(query), nil)
	if err != nil {
		if !errors.Is(err, leveldb.ErrNotFound) {
			logging.CacheWarn("get %q: %v", query, err)
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		logging.CacheWarn("corrupt entry for %q: %v", query, err)
		return nil, false
	}
	if s.ttl > 0 && s.now().Sub(e.StoredAt) > s.ttl {
		logging.CacheDebug("expired %q", query)
		return nil, false
	}

	res := e.Result
	res.Cached = true
	logging.CacheDebug("hit %q (%d results)", query, res.TotalResults)
	return &res, true
}

// Put stores a completed search. Incomplete searches are not cached.
func (s *Store) Put(query string, res types.OnlineResult) error {
	if !res.Status.Completed() {
		return nil
	}
	res.Cached = false
	data, err := json.Marshal(entry{StoredAt: s.now(), Result: res})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.db.Put(key(query), data, nil); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *Store) Purge() (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(queryPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	removed := 0
	for iter.Next() {
		var e entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil || (s.ttl > 0 && s.now().Sub(e.StoredAt) > s.ttl) {
			batch.Delete(append([]byte(nil), iter.Key()...))
			removed++
		}
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iterate cache: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return removed, nil
}
