// Package kv implements a sharded in-memory interfaces.Handler: the
// backend is treated as an opaque blocking call with bounded CPU cost,
// and this is one concrete instance of it.
//
// The store is a fixed array of shards, each its own sync.RWMutex plus
// payload map, selected by hashing the key. Put/Get/Delete are
// single-shard operations; Seek and Scan look across shards in sorted
// key order, since a scan or ordered-next lookup cannot be answered
// from a single shard alone.
package kv

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/corelane/usched/internal/interfaces"
)

const defaultShardCount = 64

type shard struct {
	mu sync.RWMutex
	data map[string][]byte
}

// Store is a sharded, in-memory key-value backend implementing
// interfaces.Handler.
type Store struct {
	shards []*shard
	mask uint32
}

// New constructs a Store with shardCount shards, rounded up to the next
// power of two so shard selection can mask instead of mod.
func New(shardCount int) *Store {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	s := &Store{
		shards: make([]*shard, n),
		mask: uint32(n - 1),
	}
	for i := range s.shards {
		s.shards[i] = &shard{data: make(map[string][]byte)}
	}
	return s
}

func (s *Store) shardFor(key []byte) *shard {
	h := fnv.New32a()
	h.Write(key)
	return s.shards[h.Sum32()&s.mask]
}

// Get implements interfaces.Handler.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put implements interfaces.Handler.
func (s *Store) Put(key, value []byte) error {
	sh := s.shardFor(key)
	v := make([]byte, len(value))
	copy(v, value)
	sh.mu.Lock()
	sh.data[string(key)] = v
	sh.mu.Unlock()
	return nil
}

// Delete implements interfaces.Handler.
func (s *Store) Delete(key []byte) (bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, found := sh.data[string(key)]
	delete(sh.data, string(key))
	return found, nil
}

// Seek implements interfaces.Handler: it returns the smallest key
// strictly greater than key, across all shards. Sharding by hash
// destroys any locality a range-partitioned store would have here, so
// this walks every shard under its own RLock in turn — acceptable for
// a reference backend, not a production key index.
func (s *Store) Seek(key []byte) ([]byte, bool, error) {
	target := string(key)
	var best string
	found := false

	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.data {
			if k > target && (!found || k < best) {
				best = k
				found = true
			}
		}
		sh.mu.RUnlock()
	}
	if !found {
		return nil, false, nil
	}
	return []byte(best), true, nil
}

// Scan implements interfaces.Handler: it collects every key with the
// given prefix, up to limit results, calling checkpoint once per shard
// visited so a long scan across many shards gives the preemption
// transport somewhere to land.
func (s *Store) Scan(prefix []byte, limit int, checkpoint func()) ([]interfaces.KVPair, error) {
	p := string(prefix)
	var out []interfaces.KVPair

	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, v := range sh.data {
			if len(p) > 0 && (len(k) < len(p) || k[:len(p)] != p) {
				continue
			}
			val := make([]byte, len(v))
			copy(val, v)
			out = append(out, interfaces.KVPair{Key: []byte(k), Value: val})
		}
		sh.mu.RUnlock()

		if checkpoint != nil {
			checkpoint()
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Key) < string(out[j].Key)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements interfaces.Handler. The in-memory store holds
// nothing that needs releasing.
func (s *Store) Close() error {
	return nil
}
