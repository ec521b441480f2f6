// Package store implements the process-wide, concurrently-shared key/value
// and key/hash backend described in spec's data model: one mapping from
// string key to Frame, and one from string key to an inner field->Frame
// mapping, both safely accessible from many connections at once without a
// single global lock.
//
// The backend is sharded: keys are routed to one of a fixed number of
// independently-locked buckets by an xxhash of the key, so unrelated keys
// almost never contend on the same mutex. This is the "striped/sharded
// concurrent hash map" spec's design notes call out as preferable to a
// naive single-mutex map under load -- adapted here from the single
// sync.RWMutex-guarded map in the teacher's example/memory_kv/server.go.
package store

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/kevlend/respd/pkg/resp"
)

// DefaultShardCount is used by New. Production deployments with many CPUs
// and high key fan-out may want more shards; NewSharded lets callers pick.
const DefaultShardCount = 32

type shard struct {
	mu      sync.RWMutex
	strings map[string]resp.Frame
	hashes  map[string]map[string]resp.Frame
}

// Backend is the shared, reference-counted (via normal Go pointer
// semantics) handle every connection handler operates against. A Backend is
// constructed once at process start and lives for the process lifetime;
// cloning the pointer is the cheap "shared-ownership handle" spec's data
// model calls for -- there is nothing to deep-copy.
type Backend struct {
	shards []*shard
	mask   uint64
}

// New constructs a Backend with DefaultShardCount shards.
func New() *Backend {
	return NewSharded(DefaultShardCount)
}

// NewSharded constructs a Backend with n shards, rounded up to the next
// power of two so shard selection can mask instead of mod. n <= 0 is
// treated as 1 (a single global lock, which spec explicitly permits as a
// "semantically correct but poorly scaling" fallback).
func NewSharded(n int) *Backend {
	if n <= 0 {
		n = 1
	}
	n = nextPowerOfTwo(n)
	b := &Backend{
		shards: make([]*shard, n),
		mask:   uint64(n - 1),
	}
	for i := range b.shards {
		b.shards[i] = &shard{
			strings: make(map[string]resp.Frame),
			hashes:  make(map[string]map[string]resp.Frame),
		}
	}
	return b
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (b *Backend) shardFor(key string) *shard {
	h := xxhash.Sum64String(key)
	return b.shards[h&b.mask]
}

// Get returns a clone of the Frame stored under key, and whether key exists
// at all.
func (b *Backend) Get(key string) (resp.Frame, bool) {
	s := b.shardFor(key)
	s.mu.RLock()
	f, ok := s.strings[key]
	s.mu.RUnlock()
	if !ok {
		return resp.Frame{}, false
	}
	return f.Clone(), true
}

// Set stores value under key, replacing any previous value (of any kind).
func (b *Backend) Set(key string, value resp.Frame) {
	s := b.shardFor(key)
	clone := value.Clone()
	s.mu.Lock()
	s.strings[key] = clone
	s.mu.Unlock()
}

// HGet returns a clone of the Frame stored under field within the hash at
// key. A missing hash behaves identically to a missing field: both report
// ok == false.
func (b *Backend) HGet(key, field string) (resp.Frame, bool) {
	s := b.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[key]
	if !ok {
		return resp.Frame{}, false
	}
	f, ok := h[field]
	if !ok {
		return resp.Frame{}, false
	}
	return f.Clone(), true
}

// HSet stores value under field within the hash at key, creating the hash
// if it does not already exist.
func (b *Backend) HSet(key, field string, value resp.Frame) {
	s := b.shardFor(key)
	clone := value.Clone()
	s.mu.Lock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]resp.Frame)
		s.hashes[key] = h
	}
	h[field] = clone
	s.mu.Unlock()
}

// HashEntry is one field/value pair from a hash snapshot.
type HashEntry struct {
	Field string
	Value resp.Frame
}

// HGetAll takes a point-in-time snapshot of every field in the hash at key.
// The snapshot is taken entirely under the shard's read lock, so concurrent
// mutations during the call are either fully visible or not visible at all
// -- never duplicated or torn. ok is false if the hash does not exist; the
// caller (internal/exec) treats that the same as an empty hash.
//
// When sortKeys is true the returned entries are ordered lexicographically
// by field; this is spec's internal, wire-invisible determinism flag, used
// by tests against the otherwise-unordered Go map.
func (b *Backend) HGetAll(key string, sortKeys bool) ([]HashEntry, bool) {
	s := b.shardFor(key)
	s.mu.RLock()
	h, ok := s.hashes[key]
	if !ok {
		s.mu.RUnlock()
		return nil, false
	}
	entries := make([]HashEntry, 0, len(h))
	for field, value := range h {
		entries = append(entries, HashEntry{Field: field, Value: value.Clone()})
	}
	s.mu.RUnlock()

	if sortKeys {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Field < entries[j].Field })
	}
	return entries, true
}
