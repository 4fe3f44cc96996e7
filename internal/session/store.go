// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe session table for high concurrency.

package session

import "sync"

// Table stores live sessions sharded by ID. Session IDs are handed
// out sequentially, so masking the ID spreads neighbors across shards
// without hashing.
type Table struct {
	shards []*tableShard
	mask   uint64
}

type tableShard struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
}

// NewTable constructs a table with shardCount shards, rounded up to a
// power of two for bitmasking.
func NewTable(shardCount int) *Table {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*tableShard, m)
	for i := range shards {
		shards[i] = &tableShard{sessions: make(map[uint64]*Session)}
	}
	return &Table{shards: shards, mask: uint64(m - 1)}
}

// shard picks the shard for a given session ID.
func (t *Table) shard(id uint64) *tableShard {
	return t.shards[id&t.mask]
}

// Add inserts a session.
func (t *Table) Add(s *Session) {
	sh := t.shard(s.ID())
	sh.mu.Lock()
	sh.sessions[s.ID()] = s
	sh.mu.Unlock()
}

// Get fetches a session if present.
func (t *Table) Get(id uint64) (*Session, bool) {
	sh := t.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Remove deletes a session, reporting whether it was present.
func (t *Table) Remove(id uint64) bool {
	sh := t.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; !ok {
		return false
	}
	delete(sh.sessions, id)
	return true
}

// Range applies fn to all sessions. fn must not call back into the
// table for the same shard.
func (t *Table) Range(fn func(*Session)) {
	for _, sh := range t.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			fn(s)
		}
		sh.mu.RUnlock()
	}
}

// Len returns the number of stored sessions.
func (t *Table) Len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
