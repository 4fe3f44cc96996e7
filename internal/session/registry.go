// File: internal/session/registry.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Identity registry: the authoritative identity -> session binding
// used for message routing. One RWMutex keeps lookups parallel and
// mutations exclusive; all mutation happens on worker goroutines.

package session

import (
	"sync"

	"github.com/momentics/hioload-chat/api"
)

// DuplicatePolicy selects how Register treats an identity that is
// already bound.
type DuplicatePolicy int

const (
	// DuplicateReject refuses the new login.
	DuplicateReject DuplicatePolicy = iota
	// DuplicateEvict replaces the binding and reports the evicted
	// session so the caller can disconnect it.
	DuplicateEvict
)

// ParseDuplicatePolicy maps a config string to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, bool) {
	switch s {
	case "", "reject":
		return DuplicateReject, true
	case "evict":
		return DuplicateEvict, true
	}
	return DuplicateReject, false
}

// Registry implements api.Registry. The bySession reverse index lets
// disconnect cleanup unbind by session ID without scanning.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]uint64
	bySession  map[uint64]string
	policy     DuplicatePolicy
}

var _ api.Registry = (*Registry)(nil)

// NewRegistry creates an empty registry with the given policy.
func NewRegistry(policy DuplicatePolicy) *Registry {
	return &Registry{
		byIdentity: make(map[string]uint64),
		bySession:  make(map[uint64]string),
		policy:     policy,
	}
}

// Register binds identity to sessionID. With DuplicateReject a taken
// identity returns api.ErrDuplicateIdentity; with DuplicateEvict the
// prior session ID is returned as evicted and the binding replaced.
func (r *Registry) Register(identity string, sessionID uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, taken := r.byIdentity[identity]
	if taken {
		if r.policy == DuplicateReject {
			return 0, api.ErrDuplicateIdentity
		}
		if prev == sessionID {
			return 0, nil
		}
		delete(r.bySession, prev)
		r.byIdentity[identity] = sessionID
		r.bySession[sessionID] = identity
		return prev, nil
	}
	r.byIdentity[identity] = sessionID
	r.bySession[sessionID] = identity
	return 0, nil
}

// Unregister removes the binding only if it still points at sessionID.
// The guard keeps a crashed late unbind from tearing down a binding
// that eviction already handed to a newer session.
func (r *Registry) Unregister(identity string, sessionID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byIdentity[identity]; ok && cur == sessionID {
		delete(r.byIdentity, identity)
		delete(r.bySession, sessionID)
		return true
	}
	return false
}

// UnregisterSession drops whatever identity sessionID holds, returning
// it. An evicted session no longer appears in the reverse index, so a
// late unbind after eviction is a safe no-op.
func (r *Registry) UnregisterSession(sessionID uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.bySession[sessionID]
	if !ok {
		return "", false
	}
	delete(r.bySession, sessionID)
	delete(r.byIdentity, identity)
	return identity, true
}

// Lookup resolves an identity to its session ID.
func (r *Registry) Lookup(identity string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byIdentity[identity]
	return sid, ok
}

// Snapshot copies all bound session IDs at one point in time.
// Broadcast iterates the copy, so sessions joining or leaving during
// the fan-out are unaffected.
func (r *Registry) Snapshot() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.byIdentity))
	for _, sid := range r.byIdentity {
		ids = append(ids, sid)
	}
	return ids
}

// Len returns the number of bound identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
