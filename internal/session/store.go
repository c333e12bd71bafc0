// internal/session/store.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/Annany2002/dataspace-backend/internal/logger"
	"github.com/Annany2002/dataspace-backend/internal/metrics"
)

var (
	customLog = logger.NewLogger()
)

// Store maps user ids to their session state.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{states: make(map[string]*State), now: time.Now}
}

// WithClock replaces the time source and returns the store.
func (st *Store) WithClock(now func() time.Time) *Store {
	st.now = now
	return st
}

// Get returns the state for userID, creating it on first use, and marks it accessed.
func (st *Store) Get(userID string) *State {
	st.mu.RLock()
	s, ok := st.states[userID]
	st.mu.RUnlock()
	if ok {
		s.touch()
		return s
	}

	st.mu.Lock()
	s, ok = st.states[userID]
	if !ok {
		s = newState(userID, st.now)
		st.states[userID] = s
	}
	n := len(st.states)
	st.mu.Unlock()

	if !ok {
		metrics.SetActiveSessions(n)
	}
	s.touch()
	return s
}

// Peek returns the state without creating or touching it.
func (st *Store) Peek(userID string) (*State, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.states[userID]
	return s, ok
}

// Clear disconnects and forgets the state for userID. Missing users are a no-op.
func (st *Store) Clear(userID string) {
	st.mu.Lock()
	s, ok := st.states[userID]
	delete(st.states, userID)
	n := len(st.states)
	st.mu.Unlock()

	if ok {
		s.Disconnect()
		customLog.Printf("Session[%s]: cleared", userID)
	}
	metrics.SetActiveSessions(n)
}

// SweepIdle clears sessions not accessed within maxIdle and returns how many.
func (st *Store) SweepIdle(maxIdle time.Duration) int {
	cutoff := st.now().Add(-maxIdle)

	st.mu.Lock()
	idle := make([]*State, 0)
	for id, s := range st.states {
		if s.LastAccess().Before(cutoff) {
			idle = append(idle, s)
			delete(st.states, id)
		}
	}
	n := len(st.states)
	st.mu.Unlock()

	for _, s := range idle {
		s.Disconnect()
		customLog.Printf("Session[%s]: expired after %v idle", s.UserID(), maxIdle)
	}
	metrics.SetActiveSessions(n)
	return len(idle)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.states)
}

// Run sweeps idle sessions every interval until ctx is done, then clears all.
func (st *Store) Run(ctx context.Context, every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			st.ClearAll()
			return
		case <-ticker.C:
			st.SweepIdle(maxIdle)
		}
	}
}

// ClearAll disconnects every session.
func (st *Store) ClearAll() {
	st.mu.Lock()
	all := st.states
	st.states = make(map[string]*State)
	st.mu.Unlock()

	for _, s := range all {
		s.Disconnect()
	}
	metrics.SetActiveSessions(0)
}
