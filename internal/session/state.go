// internal/session/state.go
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Annany2002/dataspace-backend/internal/connection"
	"github.com/Annany2002/dataspace-backend/internal/domain"
)

// ErrPreloadSuperseded finishes a preload job whose result was discarded
// because the session was cleared or another job replaced it.
var ErrPreloadSuperseded = errors.New("preload superseded")

// TableHandle pairs the cleaned working copy of a table with its original.
type TableHandle struct {
	Name     string
	Working  *domain.Table
	Original *domain.Table
}

// PreloadFunc opens an engine and loads tables for a session.
type PreloadFunc func(ctx context.Context) (*connection.Engine, []TableHandle, error)

// State is one user's workspace: at most one live engine and the loaded
// tables in load order. All mutations are serialized by the state's mutex.
type State struct {
	mu            sync.Mutex
	userID        string
	engine        *connection.Engine
	tables        []TableHandle
	lastAccess    time.Time
	job           *PreloadJob
	cancelPreload context.CancelFunc
	now           func() time.Time
}

func newState(userID string, now func() time.Time) *State {
	return &State{userID: userID, lastAccess: now(), now: now}
}

// UserID returns the owning account id.
func (s *State) UserID() string {
	return s.userID
}

func (s *State) touch() {
	s.mu.Lock()
	s.lastAccess = s.now()
	s.mu.Unlock()
}

// LastAccess returns when the state was last fetched from the store.
func (s *State) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Engine returns the live engine or nil.
func (s *State) Engine() *connection.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// SetEngine installs e. A previous, different engine is closed and the
// tables loaded through it are dropped. A running preload is cancelled so
// it cannot overwrite e.
func (s *State) SetEngine(e *connection.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelPreload != nil {
		s.cancelPreload()
		s.cancelPreload = nil
	}
	s.setEngineLocked(e)
}

func (s *State) setEngineLocked(e *connection.Engine) {
	prev := s.engine
	s.engine = e
	if prev != nil && prev != e {
		s.tables = nil
		if err := prev.Close(); err != nil {
			customLog.Warnf("Session[%s]: failed to dispose previous engine: %v", s.userID, err)
		}
	}
}

// ReplaceTablesFor installs handles only while e is still the session's
// engine. It reports false when the engine was swapped or disconnected
// after the tables were fetched through e.
func (s *State) ReplaceTablesFor(e *connection.Engine, handles []TableHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e == nil || s.engine != e {
		return false
	}
	s.tables = append([]TableHandle(nil), handles...)
	return true
}

// SetEngineWithTables installs e together with the tables loaded through
// it. The previous engine is closed as in SetEngine.
func (s *State) SetEngineWithTables(e *connection.Engine, handles []TableHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelPreload != nil {
		s.cancelPreload()
		s.cancelPreload = nil
	}
	s.setEngineLocked(e)
	s.tables = append([]TableHandle(nil), handles...)
}

// RemoveTable drops the handle named name, reporting whether it existed.
func (s *State) RemoveTable(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tables {
		if s.tables[i].Name == name {
			s.tables = append(s.tables[:i], s.tables[i+1:]...)
			return true
		}
	}
	return false
}

// Tables returns a copy of the handle list.
func (s *State) Tables() []TableHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TableHandle(nil), s.tables...)
}

// TableNames returns the loaded table names in order.
func (s *State) TableNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

// Disconnect cancels any running preload, disposes the engine and clears
// the tables. Dispose errors are logged, never returned.
func (s *State) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelPreload != nil {
		s.cancelPreload()
		s.cancelPreload = nil
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			customLog.Warnf("Session[%s]: error disposing engine: %v", s.userID, err)
		}
		s.engine = nil
	}
	s.tables = nil
}

// StartPreload runs fn in the background and installs its engine and tables
// when it succeeds, unless the session was cleared or a newer job started
// in the meantime, in which case the engine is closed.
func (s *State) StartPreload(parent context.Context, fn PreloadFunc) *PreloadJob {
	ctx, cancel := context.WithCancel(parent)
	job := newPreloadJob(s.now())

	s.mu.Lock()
	if s.cancelPreload != nil {
		s.cancelPreload()
	}
	s.job = job
	s.cancelPreload = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		engine, handles, err := fn(ctx)
		if err != nil {
			customLog.Warnf("Session[%s]: preload failed: %v", s.userID, err)
			job.finish(nil, err, s.now())
			return
		}

		s.mu.Lock()
		if s.job != job || ctx.Err() != nil {
			s.mu.Unlock()
			if engine != nil {
				_ = engine.Close()
			}
			job.finish(nil, ErrPreloadSuperseded, s.now())
			return
		}
		s.setEngineLocked(engine)
		s.tables = append([]TableHandle(nil), handles...)
		s.cancelPreload = nil
		s.mu.Unlock()

		names := make([]string, len(handles))
		for i, h := range handles {
			names[i] = h.Name
		}
		customLog.Printf("Session[%s]: preloaded tables %v", s.userID, names)
		job.finish(names, nil, s.now())
	}()
	return job
}

// Preload returns the most recent preload job, or nil.
func (s *State) Preload() *PreloadJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}
