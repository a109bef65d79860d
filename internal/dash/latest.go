package dash

import (
	"sync"
	"sync/atomic"
)

// Session serializes fetch-then-recompute cycles for one dashboard
// consumer. Every filter change begins a new request; a finished
// computation is applied only while its request id is still the newest,
// so a slow fetch can never overwrite the result of a later one.
//
// The HTTP handlers are plain request/response and do not need this:
// Session is the client-side discipline exported for embedders that
// poll the views concurrently (UI bridges, cached-snapshot refreshers).
type Session[T any] struct {
	reqID atomic.Uint64

	mu   sync.Mutex
	view T
	set  bool
}

// Begin marks a new outstanding request and returns its id. Any request
// begun earlier is superseded from this point on.
func (s *Session[T]) Begin() uint64 { return s.reqID.Add(1) }

// Current reports whether id is still the newest outstanding request.
func (s *Session[T]) Current(id uint64) bool { return s.reqID.Load() == id }

// Apply publishes v as the session's view if id is still current.
// It reports whether the result was applied or discarded as stale.
func (s *Session[T]) Apply(id uint64, v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reqID.Load() != id {
		return false
	}
	s.view = v
	s.set = true
	return true
}

// View returns the last applied result, if any.
func (s *Session[T]) View() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view, s.set
}
