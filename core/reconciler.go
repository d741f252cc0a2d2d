package core

import (
	"context"
	"sync"
	"time"

	"apiwatch/logger"
	"apiwatch/models"
)

// DefaultCorrelationWindow is the time tolerance used to decide whether two
// independently observed events refer to the same logical request.
const DefaultCorrelationWindow = 5000 * time.Millisecond

// Store is the persistence collaborator. Writes are fire-and-forget from the
// session's point of view: a failed flush is logged and never rolls back the
// in-memory mutation.
type Store interface {
	SaveCapturedRequests(records []models.CapturedRequest) error
	SaveMonitorConfig(cfg models.MonitorConfig) error
}

// Session owns the canonical record collection and the active monitor
// configuration for one coordinator lifetime. All mutation funnels through it;
// capture sources only submit candidates. The collection is ordered
// most-recent-first and bounded by the configured maximum.
type Session struct {
	mu      sync.Mutex
	cfg     models.MonitorConfig
	records []models.CapturedRequest
	pending map[string]*models.CapturedRequest

	revision uint64
	changed  chan struct{}

	window time.Duration
	store  Store
	now    func() time.Time
}

// NewSession builds a session around an initial configuration and a
// persistence store. A nil store disables flushing (useful for tests); a
// non-positive window falls back to DefaultCorrelationWindow.
func NewSession(cfg models.MonitorConfig, store Store, window time.Duration) *Session {
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	return &Session{
		cfg:     cfg,
		pending: make(map[string]*models.CapturedRequest),
		changed: make(chan struct{}),
		window:  window,
		store:   store,
		now:     time.Now,
	}
}

// Restore seeds the collection from persisted records, most-recent-first,
// truncated to the configured cap. Intended for startup only.
func (s *Session) Restore(records []models.CapturedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := s.cfg.EffectiveMaxRecords()
	if len(records) > max {
		records = records[:max]
	}
	s.records = append([]models.CapturedRequest(nil), records...)
}

// Config returns the active monitor configuration.
func (s *Session) Config() models.MonitorConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ReplaceConfig swaps in a new configuration wholesale, re-applies the record
// cap, and persists the configuration. There is no partial mutation path.
func (s *Session) ReplaceConfig(cfg models.MonitorConfig) {
	s.mu.Lock()
	s.cfg = cfg
	max := cfg.EffectiveMaxRecords()
	if len(s.records) > max {
		s.records = s.records[:max]
	}
	snapshot := s.snapshotLocked()
	s.bumpRevisionLocked()
	s.mu.Unlock()

	if s.store != nil {
		go func() {
			if err := s.store.SaveMonitorConfig(cfg); err != nil {
				logger.Error("Session: failed to persist monitor config: %v", err)
			}
			if err := s.store.SaveCapturedRequests(snapshot); err != nil {
				logger.Error("Session: failed to persist records after config replace: %v", err)
			}
		}()
	}
}

// Snapshot returns a copy of the canonical collection, most-recent-first.
func (s *Session) Snapshot() []models.CapturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() []models.CapturedRequest {
	return append([]models.CapturedRequest(nil), s.records...)
}

// Stats computes the aggregate counters on demand.
func (s *Session) Stats() models.CaptureStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := models.CaptureStats{Total: len(s.records)}
	for _, r := range s.records {
		if r.IsError || r.IsValidationError {
			stats.Errors++
		}
	}
	return stats
}

// Clear drops every canonical record and flushes the empty collection.
func (s *Session) Clear() {
	s.mu.Lock()
	s.records = nil
	s.bumpRevisionLocked()
	s.mu.Unlock()
	s.flush()
}

// Revision returns the collection's change counter.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// WaitForChange blocks until the collection revision advances past since, or
// the context ends. It returns the current revision either way.
func (s *Session) WaitForChange(ctx context.Context, since uint64) uint64 {
	for {
		s.mu.Lock()
		rev := s.revision
		ch := s.changed
		s.mu.Unlock()
		if rev > since {
			return rev
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return rev
		}
	}
}

// bumpRevisionLocked advances the change counter and wakes all waiters.
func (s *Session) bumpRevisionLocked() {
	s.revision++
	close(s.changed)
	s.changed = make(chan struct{})
}

// withinWindow reports whether two capture timestamps (ms) fall inside the
// correlation window.
func (s *Session) withinWindow(a, b int64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < s.window.Milliseconds()
}

// findBodyBearing looks for a record with the same URL, a timestamp within the
// correlation window, and a real (non-sentinel) response body. Source A
// completions that correlate with such a record are strictly less valuable and
// get dropped.
func (s *Session) findBodyBearingLocked(url string, ts int64) int {
	for i, r := range s.records {
		if r.URL == url && s.withinWindow(r.Timestamp, ts) &&
			r.ResponseBody != "" && !models.IsSentinelBody(r.ResponseBody) {
			return i
		}
	}
	return -1
}

// findLifecycleSentinelLocked looks for a correlated record whose response
// body is the Source A "unavailable" sentinel, i.e. a record a body-bearing
// observation may replace in place.
func (s *Session) findLifecycleSentinelLocked(url string, ts int64) int {
	for i, r := range s.records {
		if r.URL == url && s.withinWindow(r.Timestamp, ts) &&
			models.IsLifecycleSentinel(r.ResponseBody) {
			return i
		}
	}
	return -1
}

// insertLocked prepends rec and truncates the collection to the cap. FIFO
// eviction by count, oldest first.
func (s *Session) insertLocked(rec models.CapturedRequest) {
	s.records = append([]models.CapturedRequest{rec}, s.records...)
	max := s.cfg.EffectiveMaxRecords()
	if len(s.records) > max {
		s.records = s.records[:max]
	}
	s.bumpRevisionLocked()
}

// replaceLocked swaps the record at idx in place, preserving its position.
func (s *Session) replaceLocked(idx int, rec models.CapturedRequest) {
	s.records[idx] = rec
	s.bumpRevisionLocked()
}

// flush persists the current snapshot asynchronously. Persistence failure is
// logged only; it never surfaces to submitters and never undoes the in-memory
// state.
func (s *Session) flush() {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	go func() {
		if err := s.store.SaveCapturedRequests(snapshot); err != nil {
			logger.Error("Session: failed to persist captured requests: %v", err)
		}
	}()
}

// PendingCount reports how many lifecycle observations have been opened but
// not yet completed. Diagnostic only.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
