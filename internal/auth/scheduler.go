package auth

import (
	"sync"
	"time"
)

// RefreshScheduler runs refresh on a single timer. After each run it re-arms
// itself at interval unless Reset or Stop was called while refresh ran.
type RefreshScheduler struct {
	interval time.Duration
	refresh  func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func NewRefreshScheduler(interval time.Duration, refresh func()) *RefreshScheduler {
	return &RefreshScheduler{interval: interval, refresh: refresh, stopped: true}
}

// Reset replaces any pending run with one after d.
func (s *RefreshScheduler) Reset(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
	s.arm(d)
}

// Stop cancels the pending run. Safe to call more than once.
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *RefreshScheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

// arm must be called with s.mu held.
func (s *RefreshScheduler) arm(d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	if d < 0 {
		d = 0
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(d, func() { s.fire(gen) })
}

func (s *RefreshScheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.refresh()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || gen != s.gen {
		return
	}
	s.arm(s.interval)
}

// refreshInterval is how long before expiry a token is renewed.
func refreshInterval(lifetime, margin time.Duration) time.Duration {
	if margin <= 0 || margin >= lifetime {
		return lifetime / 2
	}
	return lifetime - margin
}
