// Package scheduler implements the rate-limited polling scheduler that
// drives every active feed of a session on a shared hourly request budget
// (spec.md C5).
package scheduler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults per spec.md §6.
const (
	DefaultMaxReqsPerHour = 80
	// RefreshDelay is the base per-request-slot interval: 3600/80 = 45s.
	DefaultRefreshDelay = time.Hour / DefaultMaxReqsPerHour
)

var log = logrus.WithField("component", "scheduler")

// Callable is the refresh function a feed registers with the scheduler.
type Callable func()

// Handle is returned by Register and lets a feed resched/destroy itself.
type Handle struct {
	s   *Scheduler
	id  uint64
	fn  Callable
	// pending marks that a shot is owed to this handle on the next tick.
	pending bool
	// destroyed handles must never be invoked again.
	destroyed bool
}

// Resched marks the handle as due for the next tick. Multiple Resched
// calls between two ticks coalesce into a single shot (spec.md §4.5).
func (h *Handle) Resched() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.destroyed {
		return
	}
	h.pending = true
}

// Destroy removes the handle from the active set. A destroyed handle may
// never be invoked again, even if a tick is already in flight.
func (h *Handle) Destroy() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.destroyed {
		return
	}
	h.destroyed = true
	delete(h.s.handles, h.id)
}

// Scheduler drives all active feeds of one session on a single clock.
type Scheduler struct {
	RefreshDelay time.Duration // base per-slot interval.

	mu      sync.Mutex
	nextID  uint64
	handles map[uint64]*Handle
	running bool

	timer    *time.Timer
	stopCh   chan struct{}
	wakeupCh chan struct{} // forces a re-evaluation of the wait, e.g. for WaitRateLimit.

	rateLimitUntil time.Time
}

// New creates a Scheduler with the default refresh delay.
func New() *Scheduler {
	return &Scheduler{
		RefreshDelay: DefaultRefreshDelay,
		handles:      make(map[uint64]*Handle),
		wakeupCh:     make(chan struct{}, 1),
	}
}

// Register adds a callable to the active set. If the scheduler is
// running, the callable joins the next tick.
func (s *Scheduler) Register(fn Callable) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	h := &Handle{s: s, id: s.nextID, fn: fn, pending: true}
	s.handles[h.id] = h
	return h
}

// activeCount returns the number of currently registered (non-destroyed)
// handles. Caller must hold s.mu.
func (s *Scheduler) activeCountLocked() int { return len(s.handles) }

// Start begins the tick loop in a background goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.loop()
}

// Stop cancels any pending tick and halts the loop. Safe to call more
// than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
}

// WaitRateLimit is called by a feed when the remote API signals rate-limit
// exhaustion. The scheduler cancels the next tick and reschedules it for
// resetAt if that is further out than the base interval (spec.md §4.5).
func (s *Scheduler) WaitRateLimit(resetAt time.Time) {
	s.mu.Lock()
	n := s.activeCountLocked()
	base := s.RefreshDelay * time.Duration(max(n, 1))
	if time.Until(resetAt) > base {
		s.rateLimitUntil = resetAt
	}
	s.mu.Unlock()

	select {
	case s.wakeupCh <- struct{}{}:
	default:
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (s *Scheduler) loop() {
	for {
		s.mu.Lock()
		n := s.activeCountLocked()
		wait := s.RefreshDelay * time.Duration(max(n, 1))
		if !s.rateLimitUntil.IsZero() {
			if d := time.Until(s.rateLimitUntil); d > wait {
				wait = d
			}
			s.rateLimitUntil = time.Time{}
		}
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-s.wakeupCh:
			timer.Stop()
			continue
		case <-timer.C:
		}

		s.tick()
	}
}

// tick makes one shot available per registered handle and drains them all
// synchronously, so the user sees every timeline refresh together
// (spec.md §4.5 UX invariant).
func (s *Scheduler) tick() {
	s.mu.Lock()
	due := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		if h.pending {
			h.pending = false
			due = append(due, h)
		}
	}
	s.mu.Unlock()

	for _, h := range due {
		s.mu.Lock()
		destroyed := h.destroyed
		s.mu.Unlock()
		if destroyed {
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).Error("scheduled callable panicked")
				}
			}()
			h.fn()
		}()
	}
}
