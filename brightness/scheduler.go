package brightness

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs callbacks after a delay on the goroutine that owns the controller.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback. Stop reports whether it prevented the callback.
type Timer interface {
	Stop() bool
}

// ============================================================================
// VirtualScheduler
// ============================================================================

// VirtualScheduler is a manual clock. Callbacks fire only from Advance, on the
// caller's goroutine, in deadline order. Used by tests and by hosts that drive
// a fixed virtual tick.
type VirtualScheduler struct {
	now     time.Time
	seq     uint64
	pending []*virtualTimer
}

type virtualTimer struct {
	s        *VirtualScheduler
	deadline time.Time
	seq      uint64
	f        func()
	done     bool
}

// NewVirtualScheduler creates a virtual clock starting at start.
func NewVirtualScheduler(start time.Time) *VirtualScheduler {
	return &VirtualScheduler{now: start}
}

func (s *VirtualScheduler) Now() time.Time { return s.now }

func (s *VirtualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &virtualTimer{s: s, deadline: s.now.Add(d), seq: s.seq, f: f}
	s.pending = append(s.pending, t)
	return t
}

func (t *virtualTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	t.s.remove(t)
	return true
}

func (s *VirtualScheduler) remove(t *virtualTimer) {
	for i, p := range s.pending {
		if p == t {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward by d, firing every callback whose deadline falls
// inside the window. Callbacks scheduled by callbacks fire too if they are due.
// It returns the number of callbacks fired.
func (s *VirtualScheduler) Advance(d time.Duration) int {
	end := s.now.Add(d)
	fired := 0
	for {
		next := s.nextDue(end)
		if next == nil {
			break
		}
		s.remove(next)
		next.done = true
		if next.deadline.After(s.now) {
			s.now = next.deadline
		}
		next.f()
		fired++
	}
	if end.After(s.now) {
		s.now = end
	}
	return fired
}

func (s *VirtualScheduler) nextDue(end time.Time) *virtualTimer {
	if len(s.pending) == 0 {
		return nil
	}
	sort.SliceStable(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		if a.deadline.Equal(b.deadline) {
			return a.seq < b.seq
		}
		return a.deadline.Before(b.deadline)
	})
	if s.pending[0].deadline.After(end) {
		return nil
	}
	return s.pending[0]
}

// Pending returns the number of callbacks that have not fired or been stopped.
func (s *VirtualScheduler) Pending() int { return len(s.pending) }

// ============================================================================
// LoopScheduler
// ============================================================================

// LoopScheduler backs callbacks with wall-clock timers and hands them to the owner
// loop through C(). The owner must run every func it receives:
//
//	case f := <-sched.C():
//		f()
//
// Close stops all pending timers. Callbacks that were already handed over stay in
// the channel; the controller ignores those after Unmount.
type LoopScheduler struct {
	ch   chan func()
	done chan struct{}

	mu     sync.Mutex
	timers map[*loopTimer]struct{}
	closed bool
}

type loopTimer struct {
	s *LoopScheduler
	t *time.Timer
}

// NewLoopScheduler creates a scheduler with a delivery buffer of size buf.
func NewLoopScheduler(buf int) *LoopScheduler {
	if buf <= 0 {
		buf = 16
	}
	return &LoopScheduler{
		ch:     make(chan func(), buf),
		done:   make(chan struct{}),
		timers: make(map[*loopTimer]struct{}),
	}
}

// C delivers due callbacks to the owner loop.
func (s *LoopScheduler) C() <-chan func() { return s.ch }

func (s *LoopScheduler) Now() time.Time { return time.Now() }

func (s *LoopScheduler) AfterFunc(d time.Duration, f func()) Timer {
	lt := &loopTimer{s: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lt
	}

	s.timers[lt] = struct{}{}
	lt.t = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[lt]
		delete(s.timers, lt)
		s.mu.Unlock()
		if !live {
			return
		}
		select {
		case s.ch <- f:
		case <-s.done:
		}
	})
	return lt
}

func (lt *loopTimer) Stop() bool {
	s := lt.s
	s.mu.Lock()
	_, live := s.timers[lt]
	delete(s.timers, lt)
	s.mu.Unlock()
	if !live || lt.t == nil {
		return false
	}
	return lt.t.Stop()
}

// Pending returns the number of armed timers.
func (s *LoopScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops every pending timer and unblocks timers waiting on delivery.
// It is safe to call more than once.
func (s *LoopScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for lt := range s.timers {
		lt.t.Stop()
		delete(s.timers, lt)
	}
	s.mu.Unlock()
	close(s.done)
}
