package session

import (
	"sync"
	"time"
)

// GraceScheduler owns at most one cancellable delayed removal per
// player. Schedule refuses a second timer for the same player;
// reconnect handling must Cancel before any later disconnect can
// schedule again.
//
// Expiry callbacks are delivered with the generation of the timer that
// fired. The coordinator calls Consume with that generation under its
// own mutex, so an expiry racing a cancel (or a newer timer for the
// same player) resolves to exactly one winner.
type GraceScheduler struct {
	mu     sync.Mutex
	gen    uint64
	timers map[string]*graceTimer
}

type graceTimer struct {
	gen   uint64
	timer *time.Timer
}

func NewGraceScheduler() *GraceScheduler {
	return &GraceScheduler{timers: map[string]*graceTimer{}}
}

func (s *GraceScheduler) Schedule(playerID string, d time.Duration, fire func(gen uint64)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.timers[playerID]; exists {
		return ErrTimerPending
	}
	s.gen++
	gen := s.gen
	s.timers[playerID] = &graceTimer{
		gen:   gen,
		timer: time.AfterFunc(d, func() { fire(gen) }),
	}
	return nil
}

// Cancel stops and removes the player's timer, reporting whether one
// was live. A timer whose expiry already won Consume is gone by then,
// so Cancel returns false for it.
func (s *GraceScheduler) Cancel(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	gt, ok := s.timers[playerID]
	if !ok {
		return false
	}
	gt.timer.Stop()
	delete(s.timers, playerID)
	return true
}

// Consume claims the right to run the expiry action for the timer
// identified by gen. It fails if the timer was cancelled, or if a newer
// timer has replaced the one that fired.
func (s *GraceScheduler) Consume(playerID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	gt, ok := s.timers[playerID]
	if !ok || gt.gen != gen {
		return false
	}
	delete(s.timers, playerID)
	return true
}

func (s *GraceScheduler) Pending(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[playerID]
	return ok
}

func (s *GraceScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
