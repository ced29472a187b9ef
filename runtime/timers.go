package runtime

import (
	"sync"
	"time"
)

// TimerSet holds at most one pending timer per key.
//
// The set is guarded by the lock handed to NewTimerSet: callers hold it around
// Schedule and Cancel, and a fired timer runs its callback while holding it.
// Every scheduled timer carries a generation, so a timer that fires after it was
// replaced or cancelled finds a different generation and does nothing.
type TimerSet[K comparable] struct {
	lock   sync.Locker
	timers map[K]scheduled
	gen    uint64
}

type scheduled struct {
	timer *time.Timer
	gen   uint64
}

func NewTimerSet[K comparable](lock sync.Locker) *TimerSet[K] {
	return &TimerSet[K]{lock: lock, timers: make(map[K]scheduled)}
}

// Schedule arms fn to run after d for key, replacing any pending timer of that key.
// It reports whether a pending timer was replaced. The caller must hold the lock.
func (s *TimerSet[K]) Schedule(key K, d time.Duration, fn func()) bool {
	previous, replaced := s.timers[key]
	if replaced {
		previous.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timers[key] = scheduled{
		gen: gen,
		timer: time.AfterFunc(d, func() {
			s.lock.Lock()
			defer s.lock.Unlock()
			current, ok := s.timers[key]
			if !ok || current.gen != gen {
				return
			}
			delete(s.timers, key)
			fn()
		}),
	}
	return replaced
}

// Cancel stops the pending timer of key and reports whether there was one.
// The caller must hold the lock.
func (s *TimerSet[K]) Cancel(key K) bool {
	current, ok := s.timers[key]
	if !ok {
		return false
	}
	current.timer.Stop()
	delete(s.timers, key)
	return true
}

// Pending reports whether key has an armed timer. The caller must hold the lock.
func (s *TimerSet[K]) Pending(key K) bool {
	_, ok := s.timers[key]
	return ok
}

// Keys returns the keys matching keep. The caller must hold the lock.
func (s *TimerSet[K]) Keys(keep func(K) bool) []K {
	var keys []K
	for k := range s.timers {
		if keep(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// CancelAll stops every pending timer. The caller must hold the lock.
func (s *TimerSet[K]) CancelAll() {
	for k, current := range s.timers {
		current.timer.Stop()
		delete(s.timers, k)
	}
}
