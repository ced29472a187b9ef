package runtime

import "sync"

// sequencer serializes work per key and forgets keys nobody holds.
type sequencer[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newSequencer[K comparable]() *sequencer[K] {
	return &sequencer[K]{locks: make(map[K]*refLock)}
}

// Lock blocks until key is free and returns its release function.
func (s *sequencer[K]) Lock(key K) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &refLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
