package backends

import (
	"sync"
	"time"
)

// statsTracker accumulates BackendStats for a backend.
type statsTracker struct {
	mu    sync.Mutex
	stats BackendStats
}

func (s *statsTracker) track(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if err != nil {
		s.stats.ErrorCount++
		s.stats.LastError = now
		return
	}
	s.stats.WriteCount++
	if n > 0 {
		s.stats.BytesWritten += uint64(n)
	}
	s.stats.LastWrite = now
}

func (s *statsTracker) snapshot(destination string) BackendStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.Destination = destination
	return out
}
