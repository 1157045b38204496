// internal/storage/memory.go
package storage

import (
	"sync"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

const maxBufferSize = 100 // Keep the last 100 events for dashboard replay

// MemoryStore is a bounded buffer of recent engine events, replayed to
// dashboards when they connect.
type MemoryStore struct {
	mu       sync.RWMutex
	buffer   []data.Event
	capacity int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = maxBufferSize
	}
	return &MemoryStore{
		buffer:   make([]data.Event, 0, capacity),
		capacity: capacity,
	}
}

func (s *MemoryStore) Add(ev data.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) >= s.capacity {
		// Drop the oldest event
		copy(s.buffer, s.buffer[1:])
		s.buffer = s.buffer[:len(s.buffer)-1]
	}
	s.buffer = append(s.buffer, ev)
}

// GetRecent returns up to count of the newest events, oldest first.
func (s *MemoryStore) GetRecent(count int) []data.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > len(s.buffer) {
		count = len(s.buffer)
	}
	result := make([]data.Event, count)
	copy(result, s.buffer[len(s.buffer)-count:])
	return result
}

func (s *MemoryStore) GetAll() []data.Event {
	return s.GetRecent(0)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffer)
}
