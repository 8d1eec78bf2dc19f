package telemetry

import (
	"sync"
	"time"
)

var _ Provider = (*Slot)(nil)

// Provider gives read access to the latest decoder position
type Provider interface {
	Get() *Position
}

// Slot retains the most recent Position only. It is written by the ingestion handler
// and read by status queries; no history is kept.
type Slot struct {
	mu      sync.RWMutex
	current *Position
	updates uint64
}

// NewSlot creates an empty slot
func NewSlot() *Slot {
	return &Slot{}
}

// Set replaces the retained position
func (s *Slot) Set(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &p
	s.updates++
}

// Get returns a copy of the retained position, or nil when nothing was received yet
func (s *Slot) Get() *Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	p := *s.current
	return &p
}

// Updates returns how many positions were stored
func (s *Slot) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.updates
}

// Update merges a report into the retained position under the slot lock
// and returns the stored position
func (s *Slot) Update(r *Report, now time.Time) Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := r.Apply(s.current, now)
	s.current = &next
	s.updates++
	return next
}
