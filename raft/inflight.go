package raft

import "sync"

// InFlightMap is the index->entry cache described in spec §4.3:
// RaftInstance populates it on every log append, applyCommitted consults
// it before falling back to RaftLog.ReadEntry, and applyCommitted trims
// entries below lastApplied once they have been applied. LogShippers do
// not consult it; they read RaftLog directly. It is not a correctness
// component — a miss just costs a log read, never a wrong answer — so a
// single mutex protecting a plain map is sufficient; the spec explicitly
// allows "a lock-free concurrent map or the same-task discipline" and the
// teacher's code has no precedent for anything fancier here.
type InFlightMap struct {
	mu      sync.RWMutex
	entries map[LogIndex]RaftLogEntry
}

func NewInFlightMap() *InFlightMap {
	return &InFlightMap{entries: make(map[LogIndex]RaftLogEntry)}
}

// Put records entry as freshly appended at index.
func (m *InFlightMap) Put(index LogIndex, entry RaftLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[index] = entry
}

// Get returns the cached entry at index, if present.
func (m *InFlightMap) Get(index LogIndex) (RaftLogEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[index]
	return e, ok
}

// TrimBelow discards every cached entry with index < belowIndex, called
// once the log owner knows those entries are durable on disk (or under
// memory pressure with a conservative belowIndex).
func (m *InFlightMap) TrimBelow(belowIndex LogIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for idx := range m.entries {
		if idx < belowIndex {
			delete(m.entries, idx)
		}
	}
}

// Len reports how many entries are currently cached, for tests/metrics.
func (m *InFlightMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
