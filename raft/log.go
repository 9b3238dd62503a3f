package raft

import "sync"

// RaftLog is the in-memory, single-writer, multi-reader representation of
// the replicated log described in spec §4.1. It is deliberately unaware of
// persistence: the instance that owns it is responsible for durability
// (see persist.go); RaftLog only guarantees the index/term bookkeeping and
// prefix-pruning invariants.
//
// entries[i] holds the entry at index prevIndex+1+i, so indices into the
// slice are always entries[index-prevIndex-1].
type RaftLog struct {
	mu sync.RWMutex

	entries    []RaftLogEntry
	prevIndex  LogIndex // last pruned index, entries <= prevIndex are gone
	commitHint LogIndex // the owner's current commit index, guards truncate/prune
}

// NewRaftLog returns an empty log.
func NewRaftLog() *RaftLog {
	return &RaftLog{prevIndex: NoIndex, commitHint: NoIndex}
}

// SetCommitHint lets the owning RaftInstance keep the log apprised of the
// current commitIndex so Truncate/Prune can enforce spec §4.1's safety
// bounds without a back-reference to RaftState.
func (l *RaftLog) SetCommitHint(commitIndex LogIndex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commitHint = commitIndex
}

// AppendIndex returns the index of the last appended entry, or NoIndex if
// the log (including the pruned prefix) is empty.
func (l *RaftLog) AppendIndex() LogIndex {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.appendIndexLocked()
}

func (l *RaftLog) appendIndexLocked() LogIndex {
	return l.prevIndex + LogIndex(len(l.entries))
}

// PrevIndex returns the index of the last pruned entry, or NoIndex if
// nothing has been pruned.
func (l *RaftLog) PrevIndex() LogIndex {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.prevIndex
}

// Append adds entry after the last appended entry and returns its index.
func (l *RaftLog) Append(entry RaftLogEntry) LogIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return l.appendIndexLocked()
}

// Truncate removes every entry with index >= fromIndex. It panics with a
// SafetyViolation if fromIndex <= commitHint: truncating a committed entry
// is a safety violation per spec §4.1, never recoverable, never swallowed.
func (l *RaftLog) Truncate(fromIndex LogIndex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if fromIndex <= l.commitHint {
		panic(SafetyViolation{Reason: "truncate below commitIndex",
			Detail: "fromIndex=" + itoa64(int64(fromIndex)) + " commitIndex=" + itoa64(int64(l.commitHint))})
	}

	if fromIndex <= l.prevIndex {
		// Nothing retained at or above fromIndex; truncating the pruned
		// prefix is meaningless but not unsafe, it was never readable.
		l.entries = l.entries[:0]
		return
	}

	cut := int(fromIndex - l.prevIndex - 1)
	if cut < 0 {
		cut = 0
	}
	if cut > len(l.entries) {
		cut = len(l.entries)
	}
	l.entries = l.entries[:cut]
}

// Prune advances prevIndex to upToIndex, making entries at or below it
// unreadable. It panics with a SafetyViolation if upToIndex > commitHint:
// pruning across the commit line is a safety violation per spec §4.1.
func (l *RaftLog) Prune(upToIndex LogIndex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if upToIndex <= l.prevIndex {
		return
	}

	if upToIndex > l.commitHint {
		panic(SafetyViolation{Reason: "prune past commitIndex",
			Detail: "upToIndex=" + itoa64(int64(upToIndex)) + " commitIndex=" + itoa64(int64(l.commitHint))})
	}

	drop := int(upToIndex - l.prevIndex)
	if drop > len(l.entries) {
		drop = len(l.entries)
	}
	l.entries = l.entries[drop:]
	l.prevIndex = upToIndex
}

// ReadEntryTerm returns the term of the entry at index, or NoTerm if the
// log has no entry there (empty log, index before the log, index pruned,
// or index beyond the last appended entry).
func (l *RaftLog) ReadEntryTerm(index LogIndex) Term {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index <= l.prevIndex {
		return NoTerm
	}
	pos := int(index - l.prevIndex - 1)
	if pos < 0 || pos >= len(l.entries) {
		return NoTerm
	}
	return l.entries[pos].Term
}

// ReadEntry returns the full entry at index and whether it was found.
func (l *RaftLog) ReadEntry(index LogIndex) (RaftLogEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index <= l.prevIndex {
		return RaftLogEntry{}, false
	}
	pos := int(index - l.prevIndex - 1)
	if pos < 0 || pos >= len(l.entries) {
		return RaftLogEntry{}, false
	}
	return l.entries[pos], true
}

// EntriesFrom returns a finite, snapshot-consistent copy of every entry
// from fromIndex (inclusive) to the current append index. It is not a lazy
// cursor in the sense of reflecting subsequent mutations; spec §4.1 allows
// this because the sequence is explicitly "not restartable after further
// mutations" — callers that need mutation-awareness consult PrevIndex
// again before trusting a previously captured slice.
func (l *RaftLog) EntriesFrom(fromIndex LogIndex) ([]RaftLogEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if fromIndex <= l.prevIndex {
		return nil, false
	}
	pos := int(fromIndex - l.prevIndex - 1)
	if pos < 0 || pos > len(l.entries) {
		return nil, false
	}
	out := make([]RaftLogEntry, len(l.entries)-pos)
	copy(out, l.entries[pos:])
	return out, true
}

func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
