package raft

import "fmt"

// MemberId is an opaque stable identifier for a cluster member. It is not
// required to be totally ordered; ties between candidates are broken by
// majority arithmetic, never by comparing IDs.
type MemberId uint64

func (m MemberId) String() string {
	return fmt.Sprintf("member-%d", uint64(m))
}

// Term is a 64-bit logical clock. NoTerm is returned by readEntryTerm for an
// index that has no entry (empty log, or an index at or before prevIndex).
type Term uint64

// NoTerm is the sentinel "no entry" term, mirrored as -1 by the spec's
// signed wire format and carried here as the same bit pattern so it still
// compares unequal to every real term.
const NoTerm Term = ^Term(0)

// LogIndex addresses an entry in the RaftLog. NoIndex denotes "before the
// log" and is a valid value for prevLogIndex.
type LogIndex int64

// NoIndex is "before the log" / "the log is empty".
const NoIndex LogIndex = -1

// RaftLogEntry is one entry of the replicated log. Payloads are opaque to
// the consensus core; they are interpreted only by the Applier that the
// host wires in (the graph storage engine, out of scope here).
type RaftLogEntry struct {
	Term    Term
	Payload []byte
}

// StoreId identifies the underlying data store a member is attached to.
// It is compared for equality only, never ordered; a mismatch means the
// peer belongs to a different, incompatible store and its messages are
// treated as stale rather than processed.
type StoreId struct {
	CreationTime int64
	RandomId     uint64
	UpgradeTime  int64
	UpgradeId    uint64
}

func (s StoreId) Equal(o StoreId) bool {
	return s == o
}
