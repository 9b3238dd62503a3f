package raft

// StateMarshal is a persistence seam for one piece of durable state,
// grounded on the original Java StateMarshal interface (original_source
// enterprise/core-edge raft/state/vote/VoteState.java declares VoteState
// itself against exactly this shape) and on the teacher's
// raft-server/state.go persist()/restore() pair. Nothing in this repo
// implements it: FileStore encodes each record directly, one file per
// record instead of one combined binary blob (see SPEC_FULL.md §12.2),
// so a vote grant can be made durable without re-writing the term record
// and vice versa.
type StateMarshal[T any] interface {
	Marshal(value T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// TermRecord and VoteRecord are the plain-data shapes persisted for
// TermState/VoteState; the in-memory types keep their fields private, so
// the instance translates through these at the persistence boundary.
type TermRecord struct {
	Term Term
}

type VoteRecord struct {
	Term     Term
	VotedFor MemberId
	Voted    bool
}

// Store is what RaftInstance needs from durable storage: read the last
// persisted record on startup, write a new one before any message derived
// from it is allowed to leave the process (spec §5's ordering guarantee,
// spec §7's "always persist term/vote changes before sending any
// response" rule).
type Store interface {
	LoadTerm() (TermRecord, error)
	SaveTerm(TermRecord) error

	LoadVote() (VoteRecord, error)
	SaveVote(VoteRecord) error

	// AppendLogEntries and TruncateLogFrom mirror RaftLog's own mutations so
	// a restart can rebuild the in-memory log from disk; the in-memory
	// RaftLog is the source of truth while the process is alive (spec
	// §4.1), this just needs to reconstruct it faithfully after a crash.
	AppendLogEntries(fromIndex LogIndex, entries []RaftLogEntry) error
	TruncateLogFrom(fromIndex LogIndex) error
	LoadLog() (prevIndex LogIndex, entries []RaftLogEntry, err error)

	// LoadStoreId returns the previously persisted StoreId, if any. ok is
	// false on a fresh data directory, per SPEC_FULL.md §10.1: a StoreId
	// is "read from config or generated on first boot and then persisted
	// alongside TermState" so a restart never mints a second, mismatched
	// identity for the same node.
	LoadStoreId() (id StoreId, ok bool, err error)
	SaveStoreId(StoreId) error
}
