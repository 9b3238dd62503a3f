package raft

// Message is the marker interface every wire message implements, so that
// an Outcome's outgoing list and a Transport's inbound handler can be
// typed as []Message / Message without the core needing to know about
// JSON, gob, or any other concrete encoding (that choice lives in the
// transport package, see internal/transport).
type Message interface {
	messageKind() string
}

// VoteRequest is "Vote.Request" from spec §6.
type VoteRequest struct {
	From          MemberId
	Term          Term
	Candidate     MemberId
	LastLogIndex  LogIndex
	LastLogTerm   Term
	StoreId       StoreId
}

func (VoteRequest) messageKind() string { return "Vote.Request" }

// VoteResponse is "Vote.Response" from spec §6.
type VoteResponse struct {
	From    MemberId
	Term    Term
	Granted bool
}

func (VoteResponse) messageKind() string { return "Vote.Response" }

// AppendEntriesRequest is "AppendEntries.Request" from spec §6. An empty
// Entries slice with LeaderCommit set is a Heartbeat (spec §6 defines
// Heartbeat as exactly this shape, not a distinct wire type).
type AppendEntriesRequest struct {
	From         MemberId
	Term         Term
	PrevLogIndex LogIndex
	PrevLogTerm  Term
	Entries      []RaftLogEntry
	LeaderCommit LogIndex
}

func (AppendEntriesRequest) messageKind() string { return "AppendEntries.Request" }

// IsHeartbeat reports whether this request carries no new entries.
func (r AppendEntriesRequest) IsHeartbeat() bool { return len(r.Entries) == 0 }

// AppendEntriesResponse is "AppendEntries.Response" from spec §6.
type AppendEntriesResponse struct {
	From       MemberId
	Term       Term
	Success    bool
	MatchIndex LogIndex
}

func (AppendEntriesResponse) messageKind() string { return "AppendEntries.Response" }

// LogCompactionInfo is the out-of-band catch-up signal from spec §4.9/§12.1:
// emitted when a follower's needed index is no longer available in the
// leader's log because it was pruned. The follower-side reaction
// (store-copy, fast-forward) is outside this repo's scope per spec §9's
// open question; RaftInstance.CompactionHint (see instance.go) is the
// seam for it.
type LogCompactionInfo struct {
	From      MemberId
	Term      Term
	PrevIndex LogIndex
	PrevTerm  Term
}

func (LogCompactionInfo) messageKind() string { return "LogCompactionInfo" }

// Directed wraps any Message with its intended recipient. Handlers and
// the Election helper produce Directed messages; broadcast is expressed
// as one Directed per voting member rather than a special case.
type Directed struct {
	To      MemberId
	Message Message
}
