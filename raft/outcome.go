package raft

// LogOpKind tags the kind of log mutation an Outcome requests. The
// instance applies an Outcome's LogOps in the order they were added,
// after its term and vote changes and before any role change or outgoing
// message, matching spec §5's "persistent state written... before the
// next message is processed" ordering guarantee.
type LogOpKind int

const (
	LogOpAppend LogOpKind = iota
	LogOpTruncate
	LogOpCommitTo
)

// LogOp is one queued mutation against RaftLog/commitIndex.
type LogOp struct {
	Kind         LogOpKind
	AppendEntry  RaftLogEntry // valid when Kind == LogOpAppend
	TruncateFrom LogIndex     // valid when Kind == LogOpTruncate
	CommitIndex  LogIndex     // valid when Kind == LogOpCommitTo
}

// Outcome is the immutable description of one handler invocation's effect,
// per spec §3/§9: new role, term, vote, log operations, outgoing
// messages, and whether the election timer should be reset. The teacher's
// source mutates *Server fields directly; this repo follows spec §9's
// explicit allowance to use an immutable record instead of a mutable
// builder, since Outcome is the seam tests drive directly.
type Outcome struct {
	NextRole    Role
	TermChanged bool
	NextTerm    Term

	// VoteUpdated marks that the vote record for the effective term
	// should be written. Voted distinguishes an actual grant
	// (NextVotedFor, Voted=true) from a term-driven clear (Voted=false,
	// NextVotedFor is ignored) per spec §4.4 rule 2.
	VoteUpdated  bool
	NextVotedFor MemberId
	Voted        bool

	LogOps []LogOp

	OutgoingMessages []Directed

	ElectionTimerReset bool

	// NextLeader, when LeaderKnown is set, names the member this handler
	// concluded is leader (itself on winning an election, the sender of
	// an accepted AppendEntries). RaftInstance.applyOutcome does not
	// store it, so it is not visible through ReadableRaftState.
	LeaderKnown bool
	NextLeader  MemberId

	// CompactionHints carries any LogCompactionInfo this Outcome also
	// wants routed to the local store-copy seam, not just shipped to the
	// peer (see SPEC_FULL.md §12.1).
	CompactionHints []LogCompactionInfo

	// FollowerUpdates carries leader-only per-follower progress changes
	// (matchIndex/nextIndex), applied by RaftInstance to RaftState's
	// single-writer leaderState map.
	FollowerUpdates []FollowerProgressUpdate

	// GrantedVotesFrom carries Candidate-only vote-tally updates, applied
	// by RaftInstance to RaftState's single-writer vote set.
	GrantedVotesFrom []MemberId
}

// FollowerProgressUpdate is one (member, new progress) pair.
type FollowerProgressUpdate struct {
	Member   MemberId
	Progress FollowerProgress
}

func (o Outcome) WithFollowerUpdate(member MemberId, fp FollowerProgress) Outcome {
	o.FollowerUpdates = append(o.FollowerUpdates, FollowerProgressUpdate{Member: member, Progress: fp})
	return o
}

// WithGrantedVote records that member's vote was just counted towards
// our current election, for RaftInstance to fold into RaftState's
// Candidate-only vote set.
func (o Outcome) WithGrantedVote(member MemberId) Outcome {
	o.GrantedVotesFrom = append(o.GrantedVotesFrom, member)
	return o
}

// NewOutcome returns an Outcome that changes nothing: same role, no log
// ops, no messages. Handlers start from this and layer on changes, the
// same shape as the teacher's *Server methods that return early with a
// "deny" response and nothing else.
func NewOutcome(currentRole Role) Outcome {
	return Outcome{NextRole: currentRole}
}

func (o Outcome) WithTerm(t Term) Outcome {
	o.TermChanged = true
	o.NextTerm = t
	return o
}

func (o Outcome) WithVote(m MemberId) Outcome {
	o.VoteUpdated = true
	o.NextVotedFor = m
	o.Voted = true
	return o
}

func (o Outcome) WithClearedVote() Outcome {
	o.VoteUpdated = true
	o.Voted = false
	return o
}

func (o Outcome) WithRole(r Role) Outcome {
	o.NextRole = r
	return o
}

func (o Outcome) WithLeader(m MemberId) Outcome {
	o.LeaderKnown = true
	o.NextLeader = m
	return o
}

func (o Outcome) WithElectionTimerReset() Outcome {
	o.ElectionTimerReset = true
	return o
}

func (o Outcome) WithMessage(to MemberId, msg Message) Outcome {
	o.OutgoingMessages = append(o.OutgoingMessages, Directed{To: to, Message: msg})
	return o
}

func (o Outcome) WithBroadcast(to []MemberId, msg Message) Outcome {
	for _, m := range to {
		o.OutgoingMessages = append(o.OutgoingMessages, Directed{To: m, Message: msg})
	}
	return o
}

func (o Outcome) WithLogOp(op LogOp) Outcome {
	o.LogOps = append(o.LogOps, op)
	return o
}

func (o Outcome) WithCompactionHint(info LogCompactionInfo) Outcome {
	o.CompactionHints = append(o.CompactionHints, info)
	return o
}
