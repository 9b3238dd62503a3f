package raft

// FollowerProgress is the leader-only per-follower tracking from spec §3:
// (matchIndex, nextIndex, lastSentIndex).
type FollowerProgress struct {
	MatchIndex    LogIndex
	NextIndex     LogIndex
	LastSentIndex LogIndex
}

// ReadableRaftState is the read-only view handlers receive, per spec §9's
// "handlers run on a read-only view of state, producing an Outcome"
// design note. Nothing in this interface lets a handler mutate anything;
// all mutation is expressed as Outcome fields the instance applies.
type ReadableRaftState interface {
	Myself() MemberId
	VotingMembers() map[MemberId]struct{}
	Term() Term
	VotedFor() (MemberId, bool)
	Role() Role
	Log() *RaftLog
	CommitIndex() LogIndex
	LastApplied() LogIndex
	StoreId() StoreId
	FollowerProgressOf(member MemberId) (FollowerProgress, bool)
	AllFollowerProgress() map[MemberId]FollowerProgress
	CandidateVotes() map[MemberId]struct{}
	Majority(count int) bool
	IsVotingMember(m MemberId) bool
}

// RaftState is the concrete aggregate owned exclusively by RaftInstance,
// per spec §5's single-writer policy. It implements ReadableRaftState so
// the instance can hand itself to a handler without copying the whole
// struct; handlers never hold a reference past their own invocation.
type RaftState struct {
	myself        MemberId
	votingMembers map[MemberId]struct{}

	role Role

	termState *TermState
	voteState *VoteState

	entryLog *RaftLog

	commitIndex LogIndex
	lastApplied LogIndex

	storeId StoreId

	// leaderState is only meaningful while role == Leader.
	leaderState map[MemberId]*FollowerProgress

	// votesReceived is only meaningful while role == Candidate. It
	// always includes myself once an election has started (Election.Start
	// self-votes, spec §4.7).
	votesReceived map[MemberId]struct{}
}

// NewRaftState builds the starting aggregate: Follower, term 0, empty log.
func NewRaftState(myself MemberId, votingMembers []MemberId, storeId StoreId) *RaftState {
	members := make(map[MemberId]struct{}, len(votingMembers))
	for _, m := range votingMembers {
		members[m] = struct{}{}
	}
	return &RaftState{
		myself:        myself,
		votingMembers: members,
		role:          Follower,
		termState:     NewTermState(),
		voteState:     NewVoteState(),
		entryLog:      NewRaftLog(),
		commitIndex:   NoIndex,
		lastApplied:   NoIndex,
		storeId:       storeId,
		leaderState:   make(map[MemberId]*FollowerProgress),
	}
}

func (s *RaftState) Myself() MemberId { return s.myself }

func (s *RaftState) VotingMembers() map[MemberId]struct{} {
	out := make(map[MemberId]struct{}, len(s.votingMembers))
	for m := range s.votingMembers {
		out[m] = struct{}{}
	}
	return out
}

func (s *RaftState) IsVotingMember(m MemberId) bool {
	_, ok := s.votingMembers[m]
	return ok
}

func (s *RaftState) Term() Term             { return s.termState.Term() }
func (s *RaftState) VotedFor() (MemberId, bool) { return s.voteState.VotedFor() }
func (s *RaftState) Role() Role             { return s.role }
func (s *RaftState) Log() *RaftLog          { return s.entryLog }
func (s *RaftState) CommitIndex() LogIndex  { return s.commitIndex }
func (s *RaftState) LastApplied() LogIndex  { return s.lastApplied }
func (s *RaftState) StoreId() StoreId       { return s.storeId }

func (s *RaftState) FollowerProgressOf(member MemberId) (FollowerProgress, bool) {
	fp, ok := s.leaderState[member]
	if !ok {
		return FollowerProgress{}, false
	}
	return *fp, true
}

func (s *RaftState) AllFollowerProgress() map[MemberId]FollowerProgress {
	out := make(map[MemberId]FollowerProgress, len(s.leaderState))
	for m, fp := range s.leaderState {
		out[m] = *fp
	}
	return out
}

func (s *RaftState) CandidateVotes() map[MemberId]struct{} {
	out := make(map[MemberId]struct{}, len(s.votesReceived))
	for m := range s.votesReceived {
		out[m] = struct{}{}
	}
	return out
}

// ResetCandidateVotes clears the vote tally and self-votes, called when
// starting a new election (spec §4.7).
func (s *RaftState) ResetCandidateVotes() {
	s.votesReceived = map[MemberId]struct{}{s.myself: {}}
}

// RecordGrantedVote adds member to the current election's tally.
func (s *RaftState) RecordGrantedVote(member MemberId) {
	if s.votesReceived == nil {
		s.votesReceived = map[MemberId]struct{}{}
	}
	s.votesReceived[member] = struct{}{}
}

// SetFollowerProgress is called by RaftInstance while applying an
// Outcome; handlers never call it directly (they run over the read-only
// view), keeping RaftState single-writer per spec §5.
func (s *RaftState) SetFollowerProgress(member MemberId, fp FollowerProgress) {
	s.leaderState[member] = &fp
}

// InitLeaderState resets per-follower tracking on entering Leader, per
// spec §4.8: nextIndex := appendIndex+1, matchIndex := NoIndex for every
// other voting member.
func (s *RaftState) InitLeaderState() {
	lastIndex := s.entryLog.AppendIndex()
	s.leaderState = make(map[MemberId]*FollowerProgress, len(s.votingMembers))
	for m := range s.votingMembers {
		if m == s.myself {
			continue
		}
		s.leaderState[m] = &FollowerProgress{MatchIndex: NoIndex, NextIndex: lastIndex + 1, LastSentIndex: NoIndex}
	}
}

// SetRole, SetCommitIndex, SetLastApplied, and the TermState/VoteState
// accessors below are the single-writer mutation surface RaftInstance
// uses to apply an Outcome. They are intentionally not part of
// ReadableRaftState.
func (s *RaftState) SetRole(r Role)                { s.role = r }
func (s *RaftState) SetCommitIndex(i LogIndex)     { s.commitIndex = i }
func (s *RaftState) SetLastApplied(i LogIndex)     { s.lastApplied = i }
func (s *RaftState) TermStateRef() *TermState      { return s.termState }
func (s *RaftState) VoteStateRef() *VoteState      { return s.voteState }

// Majority reports whether count forms a strict majority of votingMembers.
func (s *RaftState) Majority(count int) bool {
	return count > len(s.votingMembers)/2
}
