package raft

// StartElection implements spec §4.7, grounded on the original Java
// Election.start (original_source enterprise/core-edge raft/roles/
// Election.java): bump the term, self-vote, broadcast Vote.Request to
// every other voting member, move to Candidate, and reset the election
// timer with a fresh randomized timeout (the actual randomization lives
// in RaftInstance's timer scheduling, not here; this Outcome only flags
// that a reset is due).
//
// Per spec §4.7, an election is only started if we are a voting member;
// otherwise ok is false and the caller should log and do nothing.
func StartElection(state ReadableRaftState) (Outcome, bool) {
	if !state.IsVotingMember(state.Myself()) {
		return Outcome{}, false
	}

	nextTerm := state.Term() + 1
	lastIndex := state.Log().AppendIndex()
	lastTerm := state.Log().ReadEntryTerm(lastIndex)

	out := NewOutcome(Candidate).
		WithTerm(nextTerm).
		WithVote(state.Myself()).
		WithElectionTimerReset()

	for member := range state.VotingMembers() {
		if member == state.Myself() {
			continue
		}
		out = out.WithMessage(member, VoteRequest{
			From:         state.Myself(),
			Term:         nextTerm,
			Candidate:    state.Myself(),
			LastLogIndex: lastIndex,
			LastLogTerm:  lastTerm,
			StoreId:      state.StoreId(),
		})
	}

	return out, true
}
