package raft

// handleCandidateAppendEntries implements spec §4.6's "concede" rule. A
// higher term is handled generically by applyCommonRules (moves us to
// Follower already). An AppendEntries at exactly our current term means
// some other candidate won this term's election first: we concede,
// transition to Follower, and process the request exactly as a Follower
// would (spec §4.6: "concede — transition to Follower, process as
// Follower").
func handleCandidateAppendEntries(state ReadableRaftState, req AppendEntriesRequest) Outcome {
	common, stale, _ := applyCommonRules(state, req.Term)
	if stale {
		return common.WithMessage(req.From, AppendEntriesResponse{
			From: state.Myself(), Term: state.Term(), Success: false, MatchIndex: NoIndex,
		})
	}

	_ = common
	// Whether this bumped our term or merely matched it, we concede and
	// process it as a Follower; appendEntriesAsFollower reruns the common
	// rules itself with seedRole=Follower so both cases collapse to one.
	return appendEntriesAsFollower(state, req, Follower)
}

// handleCandidateVoteResponse implements spec §4.6: count a granted vote
// for the current term, and transition to Leader once a strict majority
// is reached. The running vote set lives on RaftState (ReadableRaftState.
// CandidateVotes), since it is Candidate-only bookkeeping rather than
// something every role's ReadableRaftState consumer needs to reason
// about.
//
// Per spec §3/§4.4's universal rule, a response carrying a term greater
// than ours always wins first: we step down to Follower and adopt it,
// same as any other message, before ever looking at Granted. A response
// behind our term is equally stale and ignored either way.
func handleCandidateVoteResponse(state ReadableRaftState, resp VoteResponse) Outcome {
	common, stale, _ := applyCommonRules(state, resp.Term)
	if stale || common.TermChanged {
		return common
	}

	if !resp.Granted {
		return common
	}

	votes := state.CandidateVotes()
	if _, already := votes[resp.From]; already {
		return common
	}

	out := common.WithGrantedVote(resp.From)

	if !state.Majority(len(votes) + 1) {
		return out
	}

	return mergeIntoLeader(out, state)
}

// mergeIntoLeader builds the Leader-entry Outcome (spec §4.8 "on entry")
// and folds in the vote-grant bookkeeping already captured in seed, so
// the winning vote and the role transition land in one atomic Outcome.
func mergeIntoLeader(seed Outcome, state ReadableRaftState) Outcome {
	out := seed.WithRole(Leader).WithLeader(state.Myself())

	lastIndex := state.Log().AppendIndex()
	lastTerm := state.Log().ReadEntryTerm(lastIndex)

	for member := range state.VotingMembers() {
		if member == state.Myself() {
			continue
		}
		out = out.WithFollowerUpdate(member, FollowerProgress{
			MatchIndex: NoIndex, NextIndex: lastIndex + 1, LastSentIndex: lastIndex,
		})
		out = out.WithMessage(member, AppendEntriesRequest{
			From:         state.Myself(),
			Term:         state.Term(),
			PrevLogIndex: lastIndex,
			PrevLogTerm:  lastTerm,
			Entries:      nil,
			LeaderCommit: state.CommitIndex(),
		})
	}
	return out
}
