package raft

// applyCommonRules implements spec §4.4 steps 1 and 2, shared by every
// role's handler for every message kind:
//
//  1. Stale-term rejection: if msgTerm < currentTerm, the caller must
//     reject and change nothing; staleOutcome is returned with stale=true
//     and the caller should not proceed to role-specific logic.
//  2. Term advancement: if msgTerm > currentTerm, advance the term, clear
//     the vote, and move to Follower; the returned Outcome already
//     reflects that, and effectiveRole tells the caller which role's
//     logic to run next (always Follower in this branch).
//
// Leader-contact timer reset (step 3) is role-specific (only Follower
// resets on AppendEntries/vote-grant observation) and is layered on by
// each role's own handler.
func applyCommonRules(state ReadableRaftState, msgTerm Term) (outcome Outcome, stale bool, effectiveRole Role) {
	return applyCommonRulesFrom(state, msgTerm, state.Role())
}

// applyCommonRulesFrom is applyCommonRules with an explicit seed role,
// used by the Candidate's "concede" path (spec §4.6) to run the
// Follower's message-specific logic without state itself reporting
// Follower yet.
func applyCommonRulesFrom(state ReadableRaftState, msgTerm Term, seedRole Role) (outcome Outcome, stale bool, effectiveRole Role) {
	currentTerm := state.Term()

	if msgTerm < currentTerm {
		return NewOutcome(seedRole), true, seedRole
	}

	if msgTerm > currentTerm {
		o := NewOutcome(Follower).WithTerm(msgTerm).WithClearedVote()
		return o, false, Follower
	}

	return NewOutcome(seedRole), false, seedRole
}

// handleVoteRequest implements spec §4.4's "Vote request handling (all
// roles)" rules. Dispatch calls it directly for every role; it runs
// applyCommonRules itself, which may move us to Follower. state still
// reflects the pre-message role/term so the up-to-date comparisons below
// are against our own unmodified log.
func handleVoteRequest(state ReadableRaftState, req VoteRequest) Outcome {
	if !req.StoreId.Equal(state.StoreId()) {
		// A foreign store is treated as a stale/foreign peer per spec §7
		// and SPEC_FULL.md §12.4: denied, not fatal, and no state change at
		// all; its term is not adopted either.
		return NewOutcome(state.Role()).WithMessage(req.From, VoteResponse{
			From: state.Myself(), Term: state.Term(), Granted: false,
		})
	}

	common, stale, effectiveRole := applyCommonRules(state, req.Term)
	if stale {
		return common.WithMessage(req.From, VoteResponse{
			From: state.Myself(), Term: state.Term(), Granted: false,
		})
	}

	currentTerm := termAfter(common, state)
	votedFor, hasVoted := votedForAfter(common, state)

	sameTerm := req.Term == currentTerm
	notYetVotedOrSameCandidate := !hasVoted || votedFor == req.Candidate
	upToDate := logUpToDate(req.LastLogTerm, req.LastLogIndex, state.Log())

	grant := sameTerm && notYetVotedOrSameCandidate && upToDate

	out := common
	if grant {
		out = out.WithVote(req.Candidate)
		if effectiveRole == Follower {
			out = out.WithElectionTimerReset()
		}
	}

	out = out.WithMessage(req.From, VoteResponse{
		From: state.Myself(), Term: currentTerm, Granted: grant,
	})
	return out
}

// logUpToDate implements spec §4.4's up-to-date comparison: the
// candidate's log is at least as up-to-date as ours iff its last-entry
// term is strictly greater, or equal with an index at least ours.
func logUpToDate(candidateLastLogTerm Term, candidateLastLogIndex LogIndex, ourLog *RaftLog) bool {
	ourIndex := ourLog.AppendIndex()
	ourTerm := ourLog.ReadEntryTerm(ourIndex)

	if candidateLastLogTerm != ourTerm {
		return candidateLastLogTerm > ourTerm
	}
	return candidateLastLogIndex >= ourIndex
}

// termAfter returns the term in effect once common is applied: the new
// term if applyCommonRules bumped it, otherwise the state's current term.
func termAfter(common Outcome, state ReadableRaftState) Term {
	if common.TermChanged {
		return common.NextTerm
	}
	return state.Term()
}

// votedForAfter mirrors termAfter for the vote record: if common already
// cleared or set a vote, that value is in effect; otherwise the state's
// existing vote record stands.
func votedForAfter(common Outcome, state ReadableRaftState) (MemberId, bool) {
	if common.VoteUpdated {
		return common.NextVotedFor, common.Voted
	}
	return state.VotedFor()
}

// Dispatch routes msg to the handler for state's current role, per spec
// §9's "tagged sum plus dispatch function" design note.
func Dispatch(state ReadableRaftState, msg Message) Outcome {
	switch m := msg.(type) {
	case VoteRequest:
		return handleVoteRequest(state, m)
	case VoteResponse:
		return dispatchVoteResponse(state, m)
	case AppendEntriesRequest:
		return dispatchAppendEntries(state, m)
	case AppendEntriesResponse:
		return dispatchAppendEntriesResponse(state, m)
	default:
		return NewOutcome(state.Role())
	}
}

func dispatchVoteResponse(state ReadableRaftState, m VoteResponse) Outcome {
	switch state.Role() {
	case Candidate:
		return handleCandidateVoteResponse(state, m)
	default:
		// Followers and Leaders ignore vote responses, per spec §4.5/§4.8.
		return NewOutcome(state.Role())
	}
}

func dispatchAppendEntries(state ReadableRaftState, m AppendEntriesRequest) Outcome {
	switch state.Role() {
	case Follower:
		return handleFollowerAppendEntries(state, m)
	case Candidate:
		return handleCandidateAppendEntries(state, m)
	case Leader:
		return handleLeaderAppendEntries(state, m)
	default:
		return NewOutcome(state.Role())
	}
}

func dispatchAppendEntriesResponse(state ReadableRaftState, m AppendEntriesResponse) Outcome {
	if state.Role() != Leader {
		// A response arriving after we stepped down is stale, per §7.
		return NewOutcome(state.Role())
	}
	return handleLeaderAppendEntriesResponse(state, m)
}
