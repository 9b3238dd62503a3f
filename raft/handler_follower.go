package raft

// handleFollowerAppendEntries implements spec §4.5. It is grounded on the
// teacher's raft-server/server_handler.go HandleAppendEntries, generalized
// to produce an Outcome instead of mutating *Server and to use the
// (index, term) consistency-check semantics of RaftLog rather than a
// linear scan over a slice.
func handleFollowerAppendEntries(state ReadableRaftState, req AppendEntriesRequest) Outcome {
	return appendEntriesAsFollower(state, req, Follower)
}

// appendEntriesAsFollower is handleFollowerAppendEntries parameterized by
// seed role, so the Candidate's concession path (spec §4.6) can run the
// exact same AppendEntries logic before state itself has been updated to
// report Follower.
func appendEntriesAsFollower(state ReadableRaftState, req AppendEntriesRequest, seedRole Role) Outcome {
	common, stale, _ := applyCommonRulesFrom(state, req.Term, seedRole)
	if stale {
		return common.WithMessage(req.From, AppendEntriesResponse{
			From: state.Myself(), Term: state.Term(), Success: false, MatchIndex: NoIndex,
		})
	}

	currentTerm := termAfter(common, state)
	out := common.WithElectionTimerReset().WithLeader(req.From)

	// Consistency check (spec §4.5): prevLogIndex == NoIndex is always a
	// match (nothing precedes the first entry).
	if req.PrevLogIndex != NoIndex {
		ourTerm := state.Log().ReadEntryTerm(req.PrevLogIndex)
		if ourTerm == NoTerm || ourTerm != req.PrevLogTerm {
			return out.WithMessage(req.From, AppendEntriesResponse{
				From: state.Myself(), Term: currentTerm, Success: false, MatchIndex: NoIndex,
			})
		}
	}

	// Match: reconcile each incoming entry against our log, truncating on
	// conflict and appending anything new.
	nextIndex := req.PrevLogIndex + 1
	for _, entry := range req.Entries {
		ourTerm := state.Log().ReadEntryTerm(nextIndex)
		if ourTerm != NoTerm && ourTerm != entry.Term {
			out = out.WithLogOp(LogOp{Kind: LogOpTruncate, TruncateFrom: nextIndex})
			out = out.WithLogOp(LogOp{Kind: LogOpAppend, AppendEntry: entry})
		} else if ourTerm == NoTerm {
			out = out.WithLogOp(LogOp{Kind: LogOpAppend, AppendEntry: entry})
		}
		// ourTerm == entry.Term: already present, nothing to do.
		nextIndex++
	}

	lastNewIndex := req.PrevLogIndex + LogIndex(len(req.Entries))
	newCommit := req.LeaderCommit
	if lastNewIndex < newCommit {
		newCommit = lastNewIndex
	}
	if newCommit > state.CommitIndex() {
		out = out.WithLogOp(LogOp{Kind: LogOpCommitTo, CommitIndex: newCommit})
	}

	return out.WithMessage(req.From, AppendEntriesResponse{
		From: state.Myself(), Term: currentTerm, Success: true, MatchIndex: lastNewIndex,
	})
}
