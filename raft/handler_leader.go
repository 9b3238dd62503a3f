package raft

// handleLeaderAppendEntries implements spec §4.8's handling of an
// AppendEntries arriving while we are Leader. A higher term means
// another leader has since been elected; we step down and process the
// request as a Follower would. A same-or-lower term while we are Leader
// should never happen if election safety holds (spec §4.8: "impossible
// under safety") — rather than panic on what might be a stale retransmit
// or a misbehaving peer, we defensively deny it the same way a stale
// message is denied.
func handleLeaderAppendEntries(state ReadableRaftState, req AppendEntriesRequest) Outcome {
	common, stale, _ := applyCommonRules(state, req.Term)
	if stale {
		return common.WithMessage(req.From, AppendEntriesResponse{
			From: state.Myself(), Term: state.Term(), Success: false, MatchIndex: NoIndex,
		})
	}

	if common.TermChanged {
		return appendEntriesAsFollower(state, req, Follower)
	}

	// Same term, another leader: deny without changing anything.
	return common.WithMessage(req.From, AppendEntriesResponse{
		From: state.Myself(), Term: state.Term(), Success: false, MatchIndex: NoIndex,
	})
}

// handleLeaderAppendEntriesResponse implements spec §4.8's response
// handling and commit advancement. It is grounded on the teacher's
// raft-server/server.go replicateLog/updateCommitIndex, generalized to
// use the current-term restriction precisely (only entries from the
// current term are counted towards a majority, per spec §4.8's "current
// term restriction is essential" note) and to return an Outcome instead
// of mutating *Server fields in place.
func handleLeaderAppendEntriesResponse(state ReadableRaftState, resp AppendEntriesResponse) Outcome {
	if resp.Term > state.Term() {
		// We're behind; step down. There is no request to re-process
		// here, so there's nothing else to do this Outcome beyond the
		// role/term change applyCommonRules already captures for an
		// equivalent "higher term observed" — build it directly since
		// AppendEntriesResponse isn't itself term-checked by
		// applyCommonRules (only requests carry the stale/advance rule
		// in spec §4.4; a response is matched by term per spec §5's
		// cancellation note and simply triggers step-down here).
		return NewOutcome(Follower).WithTerm(resp.Term).WithClearedVote()
	}

	if resp.Term < state.Term() {
		// Stale response for an earlier term, drop.
		return NewOutcome(state.Role())
	}

	fp, known := state.FollowerProgressOf(resp.From)
	if !known {
		return NewOutcome(state.Role())
	}

	out := NewOutcome(state.Role())

	if !resp.Success {
		next := fp.NextIndex
		if next > 0 {
			next--
		}
		out = out.WithFollowerUpdate(resp.From, FollowerProgress{
			MatchIndex: fp.MatchIndex, NextIndex: next, LastSentIndex: fp.LastSentIndex,
		})
		return out
	}

	if resp.MatchIndex > fp.MatchIndex {
		fp.MatchIndex = resp.MatchIndex
		fp.NextIndex = resp.MatchIndex + 1
	}
	out = out.WithFollowerUpdate(resp.From, fp)

	if newCommit, ok := computeCommitAdvance(state, resp.From, fp.MatchIndex); ok {
		out = out.WithLogOp(LogOp{Kind: LogOpCommitTo, CommitIndex: newCommit})
	}

	return out
}

// computeCommitAdvance implements spec §4.8's commit-advancement rule:
// the highest N such that a majority of votingMembers (including self,
// whose matchIndex is always the log's append index) have matchIndex>=N
// AND log.termAt(N)==currentTerm.
func computeCommitAdvance(state ReadableRaftState, justUpdated MemberId, justUpdatedMatch LogIndex) (LogIndex, bool) {
	progress := state.AllFollowerProgress()
	progress[justUpdated] = FollowerProgress{MatchIndex: justUpdatedMatch}

	selfIndex := state.Log().AppendIndex()
	currentTerm := state.Term()

	best := state.CommitIndex()
	for n := state.CommitIndex() + 1; n <= selfIndex; n++ {
		if state.Log().ReadEntryTerm(n) != currentTerm {
			continue
		}
		count := 1 // self
		for member := range state.VotingMembers() {
			if member == state.Myself() {
				continue
			}
			if fp, ok := progress[member]; ok && fp.MatchIndex >= n {
				count++
			}
		}
		if state.Majority(count) {
			best = n
		}
	}

	if best > state.CommitIndex() {
		return best, true
	}
	return 0, false
}
