package raft

// VoteState is the persistent per-term vote record described in spec §3/
// §4.2, grounded on the original Java VoteState (original_source
// enterprise/core-edge raft/state/vote/VoteState.java): a term plus the
// member voted for in that term, with the same update rules.
type VoteState struct {
	term     Term
	votedFor MemberId
	voted    bool // distinguishes "voted for member 0" from "haven't voted"
}

// NewVoteState returns the start state: no term seen, no vote cast.
func NewVoteState() *VoteState {
	return &VoteState{term: NoTerm}
}

// VotedFor reports the member voted for in the current term, if any.
func (v *VoteState) VotedFor() (MemberId, bool) {
	return v.votedFor, v.voted
}

// Term returns the term this vote record was last updated for.
func (v *VoteState) Term() Term {
	return v.term
}

// Update applies spec §3's VoteState update rules:
//   - if newTerm != term: reset unconditionally to (newTerm, newVotedFor)
//   - else if votedFor unset: accept newVotedFor
//   - else if newVotedFor != votedFor: panic, a second distinct vote in
//     the same term is a safety violation, never swallowed
//
// It returns true if persisted state changed (the caller must persist
// before treating the vote as granted, per spec §9 and §5's ordering
// guarantee).
func (v *VoteState) Update(newVotedFor MemberId, votingFor bool, newTerm Term) bool {
	if newTerm != v.term {
		v.term = newTerm
		v.votedFor = newVotedFor
		v.voted = votingFor
		return true
	}

	if !v.voted {
		if votingFor {
			v.votedFor = newVotedFor
			v.voted = true
			return true
		}
		return false
	}

	if votingFor && newVotedFor != v.votedFor {
		panic(SafetyViolation{
			Reason: "double vote in one term",
			Detail: "term=" + itoa64(int64(newTerm)) + " votedFor=" + v.votedFor.String() + " attempted=" + newVotedFor.String(),
		})
	}
	return false
}

// Clone returns an independent copy, used to hand out read-only views to
// role handlers without exposing the mutable record itself.
func (v *VoteState) Clone() VoteState {
	return *v
}
