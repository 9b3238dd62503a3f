package raft

// TermState is the persistent current-term record described in spec §3/
// §4.2. It is kept separate from VoteState (rather than folded into one
// blob as the teacher's single persist() call does) so a term bump can be
// made durable independently of a vote grant — see SPEC_FULL.md §12.2.
type TermState struct {
	term Term
}

// NewTermState returns the start state, term 0 (no elections yet).
func NewTermState() *TermState {
	return &TermState{term: 0}
}

// Term returns the current term.
func (t *TermState) Term() Term {
	return t.term
}

// Update advances the term. Per spec §4.2, only monotonically
// non-decreasing terms are permitted; attempting to move backward is a
// programming error in the caller, surfaced as a SafetyViolation rather
// than silently ignored.
func (t *TermState) Update(newTerm Term) bool {
	if newTerm < t.term {
		panic(SafetyViolation{
			Reason: "term moved backward",
			Detail: "current=" + itoa64(int64(t.term)) + " attempted=" + itoa64(int64(newTerm)),
		})
	}
	if newTerm == t.term {
		return false
	}
	t.term = newTerm
	return true
}
