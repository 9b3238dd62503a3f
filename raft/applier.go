package raft

// Applier is the host's collaborator that turns committed log entries
// into effects on the actual data store (spec §1: "the graph storage
// engine is out of scope; this repo talks to it only through a narrow
// apply interface"). RaftInstance calls Apply in strict, gapless index
// order as commitIndex advances past lastApplied (spec §4.1's "commit
// advances monotonically, application follows the same order" rule);
// Apply must not be called concurrently.
type Applier interface {
	Apply(index LogIndex, entry RaftLogEntry) error
}
