package raft

import (
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for tests; it never touches disk, so a
// cluster_test.go run never depends on FileStore's encoding (store_file_test.go
// covers that separately).
type memStore struct {
	mu       sync.Mutex
	term     TermRecord
	vote     VoteRecord
	prevIdx  LogIndex
	entries  []RaftLogEntry
	storeId  StoreId
	hasStoreId bool
}

func newMemStore() *memStore {
	return &memStore{prevIdx: NoIndex, vote: VoteRecord{Term: NoTerm}}
}

func (m *memStore) LoadStoreId() (StoreId, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeId, m.hasStoreId, nil
}

func (m *memStore) SaveStoreId(id StoreId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeId = id
	m.hasStoreId = true
	return nil
}

func (m *memStore) LoadTerm() (TermRecord, error) { m.mu.Lock(); defer m.mu.Unlock(); return m.term, nil }
func (m *memStore) SaveTerm(t TermRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.term = t
	return nil
}
func (m *memStore) LoadVote() (VoteRecord, error) { m.mu.Lock(); defer m.mu.Unlock(); return m.vote, nil }
func (m *memStore) SaveVote(v VoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vote = v
	return nil
}
func (m *memStore) AppendLogEntries(fromIndex LogIndex, entries []RaftLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}
func (m *memStore) TruncateLogFrom(fromIndex LogIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cut := int(fromIndex - m.prevIdx - 1)
	if cut < 0 {
		cut = 0
	}
	if cut > len(m.entries) {
		cut = len(m.entries)
	}
	m.entries = m.entries[:cut]
	return nil
}
func (m *memStore) LoadLog() (LogIndex, []RaftLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prevIdx, m.entries, nil
}

// memRegistry wires a fixed set of RaftInstances together without a wire
// format, grounded on the teacher's server_elections_test.go mockCluster
// harness style (a handful of *Server instances feeding each other
// in-process), adapted to this repo's async Transport/Inbox interfaces.
type memRegistry struct {
	mu        sync.RWMutex
	instances map[MemberId]Inbox
}

func newMemRegistry() *memRegistry {
	return &memRegistry{instances: make(map[MemberId]Inbox)}
}

type memTransport struct {
	self     MemberId
	registry *memRegistry
	inbox    Inbox
	dropTo   map[MemberId]bool
	mu       sync.Mutex
}

func newMemTransport(self MemberId, registry *memRegistry) *memTransport {
	return &memTransport{self: self, registry: registry, dropTo: make(map[MemberId]bool)}
}

func (t *memTransport) RegisterInbox(inbox Inbox) {
	t.inbox = inbox
	t.registry.mu.Lock()
	t.registry.instances[t.self] = inbox
	t.registry.mu.Unlock()
}

func (t *memTransport) Start() error { return nil }
func (t *memTransport) Close() error { return nil }

func (t *memTransport) setPartitioned(to MemberId, dropped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropTo[to] = dropped
}

func (t *memTransport) Send(to MemberId, msg Message) error {
	t.mu.Lock()
	dropped := t.dropTo[to]
	t.mu.Unlock()
	if dropped {
		return nil
	}

	t.registry.mu.RLock()
	peer, ok := t.registry.instances[to]
	t.registry.mu.RUnlock()
	if !ok {
		return nil
	}
	go peer.Enqueue(msg)
	return nil
}

type testCluster struct {
	instances map[MemberId]*RaftInstance
	transport map[MemberId]*memTransport
	applied   map[MemberId]*recordingApplier
}

func newTestCluster(t *testing.T, memberCount int) *testCluster {
	t.Helper()

	members := make([]MemberId, memberCount)
	for i := range members {
		members[i] = MemberId(i + 1)
	}

	registry := newMemRegistry()
	tunables := Tunables{
		ElectionTimeoutMin: 40 * time.Millisecond,
		ElectionTimeoutMax: 80 * time.Millisecond,
		HeartbeatInterval:  10 * time.Millisecond,
		CatchupBatchSize:   16,
		MaxShippingLag:     1000,
	}

	c := &testCluster{
		instances: make(map[MemberId]*RaftInstance),
		transport: make(map[MemberId]*memTransport),
		applied:   make(map[MemberId]*recordingApplier),
	}

	for _, id := range members {
		transport := newMemTransport(id, registry)
		applier := newRecordingApplier()
		logger := log.New(&testWriter{t}, "", 0)
		inst := NewRaftInstance(id, members, StoreId{}, newMemStore(), transport, applier, tunables, logger)

		c.instances[id] = inst
		c.transport[id] = transport
		c.applied[id] = applier
	}

	return c
}

func (c *testCluster) run() {
	for _, inst := range c.instances {
		go inst.Run()
	}
}

func (c *testCluster) stop() {
	for _, inst := range c.instances {
		inst.Stop()
	}
}

func (c *testCluster) leader() *RaftInstance {
	for _, inst := range c.instances {
		if inst.State().Role() == Leader {
			return inst
		}
	}
	return nil
}

func (c *testCluster) countLeaders() int {
	n := 0
	for _, inst := range c.instances {
		if inst.State().Role() == Leader {
			n++
		}
	}
	return n
}

// recordingApplier is a test Applier that records applied entries in
// order, standing in for statemachine.KVStateMachine.
type recordingApplier struct {
	mu      sync.Mutex
	applied []RaftLogEntry
}

func newRecordingApplier() *recordingApplier { return &recordingApplier{} }

func (a *recordingApplier) Apply(index LogIndex, entry RaftLogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, entry)
	return nil
}

func (a *recordingApplier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

// testWriter adapts *testing.T.Log to io.Writer so RaftInstance's logger
// output lands in the test's own output instead of stderr.
type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestCluster_ElectsExactlyOneLeader(t *testing.T) {
	c := newTestCluster(t, 3)
	c.run()
	defer c.stop()

	require.Eventually(t, func() bool {
		return c.countLeaders() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, 1, c.countLeaders(), "election safety: never more than one leader per term")
}

func TestCluster_ReplicatesProposalsToAllFollowers(t *testing.T) {
	c := newTestCluster(t, 3)
	c.run()
	defer c.stop()

	require.Eventually(t, func() bool {
		return c.leader() != nil
	}, 2*time.Second, 5*time.Millisecond)

	leader := c.leader()
	_, err := leader.Propose([]byte("set x=1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, a := range c.applied {
			if a.count() < 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond, "every member must eventually apply the committed entry")

	for _, a := range c.applied {
		require.Equal(t, "set x=1", string(a.applied[0].Payload))
	}
}

func TestCluster_SurvivesLeaderPartitionAndReelects(t *testing.T) {
	c := newTestCluster(t, 3)
	c.run()
	defer c.stop()

	require.Eventually(t, func() bool {
		return c.leader() != nil
	}, 2*time.Second, 5*time.Millisecond)

	firstLeader := c.leader()
	firstLeaderID := firstLeader.State().Myself()

	// Partition the old leader from every peer in both directions.
	for id, transport := range c.transport {
		if id == firstLeaderID {
			for other := range c.instances {
				transport.setPartitioned(other, true)
			}
		} else {
			transport.setPartitioned(firstLeaderID, true)
		}
	}

	require.Eventually(t, func() bool {
		for id, inst := range c.instances {
			if id != firstLeaderID && inst.State().Role() == Leader {
				return true
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond, "the remaining majority must elect a new leader once the old one is partitioned away")
}

func TestCluster_CommitIndexNeverRegresses(t *testing.T) {
	c := newTestCluster(t, 3)
	c.run()
	defer c.stop()

	require.Eventually(t, func() bool {
		return c.leader() != nil
	}, 2*time.Second, 5*time.Millisecond)

	leader := c.leader()
	for i := 0; i < 5; i++ {
		_, err := leader.Propose([]byte("op"))
		require.NoError(t, err)
	}

	seen := map[MemberId]LogIndex{}
	for id := range c.instances {
		seen[id] = NoIndex
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for id, inst := range c.instances {
			ci := inst.State().CommitIndex()
			require.GreaterOrEqual(t, ci, seen[id], "commitIndex must be monotonically non-decreasing")
			seen[id] = ci
		}
		time.Sleep(5 * time.Millisecond)
	}
}
