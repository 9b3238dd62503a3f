package main

import (
	"encoding/json"
	"net/http"

	"github.com/coreraft/raft/raft"
	"github.com/coreraft/raft/statemachine"
)

// registerHTTPAPI wires the health/introspection endpoint (SPEC_FULL.md
// §12.3, finishing the teacher's cmd/main.go stub that only logged and
// never answered) plus a minimal /kv surface so Propose and the demo
// Applier are reachable from outside the process.
func registerHTTPAPI(mux *http.ServeMux, instance *raft.RaftInstance, sm *statemachine.KVStateMachine) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(w, instance)
	})
	mux.HandleFunc("/kv/set", func(w http.ResponseWriter, r *http.Request) {
		handleKVSet(w, r, instance)
	})
	mux.HandleFunc("/kv/get", func(w http.ResponseWriter, r *http.Request) {
		handleKVGet(w, r, sm)
	})
}

type healthResponse struct {
	Term        raft.Term                          `json:"term"`
	Role        string                              `json:"role"`
	// LeaderKnown is always false: RaftInstance does not record the leader.
	LeaderKnown bool                                `json:"leader_known"`
	CommitIndex raft.LogIndex                       `json:"commit_index"`
	LastApplied raft.LogIndex                       `json:"last_applied"`
	Followers   map[string]raft.FollowerProgress    `json:"followers,omitempty"`
}

func handleHealth(w http.ResponseWriter, instance *raft.RaftInstance) {
	state := instance.State()

	resp := healthResponse{
		Term:        state.Term(),
		Role:        state.Role().String(),
		CommitIndex: state.CommitIndex(),
		LastApplied: state.LastApplied(),
	}

	if state.Role() == raft.Leader {
		resp.Followers = make(map[string]raft.FollowerProgress)
		for member, fp := range state.AllFollowerProgress() {
			resp.Followers[member.String()] = fp
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type kvSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func handleKVSet(w http.ResponseWriter, r *http.Request, instance *raft.RaftInstance) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req kvSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payload, err := statemachine.EncodeSet(req.Key, req.Value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	index, err := instance.Propose(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]raft.LogIndex{"index": index})
}

func handleKVGet(w http.ResponseWriter, r *http.Request, sm *statemachine.KVStateMachine) {
	key := r.URL.Query().Get("key")
	value, ok := sm.Get(key)
	if !ok {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"value": value})
}
