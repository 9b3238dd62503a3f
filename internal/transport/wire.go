// Package transport provides the HTTP/JSON Transport implementation,
// grounded on the teacher's raft-server/http_handler.go and
// raft-server/client.go (encoding/json over net/http), generalized from
// the teacher's fixed three-endpoint, synchronous request/response shape
// into a single endpoint carrying any raft.Message, fire-and-forget per
// raft.Transport's async contract.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/coreraft/raft/raft"
)

// envelope is the wire shape every message is wrapped in: a Kind tag so
// the receiver knows which concrete type to decode Payload into, mirrored
// on raft.Message.messageKind() (unexported, so the tag is recomputed
// here per kind rather than reused directly).
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

const (
	kindVoteRequest           = "Vote.Request"
	kindVoteResponse          = "Vote.Response"
	kindAppendEntriesRequest  = "AppendEntries.Request"
	kindAppendEntriesResponse = "AppendEntries.Response"
	kindLogCompactionInfo     = "LogCompactionInfo"
)

func encodeEnvelope(msg raft.Message) ([]byte, error) {
	var kind string
	switch msg.(type) {
	case raft.VoteRequest:
		kind = kindVoteRequest
	case raft.VoteResponse:
		kind = kindVoteResponse
	case raft.AppendEntriesRequest:
		kind = kindAppendEntriesRequest
	case raft.AppendEntriesResponse:
		kind = kindAppendEntriesResponse
	case raft.LogCompactionInfo:
		kind = kindLogCompactionInfo
	default:
		return nil, fmt.Errorf("transport: unknown message type %T", msg)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: kind, Payload: payload})
}

func decodeEnvelope(data []byte) (raft.Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Kind {
	case kindVoteRequest:
		var m raft.VoteRequest
		return m, json.Unmarshal(env.Payload, &m)
	case kindVoteResponse:
		var m raft.VoteResponse
		return m, json.Unmarshal(env.Payload, &m)
	case kindAppendEntriesRequest:
		var m raft.AppendEntriesRequest
		return m, json.Unmarshal(env.Payload, &m)
	case kindAppendEntriesResponse:
		var m raft.AppendEntriesResponse
		return m, json.Unmarshal(env.Payload, &m)
	case kindLogCompactionInfo:
		var m raft.LogCompactionInfo
		return m, json.Unmarshal(env.Payload, &m)
	default:
		return nil, fmt.Errorf("transport: unknown wire kind %q", env.Kind)
	}
}
