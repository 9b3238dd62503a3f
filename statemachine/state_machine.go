// Package statemachine is a demo Applier: an in-memory key-value store
// driven by committed log entries, standing in for the real graph storage
// engine the host process would wire in instead (spec §1). It is grounded
// on the teacher's root-level state_machine.go/command.go (package
// casual_raft), generalized from a request/response Apply([]byte)([]byte,
// error) into raft.Applier's Apply(index, entry) error shape — commit
// application has no caller waiting on a reply, so there is nothing to
// return but the error.
package statemachine

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/coreraft/raft/raft"
)

// KVStateMachine is a simple in-memory key-value Applier.
type KVStateMachine struct {
	mu sync.RWMutex
	db map[string]string
}

func NewKVStateMachine() *KVStateMachine {
	return &KVStateMachine{db: make(map[string]string)}
}

// Apply implements raft.Applier. index is the log position the entry
// committed at; this demo store does not need it beyond logging, a real
// Applier would use it to make application idempotent across restarts.
func (sm *KVStateMachine) Apply(index raft.LogIndex, entry raft.RaftLogEntry) error {
	cmd, err := decodeCmd(entry.Payload)
	if err != nil {
		return fmt.Errorf("statemachine: apply at index %d: %w", index, err)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch cmd.kind {
	case cmdSet:
		sm.db[cmd.key] = cmd.value
	case cmdDelete:
		delete(sm.db, cmd.key)
	}
	return nil
}

// Get serves a local read directly from applied state, bypassing the log
// entirely — consistent with spec §1's framing that reads are the host's
// concern, not the consensus core's.
func (sm *KVStateMachine) Get(key string) (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	v, ok := sm.db[key]
	return v, ok
}

// EncodeSet and EncodeDelete build the payload for a RaftLogEntry the
// host hands to the leader for replication (spec §1's "the host appends
// client commands through the leader"); the consensus core treats the
// result as an opaque blob.
func EncodeSet(key, value string) ([]byte, error) {
	return encodeCmd(command{kind: cmdSet, key: key, value: value})
}

func EncodeDelete(key string) ([]byte, error) {
	return encodeCmd(command{kind: cmdDelete, key: key})
}

// decodeCmd decodes a command from a byte slice
/*
	command itself is encoded in bytes as follows:
	[0]     			               - cmdKind
	[1..5] 				   			   - keyLen, uint32
	[5..5+keyLen] 	   	   			   - key
	[5+keyLen..5+keyLen+4] 			   - valueLen, uint32
	[5+keyLen+4 - 5+keyLen+4+valueLen] - value
*/
func decodeCmd(msg []byte) (command, error) {
	var cmd command

	if len(msg) < 5 {
		return cmd, fmt.Errorf("command too short: %d bytes", len(msg))
	}

	cmd.kind = cmdKind(msg[0])

	keyLen := int(binary.BigEndian.Uint32(msg[1:5]))
	if keyLen <= 0 || keyLen > 1024 {
		return cmd, fmt.Errorf("invalid key length: %d", keyLen)
	}
	if len(msg) < 5+keyLen {
		return cmd, fmt.Errorf("incomplete message for key: need %d, got %d", 5+keyLen, len(msg))
	}

	cmd.key = string(msg[5 : 5+keyLen])

	if cmd.kind == cmdSet {
		valueOffset := 5 + keyLen
		if len(msg) < valueOffset+4 {
			return cmd, fmt.Errorf("message too short for value length")
		}

		valueLen := int(binary.BigEndian.Uint32(msg[valueOffset : valueOffset+4]))
		if valueLen < 0 || valueLen > 1024*1024 {
			return cmd, fmt.Errorf("invalid value length: %d", valueLen)
		}
		if len(msg) < valueOffset+4+valueLen {
			return cmd, fmt.Errorf("incomplete message for value: need %d, got %d", valueOffset+4+valueLen, len(msg))
		}

		cmd.value = string(msg[valueOffset+4 : valueOffset+4+valueLen])
	}

	return cmd, nil
}

// encodeCmd encodes a command into a byte slice, the inverse of decodeCmd.
func encodeCmd(cmd command) ([]byte, error) {
	switch cmd.kind {
	case cmdSet, cmdDelete:
	default:
		return nil, fmt.Errorf("unsupported command kind: %d", cmd.kind)
	}

	keyLen := uint32(len(cmd.key))
	if keyLen == 0 {
		return nil, fmt.Errorf("key cannot be empty")
	}
	if keyLen > 1024 {
		return nil, fmt.Errorf("key too large: %d bytes", keyLen)
	}

	var valueLen uint32
	if cmd.kind == cmdSet {
		valueLen = uint32(len(cmd.value))
		if valueLen > 1024*1024 {
			return nil, fmt.Errorf("value too large: %d bytes", valueLen)
		}
	}

	totalMsgLen := 1 + 4 + keyLen
	if cmd.kind == cmdSet {
		totalMsgLen += 4 + valueLen
	}

	buf := make([]byte, totalMsgLen)
	buf[0] = byte(cmd.kind)
	binary.BigEndian.PutUint32(buf[1:5], keyLen)
	copy(buf[5:5+keyLen], cmd.key)

	if cmd.kind == cmdSet {
		valOffset := 5 + keyLen
		binary.BigEndian.PutUint32(buf[valOffset:valOffset+4], valueLen)
		copy(buf[valOffset+4:valOffset+4+valueLen], cmd.value)
	}

	return buf, nil
}
