package statemachine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreraft/raft/raft"
)

func TestDecodeCmd(t *testing.T) {
	tt := []struct {
		name        string
		msg         []byte
		expectedCmd command
		expectedErr error
	}{
		{
			name:        "set command",
			msg:         []byte{0x00, 0x00, 0x00, 0x00, 0x03, 'k', 'e', 'y', 0x00, 0x00, 0x00, 0x05, 'v', 'a', 'l', 'u', 'e'},
			expectedCmd: command{kind: cmdSet, key: "key", value: "value"},
		},
		{
			name:        "invalid key length",
			msg:         []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF},
			expectedErr: fmt.Errorf("invalid key length: %d", 4294967295),
		},
		{
			name:        "message too short for value length",
			msg:         []byte{0x00, 0x00, 0x00, 0x00, 0x03, 'k', 'e', 'y', 0x00, 0x00, 0x00},
			expectedErr: fmt.Errorf("message too short for value length"),
		},
		{
			name:        "invalid value length",
			msg:         []byte{0x00, 0x00, 0x00, 0x00, 0x03, 'k', 'e', 'y', 0xFF, 0xFF, 0xFF, 0xFF},
			expectedErr: fmt.Errorf("invalid value length: %d", 4294967295),
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			res, err := decodeCmd(tc.msg)
			if tc.expectedErr != nil {
				require.EqualError(t, err, tc.expectedErr.Error())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectedCmd, res)
		})
	}
}

func TestEncodeCmd(t *testing.T) {
	tt := []struct {
		name        string
		cmd         command
		expectedMsg []byte
		expectedErr error
	}{
		{
			name: "set command",
			cmd:  command{kind: cmdSet, key: "key", value: "value"},
			expectedMsg: []byte{
				0x00,
				0x00, 0x00, 0x00, 0x03,
				'k', 'e', 'y',
				0x00, 0x00, 0x00, 0x05,
				'v', 'a', 'l', 'u', 'e',
			},
		},
		{
			name:        "empty value",
			cmd:         command{kind: cmdSet, key: "key", value: ""},
			expectedMsg: []byte{0x00, 0x00, 0x00, 0x00, 0x03, 'k', 'e', 'y', 0x00, 0x00, 0x00, 0x00},
		},
		{
			name:        "delete command",
			cmd:         command{kind: cmdDelete, key: "key"},
			expectedMsg: []byte{0x01, 0x00, 0x00, 0x00, 0x03, 'k', 'e', 'y'},
		},
		{
			name:        "empty key is rejected",
			cmd:         command{kind: cmdSet, key: "", value: "value"},
			expectedErr: fmt.Errorf("key cannot be empty"),
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			res, err := encodeCmd(tc.cmd)
			if tc.expectedErr != nil {
				require.EqualError(t, err, tc.expectedErr.Error())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectedMsg, res)
		})
	}
}

func TestEncodeDecodeCompatibility(t *testing.T) {
	tt := []struct {
		name string
		cmd  command
	}{
		{name: "set command", cmd: command{kind: cmdSet, key: "key", value: "value"}},
		{name: "delete command", cmd: command{kind: cmdDelete, key: "key"}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := encodeCmd(tc.cmd)
			require.NoError(t, err)

			decoded, err := decodeCmd(encoded)
			require.NoError(t, err)

			require.Equal(t, tc.cmd, decoded)
		})
	}
}

func TestKVStateMachine_ApplySetAndGet(t *testing.T) {
	sm := NewKVStateMachine()

	payload, err := EncodeSet("foo", "bar")
	require.NoError(t, err)

	require.NoError(t, sm.Apply(0, raft.RaftLogEntry{Term: 1, Payload: payload}))

	value, ok := sm.Get("foo")
	require.True(t, ok)
	require.Equal(t, "bar", value)
}

func TestKVStateMachine_ApplyDelete(t *testing.T) {
	sm := NewKVStateMachine()

	setPayload, err := EncodeSet("foo", "bar")
	require.NoError(t, err)
	require.NoError(t, sm.Apply(0, raft.RaftLogEntry{Term: 1, Payload: setPayload}))

	deletePayload, err := EncodeDelete("foo")
	require.NoError(t, err)
	require.NoError(t, sm.Apply(1, raft.RaftLogEntry{Term: 1, Payload: deletePayload}))

	_, ok := sm.Get("foo")
	require.False(t, ok)
}

func TestKVStateMachine_ApplyRejectsMalformedPayload(t *testing.T) {
	sm := NewKVStateMachine()
	err := sm.Apply(0, raft.RaftLogEntry{Term: 1, Payload: []byte{0xFF}})
	require.Error(t, err)
}
