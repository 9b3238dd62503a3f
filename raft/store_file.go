package raft

import (
	"encoding/binary"
	"fmt"
	"os"
)

// FileStore is a Store backed by four flat files, grounded on the
// teacher's raft-server/state.go persist()/restore() binary layout
// (header of fixed-width big-endian fields followed by variable-length
// payloads), split one file per record per SPEC_FULL.md §12.2 instead of
// the teacher's single combined blob.
type FileStore struct {
	termPath    string
	votePath    string
	logPath     string
	storeIdPath string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{
		termPath:    dir + "/term.bin",
		votePath:    dir + "/vote.bin",
		logPath:     dir + "/log.bin",
		storeIdPath: dir + "/store_id.bin",
	}
}

// termFileFormat: [0:8] term (uint64 big-endian).
func (fs *FileStore) LoadTerm() (TermRecord, error) {
	data, err := os.ReadFile(fs.termPath)
	if os.IsNotExist(err) {
		return TermRecord{Term: 0}, nil
	}
	if err != nil {
		return TermRecord{}, &TransientError{Op: "LoadTerm", Err: err}
	}
	if len(data) < 8 {
		return TermRecord{}, &FatalError{Op: "LoadTerm", Err: fmt.Errorf("truncated term file: %d bytes", len(data))}
	}
	return TermRecord{Term: Term(binary.BigEndian.Uint64(data[0:8]))}, nil
}

func (fs *FileStore) SaveTerm(rec TermRecord) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(rec.Term))
	if err := writeFileSynced(fs.termPath, buf); err != nil {
		return &TransientError{Op: "SaveTerm", Err: err}
	}
	return nil
}

// voteFileFormat: [0:8] term, [8:16] votedFor, [16] voted (0/1).
func (fs *FileStore) LoadVote() (VoteRecord, error) {
	data, err := os.ReadFile(fs.votePath)
	if os.IsNotExist(err) {
		return VoteRecord{Term: NoTerm}, nil
	}
	if err != nil {
		return VoteRecord{}, &TransientError{Op: "LoadVote", Err: err}
	}
	if len(data) < 17 {
		return VoteRecord{}, &FatalError{Op: "LoadVote", Err: fmt.Errorf("truncated vote file: %d bytes", len(data))}
	}
	return VoteRecord{
		Term:     Term(binary.BigEndian.Uint64(data[0:8])),
		VotedFor: MemberId(binary.BigEndian.Uint64(data[8:16])),
		Voted:    data[16] == 1,
	}, nil
}

func (fs *FileStore) SaveVote(rec VoteRecord) error {
	buf := make([]byte, 17)
	binary.BigEndian.PutUint64(buf[0:8], uint64(rec.Term))
	binary.BigEndian.PutUint64(buf[8:16], uint64(rec.VotedFor))
	if rec.Voted {
		buf[16] = 1
	}
	if err := writeFileSynced(fs.votePath, buf); err != nil {
		return &TransientError{Op: "SaveVote", Err: err}
	}
	return nil
}

// logFileFormat: [0:8] prevIndex, [8:16] entryCount, then entryCount
// entries of [0:8] term [8:16] payloadLen [16:16+payloadLen] payload.
func (fs *FileStore) LoadLog() (LogIndex, []RaftLogEntry, error) {
	data, err := os.ReadFile(fs.logPath)
	if os.IsNotExist(err) {
		return NoIndex, nil, nil
	}
	if err != nil {
		return NoIndex, nil, &TransientError{Op: "LoadLog", Err: err}
	}
	if len(data) < 16 {
		return NoIndex, nil, &FatalError{Op: "LoadLog", Err: fmt.Errorf("truncated log file: %d bytes", len(data))}
	}

	prevIndex := LogIndex(binary.BigEndian.Uint64(data[0:8]))
	count := binary.BigEndian.Uint64(data[8:16])

	entries := make([]RaftLogEntry, 0, count)
	pos := 16
	for i := uint64(0); i < count; i++ {
		if pos+16 > len(data) {
			return NoIndex, nil, &FatalError{Op: "LoadLog", Err: fmt.Errorf("truncated entry header at %d", pos)}
		}
		term := Term(binary.BigEndian.Uint64(data[pos : pos+8]))
		payloadLen := binary.BigEndian.Uint64(data[pos+8 : pos+16])
		pos += 16
		if uint64(pos)+payloadLen > uint64(len(data)) {
			return NoIndex, nil, &FatalError{Op: "LoadLog", Err: fmt.Errorf("truncated entry payload at %d", pos)}
		}
		payload := make([]byte, payloadLen)
		copy(payload, data[pos:pos+int(payloadLen)])
		pos += int(payloadLen)
		entries = append(entries, RaftLogEntry{Term: term, Payload: payload})
	}

	return prevIndex, entries, nil
}

// AppendLogEntries and TruncateLogFrom always rewrite the whole log file.
// This repo's Store is meant for correctness grounding and small test
// clusters, not production-scale durability throughput; a real deployment
// would replace FileStore with an append-only segment writer without
// changing the Store interface.
func (fs *FileStore) AppendLogEntries(fromIndex LogIndex, newEntries []RaftLogEntry) error {
	prevIndex, entries, err := fs.LoadLog()
	if err != nil {
		return err
	}
	want := int(fromIndex - prevIndex - 1)
	if want < 0 || want > len(entries) {
		return &FatalError{Op: "AppendLogEntries", Err: fmt.Errorf("fromIndex %d not contiguous with stored log (prevIndex=%d, len=%d)", fromIndex, prevIndex, len(entries))}
	}
	entries = append(entries[:want], newEntries...)
	return fs.writeLog(prevIndex, entries)
}

func (fs *FileStore) TruncateLogFrom(fromIndex LogIndex) error {
	prevIndex, entries, err := fs.LoadLog()
	if err != nil {
		return err
	}
	cut := int(fromIndex - prevIndex - 1)
	if cut < 0 {
		cut = 0
	}
	if cut > len(entries) {
		cut = len(entries)
	}
	return fs.writeLog(prevIndex, entries[:cut])
}

func (fs *FileStore) writeLog(prevIndex LogIndex, entries []RaftLogEntry) error {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(prevIndex))
	binary.BigEndian.PutUint64(buf[8:16], uint64(len(entries)))
	for _, e := range entries {
		header := make([]byte, 16)
		binary.BigEndian.PutUint64(header[0:8], uint64(e.Term))
		binary.BigEndian.PutUint64(header[8:16], uint64(len(e.Payload)))
		buf = append(buf, header...)
		buf = append(buf, e.Payload...)
	}
	if err := writeFileSynced(fs.logPath, buf); err != nil {
		return &TransientError{Op: "writeLog", Err: err}
	}
	return nil
}

// storeIdFileFormat: [0:8] creationTime, [8:16] randomId, [16:24]
// upgradeTime, [24:32] upgradeId, all big-endian.
func (fs *FileStore) LoadStoreId() (StoreId, bool, error) {
	data, err := os.ReadFile(fs.storeIdPath)
	if os.IsNotExist(err) {
		return StoreId{}, false, nil
	}
	if err != nil {
		return StoreId{}, false, &TransientError{Op: "LoadStoreId", Err: err}
	}
	if len(data) < 32 {
		return StoreId{}, false, &FatalError{Op: "LoadStoreId", Err: fmt.Errorf("truncated store id file: %d bytes", len(data))}
	}
	return StoreId{
		CreationTime: int64(binary.BigEndian.Uint64(data[0:8])),
		RandomId:     binary.BigEndian.Uint64(data[8:16]),
		UpgradeTime:  int64(binary.BigEndian.Uint64(data[16:24])),
		UpgradeId:    binary.BigEndian.Uint64(data[24:32]),
	}, true, nil
}

func (fs *FileStore) SaveStoreId(id StoreId) error {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint64(buf[0:8], uint64(id.CreationTime))
	binary.BigEndian.PutUint64(buf[8:16], id.RandomId)
	binary.BigEndian.PutUint64(buf[16:24], uint64(id.UpgradeTime))
	binary.BigEndian.PutUint64(buf[24:32], id.UpgradeId)
	if err := writeFileSynced(fs.storeIdPath, buf); err != nil {
		return &TransientError{Op: "SaveStoreId", Err: err}
	}
	return nil
}

func writeFileSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
