// Package recordinglog implements the durable, append-only index of
// leadership terms and snapshots used to recover a consensus module node.
// The in-memory vector mirrors a stable-store/log-provider split: one
// small struct holds the canonical state, one file holds the durable
// record of it.
package recordinglog

import (
	"encoding/binary"
	"fmt"
)

// EntryType distinguishes a leadership-term marker from a snapshot marker.
type EntryType int32

const (
	EntryTypeTerm EntryType = iota
	EntryTypeSnapshot
)

func (t EntryType) String() string {
	if t == EntryTypeTerm {
		return "TERM"
	}
	return "SNAPSHOT"
}

// ServiceIdConsensusModule is the reserved serviceId for the consensus
// module's own snapshot entry, distinct from every per-service snapshot.
const ServiceIdConsensusModule int32 = -1

// ReservedRecordingId is never a valid recordingId.
const ReservedRecordingId int64 = -1

// EntryLength is the fixed on-disk size of one Entry record, in bytes.
const EntryLength = 64

// Entry is a single persisted record: either a TERM or a SNAPSHOT marker.
type Entry struct {
	RecordingId         int64
	LeadershipTermId    int64
	TermBaseLogPosition int64
	LogPosition         int64
	Timestamp           int64
	ServiceId           int32
	Type                EntryType
	IsValid             bool
	EntryIndex          int32
}

// Encode writes the fixed-size binary representation of e into a freshly
// allocated EntryLength-byte slice, little-endian
func (e Entry) Encode() []byte {
	b := make([]byte, EntryLength)
	binary.LittleEndian.PutUint64(b[0:8], uint64(e.RecordingId))
	binary.LittleEndian.PutUint64(b[8:16], uint64(e.LeadershipTermId))
	binary.LittleEndian.PutUint64(b[16:24], uint64(e.TermBaseLogPosition))
	binary.LittleEndian.PutUint64(b[24:32], uint64(e.LogPosition))
	binary.LittleEndian.PutUint64(b[32:40], uint64(e.Timestamp))
	binary.LittleEndian.PutUint32(b[40:44], uint32(e.ServiceId))
	binary.LittleEndian.PutUint32(b[44:48], uint32(e.Type))
	if e.IsValid {
		b[48] = 1
	}
	binary.LittleEndian.PutUint32(b[52:56], uint32(e.EntryIndex))
	return b
}

// DecodeEntry parses one EntryLength-byte record.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < EntryLength {
		return Entry{}, fmt.Errorf("recordinglog: short record (%d bytes)", len(b))
	}
	return Entry{
		RecordingId:         int64(binary.LittleEndian.Uint64(b[0:8])),
		LeadershipTermId:    int64(binary.LittleEndian.Uint64(b[8:16])),
		TermBaseLogPosition: int64(binary.LittleEndian.Uint64(b[16:24])),
		LogPosition:         int64(binary.LittleEndian.Uint64(b[24:32])),
		Timestamp:           int64(binary.LittleEndian.Uint64(b[32:40])),
		ServiceId:           int32(binary.LittleEndian.Uint32(b[40:44])),
		Type:                EntryType(binary.LittleEndian.Uint32(b[44:48])),
		IsValid:             b[48] != 0,
		EntryIndex:          int32(binary.LittleEndian.Uint32(b[52:56])),
	}, nil
}

// less implements the log's logical sort order:
// (leadershipTermId asc, type: TERM before SNAPSHOT, serviceId asc with
// SERVICE_ID (consensus module) first, ties by entryIndex asc); invalid
// entries sort after valid peers of equal key.
func less(a, b Entry) bool {
	if a.LeadershipTermId != b.LeadershipTermId {
		return a.LeadershipTermId < b.LeadershipTermId
	}
	if a.Type != b.Type {
		return a.Type == EntryTypeTerm
	}
	if a.ServiceId != b.ServiceId {
		if a.ServiceId == ServiceIdConsensusModule {
			return true
		}
		if b.ServiceId == ServiceIdConsensusModule {
			return false
		}
		return a.ServiceId < b.ServiceId
	}
	if a.IsValid != b.IsValid {
		return a.IsValid
	}
	return a.EntryIndex < b.EntryIndex
}
