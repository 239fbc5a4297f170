// Package clusterkv is a minimal key/value application service wired to
// the consensus module's log, demonstrating the service-container contract
// left external to the module: apply committed entries in log order and
// snapshot/restore via the same msgpack encoding the
// consensus module uses for its own state, the way a demo application
// service sits beside a replicated core.
package clusterkv

import (
	"sync"

	"github.com/ugorji/go/codec"
)

var mh = &codec.MsgpackHandle{}

// CommandType distinguishes a SET from an UNSET.
type CommandType int32

const (
	CommandSet CommandType = iota
	CommandUnset
)

// Command is one client request applied to the state machine in log order.
type Command struct {
	Type  CommandType
	Key   string
	Value []byte
}

// EncodeCommand serializes a Command for ingress/log transport.
func EncodeCommand(c Command) ([]byte, error) {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, mh).Encode(&c); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeCommand deserializes a Command previously built by EncodeCommand.
// Malformed input decodes to the zero Command rather than panicking, since
// it may originate from an untrusted ingress publication.
func DecodeCommand(b []byte) (Command, error) {
	var c Command
	err := codec.NewDecoderBytes(b, mh).Decode(&c)
	return c, err
}

// StateMachine is a replicated map, applied once per committed log entry.
type StateMachine struct {
	mu                  sync.RWMutex
	leadershipTermId    int64
	logPosition         int64
	values              map[string][]byte
}

// NewStateMachine builds an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{values: make(map[string][]byte)}
}

// Apply applies one committed command, recording the log coordinates it was
// applied at so a subsequent Snapshot carries them (the snapshot
// marker fields).
func (m *StateMachine) Apply(leadershipTermId, logPosition int64, cmd Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch cmd.Type {
	case CommandSet:
		m.values[cmd.Key] = append([]byte(nil), cmd.Value...)
	case CommandUnset:
		delete(m.values, cmd.Key)
	}
	m.leadershipTermId = leadershipTermId
	m.logPosition = logPosition
}

// Value reads one key.
func (m *StateMachine) Value(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Keys returns every stored key, in no particular order.
func (m *StateMachine) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}

// snapshotPayload is the msgpack-encoded body written between a snapshot
// stream's RecordBegin and RecordEnd markers for this service.
type snapshotPayload struct {
	LeadershipTermId int64
	LogPosition      int64
	Values           map[string][]byte
}

// Snapshot encodes the current state for inclusion in the consensus
// module's snapshot stream at this service's serviceId slot.
func (m *StateMachine) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := make(map[string][]byte, len(m.values))
	for k, v := range m.values {
		values[k] = append([]byte(nil), v...)
	}
	payload := snapshotPayload{LeadershipTermId: m.leadershipTermId, LogPosition: m.logPosition, Values: values}
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, mh).Encode(&payload); err != nil {
		return nil, err
	}
	return buf, nil
}

// Restore replaces the state machine's contents from a previously encoded
// snapshot payload, the path a RecoveryPlan drives on startup.
func (m *StateMachine) Restore(data []byte) error {
	var payload snapshotPayload
	if err := codec.NewDecoderBytes(data, mh).Decode(&payload); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leadershipTermId = payload.LeadershipTermId
	m.logPosition = payload.LogPosition
	if payload.Values == nil {
		payload.Values = make(map[string][]byte)
	}
	m.values = payload.Values
	return nil
}
