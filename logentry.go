package consensus

import (
	"encoding/binary"
	"fmt"
)

// LogEntryType tags the kind of cluster event carried in the log stream.
// This is distinct from RecordingLog's TERM/SNAPSHOT index (which only
// marks term and snapshot boundaries) and from the wire package's
// inter-member control protocol (which never touches application content).
type LogEntryType uint32

const (
	LogEntryServiceMessage LogEntryType = iota
	LogEntrySessionClose
	LogEntryTimerEvent
)

const logEntryHeaderLength = 8

// LogEntry is one committed cluster event: a service-originated message, a
// session closing, or a timer firing. The consensus layer treats a service
// message's body as opaque bytes; only the owning service interprets it.
type LogEntry struct {
	Type          LogEntryType
	ServiceId     int32
	SessionId     int64
	CloseReason   int32
	CorrelationId int64
	Body          []byte
}

// Marshal frames the entry as [type uint32][length uint32][fields...],
// mirroring the snapshot package's own record framing.
func (e *LogEntry) Marshal() []byte {
	var payload []byte
	switch e.Type {
	case LogEntryServiceMessage:
		var b [12]byte
		binary.LittleEndian.PutUint32(b[0:4], uint32(e.ServiceId))
		binary.LittleEndian.PutUint64(b[4:12], uint64(e.SessionId))
		payload = append(payload, b[:]...)
		putLogBytes(&payload, e.Body)
	case LogEntrySessionClose:
		var b [12]byte
		binary.LittleEndian.PutUint64(b[0:8], uint64(e.SessionId))
		binary.LittleEndian.PutUint32(b[8:12], uint32(e.CloseReason))
		payload = append(payload, b[:]...)
	case LogEntryTimerEvent:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[0:8], uint64(e.CorrelationId))
		payload = append(payload, b[:]...)
	}
	out := make([]byte, logEntryHeaderLength, logEntryHeaderLength+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(e.Type))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(payload)))
	out = append(out, payload...)
	return out
}

// DecodeLogEntry reads one framed entry off the front of b, returning the
// entry and the number of bytes it consumed so a caller walking a multi-entry
// read can advance past it.
func DecodeLogEntry(b []byte) (*LogEntry, int, error) {
	if len(b) < logEntryHeaderLength {
		return nil, 0, fmt.Errorf("logentry: short header")
	}
	typ := LogEntryType(binary.LittleEndian.Uint32(b[0:4]))
	n := int(binary.LittleEndian.Uint32(b[4:8]))
	if len(b) < logEntryHeaderLength+n {
		return nil, 0, fmt.Errorf("logentry: short payload")
	}
	payload := b[logEntryHeaderLength : logEntryHeaderLength+n]
	e := &LogEntry{Type: typ}
	var err error
	switch typ {
	case LogEntryServiceMessage:
		if len(payload) < 12 {
			return nil, 0, fmt.Errorf("logentry: short service-message payload")
		}
		e.ServiceId = int32(binary.LittleEndian.Uint32(payload[0:4]))
		e.SessionId = int64(binary.LittleEndian.Uint64(payload[4:12]))
		e.Body, _, err = getLogBytes(payload[12:])
	case LogEntrySessionClose:
		if len(payload) < 12 {
			return nil, 0, fmt.Errorf("logentry: short session-close payload")
		}
		e.SessionId = int64(binary.LittleEndian.Uint64(payload[0:8]))
		e.CloseReason = int32(binary.LittleEndian.Uint32(payload[8:12]))
	case LogEntryTimerEvent:
		if len(payload) < 8 {
			return nil, 0, fmt.Errorf("logentry: short timer-event payload")
		}
		e.CorrelationId = int64(binary.LittleEndian.Uint64(payload[0:8]))
	default:
		return nil, 0, fmt.Errorf("logentry: unknown entry type %d", typ)
	}
	if err != nil {
		return nil, 0, err
	}
	return e, logEntryHeaderLength + n, nil
}

func putLogBytes(buf *[]byte, p []byte) {
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(len(p)))
	*buf = append(*buf, lb[:]...)
	*buf = append(*buf, p...)
}

func getLogBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("logentry: short bytes header")
	}
	n := binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, fmt.Errorf("logentry: short bytes body")
	}
	return append([]byte(nil), b[:n]...), b[n:], nil
}
