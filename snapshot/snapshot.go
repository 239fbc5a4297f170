// Package snapshot serializes and restores full consensus-module state into
// an archived stream. Records are framed sequentially — begin,
// consensus-module state, cluster members, sessions, timers, one
// pending-message tracker per service, end — msgpack-encoded per record
// with ugorji/go/codec rather than a single whole-state blob, so a corrupt
// tail record doesn't make the rest of the snapshot unreadable.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

// RecordType tags each framed record in the snapshot stream.
type RecordType uint32

const (
	RecordBegin RecordType = iota
	RecordConsensusModuleState
	RecordClusterMembers
	RecordSession
	RecordTimer
	RecordPendingMessage
	RecordEnd
)

var mh = &codec.MsgpackHandle{}

// Marker is the begin/end bookend record, carrying compatibility fields
// checked on load: a snapshot whose recorded appVersion or timeUnit is
// incompatible with the running node's is rejected.
type Marker struct {
	TypeId     uint32
	LogPosition int64
	LeadershipTermId int64
	Timestamp  int64
	AppVersion int32
	TimeUnit   int32
}

// ConsensusModuleState is the compact state block snapshotted once per
// stream
type ConsensusModuleState struct {
	NextSessionId          int64
	NextServiceSessionId   int64
	LogServiceSessionId    int64
	PendingMessageCapacity int32
}

// ClusterMembersRecord captures the member table at snapshot time.
type ClusterMembersRecord struct {
	MemberId      int32
	HighMemberId  int32
	EncodedMembers string
}

// SessionRecord is one OPEN or CLOSING ClusterSession; closed sessions are
// never snapshotted.
type SessionRecord struct {
	Id                    int64
	CorrelationId         int64
	OpenedLogPosition     int64
	TimeOfLastActivityNs  int64
	ResponseStreamId      int32
	ResponseChannel       string
	State                 int32
	CloseReason           int32
}

// TimerRecord is one scheduled timer, keyed by correlationId.
type TimerRecord struct {
	CorrelationId int64
	DeadlineNs    int64
}

// PendingMessageRecord is one pending, not-yet-committed service message.
type PendingMessageRecord struct {
	ServiceId        int32
	ClusterSessionId int64
	Body             []byte
}

// Writer frames records onto an io.Writer (an archived publication image in
// production, a bytes.Buffer in tests).
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) writeFrame(t RecordType, v interface{}) error {
	var payload []byte
	if err := codec.NewEncoderBytes(&payload, mh).Encode(v); err != nil {
		return err
	}
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(t))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.w.Write(payload)
	return err
}

func (w *Writer) Begin(m Marker) error { return w.writeFrame(RecordBegin, m) }
func (w *Writer) End(m Marker) error   { return w.writeFrame(RecordEnd, m) }
func (w *Writer) ConsensusModuleState(s ConsensusModuleState) error {
	return w.writeFrame(RecordConsensusModuleState, s)
}
func (w *Writer) ClusterMembers(c ClusterMembersRecord) error {
	return w.writeFrame(RecordClusterMembers, c)
}
func (w *Writer) Session(s SessionRecord) error { return w.writeFrame(RecordSession, s) }
func (w *Writer) Timer(t TimerRecord) error     { return w.writeFrame(RecordTimer, t) }
func (w *Writer) PendingMessage(p PendingMessageRecord) error {
	return w.writeFrame(RecordPendingMessage, p)
}

// Frame is one decoded record from a snapshot stream.
type Frame struct {
	Type    RecordType
	Payload []byte
}

// Reader reads framed records back off an io.Reader.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

// Next reads the next frame, or io.EOF when the stream is exhausted.
func (r *Reader) Next() (Frame, error) {
	var header [8]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return Frame{}, err
	}
	t := RecordType(binary.LittleEndian.Uint32(header[0:4]))
	n := binary.LittleEndian.Uint32(header[4:8])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Payload: payload}, nil
}

// Decode unmarshals a frame's payload into v.
func Decode(f Frame, v interface{}) error {
	return codec.NewDecoderBytes(f.Payload, mh).Decode(v)
}

// ErrIncompatible is returned by Load when the snapshot's recorded
// appVersion/timeUnit does not match the running node.
var ErrIncompatible = fmt.Errorf("snapshot: incompatible appVersion or timeUnit")

// Loaded is an entire snapshot stream as reassembled by Load: its begin/end
// markers and the per-record slices.
type Loaded struct {
	Begin, End     Marker
	State          ConsensusModuleState
	Members        ClusterMembersRecord
	Sessions       []SessionRecord
	Timers         []TimerRecord
	PendingByService map[int32][]PendingMessageRecord
}

// Load decodes a full snapshot stream, rejecting it if the
// node's own (appVersion, timeUnit) don't match the recorded begin marker.
func Load(r io.Reader, runningAppVersion, runningTimeUnit int32) (*Loaded, error) {
	reader := NewReader(r)
	out := &Loaded{PendingByService: map[int32][]PendingMessageRecord{}}
	for {
		f, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch f.Type {
		case RecordBegin:
			if err := Decode(f, &out.Begin); err != nil {
				return nil, err
			}
			if out.Begin.AppVersion != runningAppVersion || out.Begin.TimeUnit != runningTimeUnit {
				return nil, ErrIncompatible
			}
		case RecordEnd:
			if err := Decode(f, &out.End); err != nil {
				return nil, err
			}
		case RecordConsensusModuleState:
			if err := Decode(f, &out.State); err != nil {
				return nil, err
			}
		case RecordClusterMembers:
			if err := Decode(f, &out.Members); err != nil {
				return nil, err
			}
		case RecordSession:
			var s SessionRecord
			if err := Decode(f, &s); err != nil {
				return nil, err
			}
			out.Sessions = append(out.Sessions, s)
		case RecordTimer:
			var t TimerRecord
			if err := Decode(f, &t); err != nil {
				return nil, err
			}
			out.Timers = append(out.Timers, t)
		case RecordPendingMessage:
			var p PendingMessageRecord
			if err := Decode(f, &p); err != nil {
				return nil, err
			}
			out.PendingByService[p.ServiceId] = append(out.PendingByService[p.ServiceId], p)
		}
	}
	return out, nil
}
