package snapshot

import (
	"encoding/binary"
	"io"
	"math/rand"

	"github.com/ugorji/go/codec"

	"github.com/nodeforge/consensus/idutil"
)

// PatchResult reports what PatchPendingServiceMessages did.
type PatchResult struct {
	Changed              bool
	OldLogServiceSessionId  int64
	OldNextServiceSessionId int64
	NewLogServiceSessionId  int64
	NewNextServiceSessionId int64
}

// PatchPendingServiceMessages repairs a snapshot segment where, due to a
// historical defect, logServiceSessionId and nextServiceSessionId do not
// bracket the pending-message cluster-session ids by exactly the right
// count. It rewrites those three fields (well: the two bracket fields —
// nextSessionId is left untouched) and randomizes any pending-message ids
// that fell outside the corrected bracket and testable
// property 11: running it twice in a row is idempotent ("no change" the
// second time).
func PatchPendingServiceMessages(r io.Reader, w io.Writer, appVersion, timeUnit int32, randSource *rand.Rand) (PatchResult, error) {
	reader := NewReader(r)
	var frames []Frame
	var state ConsensusModuleState
	stateIdx := -1
	var pendingIdx []int
	for {
		f, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return PatchResult{}, err
		}
		if f.Type == RecordConsensusModuleState {
			if err := Decode(f, &state); err != nil {
				return PatchResult{}, err
			}
			stateIdx = len(frames)
		}
		if f.Type == RecordPendingMessage {
			pendingIdx = append(pendingIdx, len(frames))
		}
		frames = append(frames, f)
	}

	result := PatchResult{
		OldLogServiceSessionId:  state.LogServiceSessionId,
		OldNextServiceSessionId: state.NextServiceSessionId,
	}

	if len(pendingIdx) == 0 {
		result.NewLogServiceSessionId = state.LogServiceSessionId
		result.NewNextServiceSessionId = state.NextServiceSessionId
		return result, writeAll(w, frames)
	}

	var minId, maxId int64
	first := true
	pending := make([]PendingMessageRecord, len(pendingIdx))
	for i, idx := range pendingIdx {
		var p PendingMessageRecord
		if err := Decode(frames[idx], &p); err != nil {
			return PatchResult{}, err
		}
		pending[i] = p
		_, seq := idutil.DecodeServiceSessionId(p.ClusterSessionId)
		if first || seq < minId {
			minId = seq
		}
		if first || seq > maxId {
			maxId = seq
		}
		first = false
	}

	wantLog := minId - 1
	wantNext := maxId + 1
	bracketOk := state.LogServiceSessionId == wantLog && state.NextServiceSessionId == wantNext
	idsInRange := true
	for _, p := range pending {
		_, seq := idutil.DecodeServiceSessionId(p.ClusterSessionId)
		if seq <= state.LogServiceSessionId || seq >= state.NextServiceSessionId {
			idsInRange = false
			break
		}
	}

	if bracketOk && idsInRange {
		result.NewLogServiceSessionId = state.LogServiceSessionId
		result.NewNextServiceSessionId = state.NextServiceSessionId
		return result, writeAll(w, frames)
	}

	result.Changed = true
	state.LogServiceSessionId = wantLog
	state.NextServiceSessionId = wantNext
	result.NewLogServiceSessionId = wantLog
	result.NewNextServiceSessionId = wantNext

	if randSource == nil {
		randSource = rand.New(rand.NewSource(1))
	}
	usedSeq := map[int64]bool{}
	for i, p := range pending {
		serviceId, seq := idutil.DecodeServiceSessionId(p.ClusterSessionId)
		if seq <= wantLog || seq >= wantNext || usedSeq[seq] {
			for {
				candidate := wantLog + 1 + randSource.Int63n(wantNext-wantLog-1)
				if !usedSeq[candidate] {
					seq = candidate
					break
				}
			}
		}
		usedSeq[seq] = true
		pending[i].ClusterSessionId = idutil.EncodeServiceSessionId(serviceId, seq)
	}

	for i, idx := range pendingIdx {
		var payload []byte
		if err := encodeInto(&payload, pending[i]); err != nil {
			return PatchResult{}, err
		}
		frames[idx].Payload = payload
	}
	if stateIdx >= 0 {
		var payload []byte
		if err := encodeInto(&payload, state); err != nil {
			return PatchResult{}, err
		}
		frames[stateIdx].Payload = payload
	}

	return result, writeAll(w, frames)
}

func encodeInto(buf *[]byte, v interface{}) error {
	return codec.NewEncoderBytes(buf, mh).Encode(v)
}

func writeAll(w io.Writer, frames []Frame) error {
	for _, f := range frames {
		var header [8]byte
		binary.LittleEndian.PutUint32(header[0:4], uint32(f.Type))
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(f.Payload)))
		if _, err := w.Write(header[:]); err != nil {
			return err
		}
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}
