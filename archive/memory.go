package archive

import (
	"context"
	"fmt"
	"sync"
)

type memRecording struct {
	channel        string
	streamId       int32
	source         SourceLocation
	data           []byte
	startPosition  int64
	stopPosition   int64
	detached       bool
}

// MemoryArchive is a process-local Archive backed by byte slices, enough to
// drive elections, catch-up, and snapshot tests without real recorded
// streams.
type MemoryArchive struct {
	mu         sync.Mutex
	recordings map[int64]*memRecording
	nextId     int64
	nextReplay int64
}

// NewMemoryArchive builds an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{recordings: make(map[int64]*memRecording)}
}

func (a *MemoryArchive) StartRecording(_ context.Context, channel string, streamId int32, source SourceLocation) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextId++
	id := a.nextId
	a.recordings[id] = &memRecording{channel: channel, streamId: streamId, source: source}
	return id, nil
}

func (a *MemoryArchive) ExtendRecording(_ context.Context, recordingId int64, channel string, streamId int32, source SourceLocation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	r.channel, r.streamId, r.source = channel, streamId, source
	return nil
}

func (a *MemoryArchive) StopRecording(_ context.Context, subscriptionId int64) error { return nil }

func (a *MemoryArchive) TruncateRecording(_ context.Context, recordingId, position int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	if position < r.startPosition || position > r.stopPosition {
		return fmt.Errorf("archive: truncate position %d out of range [%d,%d]", position, r.startPosition, r.stopPosition)
	}
	r.data = r.data[:position-r.startPosition]
	r.stopPosition = position
	return nil
}

func (a *MemoryArchive) StartReplay(_ context.Context, recordingId, startPosition, length int64, replayChannel string, replayStreamId int32) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.recordings[recordingId]; !ok {
		return 0, fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	a.nextReplay++
	return a.nextReplay, nil
}

func (a *MemoryArchive) StopReplay(_ context.Context, replaySessionId int64) error { return nil }

func (a *MemoryArchive) GetStopPosition(_ context.Context, recordingId int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return 0, fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	return r.stopPosition, nil
}

func (a *MemoryArchive) PurgeSegments(_ context.Context, recordingId, newStartPosition int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	if newStartPosition < r.startPosition {
		return nil
	}
	r.data = r.data[newStartPosition-r.startPosition:]
	r.startPosition = newStartPosition
	return nil
}

func (a *MemoryArchive) DetachSegments(_ context.Context, recordingId, newStartPosition int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	r.detached = true
	return nil
}

func (a *MemoryArchive) AttachSegments(_ context.Context, recordingId int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	r.detached = false
	return nil
}

func (a *MemoryArchive) DeleteDetachedSegments(_ context.Context, recordingId int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	if !r.detached {
		return fmt.Errorf("archive: recording %d has no detached segments", recordingId)
	}
	return nil
}

func (a *MemoryArchive) MigrateSegments(_ context.Context, srcRecordingId, dstRecordingId int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	src, ok := a.recordings[srcRecordingId]
	if !ok {
		return fmt.Errorf("archive: unknown recording %d", srcRecordingId)
	}
	dst, ok := a.recordings[dstRecordingId]
	if !ok {
		return fmt.Errorf("archive: unknown recording %d", dstRecordingId)
	}
	dst.data = append(dst.data, src.data...)
	dst.stopPosition += int64(len(src.data))
	return nil
}

func (a *MemoryArchive) ListRecording(_ context.Context, recordingId int64) (RecordingDescriptor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return RecordingDescriptor{}, fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	return RecordingDescriptor{
		RecordingId:    recordingId,
		StartPosition:  r.startPosition,
		StopPosition:   r.stopPosition,
		Channel:        r.channel,
		StreamId:       r.streamId,
		SourceLocation: r.source,
	}, nil
}

func (a *MemoryArchive) Append(_ context.Context, recordingId int64, data []byte) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return 0, fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	r.data = append(r.data, data...)
	r.stopPosition = r.startPosition + int64(len(r.data))
	return r.stopPosition, nil
}

func (a *MemoryArchive) Read(_ context.Context, recordingId, position, length int64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.recordings[recordingId]
	if !ok {
		return nil, fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	off := position - r.startPosition
	if off < 0 || off+length > int64(len(r.data)) {
		return nil, fmt.Errorf("archive: read [%d,%d) out of range for recording %d", position, position+length, recordingId)
	}
	out := make([]byte, length)
	copy(out, r.data[off:off+length])
	return out, nil
}
