// Package archive defines the archive contract the consensus module
// consumes — records a stream to stable storage and replays it from any
// position — and two implementations: an in-memory one for tests, and a
// bbolt-backed one for a single-process node runner.
package archive

import "context"

// SourceLocation distinguishes where a recording's bytes originate.
type SourceLocation int

const (
	SourceLocal SourceLocation = iota
	SourceRemote
)

// Signal is delivered as recording lifecycle events progress.
type Signal int

const (
	SignalStart Signal = iota
	SignalStop
	SignalMerge
	SignalReplicate
	SignalExtend
	SignalDelete
	SignalSync
)

// RecordingDescriptor is the metadata ListRecording returns per entry.
type RecordingDescriptor struct {
	RecordingId    int64
	StartPosition  int64
	StopPosition   int64
	Channel        string
	StreamId       int32
	SourceLocation SourceLocation
}

// Archive is the subset of the archive proxy contract the consensus module
// drives directly. A production implementation fronts a
// recording media driver; here it fronts an append-only byte store.
type Archive interface {
	StartRecording(ctx context.Context, channel string, streamId int32, source SourceLocation) (subscriptionId int64, err error)
	ExtendRecording(ctx context.Context, recordingId int64, channel string, streamId int32, source SourceLocation) error
	StopRecording(ctx context.Context, subscriptionId int64) error
	TruncateRecording(ctx context.Context, recordingId, position int64) error
	StartReplay(ctx context.Context, recordingId, startPosition, length int64, replayChannel string, replayStreamId int32) (replaySessionId int64, err error)
	StopReplay(ctx context.Context, replaySessionId int64) error
	GetStopPosition(ctx context.Context, recordingId int64) (int64, error)
	PurgeSegments(ctx context.Context, recordingId, newStartPosition int64) error
	DetachSegments(ctx context.Context, recordingId, newStartPosition int64) error
	AttachSegments(ctx context.Context, recordingId int64) error
	DeleteDetachedSegments(ctx context.Context, recordingId int64) error
	MigrateSegments(ctx context.Context, srcRecordingId, dstRecordingId int64) error
	ListRecording(ctx context.Context, recordingId int64) (RecordingDescriptor, error)

	Append(ctx context.Context, recordingId int64, data []byte) (position int64, err error)
	Read(ctx context.Context, recordingId, position, length int64) ([]byte, error)
}

// QuerierAdapter satisfies recordinglog.ArchiveQuerier's context-free
// GetStopPosition by closing over a background context, letting
// RecordingLog.CreateRecoveryPlan consult a live Archive without
// recordinglog importing this package.
type QuerierAdapter struct {
	Archive Archive
}

func (a QuerierAdapter) GetStopPosition(recordingId int64) (int64, error) {
	return a.Archive.GetStopPosition(context.Background(), recordingId)
}
