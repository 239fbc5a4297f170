package consensus

import "context"

// LogPublisher appends framed LogEntry records to one term's recording,
// giving the leader a single point where committed-log bytes are written.
// RecordingLog stays an index over terms and snapshots; the entries
// themselves live only in the archived recording LogPublisher writes to.
type LogPublisher struct {
	archive     archiveAppender
	recordingId int64
}

type archiveAppender interface {
	Append(ctx context.Context, recordingId int64, data []byte) (position int64, err error)
}

// NewLogPublisher builds a publisher bound to one term's recording.
func NewLogPublisher(arc archiveAppender, recordingId int64) *LogPublisher {
	return &LogPublisher{archive: arc, recordingId: recordingId}
}

// Append writes one entry and returns the log position it now occupies
// (the append position immediately after this entry).
func (p *LogPublisher) Append(ctx context.Context, entry *LogEntry) (int64, error) {
	return p.archive.Append(ctx, p.recordingId, entry.Marshal())
}
