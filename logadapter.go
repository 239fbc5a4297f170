package consensus

import "context"

// LogEntryHandler is invoked once per decoded entry, in log order, with the
// position immediately following that entry.
type LogEntryHandler func(entry *LogEntry, position int64)

type archiveReader interface {
	Read(ctx context.Context, recordingId, position, length int64) ([]byte, error)
}

// LogAdapter walks a term's recording forward, decoding framed LogEntry
// records and fanning each one out to the service container as it is
// applied. appliedPosition tracks how far that fan-out has progressed,
// independently of commitPosition, so catch-up can resume where it left off.
type LogAdapter struct {
	archive         archiveReader
	recordingId     int64
	appliedPosition int64
}

// NewLogAdapter builds an adapter starting from basePosition, the position
// the term's log segment begins at.
func NewLogAdapter(arc archiveReader, recordingId, basePosition int64) *LogAdapter {
	return &LogAdapter{archive: arc, recordingId: recordingId, appliedPosition: basePosition}
}

// AppliedPosition reports how far entries have been applied to the service
// container.
func (a *LogAdapter) AppliedPosition() int64 { return a.appliedPosition }

// Catchup reads and decodes every entry between the current applied
// position and upToPosition, invoking handler for each in order.
func (a *LogAdapter) Catchup(ctx context.Context, upToPosition int64, handler LogEntryHandler) error {
	for a.appliedPosition < upToPosition {
		length := upToPosition - a.appliedPosition
		data, err := a.archive.Read(ctx, a.recordingId, a.appliedPosition, length)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		off := 0
		for off < len(data) {
			entry, consumed, err := DecodeLogEntry(data[off:])
			if err != nil {
				return err
			}
			off += consumed
			a.appliedPosition += int64(consumed)
			handler(entry, a.appliedPosition)
		}
	}
	return nil
}
