package archive

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketData = []byte("recording_data")
	bucketMeta = []byte("recording_meta")
)

// BboltArchive persists recorded stream bytes and metadata in a single
// bbolt file, for a node runner that must survive process restarts without
// a real archiving media driver.
type BboltArchive struct {
	db     *bbolt.DB
	nextId int64
}

// OpenBboltArchive opens (creating if absent) a bbolt-backed archive at
// path.
func OpenBboltArchive(path string) (*BboltArchive, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketData); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	a := &BboltArchive{db: db}
	if err := a.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			id := int64(binary.BigEndian.Uint64(k))
			if id > a.nextId {
				a.nextId = id
			}
			break
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the underlying bbolt file handle.
func (a *BboltArchive) Close() error { return a.db.Close() }

func recordingKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

type recordingMeta struct {
	Channel       string
	StreamId      int32
	Source        SourceLocation
	StartPosition int64
	StopPosition  int64
	Detached      bool
}

func encodeMeta(m recordingMeta) []byte {
	chLen := len(m.Channel)
	b := make([]byte, 2+chLen+4+1+8+8+1)
	binary.LittleEndian.PutUint16(b[0:2], uint16(chLen))
	copy(b[2:], m.Channel)
	off := 2 + chLen
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(m.StreamId))
	off += 4
	b[off] = byte(m.Source)
	off++
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(m.StartPosition))
	off += 8
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(m.StopPosition))
	off += 8
	if m.Detached {
		b[off] = 1
	}
	return b
}

func decodeMeta(b []byte) (recordingMeta, error) {
	if len(b) < 2 {
		return recordingMeta{}, fmt.Errorf("archive: short meta record")
	}
	chLen := int(binary.LittleEndian.Uint16(b[0:2]))
	if len(b) < 2+chLen+4+1+8+8+1 {
		return recordingMeta{}, fmt.Errorf("archive: truncated meta record")
	}
	m := recordingMeta{Channel: string(b[2 : 2+chLen])}
	off := 2 + chLen
	m.StreamId = int32(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	m.Source = SourceLocation(b[off])
	off++
	m.StartPosition = int64(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8
	m.StopPosition = int64(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8
	m.Detached = b[off] != 0
	return m, nil
}

func (a *BboltArchive) getMeta(tx *bbolt.Tx, id int64) (recordingMeta, error) {
	raw := tx.Bucket(bucketMeta).Get(recordingKey(id))
	if raw == nil {
		return recordingMeta{}, fmt.Errorf("archive: unknown recording %d", id)
	}
	return decodeMeta(raw)
}

func (a *BboltArchive) putMeta(tx *bbolt.Tx, id int64, m recordingMeta) error {
	return tx.Bucket(bucketMeta).Put(recordingKey(id), encodeMeta(m))
}

func (a *BboltArchive) StartRecording(_ context.Context, channel string, streamId int32, source SourceLocation) (int64, error) {
	a.nextId++
	id := a.nextId
	err := a.db.Update(func(tx *bbolt.Tx) error {
		if err := a.putMeta(tx, id, recordingMeta{Channel: channel, StreamId: streamId, Source: source}); err != nil {
			return err
		}
		return tx.Bucket(bucketData).Put(recordingKey(id), nil)
	})
	return id, err
}

func (a *BboltArchive) ExtendRecording(_ context.Context, recordingId int64, channel string, streamId int32, source SourceLocation) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		m.Channel, m.StreamId, m.Source = channel, streamId, source
		return a.putMeta(tx, recordingId, m)
	})
}

func (a *BboltArchive) StopRecording(_ context.Context, subscriptionId int64) error { return nil }

func (a *BboltArchive) TruncateRecording(_ context.Context, recordingId, position int64) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		if position < m.StartPosition || position > m.StopPosition {
			return fmt.Errorf("archive: truncate position %d out of range [%d,%d]", position, m.StartPosition, m.StopPosition)
		}
		data := tx.Bucket(bucketData).Get(recordingKey(recordingId))
		n := position - m.StartPosition
		if err := tx.Bucket(bucketData).Put(recordingKey(recordingId), data[:n]); err != nil {
			return err
		}
		m.StopPosition = position
		return a.putMeta(tx, recordingId, m)
	})
}

func (a *BboltArchive) StartReplay(_ context.Context, recordingId, startPosition, length int64, replayChannel string, replayStreamId int32) (int64, error) {
	var exists bool
	_ = a.db.View(func(tx *bbolt.Tx) error {
		_, err := a.getMeta(tx, recordingId)
		exists = err == nil
		return nil
	})
	if !exists {
		return 0, fmt.Errorf("archive: unknown recording %d", recordingId)
	}
	a.nextId++
	return a.nextId, nil
}

func (a *BboltArchive) StopReplay(_ context.Context, replaySessionId int64) error { return nil }

func (a *BboltArchive) GetStopPosition(_ context.Context, recordingId int64) (int64, error) {
	var pos int64
	err := a.db.View(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		pos = m.StopPosition
		return nil
	})
	return pos, err
}

func (a *BboltArchive) PurgeSegments(_ context.Context, recordingId, newStartPosition int64) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		if newStartPosition < m.StartPosition {
			return nil
		}
		data := tx.Bucket(bucketData).Get(recordingKey(recordingId))
		n := newStartPosition - m.StartPosition
		if n > int64(len(data)) {
			n = int64(len(data))
		}
		if err := tx.Bucket(bucketData).Put(recordingKey(recordingId), data[n:]); err != nil {
			return err
		}
		m.StartPosition = newStartPosition
		return a.putMeta(tx, recordingId, m)
	})
}

func (a *BboltArchive) DetachSegments(_ context.Context, recordingId, newStartPosition int64) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		m.Detached = true
		return a.putMeta(tx, recordingId, m)
	})
}

func (a *BboltArchive) AttachSegments(_ context.Context, recordingId int64) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		m.Detached = false
		return a.putMeta(tx, recordingId, m)
	})
}

func (a *BboltArchive) DeleteDetachedSegments(_ context.Context, recordingId int64) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		if !m.Detached {
			return fmt.Errorf("archive: recording %d has no detached segments", recordingId)
		}
		return nil
	})
}

func (a *BboltArchive) MigrateSegments(_ context.Context, srcRecordingId, dstRecordingId int64) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		srcMeta, err := a.getMeta(tx, srcRecordingId)
		if err != nil {
			return err
		}
		dstMeta, err := a.getMeta(tx, dstRecordingId)
		if err != nil {
			return err
		}
		srcData := tx.Bucket(bucketData).Get(recordingKey(srcRecordingId))
		dstData := tx.Bucket(bucketData).Get(recordingKey(dstRecordingId))
		merged := append(append([]byte{}, dstData...), srcData...)
		if err := tx.Bucket(bucketData).Put(recordingKey(dstRecordingId), merged); err != nil {
			return err
		}
		dstMeta.StopPosition += int64(len(srcData))
		_ = srcMeta
		return a.putMeta(tx, dstRecordingId, dstMeta)
	})
}

func (a *BboltArchive) ListRecording(_ context.Context, recordingId int64) (RecordingDescriptor, error) {
	var desc RecordingDescriptor
	err := a.db.View(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		desc = RecordingDescriptor{
			RecordingId:    recordingId,
			StartPosition:  m.StartPosition,
			StopPosition:   m.StopPosition,
			Channel:        m.Channel,
			StreamId:       m.StreamId,
			SourceLocation: m.Source,
		}
		return nil
	})
	return desc, err
}

func (a *BboltArchive) Append(_ context.Context, recordingId int64, data []byte) (int64, error) {
	var newStop int64
	err := a.db.Update(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		existing := tx.Bucket(bucketData).Get(recordingKey(recordingId))
		merged := append(append([]byte{}, existing...), data...)
		if err := tx.Bucket(bucketData).Put(recordingKey(recordingId), merged); err != nil {
			return err
		}
		m.StopPosition = m.StartPosition + int64(len(merged))
		newStop = m.StopPosition
		return a.putMeta(tx, recordingId, m)
	})
	return newStop, err
}

func (a *BboltArchive) Read(_ context.Context, recordingId, position, length int64) ([]byte, error) {
	var out []byte
	err := a.db.View(func(tx *bbolt.Tx) error {
		m, err := a.getMeta(tx, recordingId)
		if err != nil {
			return err
		}
		data := tx.Bucket(bucketData).Get(recordingKey(recordingId))
		off := position - m.StartPosition
		if off < 0 || off+length > int64(len(data)) {
			return fmt.Errorf("archive: read [%d,%d) out of range for recording %d", position, position+length, recordingId)
		}
		out = make([]byte, length)
		copy(out, data[off:off+length])
		return nil
	})
	return out, err
}
