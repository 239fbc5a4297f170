// Package wire hand-rolls the fixed-header binary framing described in the
// consensus module's wire contract: every message carries
// (schemaId, templateId, blockLength, version) before its fixed block and
// any variable-length strings. This is SBE-shaped framing, not protobuf, so
// encoding/binary is used directly rather than a generated protobuf codec
// (see SPEC_FULL.md / DESIGN.md for why protobuf's own wire format was not
// a fit here).
package wire

import (
	"encoding/binary"
	"errors"
)

// SchemaId identifies the consensus wire schema. Bumped only on a breaking
// change to the template set.
const SchemaId uint16 = 1

// TemplateId enumerates every message kind in the consensus wire contract.
type TemplateId uint16

const (
	TemplateCanvassPosition TemplateId = iota + 1
	TemplateRequestVote
	TemplateVote
	TemplateNewLeadershipTerm
	TemplateAppendPosition
	TemplateCommitPosition
	TemplateCatchupPosition
	TemplateStopCatchup
	TemplateAddPassiveMember
	TemplateClusterMembersChange
	TemplateRemoveMember
	TemplateJoinCluster
	TemplateTerminationPosition
	TemplateTerminationAck
	TemplateSnapshotRecording
	TemplateSnapshotRecordings
	TemplateBackupQuery
	TemplateChallengeResponse
	TemplateHeartbeatRequest
	TemplateControlToggle
	TemplateLogReplication
)

// HeaderLength is the byte size of the fixed message header.
const HeaderLength = 8

var ErrShortBuffer = errors.New("wire: buffer shorter than declared blockLength/header")
var ErrSchemaMismatch = errors.New("wire: schemaId does not match")
var ErrUnknownTemplate = errors.New("wire: unrecognized templateId")

// Header is the common envelope prefixing every message on the wire.
type Header struct {
	SchemaId    uint16
	TemplateId  TemplateId
	BlockLength uint16
	Version     uint16
}

func putHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint16(b[0:2], h.SchemaId)
	binary.LittleEndian.PutUint16(b[2:4], uint16(h.TemplateId))
	binary.LittleEndian.PutUint16(b[4:6], h.BlockLength)
	binary.LittleEndian.PutUint16(b[6:8], h.Version)
}

// DecodeHeader reads the 8-byte envelope from the front of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLength {
		return Header{}, ErrShortBuffer
	}
	h := Header{
		SchemaId:    binary.LittleEndian.Uint16(b[0:2]),
		TemplateId:  TemplateId(binary.LittleEndian.Uint16(b[2:4])),
		BlockLength: binary.LittleEndian.Uint16(b[4:6]),
		Version:     binary.LittleEndian.Uint16(b[6:8]),
	}
	if h.SchemaId != SchemaId {
		return h, ErrSchemaMismatch
	}
	return h, nil
}

// putString writes a length-prefixed (uint16) UTF-8 string.
func putString(buf *[]byte, s string) {
	var lenBytes [2]byte
	binary.LittleEndian.PutUint16(lenBytes[:], uint16(len(s)))
	*buf = append(*buf, lenBytes[:]...)
	*buf = append(*buf, s...)
}

// getString reads a length-prefixed (uint16) UTF-8 string and returns the
// remaining slice.
func getString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, ErrShortBuffer
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	b = b[2:]
	if len(b) < n {
		return "", nil, ErrShortBuffer
	}
	return string(b[:n]), b[n:], nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
