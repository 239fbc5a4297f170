package recordinglog

import "errors"

var (
	errReservedRecordingId     = errors.New("recordingId -1 is reserved")
	errTermRecordingIdMismatch = errors.New("recordingId differs from the existing valid TERM")
	errDuplicateTerm           = errors.New("a valid TERM with this leadershipTermId already exists")
	errNoParentTerm            = errors.New("no matching valid TERM")
	errUnknownTerm             = errors.New("unknown leadership term")
)

// Exported aliases so callers can use errors.Is without reaching into the
// package's unexported sentinels.
var (
	ErrReservedRecordingId     = errReservedRecordingId
	ErrTermRecordingIdMismatch = errTermRecordingIdMismatch
	ErrDuplicateTerm           = errDuplicateTerm
	ErrNoParentTerm            = errNoParentTerm
	ErrUnknownTerm             = errUnknownTerm
)
