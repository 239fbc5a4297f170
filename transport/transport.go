// Package transport defines the publication/subscription contract the
// consensus module consumes and a deterministic in-memory
// implementation used by tests and single-process demos. A production
// deployment supplies transport/grpcnet instead.
package transport

import "context"

// OfferResult is the result code returned by Publication.Offer. Negative
// values indicate back-pressure or an unusable publication.
type OfferResult int64

const (
	ResultNotConnected       OfferResult = -1
	ResultBackPressured      OfferResult = -2
	ResultAdminAction        OfferResult = -3
	ResultMaxPositionExceeded OfferResult = -4
	ResultClosed             OfferResult = -5
)

// Succeeded reports whether an Offer advanced the publication (a
// non-negative result is the new position).
func (r OfferResult) Succeeded() bool { return r >= 0 }

// FragmentResult is returned by a FragmentHandler to steer poll iteration.
type FragmentResult int

const (
	FragmentContinue FragmentResult = iota
	FragmentAbort
	FragmentBreak
	FragmentCommit
)

// FragmentHandler processes one received frame at the given stream
// position.
type FragmentHandler func(data []byte, position int64) FragmentResult

// Publication offers frames onto an ordered, position-addressed stream.
type Publication interface {
	// Offer appends data, returning the new position or a negative
	// OfferResult on back-pressure or closure.
	Offer(data []byte) int64
	Position() int64
	IsConnected() bool
	Close() error
}

// Image is one subscriber's view of a publication's stream.
type Image interface {
	Position() int64
	JoinPosition() int64
	EndPosition() int64
	// Poll delivers up to fragmentLimit fragments to handler, returning the
	// number delivered.
	Poll(handler FragmentHandler, fragmentLimit int) int
	IsClosed() bool
}

// Subscription yields the Images currently available for a channel/stream.
type Subscription interface {
	Images() []Image
	Close() error
}

// Endpoint names one member's reachable address for a given role channel.
type Endpoint string

// Transport opens publications and subscriptions by channel/streamId, the
// minimal slice of the messaging layer the consensus module needs — an
// external collaborator
type Transport interface {
	AddPublication(ctx context.Context, channel Endpoint, streamId int32) (Publication, error)
	AddSubscription(ctx context.Context, channel Endpoint, streamId int32) (Subscription, error)
}
