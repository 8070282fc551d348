package stream

import "errors"

var (
	// ErrSinkRequired is returned when a session is created without a sink.
	ErrSinkRequired = errors.New("sink required")

	// ErrSessionClosed is returned for any frame sent after done.
	ErrSessionClosed = errors.New("stream session closed")

	// ErrSourcesAlreadySent is returned when a second sources frame is attempted.
	ErrSourcesAlreadySent = errors.New("sources frame already sent")

	// ErrMalformedFrame is returned by ReadFrames for undecodable records.
	ErrMalformedFrame = errors.New("malformed frame")
)
