package spdymux

import (
	"fmt"

	"github.com/pkg/errors"
)

// SessionStatus is the status code carried by a session-fatal GOAWAY.
type SessionStatus uint32

// Session-level GOAWAY status codes (SPDY/3.1 section 2.6.6).
const (
	GoAwayOK             SessionStatus = 0
	GoAwayProtocolError  SessionStatus = 1
	GoAwayInternalError  SessionStatus = 11
)

func (s SessionStatus) String() string {
	switch s {
	case GoAwayOK:
		return "OK"
	case GoAwayProtocolError:
		return "PROTOCOL_ERROR"
	case GoAwayInternalError:
		return "INTERNAL_ERROR"
	default:
		return fmt.Sprintf("SessionStatus(%d)", uint32(s))
	}
}

// StreamStatus is the status code carried by RST_STREAM frames.
type StreamStatus uint32

// Stream-level RST_STREAM status codes (SPDY/3.1 section 2.2.2).
const (
	StreamProtocolError       StreamStatus = 1
	StreamInvalidStream       StreamStatus = 2
	StreamRefusedStream       StreamStatus = 3
	StreamUnsupportedVersion  StreamStatus = 4
	StreamCancel              StreamStatus = 5
	StreamInternalError       StreamStatus = 6
	StreamFlowControlError    StreamStatus = 7
	StreamInUse               StreamStatus = 8
	StreamAlreadyClosed       StreamStatus = 9
	StreamInvalidCredentials  StreamStatus = 10
	StreamFrameTooLarge       StreamStatus = 11
)

func (s StreamStatus) String() string {
	switch s {
	case StreamProtocolError:
		return "PROTOCOL_ERROR"
	case StreamInvalidStream:
		return "INVALID_STREAM"
	case StreamRefusedStream:
		return "REFUSED_STREAM"
	case StreamUnsupportedVersion:
		return "UNSUPPORTED_VERSION"
	case StreamCancel:
		return "CANCEL"
	case StreamInternalError:
		return "INTERNAL_ERROR"
	case StreamFlowControlError:
		return "FLOW_CONTROL_ERROR"
	case StreamInUse:
		return "STREAM_IN_USE"
	case StreamAlreadyClosed:
		return "STREAM_ALREADY_CLOSED"
	case StreamInvalidCredentials:
		return "INVALID_CREDENTIALS"
	case StreamFrameTooLarge:
		return "FRAME_TOO_LARGE"
	default:
		return fmt.Sprintf("StreamStatus(%d)", uint32(s))
	}
}

// StreamError is a stream-local failure: it never tears down the
// session, it only terminates the one stream it names.
type StreamError struct {
	StreamID uint32
	Status   StreamStatus
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %d reset: %s", e.StreamID, e.Status)
}

// SessionError is a session-fatal failure: it terminates every active
// stream and the transport.
type SessionError struct {
	Status SessionStatus
	Cause  error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session closed (%s): %s", e.Status, e.Cause)
	}
	return fmt.Sprintf("session closed: %s", e.Status)
}

func (e *SessionError) Unwrap() error { return e.Cause }

func newSessionError(status SessionStatus, cause error) *SessionError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &SessionError{Status: status, Cause: cause}
}

// Sentinel errors surfaced by the frame and header codecs.
var (
	ErrMissingBytes       = errors.New("spdymux: frame is missing bytes")
	ErrUnsupportedVersion = errors.New("spdymux: unsupported SPDY version")
	ErrPayloadExceeds     = errors.New("spdymux: frame payload exceeds negotiated maximum")
	ErrHeaderTooLarge     = errors.New("spdymux: decompressed header block exceeds configured limit")
	ErrSessionClosed      = errors.New("spdymux: session is closed")
	ErrStreamClosed       = errors.New("spdymux: stream is closed")
	ErrNoCapacity         = errors.New("spdymux: no local stream capacity available")
)

// isDecodeError reports whether err is a wire-level decode or protocol
// violation raised by the frame codec on an otherwise-healthy
// connection, as opposed to the transport itself failing. The split
// decides whether a GOAWAY can still be written: decode violations
// tear the session down with PROTOCOL_ERROR, transport failures skip
// the GOAWAY because there is nothing left to write it to.
func isDecodeError(err error) bool {
	return errors.Is(err, ErrMissingBytes) ||
		errors.Is(err, ErrPayloadExceeds) ||
		errors.Is(err, ErrUnsupportedVersion)
}

// headerCodecFatalError wraps a header-block (de)compression failure
// that leaves the shared zlib dictionary state unrecoverable; it always
// demands a session PROTOCOL_ERROR rather than a stream reset.
type headerCodecFatalError struct {
	cause error
}

func (e *headerCodecFatalError) Error() string {
	return fmt.Sprintf("spdymux: header codec state corrupted: %s", e.cause)
}

func (e *headerCodecFatalError) Unwrap() error { return e.cause }
