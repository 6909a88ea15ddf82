package spdymux

// StreamState is the lifecycle state of a Stream. Local-initiated and
// remote-initiated streams follow the same state diagram; only who
// drives the IDLE->OPEN transition differs.
type StreamState int8

const (
	StreamIdle StreamState = iota
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamIdle:
		return "IDLE"
	case StreamOpen:
		return "OPEN"
	case StreamHalfClosedLocal:
		return "HALF_CLOSED_LOCAL"
	case StreamHalfClosedRemote:
		return "HALF_CLOSED_REMOTE"
	case StreamClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// pendingChunk is one buffered outbound write a Stream could not send
// immediately because the send window was exhausted.
type pendingChunk struct {
	data []byte
	last bool
}

// Stream is one multiplexed SPDY/3.1 request/response exchange. It
// tracks both flow-control windows, half-close state in each
// direction, accumulated inbound headers, and a queue of
// outbound bytes not yet admitted by the send window. A Stream is
// always owned and mutated exclusively by Session's single run loop;
// it holds no lock of its own.
type Stream struct {
	id       uint32
	local    bool // true if this side opened the stream (odd id)
	assoc    uint32
	priority uint8
	state    StreamState

	replied bool

	sendWindow    int64
	receiveWindow int64

	initialSendWindow    int64
	initialReceiveWindow int64

	headers HeaderBlock

	pending []pendingChunk

	request  Request
	response chan Response
	closeErr error
}

// Request is the caller-supplied description of an outbound exchange
// queued via Session.Open.
type Request struct {
	Headers HeaderBlock
	Body    []byte
	Last    bool
	// Priority is the SPDY stream priority, 0 (highest) through 7
	// (lowest).
	Priority uint8
}

// Response is delivered to a stream's waiter as the exchange
// progresses: Headers carries a decoded SYN_REPLY/HEADERS block, Data
// carries a DATA payload, and Err is set exactly once, on close.
type Response struct {
	Headers HeaderBlock
	Data    []byte
	Last    bool
	Err     error
}

func newStream(id uint32, local bool) *Stream {
	return &Stream{id: id, local: local, state: StreamIdle}
}

// open transitions IDLE->OPEN and records the windows negotiated at
// creation time.
func (s *Stream) open(sendWindow, receiveWindow int64) {
	s.sendWindow = sendWindow
	s.receiveWindow = receiveWindow
	s.initialSendWindow = sendWindow
	s.initialReceiveWindow = receiveWindow
	s.state = StreamOpen
}

// ID returns the stream id.
func (s *Stream) ID() uint32 { return s.id }

// isLocal reports whether this side opened the stream (odd ids are
// client-initiated).
func (s *Stream) isLocal() bool { return s.local }

// hasReceivedReply reports whether onReply has already been observed.
func (s *Stream) hasReceivedReply() bool { return s.replied }

// State returns the current lifecycle state.
func (s *Stream) State() StreamState { return s.state }

// Priority returns the stream priority, 0 (highest) through 7 (lowest).
func (s *Stream) Priority() uint8 { return s.priority }

// halfClosedRemote reports whether the peer has sent its last frame.
func (s *Stream) halfClosedRemote() bool {
	return s.state == StreamHalfClosedRemote || s.state == StreamClosed
}

// halfClosedLocal reports whether we have sent our last frame.
func (s *Stream) halfClosedLocal() bool {
	return s.state == StreamHalfClosedLocal || s.state == StreamClosed
}

func (s *Stream) getSendWindow() int64    { return s.sendWindow }
func (s *Stream) getReceiveWindow() int64 { return s.receiveWindow }

func (s *Stream) increaseSendWindow(n int64) { s.sendWindow += n }

func (s *Stream) reduceReceiveWindow(n int64) { s.receiveWindow -= n }
func (s *Stream) increaseReceiveWindow(n int64) {
	s.receiveWindow += n
}

// onReply marks the SYN_REPLY as received. Returns an error if called
// twice; SPDY/3.1 treats a duplicate reply as STREAM_IN_USE.
func (s *Stream) onReply() error {
	if s.replied {
		return &StreamError{StreamID: s.id, Status: StreamInUse}
	}
	s.replied = true
	return nil
}

// onData delivers an inbound DATA payload to the stream's waiter. The
// payload slice aliases the session's pooled frame buffer, which is
// recycled as soon as the dispatching handler returns, so it is copied
// before it crosses the channel.
func (s *Stream) onData(payload []byte, last bool) {
	if s.response != nil {
		data := make([]byte, len(payload))
		copy(data, payload)
		s.response <- Response{Data: data, Last: last}
	}
}

// onHeader accumulates one decoded header block for delivery when the
// caller next calls deliverHeaders.
func (s *Stream) onHeader(block HeaderBlock) {
	s.headers = append(s.headers, block...)
}

// deliverHeaders flushes accumulated headers to the stream's waiter.
func (s *Stream) deliverHeaders(last bool) {
	if s.response != nil {
		s.response <- Response{Headers: s.headers, Last: last}
	}
	s.headers = nil
}

// closeRemotely marks the remote half closed; if both halves are now
// closed the stream transitions to CLOSED. Returns true once CLOSED.
func (s *Stream) closeRemotely() bool {
	switch s.state {
	case StreamHalfClosedLocal:
		s.state = StreamClosed
	case StreamOpen:
		s.state = StreamHalfClosedRemote
	}
	return s.state == StreamClosed
}

// closeLocally marks the local half closed; if both halves are now
// closed the stream transitions to CLOSED. Returns true once CLOSED.
func (s *Stream) closeLocally() bool {
	switch s.state {
	case StreamHalfClosedRemote:
		s.state = StreamClosed
	case StreamOpen:
		s.state = StreamHalfClosedLocal
	}
	return s.state == StreamClosed
}

// close is terminal: it releases the stream and notifies its waiter
// exactly once with err (nil on a clean close).
func (s *Stream) close(err error) {
	s.state = StreamClosed
	s.closeErr = err
	if s.response != nil {
		s.response <- Response{Err: err, Last: true}
		close(s.response)
		s.response = nil
	}
}

// enqueue buffers data for sendData to drain once window allows.
func (s *Stream) enqueue(data []byte, last bool) {
	s.pending = append(s.pending, pendingChunk{data: data, last: last})
}

func (s *Stream) hasPending() bool { return len(s.pending) > 0 }
