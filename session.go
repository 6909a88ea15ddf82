package spdymux

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/valyala/fastrand"
)

// Default window and limits applied when a SessionOpts field is left
// at its zero value.
const (
	DefaultInitialWindowSize    = 65535
	DefaultSessionWindowSize    = 1 << 20
	DefaultMaxConcurrentStreams = 100
	DefaultMaxHeaderListSize    = 1 << 16
	DefaultPingInterval         = 30 * time.Second
)

// SessionOpts configures a Session.
type SessionOpts struct {
	// InitialWindowSize is the stream receive window this side
	// advertises via the startup SETTINGS frame.
	InitialWindowSize uint32
	// SessionWindowSize is this side's session-level receive window.
	SessionWindowSize uint32
	// MaxConcurrentStreams is the number of remote-initiated streams
	// this side will accept concurrently.
	MaxConcurrentStreams uint32
	// MaxHeaderListSize bounds the accumulated, decompressed header
	// block size per stream.
	MaxHeaderListSize uint32
	// PingInterval is how often Session pings the peer. A jitter of up
	// to 10% is added so many sessions opened around the same time
	// don't all ping in lockstep.
	PingInterval time.Duration
	// Logger receives structured session diagnostics. The zero value
	// discards everything.
	Logger zerolog.Logger
	// OnClose, if set, is invoked exactly once when the session
	// terminates, with the cause (nil on a clean local Close).
	OnClose func(error)
	// OnCapacityChange, if set, is notified with the number of
	// additional local-initiated streams the session can currently
	// open (remote max concurrent minus local active), at startup and
	// whenever the peer raises MAX_CONCURRENT_STREAMS. A connection
	// pool sitting above Session uses this to rebalance Open traffic
	// across sessions instead of Session queuing excess Open calls
	// itself.
	OnCapacityChange func(available int)
	// OnPush, if set, is invoked on the session's run loop whenever the
	// peer opens a server-pushed stream (SPDY/3.1 section 3.3.1).
	// assocStreamID is the locally-initiated stream the push is
	// associated with; handle delivers the pushed stream's headers
	// and data the same way a Session.Open handle does. A nil OnPush
	// means pushed streams are accepted into the stream table (so their
	// flow control and lifecycle are still tracked correctly) but their
	// content is simply discarded.
	OnPush func(assocStreamID uint32, handle *streamHandle)
}

func (o *SessionOpts) setDefaults() {
	if o.InitialWindowSize == 0 {
		o.InitialWindowSize = DefaultInitialWindowSize
	}
	if o.SessionWindowSize == 0 {
		o.SessionWindowSize = DefaultSessionWindowSize
	}
	if o.MaxConcurrentStreams == 0 {
		o.MaxConcurrentStreams = DefaultMaxConcurrentStreams
	}
	if o.MaxHeaderListSize == 0 {
		o.MaxHeaderListSize = DefaultMaxHeaderListSize
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
}

// jitter returns d adjusted by up to +/-10% so many sessions opened
// around the same time don't all ping in lockstep.
func jitter(d time.Duration) time.Duration {
	spread := int64(d) / 10
	if spread <= 0 {
		return d
	}
	// fastrand.Uint32n takes a uint32 bound, which 2*spread exceeds for
	// intervals above about 21s; scale a uniform fraction instead.
	frac := float64(fastrand.Uint32()) / (1 << 32)
	offset := int64(frac*float64(2*spread)) - spread
	return d + time.Duration(offset)
}

type frameEvent struct {
	fh  *FrameHeader
	err error
}

type openRequest struct {
	req  Request
	resp chan *streamHandle
	err  chan error
}

// streamHandle is returned to an Open caller: a read-only view over a
// Stream's response channel plus Cancel. It has no Write or Close; the
// request body is supplied up front in Request.Body.
type streamHandle struct {
	id   uint32
	sess *Session
	resp <-chan Response
}

// ID returns the multiplexed stream id assigned to this exchange.
func (h *streamHandle) ID() uint32 { return h.id }

// Responses yields decoded headers/data/errors for this exchange.
func (h *streamHandle) Responses() <-chan Response { return h.resp }

// Cancel aborts the exchange: if the stream is still open the session
// sends RST_STREAM(CANCEL) and terminates it. Cancelling an
// already-terminal stream is a no-op.
func (h *streamHandle) Cancel() {
	select {
	case h.sess.cancelCh <- h.id:
	case <-h.sess.doneCh:
	}
}

// Session is a single client-side SPDY/3.1 connection multiplexer.
// Every piece of session/stream state is owned exclusively by the
// goroutine running Session.run; all other goroutines communicate with
// it only via channels.
type Session struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	origin Origin
	store  *Store
	codec  *headerCodec

	opts SessionOpts
	log  zerolog.Logger

	streams *streamTable

	nextStreamID     uint32
	lastGoodRemoteID uint32

	sessionSendWindow    int64
	sessionReceiveWindow int64

	initialSendWindow    int64
	initialReceiveWindow int64

	remoteMaxConcurrent uint32

	sentGoAway     bool
	receivedGoAway bool

	nextPingID uint32
	sentPings  map[uint32]time.Time

	inbound  chan frameEvent
	writeCh  chan *FrameHeader
	openCh   chan *openRequest
	cancelCh chan uint32
	closeCh  chan SessionStatus
	doneCh   chan struct{}

	closeOnce sync.Once
	closeErr  error
	closed    int32

	// Atomic mirrors of run-loop state, maintained solely so the
	// predicate API (IsOpen/IsDraining/WasActive/Latency) can be read
	// from application goroutines without touching run-loop-owned
	// fields.
	goAwayRcvd int32
	activeFlag int32
	latencyNs  int64

	closeMu        sync.Mutex
	closeListeners []func(error)
	listenersFired bool

	// fatalCause/fatalStatus are set by fatal and read back by run once
	// the loop breaks on the closed flag; both only ever happen on the
	// run goroutine, so no synchronization is needed beyond that.
	fatalCause  error
	fatalStatus SessionStatus
}

// NewSession performs the SPDY/3.1 startup handshake over conn and
// returns a running Session. conn is assumed already negotiated (TLS
// plus "spdy/3.1" NPN/ALPN, done by Dialer); NewSession itself only
// speaks SPDY framing.
func NewSession(conn net.Conn, origin Origin, store *Store, opts SessionOpts) (*Session, error) {
	opts.setDefaults()

	codec, err := newHeaderCodec()
	if err != nil {
		return nil, errors.Wrap(err, "spdymux: initializing header codec")
	}

	s := &Session{
		conn:                 conn,
		br:                   bufio.NewReaderSize(conn, 64*1024),
		bw:                   bufio.NewWriterSize(conn, 16*1024),
		origin:               origin,
		store:                store,
		codec:                codec,
		opts:                 opts,
		log:                  opts.Logger,
		streams:              newStreamTable(),
		nextStreamID:         1,
		// The send windows are the peer's credit and always start at
		// the protocol default; only the peer's WINDOW_UPDATE and
		// SETTINGS frames grow them.
		sessionSendWindow:    DefaultInitialWindowSize,
		sessionReceiveWindow: int64(opts.SessionWindowSize),
		initialSendWindow:    DefaultInitialWindowSize,
		initialReceiveWindow: int64(opts.InitialWindowSize),
		remoteMaxConcurrent:  DefaultMaxConcurrentStreams,
		nextPingID:           1,
		sentPings:            make(map[uint32]time.Time),
		inbound:              make(chan frameEvent, 128),
		writeCh:              make(chan *FrameHeader, 128),
		openCh:               make(chan *openRequest),
		cancelCh:             make(chan uint32),
		closeCh:              make(chan SessionStatus, 1),
		doneCh:               make(chan struct{}),
	}

	if err := s.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.notifyCapacity()

	go s.readLoop()
	go s.run()

	return s, nil
}

// handshake sends the startup SETTINGS, PING, and session
// WINDOW_UPDATE, in that order. It runs
// before the run goroutine starts, so it may touch run-loop state
// directly.
func (s *Session) handshake() error {
	settings := newSettingsFrame(false,
		SettingIDValue{
			ID:    SettingInitialWindowSize,
			Value: uint32(s.initialReceiveWindow),
		},
		SettingIDValue{
			ID:    SettingMaxConcurrentStreams,
			Value: s.opts.MaxConcurrentStreams,
		},
	)
	if _, err := settings.WriteTo(s.bw); err != nil {
		ReleaseFrameHeader(settings)
		return errors.Wrap(err, "spdymux: writing startup SETTINGS")
	}
	ReleaseFrameHeader(settings)

	pingID := s.nextPingID
	s.nextPingID += 2
	s.sentPings[pingID] = time.Now()
	ping := newPingFrame(pingID)
	if _, err := ping.WriteTo(s.bw); err != nil {
		ReleaseFrameHeader(ping)
		return errors.Wrap(err, "spdymux: writing startup PING")
	}
	ReleaseFrameHeader(ping)

	delta := s.sessionReceiveWindow - DefaultInitialWindowSize
	if delta > 0 {
		wu := newWindowUpdateFrame(0, uint32(delta))
		if _, err := wu.WriteTo(s.bw); err != nil {
			ReleaseFrameHeader(wu)
			return errors.Wrap(err, "spdymux: writing startup session WINDOW_UPDATE")
		}
		ReleaseFrameHeader(wu)
	}

	return s.bw.Flush()
}

// readLoop decodes frames off the transport and hands them to run. It
// never mutates session state itself.
func (s *Session) readLoop() {
	for {
		fh, err := ReadFrameFrom(s.br)
		select {
		case s.inbound <- frameEvent{fh: fh, err: err}:
		case <-s.doneCh:
			if fh != nil {
				ReleaseFrameHeader(fh)
			}
			return
		}
		if err != nil {
			return
		}
	}
}

// run is the session's single cooperative execution context: every
// read of session/stream state and every outbound write happens here.
func (s *Session) run() {
	ticker := time.NewTicker(jitter(s.opts.PingInterval))
	defer ticker.Stop()
	defer close(s.doneCh)

	// fatal/fatalStatus default to a transport failure: a read or write
	// I/O error means the connection itself broke, and teardown then
	// skips the GOAWAY since there is nothing left to write it to.
	var fatal error
	fatalStatus := GoAwayInternalError

loop:
	for {
		select {
		case ev := <-s.inbound:
			if ev.err != nil {
				// A malformed frame is a protocol violation on a
				// healthy connection: the GOAWAY can and must still
				// go out. Only a genuine transport failure skips it.
				if isDecodeError(ev.err) {
					s.fatal(GoAwayProtocolError, ev.err)
					break
				}
				fatal = ev.err
				break loop
			}
			s.dispatch(ev.fh)
			ReleaseFrameHeader(ev.fh)
		case fh := <-s.writeCh:
			if _, err := fh.WriteTo(s.bw); err == nil {
				err = s.bw.Flush()
				if err != nil {
					fatal = err
					ReleaseFrameHeader(fh)
					break loop
				}
			} else {
				fatal = err
				ReleaseFrameHeader(fh)
				break loop
			}
			ReleaseFrameHeader(fh)
		case req := <-s.openCh:
			s.handleOpen(req)
		case id := <-s.cancelCh:
			if st := s.streams.get(id); st != nil {
				s.terminateStream(st, StreamCancel)
			}
		case status := <-s.closeCh:
			s.sendGoAway(status)
			break loop
		case <-ticker.C:
			s.sendPing()
		}
		// A handler above may have called fatal() (session PROTOCOL_ERROR,
		// a send failure during sendData, a header-codec fatal error,
		// ...) from any of the cases, not just the inbound one; check
		// uniformly rather than re-deriving closed per branch.
		if atomic.LoadInt32(&s.closed) != 0 {
			fatal = s.fatalCause
			fatalStatus = s.fatalStatus
			break loop
		}
	}

	s.teardown(fatal, fatalStatus)
}

func (s *Session) teardown(cause error, status SessionStatus) {
	atomic.StoreInt32(&s.closed, 1)

	var sessErr error
	if cause != nil {
		sessErr = newSessionError(status, cause)
		s.log.Error().Err(cause).Msg("spdymux: session terminated")
	}

	s.streams.each(func(st *Stream) {
		st.close(sessErr)
	})

	_ = s.conn.Close()

	s.closeOnce.Do(func() {
		s.closeErr = sessErr

		s.closeMu.Lock()
		s.listenersFired = true
		listeners := s.closeListeners
		s.closeListeners = nil
		s.closeMu.Unlock()

		if s.opts.OnClose != nil {
			s.opts.OnClose(sessErr)
		}
		for _, fn := range listeners {
			fn(sessErr)
		}
	})
}

// dispatch routes one decoded frame to its handler.
func (s *Session) dispatch(fh *FrameHeader) {
	if !fh.IsControl() {
		s.handleData(fh.Stream(), fh.DataFlags().Has(DataFlagFin), fh.Payload())
		return
	}

	switch body := fh.Body().(type) {
	case *SynStream:
		s.handleSynStream(body)
	case *SynReply:
		s.handleSynReply(body)
	case *RstStream:
		s.handleRstStream(body)
	case *SettingsFrame:
		s.handleSettings(body)
	case *PingFrame:
		s.handlePing(body)
	case *GoAway:
		s.handleGoAway(body)
	case *Headers:
		s.handleHeaders(body)
	case *WindowUpdate:
		s.handleWindowUpdate(body)
	case nil:
		s.log.Debug().Uint16("type", uint16(fh.Type())).Msg("spdymux: skipping unknown control frame")
	}
}

// handleData validates an inbound DATA frame, runs the dual-level
// flow-control accounting, and delivers the payload. The check order
// matters: a session window violation is fatal before the stream is
// even looked up.
func (s *Session) handleData(id uint32, last bool, payload []byte) {
	n := int64(len(payload))

	if n > s.sessionReceiveWindow {
		s.fatal(GoAwayProtocolError, errors.New("spdymux: DATA exceeds session receive window"))
		return
	}

	st := s.streams.get(id)
	if st == nil {
		if id < s.lastGoodRemoteID {
			s.resetStream(id, StreamProtocolError)
		} else if !s.sentGoAway {
			s.resetStream(id, StreamInvalidStream)
		}
		return
	}
	if st.halfClosedRemote() {
		s.terminateStream(st, StreamAlreadyClosed)
		return
	}
	if st.isLocal() && !st.hasReceivedReply() {
		s.terminateStream(st, StreamProtocolError)
		return
	}
	if n > st.getReceiveWindow() {
		s.terminateStream(st, StreamFlowControlError)
		return
	}

	s.sessionReceiveWindow -= n
	if s.sessionReceiveWindow <= s.sessionInitialReceiveWindow()/2 {
		restore := s.sessionInitialReceiveWindow() - s.sessionReceiveWindow
		s.sessionReceiveWindow = s.sessionInitialReceiveWindow()
		s.queueWrite(newWindowUpdateFrame(0, uint32(restore)))
	}

	st.reduceReceiveWindow(n)
	if st.getReceiveWindow() <= st.initialReceiveWindow/2 {
		restore := st.initialReceiveWindow - st.getReceiveWindow()
		st.increaseReceiveWindow(restore)
		s.queueWrite(newWindowUpdateFrame(id, uint32(restore)))
	}

	st.onData(payload, last)

	if last {
		if st.closeRemotely() {
			s.streams.remove(st)
			st.close(nil)
		}
	}
}

func (s *Session) sessionInitialReceiveWindow() int64 {
	return int64(s.opts.SessionWindowSize)
}

// handleSynStream validates and accepts a server-initiated stream
// (SPDY/3.1 section 2.6.1).
func (s *Session) handleSynStream(body *SynStream) {
	id := body.StreamID()

	if id <= s.lastGoodRemoteID {
		s.fatal(GoAwayProtocolError, errors.Errorf("spdymux: SYN_STREAM id %d out of order", id))
		return
	}
	if s.receivedGoAway || uint32(s.streams.remoteSize()) >= s.opts.MaxConcurrentStreams {
		s.resetStream(id, StreamRefusedStream)
		return
	}

	st := newStream(id, false)
	st.open(s.initialSendWindow, s.initialReceiveWindow)
	st.assoc = body.AssocStreamID()
	st.priority = body.Priority()
	if body.Unidirectional() {
		// Unidirectional pushed streams carry no client-to-server
		// data; they begin half-closed on our side.
		st.closeLocally()
	}
	s.lastGoodRemoteID = id
	s.streams.add(st)

	if s.opts.OnPush != nil {
		respCh := make(chan Response, 8)
		st.response = respCh
		s.opts.OnPush(st.assoc, &streamHandle{id: id, sess: s, resp: respCh})
	}

	headers, ok := s.decodeHeaders(st, body.RawHeaders())
	if !ok {
		return
	}
	st.onHeader(headers)
	st.deliverHeaders(body.Last())
	if body.Last() {
		if st.closeRemotely() {
			s.streams.remove(st)
			st.close(nil)
		}
	}
}

// handleSynReply marks a stream's reply received and delivers its
// headers (SPDY/3.1 section 2.6.2).
func (s *Session) handleSynReply(body *SynReply) {
	id := body.StreamID()
	st := s.streams.get(id)
	if st == nil {
		s.resetStream(id, StreamInvalidStream)
		return
	}
	if err := st.onReply(); err != nil {
		s.terminateStream(st, StreamInUse)
		return
	}
	atomic.StoreInt32(&s.activeFlag, 1)

	headers, ok := s.decodeHeaders(st, body.RawHeaders())
	if !ok {
		return
	}
	st.onHeader(headers)
	st.deliverHeaders(body.Last())

	if body.Last() {
		if st.closeRemotely() {
			s.streams.remove(st)
			st.close(nil)
		}
	}
}

// handleRstStream terminates the named stream. RST is never answered
// with RST (SPDY/3.1 section 2.6.3).
func (s *Session) handleRstStream(body *RstStream) {
	st := s.streams.get(body.StreamID())
	if st == nil {
		return
	}
	s.streams.remove(st)
	st.close(&StreamError{StreamID: body.StreamID(), Status: body.Status()})
}

// handleSettings applies, and optionally persists, settings pushed by
// the peer (SPDY/3.1 section 2.6.4).
func (s *Session) handleSettings(body *SettingsFrame) {
	if body.ClearPersisted() {
		s.store.Clear(s.origin)
	}

	for _, e := range body.Entries() {
		if e.Flag&FlagSettingPersisted != 0 {
			s.fatal(GoAwayProtocolError, errors.New("spdymux: peer sent a persisted SETTINGS entry"))
			return
		}

		switch e.ID {
		case SettingMaxConcurrentStreams:
			grew := e.Value > atomic.LoadUint32(&s.remoteMaxConcurrent)
			atomic.StoreUint32(&s.remoteMaxConcurrent, e.Value)
			if grew {
				s.notifyCapacity()
			}
		case SettingInitialWindowSize:
			delta := int64(e.Value) - s.initialSendWindow
			s.initialSendWindow = int64(e.Value)
			s.streams.each(func(st *Stream) {
				if st.halfClosedLocal() {
					return
				}
				st.increaseSendWindow(delta)
				if delta > 0 {
					s.sendData(st)
				}
			})
		}
	}

	s.store.Update(s.origin, body.Entries())
}

// handlePing echoes peer-initiated pings and matches replies to our
// own outstanding ones (SPDY/3.1 section 2.6.5).
func (s *Session) handlePing(body *PingFrame) {
	id := body.ID()
	if id%2 == 0 {
		s.queueWrite(newPingFrame(id))
		return
	}
	if sent, ok := s.sentPings[id]; ok {
		delete(s.sentPings, id)
		latency := time.Since(sent)
		atomic.StoreInt64(&s.latencyNs, int64(latency))
		s.log.Debug().Uint32("ping_id", id).Dur("latency", latency).Msg("spdymux: ping latency sample")
	}
}

// handleGoAway moves the session into draining: local streams past
// the peer's last-good id will never be processed and are failed now
// (SPDY/3.1 section 2.6.6).
func (s *Session) handleGoAway(body *GoAway) {
	s.receivedGoAway = true
	atomic.StoreInt32(&s.goAwayRcvd, 1)
	s.log.Info().Uint32("last_good", body.LastGoodStreamID()).Str("status", body.Status().String()).Msg("spdymux: peer sent GOAWAY, draining")
	s.streams.each(func(st *Stream) {
		if st.isLocal() && st.ID() > body.LastGoodStreamID() {
			s.streams.remove(st)
			st.close(newSessionError(body.Status(), nil))
		}
	})
}

// handleHeaders delivers a trailing header block to its stream
// (SPDY/3.1 section 2.6.7).
func (s *Session) handleHeaders(body *Headers) {
	st := s.streams.get(body.StreamID())
	if st == nil {
		s.resetStream(body.StreamID(), StreamInvalidStream)
		return
	}
	if st.halfClosedRemote() {
		s.terminateStream(st, StreamInvalidStream)
		return
	}

	headers, ok := s.decodeHeaders(st, body.RawHeaders())
	if !ok {
		return
	}
	st.onHeader(headers)
	st.deliverHeaders(body.Last())

	if body.Last() {
		if st.closeRemotely() {
			s.streams.remove(st)
			st.close(nil)
		}
	}
}

// decodeHeaders decompresses raw through the session's shared header
// codec on behalf of st, classifying the result:
// an oversized block is stream-local (RST FRAME_TOO_LARGE, st removed
// and terminated) while any other decode failure means the shared
// zlib dictionary is desynchronized and is session-fatal. Returns
// ok=false in both failure cases; the caller must not touch st or body
// any further.
func (s *Session) decodeHeaders(st *Stream, raw []byte) (HeaderBlock, bool) {
	headers, err := s.codec.Decode(raw, s.opts.MaxHeaderListSize)
	if err == nil {
		return headers, true
	}
	if err == ErrHeaderTooLarge {
		s.terminateStream(st, StreamFrameTooLarge)
		return nil, false
	}
	s.fatal(GoAwayProtocolError, &headerCodecFatalError{cause: err})
	return nil, false
}

// handleWindowUpdate grows the session or stream send window and
// drains whatever the new credit admits (SPDY/3.1 section 2.6.8).
func (s *Session) handleWindowUpdate(body *WindowUpdate) {
	const maxWindow = 1<<31 - 1

	if body.StreamID() == 0 {
		if s.sessionSendWindow > maxWindow-int64(body.Delta()) {
			s.fatal(GoAwayProtocolError, errors.New("spdymux: session send window overflow"))
			return
		}
		s.sessionSendWindow += int64(body.Delta())
		s.streams.each(func(st *Stream) {
			if s.sessionSendWindow <= 0 {
				return
			}
			s.sendData(st)
		})
		return
	}

	st := s.streams.get(body.StreamID())
	if st == nil || st.halfClosedLocal() {
		return
	}
	if st.getSendWindow() > maxWindow-int64(body.Delta()) {
		s.terminateStream(st, StreamFlowControlError)
		return
	}
	st.increaseSendWindow(int64(body.Delta()))
	s.sendData(st)
}

// Open starts a new local-initiated exchange. It blocks until the
// session's run loop has accepted or rejected the request, or the
// session is closed. Requests are not queued to wait for capacity: when
// the local streams already reach the peer's max concurrent streams, or
// this side has sent GOAWAY, Open returns ErrNoCapacity.
func (s *Session) Open(req Request) (*streamHandle, error) {
	o := &openRequest{req: req, resp: make(chan *streamHandle, 1), err: make(chan error, 1)}
	select {
	case s.openCh <- o:
	case <-s.doneCh:
		return nil, ErrSessionClosed
	}
	select {
	case h := <-o.resp:
		return h, nil
	case err := <-o.err:
		return nil, err
	case <-s.doneCh:
		return nil, ErrSessionClosed
	}
}

func (s *Session) handleOpen(o *openRequest) {
	if s.sentGoAway || uint32(s.streams.localSize()) >= atomic.LoadUint32(&s.remoteMaxConcurrent) {
		o.err <- ErrNoCapacity
		return
	}

	id := s.nextStreamID
	s.nextStreamID += 2

	st := newStream(id, true)
	st.open(s.initialSendWindow, s.initialReceiveWindow)
	st.request = o.req
	st.priority = o.req.Priority & 0x7
	respCh := make(chan Response, 8)
	st.response = respCh
	s.streams.add(st)

	rawHeaders, err := s.codec.Encode(o.req.Headers)
	if err != nil {
		s.streams.remove(st)
		o.err <- errors.Wrap(err, "spdymux: encoding request headers")
		return
	}

	syn := synStreamPool.Get().(*SynStream)
	syn.reset()
	syn.SetStreamID(id)
	syn.SetPriority(o.req.Priority)
	syn.SetLast(o.req.Last && len(o.req.Body) == 0)
	syn.SetRawHeaders(rawHeaders)
	fh := AcquireFrameHeader()
	fh.SetBody(syn)

	if _, err := fh.WriteTo(s.bw); err != nil {
		ReleaseFrameHeader(fh)
		s.streams.remove(st)
		o.err <- errors.Wrap(err, "spdymux: writing SYN_STREAM")
		return
	}
	if err := s.bw.Flush(); err != nil {
		ReleaseFrameHeader(fh)
		s.streams.remove(st)
		o.err <- errors.Wrap(err, "spdymux: flushing SYN_STREAM")
		return
	}
	ReleaseFrameHeader(fh)

	if len(o.req.Body) > 0 {
		st.enqueue(o.req.Body, o.req.Last)
		s.sendData(st)
	} else if o.req.Last {
		st.closeLocally()
	}

	o.resp <- &streamHandle{id: id, sess: s, resp: respCh}
}

// sendData drains st's pending outbound bytes against both the stream
// and session send windows, chunking at the recommended maximum data
// frame size.
func (s *Session) sendData(st *Stream) {
	for st.hasPending() && st.getSendWindow() > 0 && s.sessionSendWindow > 0 {
		chunk := st.pending[0]

		max := int64(maxDataFrameSize)
		if sw := st.getSendWindow(); sw < max {
			max = sw
		}
		if sw := s.sessionSendWindow; sw < max {
			max = sw
		}

		data := chunk.data
		final := chunk.last
		if int64(len(data)) > max {
			final = false
			data = chunk.data[:max]
			st.pending[0].data = chunk.data[max:]
		} else {
			st.pending = st.pending[1:]
		}

		fh := newDataFrame(st.ID(), data, final)
		if _, err := fh.WriteTo(s.bw); err != nil {
			ReleaseFrameHeader(fh)
			s.fatal(GoAwayInternalError, errors.Wrap(err, "spdymux: writing DATA"))
			return
		}
		if err := s.bw.Flush(); err != nil {
			ReleaseFrameHeader(fh)
			s.fatal(GoAwayInternalError, errors.Wrap(err, "spdymux: flushing DATA"))
			return
		}
		ReleaseFrameHeader(fh)

		st.increaseSendWindow(-int64(len(data)))
		s.sessionSendWindow -= int64(len(data))

		if final {
			if st.closeLocally() {
				s.streams.remove(st)
				st.close(nil)
			}
		}
	}
}

func (s *Session) notifyCapacity() {
	if s.opts.OnCapacityChange == nil {
		return
	}
	s.opts.OnCapacityChange(s.Capacity())
}

func (s *Session) queueWrite(fh *FrameHeader) {
	select {
	case s.writeCh <- fh:
	case <-s.doneCh:
		ReleaseFrameHeader(fh)
	}
}

func (s *Session) resetStream(id uint32, status StreamStatus) {
	s.log.Debug().Uint32("stream", id).Str("status", status.String()).Msg("spdymux: resetting stream")
	s.queueWriteImmediate(newRstStreamFrame(id, status))
}

func (s *Session) terminateStream(st *Stream, status StreamStatus) {
	s.streams.remove(st)
	s.queueWriteImmediate(newRstStreamFrame(st.ID(), status))
	st.close(&StreamError{StreamID: st.ID(), Status: status})
}

// queueWriteImmediate writes directly since resetStream/terminateStream
// are always called from within run itself.
func (s *Session) queueWriteImmediate(fh *FrameHeader) {
	if _, err := fh.WriteTo(s.bw); err == nil {
		_ = s.bw.Flush()
	}
	ReleaseFrameHeader(fh)
}

func (s *Session) sendPing() {
	id := s.nextPingID
	s.nextPingID += 2
	s.sentPings[id] = time.Now()
	s.queueWriteImmediate(newPingFrame(id))
}

func (s *Session) sendGoAway(status SessionStatus) {
	if s.sentGoAway {
		return
	}
	s.sentGoAway = true
	s.queueWriteImmediate(newGoAwayFrame(s.lastGoodRemoteID, status))
}

func (s *Session) fatal(status SessionStatus, cause error) {
	s.sendGoAway(status)
	s.fatalCause = cause
	s.fatalStatus = status
	atomic.StoreInt32(&s.closed, 1)
	s.log.Error().Err(cause).Str("status", status.String()).Msg("spdymux: session fatal error")
}

// IsConnected reports whether the transport is still up: the session
// has not torn down, whether or not a GOAWAY has been exchanged.
func (s *Session) IsConnected() bool { return atomic.LoadInt32(&s.closed) == 0 }

// IsDisconnected is the complement of IsConnected.
func (s *Session) IsDisconnected() bool { return !s.IsConnected() }

// IsOpen reports whether new exchanges may be queued: connected and no
// GOAWAY received.
func (s *Session) IsOpen() bool {
	return s.IsConnected() && atomic.LoadInt32(&s.goAwayRcvd) == 0
}

// IsDraining reports whether the peer has sent GOAWAY but the
// transport is still up servicing in-flight streams.
func (s *Session) IsDraining() bool {
	return s.IsConnected() && atomic.LoadInt32(&s.goAwayRcvd) != 0
}

// IsClosed is the complement of IsOpen.
func (s *Session) IsClosed() bool { return !s.IsOpen() }

// WasActive reports whether at least one complete reply has ever been
// received on this session.
func (s *Session) WasActive() bool { return atomic.LoadInt32(&s.activeFlag) != 0 }

// IsActive reports whether the session is connected and has received
// at least one complete reply.
func (s *Session) IsActive() bool { return s.IsConnected() && s.WasActive() }

// Capacity returns the number of additional local-initiated streams
// the session can currently open: the peer's advertised max concurrent
// streams minus the local streams currently active.
func (s *Session) Capacity() int {
	return int(atomic.LoadUint32(&s.remoteMaxConcurrent)) - s.streams.localSize()
}

// Latency returns the most recent ping round-trip time measured on
// this session, or zero if no ping has completed yet.
func (s *Session) Latency() time.Duration {
	return time.Duration(atomic.LoadInt64(&s.latencyNs))
}

// AddCloseListener registers fn to be invoked exactly once when the
// session terminates, with nil on a clean close or the terminal
// session error otherwise. A listener added after the session has
// already terminated is invoked immediately.
func (s *Session) AddCloseListener(fn func(error)) {
	s.closeMu.Lock()
	if s.listenersFired {
		s.closeMu.Unlock()
		fn(s.closeErr)
		return
	}
	s.closeListeners = append(s.closeListeners, fn)
	s.closeMu.Unlock()
}

// Close gracefully shuts the session down with GOAWAY(OK) and waits
// for the run loop to finish tearing down streams and the transport.
func (s *Session) Close() error {
	select {
	case s.closeCh <- GoAwayOK:
	case <-s.doneCh:
	}
	<-s.doneCh
	return s.closeErr
}

var _ io.Closer = (*Session)(nil)
