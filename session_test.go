package spdymux

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// peerConn wraps the "server" end of a net.Pipe with the same framing
// helpers Session uses, so tests can script raw SPDY exchanges without
// going through another Session.
type peerConn struct {
	br    *bufio.Reader
	bw    *bufio.Writer
	codec *headerCodec
}

func newPeer(t *testing.T, c net.Conn) *peerConn {
	t.Helper()
	codec, err := newHeaderCodec()
	require.NoError(t, err)
	return &peerConn{br: bufio.NewReader(c), bw: bufio.NewWriter(c), codec: codec}
}

// encodeHeaders compresses block on the peer's own persistent header
// codec: the SPDY compression context spans every header-bearing frame
// a side sends on a connection, not just one.
func (p *peerConn) encodeHeaders(t *testing.T, block HeaderBlock) []byte {
	t.Helper()
	raw, err := p.codec.Encode(block)
	require.NoError(t, err)
	return raw
}

func (p *peerConn) readFrame(t *testing.T) *FrameHeader {
	t.Helper()
	fh, err := ReadFrameFrom(p.br)
	require.NoError(t, err)
	return fh
}

func (p *peerConn) write(t *testing.T, fh *FrameHeader) {
	t.Helper()
	_, err := fh.WriteTo(p.bw)
	require.NoError(t, err)
	require.NoError(t, p.bw.Flush())
}

// drainHandshake consumes the startup SETTINGS + PING + session
// WINDOW_UPDATE a freshly constructed Session always sends, in that
// order.
func (p *peerConn) drainHandshake(t *testing.T) {
	t.Helper()
	settings := p.readFrame(t)
	require.Equal(t, TypeSettings, settings.Type())
	ReleaseFrameHeader(settings)

	ping := p.readFrame(t)
	require.Equal(t, TypePing, ping.Type())
	require.EqualValues(t, 1, ping.Body().(*PingFrame).ID())
	ReleaseFrameHeader(ping)

	wu := p.readFrame(t)
	require.Equal(t, TypeWindowUpdate, wu.Type())
	require.EqualValues(t, 0, wu.Body().(*WindowUpdate).StreamID())
	ReleaseFrameHeader(wu)
}

func newTestSession(t *testing.T) (*Session, *peerConn) {
	t.Helper()
	return newTestSessionOpts(t, SessionOpts{PingInterval: time.Hour})
}

func newTestSessionOpts(t *testing.T, opts SessionOpts) (*Session, *peerConn) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	if opts.PingInterval <= 0 {
		opts.PingInterval = time.Hour
	}

	type result struct {
		sess *Session
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		sess, err := NewSession(clientConn, NewOrigin("https", "example.com", 443), NewStore(), opts)
		ch <- result{sess, err}
	}()

	peer := newPeer(t, serverConn)
	peer.drainHandshake(t)

	r := <-ch
	require.NoError(t, r.err)
	t.Cleanup(func() {
		// net.Pipe writes are synchronous: close the peer end first so
		// the session's shutdown GOAWAY doesn't block on a reader that
		// will never come.
		_ = serverConn.Close()
		_ = r.sess.Close()
	})
	return r.sess, peer
}

func TestSessionHappyGet(t *testing.T) {
	sess, peer := newTestSession(t)

	var reqHeaders HeaderBlock
	reqHeaders.Add("method", "GET")
	reqHeaders.Add("path", "/")

	var handle *streamHandle
	openDone := make(chan struct{})
	go func() {
		h, err := sess.Open(Request{Headers: reqHeaders, Last: true})
		require.NoError(t, err)
		handle = h
		close(openDone)
	}()

	syn := peer.readFrame(t)
	require.True(t, syn.IsControl())
	require.Equal(t, TypeSynStream, syn.Type())
	require.EqualValues(t, 1, syn.Body().(*SynStream).StreamID())
	require.True(t, syn.Body().(*SynStream).Last())
	ReleaseFrameHeader(syn)
	<-openDone

	var replyHeaders HeaderBlock
	replyHeaders.Add("status", "200")
	reply := AcquireFrameHeader()
	sr := &SynReply{}
	sr.SetStreamID(1)
	sr.SetLast(false)
	sr.SetRawHeaders(peer.encodeHeaders(t, replyHeaders))
	reply.SetBody(sr)
	peer.write(t, reply)

	resp := <-handle.Responses()
	require.NoError(t, resp.Err)
	status, ok := resp.Headers.Get("status")
	require.True(t, ok)
	require.Equal(t, "200", status)

	var moreHeaders HeaderBlock
	moreHeaders.Add("x-trace", "abc")
	hf := AcquireFrameHeader()
	hdr := &Headers{}
	hdr.SetStreamID(1)
	hdr.SetLast(false)
	hdr.SetRawHeaders(peer.encodeHeaders(t, moreHeaders))
	hf.SetBody(hdr)
	peer.write(t, hf)

	resp = <-handle.Responses()
	require.NoError(t, resp.Err)
	trace, ok := resp.Headers.Get("x-trace")
	require.True(t, ok)
	require.Equal(t, "abc", trace)

	data := newDataFrame(1, []byte("0123456789"), true)
	peer.write(t, data)

	resp = <-handle.Responses()
	require.Equal(t, "0123456789", string(resp.Data))
	require.True(t, resp.Last)
}

func TestSessionDuplicateReplyResetsStream(t *testing.T) {
	sess, peer := newTestSession(t)

	var reqHeaders HeaderBlock
	reqHeaders.Add("method", "GET")

	openDone := make(chan struct{})
	go func() {
		_, err := sess.Open(Request{Headers: reqHeaders, Last: true})
		require.NoError(t, err)
		close(openDone)
	}()

	syn := peer.readFrame(t)
	ReleaseFrameHeader(syn)
	<-openDone

	replyRaw := peer.encodeHeaders(t, HeaderBlock{{Name: "status", Values: []string{"200"}}})

	for i := 0; i < 2; i++ {
		fh := AcquireFrameHeader()
		sr := &SynReply{}
		sr.SetStreamID(1)
		sr.SetRawHeaders(replyRaw)
		fh.SetBody(sr)
		peer.write(t, fh)
	}

	rst := peer.readFrame(t)
	require.Equal(t, TypeRstStream, rst.Type())
	body := rst.Body().(*RstStream)
	require.EqualValues(t, 1, body.StreamID())
	require.Equal(t, StreamInUse, body.Status())
	ReleaseFrameHeader(rst)
}

func TestSessionNonMonotonicSynStreamIsFatal(t *testing.T) {
	sess, peer := newTestSession(t)

	first := AcquireFrameHeader()
	syn1 := &SynStream{}
	syn1.SetStreamID(2)
	syn1.SetLast(true)
	syn1.SetRawHeaders(peer.encodeHeaders(t, HeaderBlock{{Name: "status", Values: []string{"200"}}}))
	first.SetBody(syn1)
	peer.write(t, first)

	second := AcquireFrameHeader()
	syn2 := &SynStream{}
	syn2.SetStreamID(2)
	syn2.SetLast(true)
	syn2.SetRawHeaders(peer.encodeHeaders(t, HeaderBlock{{Name: "status", Values: []string{"200"}}}))
	second.SetBody(syn2)
	peer.write(t, second)

	goAway := peer.readFrame(t)
	require.Equal(t, TypeGoAway, goAway.Type())
	require.Equal(t, GoAwayProtocolError, goAway.Body().(*GoAway).Status())
	ReleaseFrameHeader(goAway)

	select {
	case <-sess.doneCh:
	case <-time.After(time.Second):
		t.Fatal("expected session to tear down after a protocol error")
	}
}

func TestSessionGoAwayClosesStreamsPastLastGood(t *testing.T) {
	sess, peer := newTestSession(t)

	var handles []*streamHandle
	for i := 0; i < 3; i++ {
		var reqHeaders HeaderBlock
		reqHeaders.Add("method", "GET")

		done := make(chan *streamHandle, 1)
		go func() {
			h, err := sess.Open(Request{Headers: reqHeaders, Last: true})
			require.NoError(t, err)
			done <- h
		}()

		syn := peer.readFrame(t)
		ReleaseFrameHeader(syn)
		handles = append(handles, <-done)
	}

	require.EqualValues(t, 1, handles[0].ID())
	require.EqualValues(t, 3, handles[1].ID())
	require.EqualValues(t, 5, handles[2].ID())

	goAway := newGoAwayFrame(3, GoAwayOK)
	peer.write(t, goAway)

	resp := <-handles[2].Responses()
	require.Error(t, resp.Err)

	require.True(t, sess.IsConnected())
	require.True(t, sess.IsDraining())
	require.False(t, sess.IsOpen())
	require.True(t, sess.IsClosed())
}

func TestSessionAcceptsServerPushedStream(t *testing.T) {
	var pushed *streamHandle
	pushedAssoc := make(chan uint32, 1)
	pushDone := make(chan struct{})

	sess, peer := newTestSessionOpts(t, SessionOpts{
		OnPush: func(assoc uint32, h *streamHandle) {
			pushed = h
			pushedAssoc <- assoc
			close(pushDone)
		},
	})

	var reqHeaders HeaderBlock
	reqHeaders.Add("method", "GET")
	openDone := make(chan struct{})
	go func() {
		_, err := sess.Open(Request{Headers: reqHeaders, Last: true})
		require.NoError(t, err)
		close(openDone)
	}()
	syn := peer.readFrame(t)
	ReleaseFrameHeader(syn)
	<-openDone

	pushSyn := AcquireFrameHeader()
	push := &SynStream{}
	push.SetStreamID(2)
	push.SetAssocStreamID(1)
	push.SetUnidirectional(true)
	push.SetLast(false)
	push.SetRawHeaders(peer.encodeHeaders(t, HeaderBlock{{Name: "status", Values: []string{"200"}}}))
	pushSyn.SetBody(push)
	peer.write(t, pushSyn)

	<-pushDone
	require.EqualValues(t, 1, <-pushedAssoc)
	require.EqualValues(t, 2, pushed.ID())

	resp := <-pushed.Responses()
	require.NoError(t, resp.Err)
	status, ok := resp.Headers.Get("status")
	require.True(t, ok)
	require.Equal(t, "200", status)

	data := newDataFrame(2, []byte("pushed-body"), true)
	peer.write(t, data)

	resp = <-pushed.Responses()
	require.Equal(t, "pushed-body", string(resp.Data))
	require.True(t, resp.Last)
}

func TestSessionCancelSendsRstCancel(t *testing.T) {
	sess, peer := newTestSession(t)

	var reqHeaders HeaderBlock
	reqHeaders.Add("method", "GET")

	done := make(chan *streamHandle, 1)
	go func() {
		h, err := sess.Open(Request{Headers: reqHeaders, Last: true})
		require.NoError(t, err)
		done <- h
	}()

	syn := peer.readFrame(t)
	ReleaseFrameHeader(syn)
	handle := <-done

	handle.Cancel()

	rst := peer.readFrame(t)
	require.Equal(t, TypeRstStream, rst.Type())
	body := rst.Body().(*RstStream)
	require.EqualValues(t, 1, body.StreamID())
	require.Equal(t, StreamCancel, body.Status())
	ReleaseFrameHeader(rst)

	resp := <-handle.Responses()
	var streamErr *StreamError
	require.ErrorAs(t, resp.Err, &streamErr)
	require.Equal(t, StreamCancel, streamErr.Status)

	// Cancelling a stream that is already gone is a no-op.
	handle.Cancel()
}

func TestSessionPredicatesCapacityAndLatency(t *testing.T) {
	sess, peer := newTestSession(t)

	require.True(t, sess.IsOpen())
	require.True(t, sess.IsConnected())
	require.False(t, sess.IsDraining())
	require.False(t, sess.WasActive())
	require.Zero(t, sess.Latency())
	require.Equal(t, DefaultMaxConcurrentStreams, sess.Capacity())

	// Echo the startup ping back: the session measures the round trip.
	peer.write(t, newPingFrame(1))
	require.Eventually(t, func() bool { return sess.Latency() > 0 },
		time.Second, time.Millisecond)

	var reqHeaders HeaderBlock
	reqHeaders.Add("method", "GET")
	done := make(chan *streamHandle, 1)
	go func() {
		h, err := sess.Open(Request{Headers: reqHeaders, Last: true})
		require.NoError(t, err)
		done <- h
	}()
	syn := peer.readFrame(t)
	ReleaseFrameHeader(syn)
	handle := <-done

	require.Equal(t, DefaultMaxConcurrentStreams-1, sess.Capacity())

	reply := AcquireFrameHeader()
	sr := &SynReply{}
	sr.SetStreamID(1)
	sr.SetLast(true)
	sr.SetRawHeaders(peer.encodeHeaders(t, HeaderBlock{{Name: "status", Values: []string{"200"}}}))
	reply.SetBody(sr)
	peer.write(t, reply)

	resp := <-handle.Responses()
	require.NoError(t, resp.Err)
	require.True(t, sess.WasActive())
	require.True(t, sess.IsActive())

	// The run loop removes the fully-closed stream just after
	// delivering the final response.
	require.Eventually(t, func() bool {
		return sess.Capacity() == DefaultMaxConcurrentStreams
	}, time.Second, time.Millisecond)
}

func TestSessionEchoesPeerPing(t *testing.T) {
	_, peer := newTestSession(t)

	peer.write(t, newPingFrame(2))

	echo := peer.readFrame(t)
	require.Equal(t, TypePing, echo.Type())
	require.EqualValues(t, 2, echo.Body().(*PingFrame).ID())
	ReleaseFrameHeader(echo)
}

func TestSessionCloseListenerRunsOnce(t *testing.T) {
	sess, peer := newTestSession(t)

	// Drain whatever the session writes during shutdown so its GOAWAY
	// doesn't block on the synchronous pipe.
	go func() {
		for {
			fh, err := ReadFrameFrom(peer.br)
			if err != nil {
				return
			}
			ReleaseFrameHeader(fh)
		}
	}()

	closed := make(chan error, 2)
	sess.AddCloseListener(func(err error) { closed <- err })

	require.NoError(t, sess.Close())
	require.NoError(t, <-closed)
	require.True(t, sess.IsDisconnected())

	// A listener added after termination fires immediately.
	sess.AddCloseListener(func(err error) { closed <- err })
	require.NoError(t, <-closed)
}

func TestSessionFlowControlWindowRestore(t *testing.T) {
	sess, peer := newTestSessionOpts(t, SessionOpts{
		InitialWindowSize: 1 << 20,
		SessionWindowSize: 1 << 20,
	})

	var reqHeaders HeaderBlock
	reqHeaders.Add("method", "GET")

	done := make(chan *streamHandle, 1)
	go func() {
		h, err := sess.Open(Request{Headers: reqHeaders, Last: true})
		require.NoError(t, err)
		done <- h
	}()
	syn := peer.readFrame(t)
	ReleaseFrameHeader(syn)
	handle := <-done

	reply := AcquireFrameHeader()
	sr := &SynReply{}
	sr.SetStreamID(1)
	sr.SetLast(false)
	sr.SetRawHeaders(peer.encodeHeaders(t, HeaderBlock{{Name: "status", Values: []string{"200"}}}))
	reply.SetBody(sr)
	peer.write(t, reply)
	<-handle.Responses()

	// 700,000 bytes drops both windows to 348,576, below half of the
	// 1,048,576 initial: the session restores each side to its initial
	// with a WINDOW_UPDATE carrying the consumed amount.
	const bodySize = 700_000
	writeDone := make(chan struct{})
	go func() {
		peer.write(t, newDataFrame(1, make([]byte, bodySize), false))
		close(writeDone)
	}()

	resp := <-handle.Responses()
	require.Len(t, resp.Data, bodySize)
	<-writeDone

	sessWU := peer.readFrame(t)
	require.Equal(t, TypeWindowUpdate, sessWU.Type())
	require.EqualValues(t, 0, sessWU.Body().(*WindowUpdate).StreamID())
	require.EqualValues(t, bodySize, sessWU.Body().(*WindowUpdate).Delta())
	ReleaseFrameHeader(sessWU)

	streamWU := peer.readFrame(t)
	require.Equal(t, TypeWindowUpdate, streamWU.Type())
	require.EqualValues(t, 1, streamWU.Body().(*WindowUpdate).StreamID())
	require.EqualValues(t, bodySize, streamWU.Body().(*WindowUpdate).Delta())
	ReleaseFrameHeader(streamWU)
}

func TestSessionWindowUpdateOverflowIsFatal(t *testing.T) {
	sess, peer := newTestSession(t)

	// Driving the session send window to exactly INT32_MAX is legal.
	peer.write(t, newWindowUpdateFrame(0, 1<<31-1-DefaultInitialWindowSize))
	// One more unit overflows it.
	peer.write(t, newWindowUpdateFrame(0, 1))

	goAway := peer.readFrame(t)
	require.Equal(t, TypeGoAway, goAway.Type())
	require.Equal(t, GoAwayProtocolError, goAway.Body().(*GoAway).Status())
	ReleaseFrameHeader(goAway)

	select {
	case <-sess.doneCh:
	case <-time.After(time.Second):
		t.Fatal("expected session to tear down after window overflow")
	}
}

func TestStreamWindowUpdateOverflowResetsStream(t *testing.T) {
	sess, peer := newTestSession(t)

	var reqHeaders HeaderBlock
	reqHeaders.Add("method", "POST")

	done := make(chan *streamHandle, 1)
	go func() {
		h, err := sess.Open(Request{Headers: reqHeaders, Last: false})
		require.NoError(t, err)
		done <- h
	}()
	syn := peer.readFrame(t)
	ReleaseFrameHeader(syn)
	handle := <-done

	peer.write(t, newWindowUpdateFrame(1, 1<<31-1-DefaultInitialWindowSize+1))

	rst := peer.readFrame(t)
	require.Equal(t, TypeRstStream, rst.Type())
	body := rst.Body().(*RstStream)
	require.EqualValues(t, 1, body.StreamID())
	require.Equal(t, StreamFlowControlError, body.Status())
	ReleaseFrameHeader(rst)

	resp := <-handle.Responses()
	var streamErr *StreamError
	require.ErrorAs(t, resp.Err, &streamErr)
	require.Equal(t, StreamFlowControlError, streamErr.Status)
}

func TestSessionMalformedFrameSendsGoAway(t *testing.T) {
	sess, peer := newTestSession(t)

	// A PING control frame whose declared payload is too short to hold
	// its id: a decode violation on a healthy transport, so the session
	// must still write a GOAWAY before tearing down.
	raw := []byte{
		0x80, 0x03, 0x00, 0x06, // control, version 3, PING
		0x00, 0x00, 0x00, 0x02, // flags 0, length 2
		0xde, 0xad,
	}
	_, err := peer.bw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, peer.bw.Flush())

	goAway := peer.readFrame(t)
	require.Equal(t, TypeGoAway, goAway.Type())
	require.Equal(t, GoAwayProtocolError, goAway.Body().(*GoAway).Status())
	ReleaseFrameHeader(goAway)

	select {
	case <-sess.doneCh:
	case <-time.After(time.Second):
		t.Fatal("expected session to tear down after a malformed frame")
	}
}
