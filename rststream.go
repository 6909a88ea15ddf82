package spdymux

import "github.com/climber-labs/spdymux/internal/wire"

// RstStream is the decoded RST_STREAM control frame body.
//
// https://tools.ietf.org/html/draft-ietf-httpbis-http2-00#section-2.2.2 (SPDY/3.1 section 2.2.2)
type RstStream struct {
	streamID uint32
	status   StreamStatus
}

func (r *RstStream) controlType() ControlType { return TypeRstStream }

func (r *RstStream) reset() {
	r.streamID = 0
	r.status = 0
}

// StreamID is the stream being reset.
func (r *RstStream) StreamID() uint32 { return r.streamID }

// SetStreamID sets the stream id.
func (r *RstStream) SetStreamID(id uint32) { r.streamID = id }

// Status is the reset reason.
func (r *RstStream) Status() StreamStatus { return r.status }

// SetStatus sets the reset reason.
func (r *RstStream) SetStatus(s StreamStatus) { r.status = s }

func (r *RstStream) deserialize(fh *FrameHeader) error {
	p := fh.payload
	if len(p) < 8 {
		return ErrMissingBytes
	}
	r.streamID = wire.Uint31(p[0:4])
	r.status = StreamStatus(wire.Uint32(p[4:8]))
	return nil
}

func (r *RstStream) serialize(fh *FrameHeader) {
	fh.cflags = 0
	buf := make([]byte, 8)
	wire.PutUint32(buf[0:4], r.streamID&(1<<31-1))
	wire.PutUint32(buf[4:8], uint32(r.status))
	fh.payload = buf
}

// newRstStreamFrame builds a ready-to-write FrameHeader carrying an
// RST_STREAM for id/status. Callers must ReleaseFrameHeader when done.
func newRstStreamFrame(id uint32, status StreamStatus) *FrameHeader {
	fh := AcquireFrameHeader()
	rst := rstStreamPool.Get().(*RstStream)
	rst.reset()
	rst.SetStreamID(id)
	rst.SetStatus(status)
	fh.SetBody(rst)
	return fh
}
