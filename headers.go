package spdymux

import "github.com/climber-labs/spdymux/internal/wire"

// Headers is the decoded HEADERS control frame body: additional,
// out-of-band name/value pairs delivered mid-stream (SPDY/3.1 section 2.6.7).
type Headers struct {
	streamID   uint32
	last       bool
	rawHeaders []byte
}

func (h *Headers) controlType() ControlType { return TypeHeaders }

func (h *Headers) reset() {
	h.streamID = 0
	h.last = false
	h.rawHeaders = h.rawHeaders[:0]
}

// StreamID is the stream these headers apply to.
func (h *Headers) StreamID() uint32 { return h.streamID }

// SetStreamID sets the stream id.
func (h *Headers) SetStreamID(id uint32) { h.streamID = id }

// Last reports whether FLAG_FIN was set.
func (h *Headers) Last() bool { return h.last }

// SetLast sets FLAG_FIN.
func (h *Headers) SetLast(v bool) { h.last = v }

// RawHeaders returns the still-compressed name/value header block.
func (h *Headers) RawHeaders() []byte { return h.rawHeaders }

// SetRawHeaders sets the compressed name/value header block to emit.
func (h *Headers) SetRawHeaders(b []byte) { h.rawHeaders = append(h.rawHeaders[:0], b...) }

func (h *Headers) deserialize(fh *FrameHeader) error {
	p := fh.payload
	if len(p) < 4 {
		return ErrMissingBytes
	}
	h.streamID = wire.Uint31(p[0:4])
	h.last = fh.cflags.Has(FlagFin)
	h.rawHeaders = append(h.rawHeaders[:0], p[4:]...)
	return nil
}

func (h *Headers) serialize(fh *FrameHeader) {
	flags := ControlFlags(0)
	if h.last {
		flags |= FlagFin
	}
	fh.cflags = flags

	buf := make([]byte, 4, 4+len(h.rawHeaders))
	wire.PutUint32(buf[0:4], h.streamID&(1<<31-1))
	buf = append(buf, h.rawHeaders...)
	fh.payload = buf
}
