package spdymux

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/climber-labs/spdymux/internal/wire"
)

// controlFrameHeaderSize is the fixed 8-byte header shared by every
// SPDY/3.1 control frame (section 2.2: the high bit of the first byte
// distinguishes control from data).
const controlFrameHeaderSize = 8

// dataFrameHeaderSize is the fixed 8-byte header of a data frame: a
// 31-bit stream id (high bit clear), 8-bit flags, 24-bit length.
const dataFrameHeaderSize = 8

// FrameHeader is the decoded envelope shared by every SPDY/3.1 frame: a
// pooled value that owns its payload buffer and, once SetBody is called,
// knows how to serialize or has already deserialized its frameBody.
//
// Use AcquireFrameHeader/ReleaseFrameHeader to recycle FrameHeaders
// instead of allocating one per frame.
type FrameHeader struct {
	control  bool
	ctype    ControlType
	cflags   ControlFlags
	dflags   DataFlags
	stream   uint32
	length   int
	maxLen   uint32
	payload  []byte
	body     frameBody
}

var frameHeaderPool = sync.Pool{New: func() interface{} { return &FrameHeader{} }}

// AcquireFrameHeader returns a FrameHeader from the pool with default
// limits applied.
func AcquireFrameHeader() *FrameHeader {
	fh := frameHeaderPool.Get().(*FrameHeader)
	fh.Reset()
	return fh
}

// ReleaseFrameHeader releases fh and its body back to their pools. Do
// not use fh after calling this.
func ReleaseFrameHeader(fh *FrameHeader) {
	releaseBody(fh.body)
	fh.body = nil
	frameHeaderPool.Put(fh)
}

// Reset restores fh to its zero, reusable state.
func (fh *FrameHeader) Reset() {
	fh.control = false
	fh.ctype = 0
	fh.cflags = 0
	fh.dflags = 0
	fh.stream = 0
	fh.length = 0
	fh.maxLen = MaxDataLength
	fh.payload = fh.payload[:0]
	fh.body = nil
}

// IsControl reports whether the decoded frame was a control frame.
func (fh *FrameHeader) IsControl() bool { return fh.control }

// Type returns the control frame type. Only meaningful when IsControl.
func (fh *FrameHeader) Type() ControlType { return fh.ctype }

// Stream returns the stream id of a DATA frame. It is 0 for control
// frames, which carry their stream id (if any) in Body.
func (fh *FrameHeader) Stream() uint32 { return fh.stream }

// ControlFlags returns the control frame flags. Only meaningful when
// IsControl.
func (fh *FrameHeader) ControlFlags() ControlFlags { return fh.cflags }

// DataFlags returns the data frame flags. Only meaningful when
// !IsControl.
func (fh *FrameHeader) DataFlags() DataFlags { return fh.dflags }

// Body returns the decoded frameBody, or nil if the frame was a DATA
// frame (whose payload is exposed via Payload instead).
func (fh *FrameHeader) Body() frameBody { return fh.body }

// Payload returns the raw frame payload bytes.
func (fh *FrameHeader) Payload() []byte { return fh.payload }

// SetMaxLen bounds the payload length this FrameHeader will accept when
// reading; a violation surfaces ErrPayloadExceeds.
func (fh *FrameHeader) SetMaxLen(n uint32) { fh.maxLen = n }

// ReadFrameFrom reads and decodes one frame from br, returning a fresh
// pooled FrameHeader. The caller must call ReleaseFrameHeader when done.
func ReadFrameFrom(br *bufio.Reader) (*FrameHeader, error) {
	fh := AcquireFrameHeader()
	if err := fh.readFrom(br); err != nil {
		ReleaseFrameHeader(fh)
		return nil, err
	}
	return fh, nil
}

func (fh *FrameHeader) readFrom(br *bufio.Reader) error {
	header, err := br.Peek(controlFrameHeaderSize)
	if err != nil {
		return err
	}
	control := header[0]&0x80 != 0

	if control {
		if _, err := br.Discard(controlFrameHeaderSize); err != nil {
			return err
		}
		version := (wire.Uint32(header[0:4]) >> 16) & 0x7fff
		if version != Version {
			return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
		}
		fh.control = true
		fh.ctype = ControlType(wire.Uint32(header[0:4]) & 0xffff)
		fh.cflags = ControlFlags(header[4])
		fh.length = int(wire.Uint24(header[5:8]))
	} else {
		if _, err := br.Discard(dataFrameHeaderSize); err != nil {
			return err
		}
		fh.control = false
		fh.stream = wire.Uint31(header[0:4])
		fh.dflags = DataFlags(header[4])
		fh.length = int(wire.Uint24(header[5:8]))
	}

	if fh.maxLen != 0 && uint32(fh.length) > fh.maxLen {
		io.CopyN(io.Discard, br, int64(fh.length))
		return ErrPayloadExceeds
	}

	if fh.length > 0 {
		fh.payload = wire.Resize(fh.payload, fh.length)
		if _, err := io.ReadFull(br, fh.payload); err != nil {
			return err
		}
	}

	if fh.control {
		fh.body = acquireBody(fh.ctype)
		if fh.body == nil {
			return nil // frameSkipped: unknown control type, caller decides
		}
		return fh.body.(frameReader).deserialize(fh)
	}

	fh.stream = wire.Uint31(header[0:4])
	return nil
}

// frameReader is implemented by every concrete control frame body.
type frameReader interface {
	deserialize(fh *FrameHeader) error
}

// frameWriter is implemented by every concrete control frame body.
type frameWriter interface {
	serialize(fh *FrameHeader)
}

// WriteTo encodes fh (header plus whatever body/payload is set) to bw.
func (fh *FrameHeader) WriteTo(bw *bufio.Writer) (int64, error) {
	if fh.control {
		fh.body.(frameWriter).serialize(fh)
		fh.length = len(fh.payload)

		var hdr [controlFrameHeaderSize]byte
		wire.PutUint32(hdr[0:4], uint32(1)<<31|uint32(Version)<<16|uint32(fh.ctype))
		hdr[4] = byte(fh.cflags)
		wire.PutUint24(hdr[5:8], uint32(fh.length))

		n, err := bw.Write(hdr[:])
		if err != nil {
			return int64(n), err
		}
		m, err := bw.Write(fh.payload)
		return int64(n + m), err
	}

	fh.length = len(fh.payload)
	var hdr [dataFrameHeaderSize]byte
	wire.PutUint32(hdr[0:4], fh.stream&(1<<31-1))
	hdr[4] = byte(fh.dflags)
	wire.PutUint24(hdr[5:8], uint32(fh.length))

	n, err := bw.Write(hdr[:])
	if err != nil {
		return int64(n), err
	}
	m, err := bw.Write(fh.payload)
	return int64(n + m), err
}

// SetPayload replaces fh's raw payload buffer, copying b.
func (fh *FrameHeader) SetPayload(b []byte) {
	fh.payload = append(fh.payload[:0], b...)
}

// SetStream sets the stream id for an outbound data frame.
func (fh *FrameHeader) SetStream(id uint32) { fh.stream = id }

// SetDataFlags sets the flags for an outbound data frame.
func (fh *FrameHeader) SetDataFlags(f DataFlags) { fh.dflags = f }

// SetBody attaches a control frame body for outbound encoding.
func (fh *FrameHeader) SetBody(b frameBody) {
	fh.control = true
	fh.ctype = b.controlType()
	fh.body = b
}

// SetControlFlags sets the flags for an outbound control frame.
func (fh *FrameHeader) SetControlFlags(f ControlFlags) { fh.cflags = f }
