package spdymux

import "github.com/climber-labs/spdymux/internal/wire"

// WindowUpdate is the decoded WINDOW_UPDATE control frame body. A
// stream id of 0 addresses the session-level window.
type WindowUpdate struct {
	streamID uint32
	delta    uint32
}

func (w *WindowUpdate) controlType() ControlType { return TypeWindowUpdate }

func (w *WindowUpdate) reset() {
	w.streamID = 0
	w.delta = 0
}

// StreamID is the stream (or 0 for session) the credit applies to.
func (w *WindowUpdate) StreamID() uint32 { return w.streamID }

// SetStreamID sets the target stream id.
func (w *WindowUpdate) SetStreamID(id uint32) { w.streamID = id }

// Delta is the window increment in bytes.
func (w *WindowUpdate) Delta() uint32 { return w.delta }

// SetDelta sets the window increment.
func (w *WindowUpdate) SetDelta(d uint32) { w.delta = d }

func (w *WindowUpdate) deserialize(fh *FrameHeader) error {
	p := fh.payload
	if len(p) < 8 {
		return ErrMissingBytes
	}
	w.streamID = wire.Uint31(p[0:4])
	w.delta = wire.Uint31(p[4:8])
	return nil
}

func (w *WindowUpdate) serialize(fh *FrameHeader) {
	fh.cflags = 0
	buf := make([]byte, 8)
	wire.PutUint32(buf[0:4], w.streamID&(1<<31-1))
	wire.PutUint32(buf[4:8], w.delta&(1<<31-1))
	fh.payload = buf
}

func newWindowUpdateFrame(streamID, delta uint32) *FrameHeader {
	fh := AcquireFrameHeader()
	wu := windowPool.Get().(*WindowUpdate)
	wu.reset()
	wu.SetStreamID(streamID)
	wu.SetDelta(delta)
	fh.SetBody(wu)
	return fh
}
