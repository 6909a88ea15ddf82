package spdymux

import "github.com/climber-labs/spdymux/internal/wire"

// PingFrame is the decoded PING control frame body. Odd ids are
// client-initiated, even ids are server-initiated (SPDY/3.1 section 2.6.5).
type PingFrame struct {
	id uint32
}

func (p *PingFrame) controlType() ControlType { return TypePing }

func (p *PingFrame) reset() { p.id = 0 }

// ID is the ping's 32-bit identifier.
func (p *PingFrame) ID() uint32 { return p.id }

// SetID sets the ping identifier.
func (p *PingFrame) SetID(id uint32) { p.id = id }

func (p *PingFrame) deserialize(fh *FrameHeader) error {
	if len(fh.payload) < 4 {
		return ErrMissingBytes
	}
	p.id = wire.Uint32(fh.payload[0:4])
	return nil
}

func (p *PingFrame) serialize(fh *FrameHeader) {
	fh.cflags = 0
	fh.payload = wire.AppendUint32(fh.payload[:0], p.id)
}

func newPingFrame(id uint32) *FrameHeader {
	fh := AcquireFrameHeader()
	ping := pingPool.Get().(*PingFrame)
	ping.reset()
	ping.SetID(id)
	fh.SetBody(ping)
	return fh
}
