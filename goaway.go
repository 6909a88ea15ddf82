package spdymux

import "github.com/climber-labs/spdymux/internal/wire"

// GoAway is the decoded GOAWAY control frame body.
type GoAway struct {
	lastGoodID uint32
	status     SessionStatus
}

func (g *GoAway) controlType() ControlType { return TypeGoAway }

func (g *GoAway) reset() {
	g.lastGoodID = 0
	g.status = 0
}

// LastGoodStreamID is the highest remotely-initiated stream id the
// sender processed or will process.
func (g *GoAway) LastGoodStreamID() uint32 { return g.lastGoodID }

// SetLastGoodStreamID sets the last-good stream id.
func (g *GoAway) SetLastGoodStreamID(id uint32) { g.lastGoodID = id }

// Status is the reason the session is going away.
func (g *GoAway) Status() SessionStatus { return g.status }

// SetStatus sets the reason.
func (g *GoAway) SetStatus(s SessionStatus) { g.status = s }

func (g *GoAway) deserialize(fh *FrameHeader) error {
	p := fh.payload
	if len(p) < 8 {
		return ErrMissingBytes
	}
	g.lastGoodID = wire.Uint31(p[0:4])
	g.status = SessionStatus(wire.Uint32(p[4:8]))
	return nil
}

func (g *GoAway) serialize(fh *FrameHeader) {
	fh.cflags = 0
	buf := make([]byte, 8)
	wire.PutUint32(buf[0:4], g.lastGoodID&(1<<31-1))
	wire.PutUint32(buf[4:8], uint32(g.status))
	fh.payload = buf
}

func newGoAwayFrame(lastGoodID uint32, status SessionStatus) *FrameHeader {
	fh := AcquireFrameHeader()
	ga := goAwayPool.Get().(*GoAway)
	ga.reset()
	ga.SetLastGoodStreamID(lastGoodID)
	ga.SetStatus(status)
	fh.SetBody(ga)
	return fh
}
