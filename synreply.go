package spdymux

import "github.com/climber-labs/spdymux/internal/wire"

// SynReply is the decoded SYN_REPLY control frame body.
type SynReply struct {
	streamID   uint32
	last       bool
	rawHeaders []byte
}

func (s *SynReply) controlType() ControlType { return TypeSynReply }

func (s *SynReply) reset() {
	s.streamID = 0
	s.last = false
	s.rawHeaders = s.rawHeaders[:0]
}

// StreamID is the stream this reply answers.
func (s *SynReply) StreamID() uint32 { return s.streamID }

// SetStreamID sets the stream id.
func (s *SynReply) SetStreamID(id uint32) { s.streamID = id }

// Last reports whether FLAG_FIN was set.
func (s *SynReply) Last() bool { return s.last }

// SetLast sets FLAG_FIN.
func (s *SynReply) SetLast(v bool) { s.last = v }

// RawHeaders returns the still-compressed name/value header block.
func (s *SynReply) RawHeaders() []byte { return s.rawHeaders }

// SetRawHeaders sets the compressed name/value header block to emit.
func (s *SynReply) SetRawHeaders(b []byte) { s.rawHeaders = append(s.rawHeaders[:0], b...) }

func (s *SynReply) deserialize(fh *FrameHeader) error {
	p := fh.payload
	if len(p) < 4 {
		return ErrMissingBytes
	}
	s.streamID = wire.Uint31(p[0:4])
	s.last = fh.cflags.Has(FlagFin)
	s.rawHeaders = append(s.rawHeaders[:0], p[4:]...)
	return nil
}

func (s *SynReply) serialize(fh *FrameHeader) {
	flags := ControlFlags(0)
	if s.last {
		flags |= FlagFin
	}
	fh.cflags = flags

	buf := make([]byte, 4, 4+len(s.rawHeaders))
	wire.PutUint32(buf[0:4], s.streamID&(1<<31-1))
	buf = append(buf, s.rawHeaders...)
	fh.payload = buf
}
