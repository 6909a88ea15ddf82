package spdymux

import "github.com/climber-labs/spdymux/internal/wire"

// SynStream is the decoded SYN_STREAM control frame body (SPDY/3.1 section
// 2.6.1). Its name/value header block remains
// zlib-compressed in rawHeaders until the session feeds it through the
// shared header codec.
type SynStream struct {
	streamID   uint32
	assocID    uint32
	priority   uint8
	last       bool
	unidir     bool
	rawHeaders []byte
}

func (s *SynStream) controlType() ControlType { return TypeSynStream }

func (s *SynStream) reset() {
	s.streamID = 0
	s.assocID = 0
	s.priority = 0
	s.last = false
	s.unidir = false
	s.rawHeaders = s.rawHeaders[:0]
}

// StreamID is the id the peer is opening.
func (s *SynStream) StreamID() uint32 { return s.streamID }

// SetStreamID sets the id of the stream being opened.
func (s *SynStream) SetStreamID(id uint32) { s.streamID = id }

// AssocStreamID is the client-initiated stream this (server push)
// stream is associated with, or 0.
func (s *SynStream) AssocStreamID() uint32 { return s.assocID }

// SetAssocStreamID sets the associated stream id.
func (s *SynStream) SetAssocStreamID(id uint32) { s.assocID = id }

// Priority is the 0 (highest) to 7 (lowest) stream priority.
func (s *SynStream) Priority() uint8 { return s.priority }

// SetPriority sets the stream priority.
func (s *SynStream) SetPriority(p uint8) { s.priority = p & 0x7 }

// Last reports whether FLAG_FIN was set (no further DATA will follow
// from the sender on this stream).
func (s *SynStream) Last() bool { return s.last }

// SetLast sets FLAG_FIN.
func (s *SynStream) SetLast(v bool) { s.last = v }

// Unidirectional reports whether FLAG_UNIDIRECTIONAL was set (a pushed
// stream with no client-to-server data expected).
func (s *SynStream) Unidirectional() bool { return s.unidir }

// SetUnidirectional sets FLAG_UNIDIRECTIONAL.
func (s *SynStream) SetUnidirectional(v bool) { s.unidir = v }

// RawHeaders returns the still-compressed name/value header block.
func (s *SynStream) RawHeaders() []byte { return s.rawHeaders }

// SetRawHeaders sets the compressed name/value header block to emit.
func (s *SynStream) SetRawHeaders(b []byte) { s.rawHeaders = append(s.rawHeaders[:0], b...) }

func (s *SynStream) deserialize(fh *FrameHeader) error {
	p := fh.payload
	if len(p) < 10 {
		return ErrMissingBytes
	}
	s.streamID = wire.Uint31(p[0:4])
	s.assocID = wire.Uint31(p[4:8])
	s.priority = p[8] >> 5
	s.last = fh.cflags.Has(FlagFin)
	s.unidir = fh.cflags.Has(FlagUnidirectional)
	s.rawHeaders = append(s.rawHeaders[:0], p[10:]...)
	return nil
}

func (s *SynStream) serialize(fh *FrameHeader) {
	flags := ControlFlags(0)
	if s.last {
		flags |= FlagFin
	}
	if s.unidir {
		flags |= FlagUnidirectional
	}
	fh.cflags = flags

	buf := make([]byte, 10, 10+len(s.rawHeaders))
	wire.PutUint32(buf[0:4], s.streamID&(1<<31-1))
	wire.PutUint32(buf[4:8], s.assocID&(1<<31-1))
	buf[8] = s.priority << 5
	buf[9] = 0 // slot, unused by SPDY/3.1 clients
	buf = append(buf, s.rawHeaders...)
	fh.payload = buf
}
