package spdymux

// newDataFrame builds a ready-to-write FrameHeader carrying a DATA frame
// for stream id, with payload and the FIN flag set per last.
//
// Unlike control frames, DATA frames have no frameBody: the payload is
// the wire representation directly (SPDY/3.1 section 2.2.2).
func newDataFrame(streamID uint32, payload []byte, last bool) *FrameHeader {
	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetPayload(payload)
	if last {
		fh.SetDataFlags(DataFlagFin)
	}
	return fh
}
