package spdymux

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"strings"
)

const headerValueSeparator = "\x00"

// headerCodec holds the per-session, per-direction zlib state used to
// compress and decompress SPDY/3.1 name/value header blocks (spec
// section 4.B "Header codec"). SPDY shares one compression context
// across every SYN_STREAM, SYN_REPLY, and HEADERS frame written or
// read on a session, so the *zlib.Writer and the decompressing
// io.ReadCloser must outlive any single frame and are owned here
// rather than by the frame types themselves.
//
// A headerCodec is not safe for concurrent use; callers serialize
// access to it the same way Session serializes all frame encode/decode
// through its single run loop.
type headerCodec struct {
	compressBuf *bytes.Buffer
	compressor  *zlib.Writer

	decompressor io.ReadCloser
	decompressSrc *io.LimitedReader
}

// newHeaderCodec returns a ready-to-use codec. The zlib.Writer is
// primed immediately with headerDictionary; the reader side is primed
// lazily on the first decompressed block, since zlib.NewReaderDict
// needs bytes to read before it can validate the dictionary.
func newHeaderCodec() (*headerCodec, error) {
	buf := new(bytes.Buffer)
	w, err := zlib.NewWriterLevelDict(buf, zlib.BestCompression, []byte(headerDictionary))
	if err != nil {
		return nil, err
	}
	return &headerCodec{compressBuf: buf, compressor: w}, nil
}

// Encode compresses block into a SPDY name/value header block ready to
// use as the RawHeaders payload of a SYN_STREAM, SYN_REPLY, or HEADERS
// frame.
func (c *headerCodec) Encode(block HeaderBlock) ([]byte, error) {
	c.compressBuf.Reset()
	if err := writeHeaderValueBlock(c.compressor, block); err != nil {
		return nil, err
	}
	if err := c.compressor.Flush(); err != nil {
		return nil, err
	}
	out := make([]byte, c.compressBuf.Len())
	copy(out, c.compressBuf.Bytes())
	return out, nil
}

// writeHeaderValueBlock writes block in the wire layout shared by
// every header-bearing control frame: a 4-byte count followed by, for
// each field, a 4-byte-length-prefixed name and a 4-byte-length-
// prefixed value (multiple Values joined by a NUL byte).
func writeHeaderValueBlock(w io.Writer, block HeaderBlock) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(block))); err != nil {
		return err
	}
	for _, f := range block {
		name := strings.ToLower(f.Name)
		if err := binary.Write(w, binary.BigEndian, uint32(len(name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, name); err != nil {
			return err
		}
		value := strings.Join(f.Values, headerValueSeparator)
		if err := binary.Write(w, binary.BigEndian, uint32(len(value))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, value); err != nil {
			return err
		}
	}
	return nil
}

// Decode decompresses raw (the still-compressed RawHeaders of a
// decoded frame) into a HeaderBlock, enforcing maxSize as the
// accumulated decoded name+value byte budget. A zero
// maxSize means unbounded.
//
// If the block exceeds maxSize, Decode still reads it to completion so
// the shared zlib dictionary state stays synchronized with the peer,
// then returns ErrHeaderTooLarge: a stream-local failure, not a fatal
// one. Any other error means the zlib stream itself is left in an
// indeterminate state and every subsequent header block on the session
// would fail too; the caller must wrap that error in a
// headerCodecFatalError and tear the session down with GOAWAY
// protocol-error rather than just resetting the offending stream.
func (c *headerCodec) Decode(raw []byte, maxSize uint32) (HeaderBlock, error) {
	if c.decompressSrc == nil {
		c.decompressSrc = &io.LimitedReader{R: bytes.NewReader(raw), N: int64(len(raw))}
		dec, err := zlib.NewReaderDict(c.decompressSrc, []byte(headerDictionary))
		if err != nil {
			return nil, err
		}
		c.decompressor = dec
	} else {
		c.decompressSrc.R = bytes.NewReader(raw)
		c.decompressSrc.N = int64(len(raw))
	}
	return readHeaderValueBlock(c.decompressor, maxSize)
}

func readHeaderValueBlock(r io.Reader, maxSize uint32) (HeaderBlock, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	block := make(HeaderBlock, 0, count)
	var total uint64
	tooLarge := false
	for i := uint32(0); i < count; i++ {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		nameBytes := make([]byte, length)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, err
		}

		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		valueBytes := make([]byte, length)
		if _, err := io.ReadFull(r, valueBytes); err != nil {
			return nil, err
		}

		total += uint64(len(nameBytes)) + uint64(len(valueBytes))
		if maxSize != 0 && total > uint64(maxSize) {
			// Keep decoding the rest of the block so the shared zlib
			// stream stays byte-synchronized with the peer; just stop
			// accumulating into block.
			tooLarge = true
			continue
		}

		block = append(block, HeaderField{
			Name:   strings.ToLower(string(nameBytes)),
			Values: strings.Split(string(valueBytes), headerValueSeparator),
		})
	}
	if tooLarge {
		return nil, ErrHeaderTooLarge
	}
	return block, nil
}
