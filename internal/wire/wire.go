// Package wire holds the low-level byte packing helpers shared by the
// SPDY/3.1 frame codec: big-endian uint24/uint31/uint32 conversions and
// byte-slice resizing.
package wire

// PutUint24 writes the 24 low bits of n into b in big-endian order.
func PutUint24(b []byte, n uint32) {
	_ = b[2]
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

// Uint24 reads a 24-bit big-endian unsigned integer from b.
func Uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// PutUint32 writes n into b in big-endian order.
func PutUint32(b []byte, n uint32) {
	_ = b[3]
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

// AppendUint32 appends the big-endian encoding of n to dst.
func AppendUint32(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// Uint32 reads a 32-bit big-endian unsigned integer from b.
func Uint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Uint31 reads a 32-bit big-endian unsigned integer from b, masking off
// the reserved high bit used throughout SPDY/3.1 for stream and window
// update fields.
func Uint31(b []byte) uint32 {
	return Uint32(b) & (1<<31 - 1)
}

// AppendUint31 appends the big-endian encoding of n to dst, forcing the
// reserved high bit to zero.
func AppendUint31(dst []byte, n uint32) []byte {
	return AppendUint32(dst, n&(1<<31-1))
}

// Resize grows b (reusing its backing array where possible) so that
// len(b) == n.
func Resize(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	nb := make([]byte, n)
	copy(nb, b)
	return nb
}
