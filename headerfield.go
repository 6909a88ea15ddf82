package spdymux

// HeaderField is one decoded (name, value) pair from a SYN_STREAM,
// SYN_REPLY, or HEADERS block. SPDY/3.1 allows a single name to carry
// several NUL-separated values; Values preserves that split instead of
// flattening it, since the separator is significant to some consumers.
type HeaderField struct {
	Name   string
	Values []string
}

// HeaderBlock is an ordered collection of decoded header fields. Order
// is preserved because SPDY does not require fields to be unique or
// sorted, unlike HTTP/2's HPACK-indexed table.
type HeaderBlock []HeaderField

// Get returns the first value for name, and whether it was present.
func (b HeaderBlock) Get(name string) (string, bool) {
	for _, f := range b {
		if f.Name == name {
			if len(f.Values) == 0 {
				return "", true
			}
			return f.Values[0], true
		}
	}
	return "", false
}

// Add appends a field to the block.
func (b *HeaderBlock) Add(name string, values ...string) {
	*b = append(*b, HeaderField{Name: name, Values: values})
}
