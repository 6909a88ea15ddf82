// Package spdymux implements the client side of a SPDY/3.1 session
// multiplexer: framing, zlib header compression, per-stream and
// per-session flow control, and a single cooperative run loop per
// Session that keeps all connection state single-threaded without
// locking.
//
// A typical caller dials with Dialer, then opens exchanges with
// Session.Open:
//
//	d := &spdymux.Dialer{Addr: "example.com:443"}
//	sess, err := d.Dial()
//	...
//	h, err := sess.Open(spdymux.Request{Headers: myHeaders, Last: true})
//	for resp := range h.Responses() {
//		...
//	}
package spdymux
