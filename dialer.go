package spdymux

import (
	"crypto/tls"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

// protoSPDY31 is the NPN/ALPN protocol identifier negotiated during
// the TLS handshake (SPDY/3.1 section 1.3).
const protoSPDY31 = "spdy/3.1"

// ErrNoProtocolNegotiated is returned when the remote TLS peer accepts
// the connection but never agrees to speak spdy/3.1.
var ErrNoProtocolNegotiated = errors.New("spdymux: peer did not negotiate spdy/3.1")

// Dialer dials a single SPDY/3.1 session over TLS. TLS negotiation
// itself (trust, cert validation) is left to TLSConfig; Dialer's own
// job is only to require and confirm the spdy/3.1 ALPN protocol and
// hand the negotiated net.Conn to NewSession.
type Dialer struct {
	// Addr is "host:port".
	Addr string
	// TLSConfig is cloned and has Addr's host plus protoSPDY31 merged
	// into it before dialing. A nil TLSConfig dials with an otherwise
	// empty *tls.Config{}.
	TLSConfig *tls.Config
	// SessionOpts configures the Session constructed over the dialed
	// connection.
	SessionOpts SessionOpts
	// Store is the settings store shared across sessions to the same
	// origin. A nil Store means no settings persistence.
	Store *Store
}

// Dial connects, completes the TLS + spdy/3.1 handshake, and returns a
// running Session.
func (d *Dialer) Dial() (*Session, error) {
	host, _, err := net.SplitHostPort(d.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "spdymux: parsing dial address")
	}
	asciiHost, err := idna.ToASCII(host)
	if err != nil {
		return nil, errors.Wrap(err, "spdymux: normalizing host")
	}

	cfg := d.cloneTLSConfig()

	conn, err := tls.Dial("tcp", d.Addr, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "spdymux: dialing")
	}
	if conn.ConnectionState().NegotiatedProtocol != protoSPDY31 {
		_ = conn.Close()
		return nil, ErrNoProtocolNegotiated
	}

	origin := NewOrigin("https", asciiHost, tlsPort(d.Addr))

	store := d.Store
	if store == nil {
		store = NewStore()
	}

	return NewSession(conn, origin, store, d.SessionOpts)
}

func (d *Dialer) cloneTLSConfig() *tls.Config {
	var cfg *tls.Config
	if d.TLSConfig != nil {
		cfg = d.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if !hasProto(cfg.NextProtos, protoSPDY31) {
		cfg.NextProtos = append(cfg.NextProtos, protoSPDY31)
	}
	return cfg
}

func hasProto(protos []string, want string) bool {
	for _, p := range protos {
		if p == want {
			return true
		}
	}
	return false
}

func tlsPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 443
	}
	port := 0
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return 443
		}
		port = port*10 + int(c-'0')
	}
	return port
}
