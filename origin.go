package spdymux

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

// Origin identifies the (scheme, host, port) tuple a Session is talking
// to. It is the identity key under which the Store persists remote
// SETTINGS.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

// NewOrigin builds an Origin, normalizing host to its ASCII (punycode)
// form so that origins differing only in Unicode representation compare
// equal.
func NewOrigin(scheme, host string, port int) Origin {
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	return Origin{
		Scheme: strings.ToLower(scheme),
		Host:   strings.ToLower(host),
		Port:   port,
	}
}

func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%d", o.Scheme, o.Host, o.Port)
}
