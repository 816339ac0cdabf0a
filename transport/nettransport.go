package transport

import (
	"net"
	"time"
)

// NetTransport adapts a net.Conn to sshtransport.Transport. This is the
// default, grounded on xsnet.Conn's embedded *net.Conn field (xsnet/net.go)
// — same "just forward to the stdlib socket" role, pulled out as its own
// small adapter instead of being folded into the bigger Conn type.
type NetTransport struct {
	net.Conn
}

func NewNetTransport(c net.Conn) *NetTransport { return &NetTransport{Conn: c} }

var _ interface {
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
} = (*NetTransport)(nil)
