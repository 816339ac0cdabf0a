package channel

import (
	"io"
	"net"
	"strconv"

	"blitter.com/go/sshx/logger"
	"blitter.com/go/sshx/sshwire"
	"blitter.com/go/sshx/transport"
)

// Port forwarding (§4.7/RFC4254 §7), grounded on hkextun.go's
// TunEndpoint/TunPacket relay: that code pairs two goroutines per
// tunnel direction, one pumping a local/remote socket into the secure
// connection and one pumping the secure connection's per-port channel
// back out to the socket, tagged with CSOTunReq/Ack/Refused/Close
// control codes and an encoding/binary-framed lport/rport header. This
// keeps that exact shape, replacing the fixed control codes and single
// multiplexed xsnet.Conn with RFC4254's "direct-tcpip"/"forwarded-
// tcpip" channel types and tcpip-forward global request.

const (
	ChannelTypeDirectTCPIP    = "direct-tcpip"
	ChannelTypeForwardedTCPIP = "forwarded-tcpip"

	GlobalRequestTCPIPForward       = "tcpip-forward"
	GlobalRequestCancelTCPIPForward = "cancel-tcpip-forward"
)

// ForwardedTCPIPExtra is the extra channel-open data a server sends when
// opening a "forwarded-tcpip" channel for a connection that arrived on
// a previously tcpip-forward'd listening port.
type ForwardedTCPIPExtra struct {
	ConnectedAddress string
	ConnectedPort    uint32
	OriginAddress    string
	OriginPort       uint32
}

func (e ForwardedTCPIPExtra) Marshal() []byte {
	var b sshwire.Buffer
	b.PutString(e.ConnectedAddress)
	b.PutUint32(e.ConnectedPort)
	b.PutString(e.OriginAddress)
	b.PutUint32(e.OriginPort)
	return b.Bytes()
}

func ParseForwardedTCPIPExtra(payload []byte) (ForwardedTCPIPExtra, error) {
	r := sshwire.NewBuffer(payload)
	var e ForwardedTCPIPExtra
	var err error
	if e.ConnectedAddress, err = r.GetString(); err != nil {
		return e, err
	}
	if e.ConnectedPort, err = r.GetUint32(); err != nil {
		return e, err
	}
	if e.OriginAddress, err = r.GetString(); err != nil {
		return e, err
	}
	e.OriginPort, err = r.GetUint32()
	return e, err
}

// DirectTCPIPExtra is the extra channel-open data a client sends for a
// local-to-remote ("-L") forwarded connection.
type DirectTCPIPExtra struct {
	HostToConnect    string
	PortToConnect    uint32
	OriginAddress    string
	OriginPort       uint32
}

func (e DirectTCPIPExtra) Marshal() []byte {
	var b sshwire.Buffer
	b.PutString(e.HostToConnect)
	b.PutUint32(e.PortToConnect)
	b.PutString(e.OriginAddress)
	b.PutUint32(e.OriginPort)
	return b.Bytes()
}

func ParseDirectTCPIPExtra(payload []byte) (DirectTCPIPExtra, error) {
	r := sshwire.NewBuffer(payload)
	var e DirectTCPIPExtra
	var err error
	if e.HostToConnect, err = r.GetString(); err != nil {
		return e, err
	}
	if e.PortToConnect, err = r.GetUint32(); err != nil {
		return e, err
	}
	if e.OriginAddress, err = r.GetString(); err != nil {
		return e, err
	}
	e.OriginPort, err = r.GetUint32()
	return e, err
}

// RequestTCPIPForward asks the peer to start listening on bindAddr:
// bindPort and forward inbound connections to us as "forwarded-tcpip"
// channels (the "-R" direction). mux.Serve must be running concurrently
// to receive the subsequent forwarded-tcpip CHANNEL_OPENs. It returns
// once the request is written: the peer's REQUEST_SUCCESS/FAILURE reply
// is not awaited, and Serve discards it.
func RequestTCPIPForward(s *transport.Session, bindAddr string, bindPort uint32) error {
	var b sshwire.Buffer
	b.PutUint8(transport.MsgGlobalRequest)
	b.PutString(GlobalRequestTCPIPForward)
	b.PutBool(true)
	b.PutString(bindAddr)
	b.PutUint32(bindPort)
	return s.WriteMessage(b.Bytes())
}

// DialAndRelay implements the "-L" local-forward direction: dial
// hostToConnect:portToConnect and pump bytes between the dialed
// connection and ch until either side closes, mirroring
// startServerTunnel's two-goroutine relay.
func DialAndRelay(ch *Channel, hostToConnect string, portToConnect uint32) error {
	conn, err := net.Dial("tcp", net.JoinHostPort(hostToConnect, strconv.FormatUint(uint64(portToConnect), 10)))
	if err != nil {
		_ = logger.LogErr("forward: dial failed: " + err.Error())
		_ = ch.Close()
		return err
	}
	RelayChannel(ch, conn)
	return nil
}

// RelayChannel pumps data bidirectionally between ch and conn, exactly
// as startServerTunnel/StartClientTunnel pair a socket-reading goroutine
// against a channel-reading goroutine. Returns once both directions
// have finished (EOF or error on either side).
func RelayChannel(ch *Channel, conn net.Conn) {
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, DefaultMaxPacketSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if _, werr := ch.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				_ = ch.SendEOF()
				return
			}
		}
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, DefaultMaxPacketSize)
		for {
			n, err := ch.Read(buf)
			if n > 0 {
				if _, werr := conn.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				return
			}
		}
	}()

	<-done
	<-done
	_ = conn.Close()
	_ = ch.Close()
}
