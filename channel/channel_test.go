package channel

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/sshalgo"
	"blitter.com/go/sshx/sshcipher"
	"blitter.com/go/sshx/transport"
)

// pipeTransport adapts one half of a net.Pipe to sshtransport.Transport,
// the same shim transport's own packet_test.go uses.
type pipeTransport struct{ net.Conn }

func (p pipeTransport) SetDeadline(t time.Time) error      { return p.Conn.SetDeadline(t) }
func (p pipeTransport) SetReadDeadline(t time.Time) error  { return p.Conn.SetReadDeadline(t) }
func (p pipeTransport) SetWriteDeadline(t time.Time) error { return p.Conn.SetWriteDeadline(t) }

// handshakedPair drives a full client/server KEX over an in-memory pipe
// and returns two running Sessions ready for service-layer traffic.
func handshakedPair(t *testing.T) (client, server *transport.Session) {
	t.Helper()
	c, s := net.Pipe()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer := &kex.ED25519Signer{Priv: priv}
	var verifier kex.ED25519Verifier

	clientCfg := transport.DefaultConfig(transport.RoleClient, sshcipher.DefaultRandom)
	clientCfg.KexNames = []string{sshalgo.KexECDHNistP256}
	clientCfg.HostKeyNames = []string{sshalgo.HostKeyED25519}

	serverCfg := transport.DefaultConfig(transport.RoleServer, sshcipher.DefaultRandom)
	serverCfg.KexNames = []string{sshalgo.KexECDHNistP256}
	serverCfg.HostKeyNames = []string{sshalgo.HostKeyED25519}

	client = transport.NewSession(clientCfg, pipeTransport{c})
	server = transport.NewSession(serverCfg, pipeTransport{s})

	errs := make(chan error, 2)
	go func() {
		if err := client.ExchangeIdentification(); err != nil {
			errs <- err
			return
		}
		errs <- transport.RunKex(client, nil, verifier)
	}()
	go func() {
		if err := server.ExchangeIdentification(); err != nil {
			errs <- err
			return
		}
		errs <- transport.RunKex(server, signer, nil)
	}()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	return client, server
}

func TestChannelOpenConfirmationAndDataRoundTrip(t *testing.T) {
	client, server := handshakedPair(t)

	clientMux := NewMultiplexer(client)
	serverMux := NewMultiplexer(server)

	go clientMux.Serve()
	go serverMux.Serve()

	accepted := make(chan *Channel, 1)
	go func() {
		req := <-serverMux.Accepts()
		assert.Equal(t, "session", req.ChannelType)
		ch, err := req.Accept()
		require.NoError(t, err)
		accepted <- ch
	}()

	ch, err := clientMux.Open("session", nil)
	require.NoError(t, err)

	serverCh := <-accepted

	n, err := ch.Write([]byte("hello channel"))
	require.NoError(t, err)
	assert.Equal(t, len("hello channel"), n)

	buf := make([]byte, 64)
	n, err = serverCh.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello channel", string(buf[:n]))
}

func TestChannelRejectedOpenReturnsError(t *testing.T) {
	client, server := handshakedPair(t)

	clientMux := NewMultiplexer(client)
	serverMux := NewMultiplexer(server)

	go clientMux.Serve()
	go serverMux.Serve()

	go func() {
		req := <-serverMux.Accepts()
		_ = req.Reject(1, "no thanks")
	}()

	_, err := clientMux.Open("session", nil)
	assert.Error(t, err)
}

func TestChannelEOFThenCloseHandshake(t *testing.T) {
	client, server := handshakedPair(t)

	clientMux := NewMultiplexer(client)
	serverMux := NewMultiplexer(server)

	go clientMux.Serve()
	go serverMux.Serve()

	accepted := make(chan *Channel, 1)
	go func() {
		req := <-serverMux.Accepts()
		ch, err := req.Accept()
		require.NoError(t, err)
		accepted <- ch
	}()

	ch, err := clientMux.Open("session", nil)
	require.NoError(t, err)
	serverCh := <-accepted

	require.NoError(t, ch.SendEOF())

	buf := make([]byte, 16)
	_, err = serverCh.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, ch.Close())
	require.NoError(t, serverCh.Close())
}
