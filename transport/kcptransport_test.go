package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blitter.com/go/sshx/sshtransport"
)

// TestKCPDialListenAcceptRoundTrip exercises DialKCP/ListenKCP/AcceptKCP
// end to end over loopback UDP, confirming both sides derive the same
// BlockCrypt key from a shared passphrase/salt and can exchange bytes
// as plain Transports.
func TestKCPDialListenAcceptRoundTrip(t *testing.T) {
	passphrase := []byte("correct horse battery staple")
	salt := []byte("kcp-transport-test-salt")

	ln, err := ListenKCP("127.0.0.1:0", passphrase, salt, KCPAES)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan sshtransport.Transport, 1)
	acceptErr := make(chan error, 1)
	go func() {
		srv, err := AcceptKCP(ln)
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- srv
	}()

	cli, err := DialKCP(ln.Addr().String(), passphrase, salt, KCPAES)
	require.NoError(t, err)
	defer cli.Close()

	var srv sshtransport.Transport
	select {
	case srv = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("AcceptKCP: %v", err)
	}
	defer srv.Close()

	const msg = "hello over kcp"
	done := make(chan error, 1)
	go func() {
		_, err := cli.Write([]byte(msg))
		done <- err
	}()

	buf := make([]byte, len(msg))
	n, err := srv.Read(buf)
	require.NoError(t, err)
	require.Equal(t, msg, string(buf[:n]))
	require.NoError(t, <-done)
}

// TestKCPMismatchedPassphraseDoesNotDecode confirms peers deriving
// different BlockCrypt keys (wrong passphrase) can't read each other's
// frames — the obfuscation layer rejects rather than silently garbling.
func TestKCPMismatchedPassphraseDoesNotDecode(t *testing.T) {
	salt := []byte("kcp-transport-test-salt")

	ln, err := ListenKCP("127.0.0.1:0", []byte("serverside secret"), salt, KCPAES)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		srv, err := AcceptKCP(ln)
		if err == nil {
			srv.Close()
		}
	}()

	cli, err := DialKCP(ln.Addr().String(), []byte("wrong secret"), salt, KCPAES)
	require.NoError(t, err)
	defer cli.Close()

	_, writeErr := cli.Write([]byte("ping"))
	require.NoError(t, writeErr)

	buf := make([]byte, 4)
	_ = cli.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, readErr := cli.Read(buf)
	require.Error(t, readErr)
}
