package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blitter.com/go/sshx/sshcipher"
)

// pipeTransport wraps an in-memory net.Conn pipe half as a Transport.
type pipeTransport struct{ net.Conn }

func (p pipeTransport) SetDeadline(t time.Time) error      { return p.Conn.SetDeadline(t) }
func (p pipeTransport) SetReadDeadline(t time.Time) error  { return p.Conn.SetReadDeadline(t) }
func (p pipeTransport) SetWriteDeadline(t time.Time) error { return p.Conn.SetWriteDeadline(t) }

func TestPlaintextPacketRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	writer := NewCodec(sshcipher.DefaultRandom)
	reader := NewCodec(sshcipher.DefaultRandom)

	done := make(chan error, 1)
	go func() {
		done <- writer.WritePacket(pipeTransport{client}, []byte("hello, wire"))
	}()

	pkt, err := reader.ReadPacket(pipeTransport{server})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello, wire"), pkt.Payload)
	require.NoError(t, <-done)
}

func TestEncryptedPacketRoundTripWithMAC(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cipherFactory := sshcipher.DefaultCipherRegistry()
	macFactory := sshcipher.DefaultMacRegistry()

	cf, _ := cipherFactory.Lookup("aes128-ctr")
	mf, _ := macFactory.Lookup("hmac-sha2-256")

	key := bytes.Repeat([]byte{0x42}, 16)
	iv := bytes.Repeat([]byte{0x24}, 16)
	macKey := bytes.Repeat([]byte{0x11}, 32)

	writerCipher := cf.(sshcipher.Factory)()
	require.NoError(t, writerCipher.Init(key, iv))
	writerMac := mf.(sshcipher.MacFactory)()
	require.NoError(t, writerMac.Init(macKey))

	readerCipher := cf.(sshcipher.Factory)()
	require.NoError(t, readerCipher.Init(key, iv))
	readerMac := mf.(sshcipher.MacFactory)()
	require.NoError(t, readerMac.Init(macKey))

	writer := NewCodec(sshcipher.DefaultRandom)
	writer.Install(writerCipher, writerMac, NoneCompressor)
	reader := NewCodec(sshcipher.DefaultRandom)
	reader.Install(readerCipher, readerMac, NoneCompressor)

	done := make(chan error, 1)
	go func() {
		done <- writer.WritePacket(pipeTransport{client}, []byte("encrypted payload"))
	}()

	pkt, err := reader.ReadPacket(pipeTransport{server})
	require.NoError(t, err)
	assert.Equal(t, []byte("encrypted payload"), pkt.Payload)
	require.NoError(t, <-done)
}

func TestMacMismatchDetected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cf, _ := sshcipher.DefaultCipherRegistry().Lookup("aes128-ctr")
	mf, _ := sshcipher.DefaultMacRegistry().Lookup("hmac-sha2-256")

	key := bytes.Repeat([]byte{0x42}, 16)
	iv := bytes.Repeat([]byte{0x24}, 16)

	writerCipher := cf.(sshcipher.Factory)()
	require.NoError(t, writerCipher.Init(key, iv))
	writerMac := mf.(sshcipher.MacFactory)()
	require.NoError(t, writerMac.Init(bytes.Repeat([]byte{0x11}, 32)))

	readerCipher := cf.(sshcipher.Factory)()
	require.NoError(t, readerCipher.Init(key, iv))
	readerMac := mf.(sshcipher.MacFactory)()
	require.NoError(t, readerMac.Init(bytes.Repeat([]byte{0x99}, 32))) // different key -> mismatch

	writer := NewCodec(sshcipher.DefaultRandom)
	writer.Install(writerCipher, writerMac, NoneCompressor)
	reader := NewCodec(sshcipher.DefaultRandom)
	reader.Install(readerCipher, readerMac, NoneCompressor)

	go writer.WritePacket(pipeTransport{client}, []byte("tampered"))

	_, err := reader.ReadPacket(pipeTransport{server})
	require.Error(t, err)
}

func TestReadPacketRejectsOversizedLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// A hostile/corrupted packet_length field above the §3/§4.2 ceiling
	// of 35000 must be rejected as BAD_LENGTH before any allocation or
	// read of the claimed payload size.
	go func() {
		buf := make([]byte, blockSizeFloor)
		// packet_length = 100000, well past MaxPacketLength.
		buf[0], buf[1], buf[2], buf[3] = 0x00, 0x01, 0x86, 0xa0
		_, _ = client.Write(buf)
	}()

	reader := NewCodec(sshcipher.DefaultRandom)
	_, err := reader.ReadPacket(pipeTransport{server})
	require.Error(t, err)
}
