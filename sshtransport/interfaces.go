package sshtransport

import (
	"io"
	"time"
)

// Transport is the bidirectional byte stream with close that the engine
// runs over (§6). The default implementation wraps net.Conn; an alternate
// one wraps a KCP session (see package transport).
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Random fills buf with cryptographically secure random bytes, used for
// padding and nonces.
type Random interface {
	Fill(buf []byte) error
}

// CipherSuite is a negotiated symmetric cipher, one instance per direction.
type CipherSuite interface {
	// Init keys the cipher for one direction of traffic.
	Init(key, iv []byte) error
	// XORKeyStream encrypts or decrypts blocks in place (stream and CTR
	// mode ciphers are symmetric this way; CBC mode suites perform the
	// block chaining internally across calls).
	XORKeyStream(dst, src []byte)
	BlockSize() int
	KeySize() int
	IVSize() int
}

// MacSuite is a negotiated MAC, one instance per direction.
type MacSuite interface {
	Init(key []byte) error
	// Compute returns the tag for (seq || packet).
	Compute(seq uint32, packet []byte) []byte
	Size() int
}

// Signer produces a detached signature over data with a private key held
// by the collaborator (so the key material never has to live in this
// module).
type Signer interface {
	Sign(data []byte) (sig []byte, err error)
	PublicKeyBlob() []byte
	Algorithm() string
}

// Verifier checks a signature against a wire-format public key blob.
type Verifier interface {
	Verify(data, sig []byte, keyBlob []byte) (bool, error)
}

// HostKeyVerifier is consulted by the client after KEX to accept or
// reject the server's host key. Default is strict (see package kex).
type HostKeyVerifier interface {
	Accept(hostname string, port int, keyBlob []byte) bool
}

// Compressor implements the negotiated compression algorithm for one
// direction ("none" is the identity Compressor).
type Compressor interface {
	Compress(p []byte) ([]byte, error)
	Decompress(p []byte) ([]byte, error)
}

// PasswordProvider supplies a password for the "password" userauth
// method. It has no hook for PASSWD_CHANGEREQ; userauth.RequestPassword
// reports that reply to its caller through changeRequested.
type PasswordProvider interface {
	Password(user string) (string, error)
}

// KeyPairProvider supplies candidate key pairs for the "publickey"
// userauth method, tried in order until one is accepted or the list is
// exhausted.
type KeyPairProvider interface {
	Next() (Signer, bool)
	Reset()
}

// InteractivePromptResponder answers "keyboard-interactive" prompts.
type InteractivePromptResponder interface {
	Respond(name, instruction string, prompts []string, echo []bool) ([]string, error)
}

// HostKeyProvider supplies the server's host key(s) for signing the
// exchange hash during KEX (server side).
type HostKeyProvider interface {
	HostKeys() []Signer
}
