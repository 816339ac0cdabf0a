package kex

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"blitter.com/go/sshx/sshtransport"
)

// ECDHKex implements ecdh-sha2-nistp256/384/521 (RFC5656) via stdlib
// crypto/ecdh. Each curve's exchange hash uses the SHA-2 variant RFC5656
// §6.2.1 maps it to (256 for P-256, 384 for P-384, 512 for P-521).
type ECDHKex struct {
	curve ecdh.Curve
	hash  func() hash.Hash
	priv  *ecdh.PrivateKey
}

func NewECDHNistP256() *ECDHKex { return &ECDHKex{curve: ecdh.P256(), hash: sha256.New} }
func NewECDHNistP384() *ECDHKex { return &ECDHKex{curve: ecdh.P384(), hash: sha512.New384} }
func NewECDHNistP521() *ECDHKex { return &ECDHKex{curve: ecdh.P521(), hash: sha512.New} }

// GenerateEphemeral draws a fresh ECDH key pair. crypto/ecdh performs its
// own CSPRNG draw internally (crypto/rand), so Random is not consulted
// here unlike DHKex — stdlib already owns this concern safely.
func (e *ECDHKex) GenerateEphemeral() error {
	priv, err := e.curve.GenerateKey(rand.Reader)
	if err != nil {
		return sshtransport.Wrap(sshtransport.KindCrypto, err, "ecdh: keygen failed")
	}
	e.priv = priv
	return nil
}

// PublicBytes is the uncompressed point Q_C/Q_S placed on the wire.
func (e *ECDHKex) PublicBytes() []byte { return e.priv.PublicKey().Bytes() }

// Shared computes K from the peer's uncompressed point, rejecting
// invalid curve points (§4.3 KeyOutOfRange edge case, ECDH variant).
func (e *ECDHKex) Shared(peerPublic []byte) ([]byte, error) {
	peer, err := e.curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindNegotiation, err,
			"ecdh: invalid peer public point")
	}
	secret, err := e.priv.ECDH(peer)
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "ecdh: shared secret failed")
	}
	return secret, nil
}

func (e *ECDHKex) NewHash() hash.Hash { return e.hash() }
