package kex

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blitter.com/go/sshx/sshalgo"
)

func TestRSASignVerifyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer := &RSASigner{Priv: priv}

	data := []byte("exchange hash goes here")
	sig, err := signer.Sign(data)
	require.NoError(t, err)

	var verifier RSAVerifier
	ok, err := verifier.Verify(data, sig, signer.PublicKeyBlob())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifier.Verify([]byte("tampered"), sig, signer.PublicKeyBlob())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestECDSASignVerifyRoundTrip(t *testing.T) {
	cases := []struct {
		curve elliptic.Curve
		name  string
	}{
		{elliptic.P256(), sshalgo.HostKeyECDSAP256},
		{elliptic.P384(), sshalgo.HostKeyECDSAP384},
		{elliptic.P521(), sshalgo.HostKeyECDSAP521},
	}
	for _, c := range cases {
		priv, err := ecdsa.GenerateKey(c.curve, rand.Reader)
		require.NoError(t, err)
		signer := &ECDSASigner{Priv: priv, Curve: c.name}

		data := []byte("exchange hash")
		sig, err := signer.Sign(data)
		require.NoError(t, err)

		var verifier ECDSAVerifier
		ok, err := verifier.Verify(data, sig, signer.PublicKeyBlob())
		require.NoError(t, err)
		assert.True(t, ok, c.name)
	}
}

func TestED25519SignVerifyRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer := &ED25519Signer{Priv: priv}

	data := []byte("exchange hash")
	sig, err := signer.Sign(data)
	require.NoError(t, err)

	var verifier ED25519Verifier
	ok, err := verifier.Verify(data, sig, signer.PublicKeyBlob())
	require.NoError(t, err)
	assert.True(t, ok)
}
