package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blitter.com/go/sshx/sshcipher"
)

func TestKexInitMarshalParseRoundTrip(t *testing.T) {
	k, err := NewKexInitPayload(sshcipher.DefaultRandom,
		[]string{"ecdh-sha2-nistp256", "diffie-hellman-group14-sha1"},
		[]string{"ssh-ed25519", "rsa-sha2-256"},
		[]string{"aes128-ctr", "aes256-ctr"},
		[]string{"hmac-sha2-256"},
		[]string{"none", "zlib"},
	)
	require.NoError(t, err)
	k.FirstKexPacketFollows = true

	parsed, err := ParseKexInit(k.Marshal())
	require.NoError(t, err)

	assert.Equal(t, k.Cookie, parsed.Cookie)
	assert.Equal(t, k.KexAlgorithms, parsed.KexAlgorithms)
	assert.Equal(t, k.ServerHostKeyAlgorithms, parsed.ServerHostKeyAlgorithms)
	assert.Equal(t, k.EncryptionClientToServer, parsed.EncryptionClientToServer)
	assert.Equal(t, k.MacClientToServer, parsed.MacClientToServer)
	assert.Equal(t, k.CompressionClientToServer, parsed.CompressionClientToServer)
	assert.True(t, parsed.FirstKexPacketFollows)
}

func TestKexInitCookiesDiffer(t *testing.T) {
	k1, err := NewKexInitPayload(sshcipher.DefaultRandom, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	k2, err := NewKexInitPayload(sshcipher.DefaultRandom, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, k1.Cookie, k2.Cookie)
}

func TestParseKexInitRejectsWrongMessageType(t *testing.T) {
	_, err := ParseKexInit([]byte{byte(MsgServiceRequest), 0, 0, 0})
	assert.Error(t, err)
}
