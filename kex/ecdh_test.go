package kex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECDHSharedSecretMatches(t *testing.T) {
	for _, ctor := range []func() *ECDHKex{NewECDHNistP256, NewECDHNistP384, NewECDHNistP521} {
		client := ctor()
		server := ctor()
		require.NoError(t, client.GenerateEphemeral())
		require.NoError(t, server.GenerateEphemeral())

		kc, err := client.Shared(server.PublicBytes())
		require.NoError(t, err)
		ks, err := server.Shared(client.PublicBytes())
		require.NoError(t, err)
		assert.Equal(t, kc, ks)
	}
}

func TestECDHRejectsInvalidPeerPoint(t *testing.T) {
	client := NewECDHNistP256()
	require.NoError(t, client.GenerateEphemeral())
	_, err := client.Shared([]byte{0x00, 0x01, 0x02})
	assert.Error(t, err)
}
