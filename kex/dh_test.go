package kex

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRandom struct{}

func (testRandom) Fill(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

func TestDHGroup14SharedSecretMatches(t *testing.T) {
	client := NewDHGroup14()
	server := NewDHGroup14()
	require.NoError(t, client.GenerateEphemeral(testRandom{}))
	require.NoError(t, server.GenerateEphemeral(testRandom{}))

	kc, err := client.Shared(server.E)
	require.NoError(t, err)
	ks, err := server.Shared(client.E)
	require.NoError(t, err)
	assert.Equal(t, 0, kc.Cmp(ks))
}

func TestDHSharedRejectsOutOfRangePublicValue(t *testing.T) {
	d := NewDHGroup14()
	require.NoError(t, d.GenerateEphemeral(testRandom{}))
	_, err := d.Shared(big.NewInt(0))
	assert.Error(t, err)
}

func TestSelectGroupRespectsRange(t *testing.T) {
	g, bits, err := SelectGroup(2048, 2048, 4096)
	require.NoError(t, err)
	assert.Equal(t, 2048, bits)
	assert.NotNil(t, g.P)

	_, _, err = SelectGroup(3072, 3072, 4096)
	assert.Error(t, err, "no table entry fits a range excluding 2048")
}
