package sshwire

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xffffffff, 0x80000000, 12345} {
		w := &Buffer{}
		w.PutUint32(v)
		r := NewBuffer(w.Bytes())
		got, err := r.GetUint32()
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, 0, r.Len())
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "hello", "ssh-rsa", "a long string with spaces"} {
		w := &Buffer{}
		w.PutString(s)
		r := NewBuffer(w.Bytes())
		got, err := r.GetString()
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestMpintRoundTrip(t *testing.T) {
	cases := []string{
		"0", "1", "-1", "127", "128", "-128", "-129",
		"1000000000000000000000000000000000",
		"-1000000000000000000000000000000000",
	}
	for _, c := range cases {
		v, ok := new(big.Int).SetString(c, 10)
		require.True(t, ok)
		w := &Buffer{}
		w.PutMpint(v)
		r := NewBuffer(w.Bytes())
		got, err := r.GetMpint()
		require.NoError(t, err)
		assert.Equal(t, 0, v.Cmp(got), "mpint %s round-tripped to %s", v, got)
	}
}

// Known-answer vectors from RFC 4251 §5.
func TestMpintKnownVectors(t *testing.T) {
	cases := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0, 0, 0, 0}},
		{0x9a378f9b2e332a7, []byte{0, 0, 0, 8, 0x09, 0xa3, 0x78, 0xf9, 0xb2, 0xe3, 0x32, 0xa7}},
		{0x80, []byte{0, 0, 0, 2, 0x00, 0x80}},
		{-0x1234, []byte{0, 0, 0, 2, 0xed, 0xcc}},
		{-0xdeadbeef, []byte{0, 0, 0, 5, 0xff, 0x21, 0x52, 0x41, 0x11}},
	}
	for _, c := range cases {
		w := &Buffer{}
		w.PutMpint(big.NewInt(c.v))
		assert.Equal(t, c.want, w.Bytes(), "encode(%d)", c.v)

		r := NewBuffer(c.want)
		got, err := r.GetMpint()
		require.NoError(t, err)
		assert.Equal(t, c.v, got.Int64(), "decode(%x)", c.want)
	}
}

func TestNameListRoundTrip(t *testing.T) {
	names := []string{"diffie-hellman-group14-sha1", "ecdh-sha2-nistp256"}
	w := &Buffer{}
	w.PutNameList(names)
	r := NewBuffer(w.Bytes())
	got, err := r.GetNameList()
	require.NoError(t, err)
	assert.Equal(t, names, got)
}

func TestNameListEmpty(t *testing.T) {
	w := &Buffer{}
	w.PutNameList(nil)
	r := NewBuffer(w.Bytes())
	got, err := r.GetNameList()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetBytesRejectsOverlongDeclaration(t *testing.T) {
	w := &Buffer{}
	w.PutUint32(1000) // declares 1000 bytes but supplies none
	_, err := NewBuffer(w.Bytes()).GetBytes()
	require.Error(t, err)
}

func TestPutNameListRejectsInvalidElement(t *testing.T) {
	assert.Panics(t, func() {
		(&Buffer{}).PutNameList([]string{"has,comma"})
	})
	assert.Panics(t, func() {
		(&Buffer{}).PutNameList([]string{""})
	})
}
