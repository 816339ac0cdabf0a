package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blitter.com/go/sshx/sshwire"
)

func TestParsePtyRequestRoundTrip(t *testing.T) {
	var b sshwire.Buffer
	b.PutString("xterm-256color")
	b.PutUint32(80)
	b.PutUint32(24)
	b.PutUint32(640)
	b.PutUint32(480)
	b.PutBytes([]byte{0, 0, 0, 0})

	p, err := ParsePtyRequest(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "xterm-256color", p.Term)
	assert.Equal(t, uint32(80), p.WidthChars)
	assert.Equal(t, uint32(24), p.HeightChars)
	assert.Equal(t, uint32(640), p.WidthPixels)
	assert.Equal(t, uint32(480), p.HeightPixels)
}

func TestParseExecPayload(t *testing.T) {
	var b sshwire.Buffer
	b.PutString("ls -la /tmp")
	cmd, err := ParseExecPayload(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "ls -la /tmp", cmd)
}

func TestParseSubsystemPayload(t *testing.T) {
	var b sshwire.Buffer
	b.PutString("sftp")
	name, err := ParseSubsystemPayload(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "sftp", name)
}

func TestParseWindowChangePayload(t *testing.T) {
	var b sshwire.Buffer
	b.PutUint32(100)
	b.PutUint32(40)
	b.PutUint32(800)
	b.PutUint32(600)

	wc, hc, wp, hp, err := ParseWindowChangePayload(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(100), wc)
	assert.Equal(t, uint32(40), hc)
	assert.Equal(t, uint32(800), wp)
	assert.Equal(t, uint32(600), hp)
}
