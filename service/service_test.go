package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blitter.com/go/sshx/transport"
)

type stubHandler struct {
	name  string
	rng   transport.MsgRange
	ran   bool
}

func (s *stubHandler) Name() string                 { return s.name }
func (s *stubHandler) MsgRange() transport.MsgRange  { return s.rng }
func (s *stubHandler) Run(*transport.Session) error  { s.ran = true; return nil }

func TestRegistryRejectsOverlappingRanges(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubHandler{name: "ssh-userauth", rng: transport.MsgRange{Low: 50, High: 79}}))

	err := reg.Register(&stubHandler{name: "ssh-connection", rng: transport.MsgRange{Low: 60, High: 100}})
	assert.Error(t, err, "50-79 and 60-100 overlap")
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubHandler{name: "ssh-userauth", rng: transport.MsgRange{Low: 50, High: 79}}))

	err := reg.Register(&stubHandler{name: "ssh-userauth", rng: transport.MsgRange{Low: 80, High: 127}})
	assert.Error(t, err)
}

func TestRegistryLookupAndNames(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubHandler{name: "ssh-connection", rng: transport.MsgRange{Low: 80, High: 127}}))
	require.NoError(t, reg.Register(&stubHandler{name: "ssh-userauth", rng: transport.MsgRange{Low: 50, High: 79}}))

	h, ok := reg.Lookup("ssh-userauth")
	require.True(t, ok)
	assert.Equal(t, "ssh-userauth", h.Name())

	assert.Equal(t, []string{"ssh-connection", "ssh-userauth"}, reg.Names())
}
