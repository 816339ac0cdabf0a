package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardedTCPIPExtraRoundTrip(t *testing.T) {
	e := ForwardedTCPIPExtra{
		ConnectedAddress: "0.0.0.0",
		ConnectedPort:    2222,
		OriginAddress:    "10.0.0.5",
		OriginPort:       54321,
	}
	got, err := ParseForwardedTCPIPExtra(e.Marshal())
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestDirectTCPIPExtraRoundTrip(t *testing.T) {
	e := DirectTCPIPExtra{
		HostToConnect: "example.internal",
		PortToConnect: 443,
		OriginAddress: "127.0.0.1",
		OriginPort:    9000,
	}
	got, err := ParseDirectTCPIPExtra(e.Marshal())
	require.NoError(t, err)
	assert.Equal(t, e, got)
}
