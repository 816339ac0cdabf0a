package transport

// SSH message numbers (RFC4253 §12, RFC4254 §9, RFC4252 §6). Ranges per
// §4.4: 1-4 transport, 20-49 KEX, 50-79 userauth, 80-127 connection,
// 128+ reserved.
const (
	MsgDisconnect   = 1
	MsgIgnore       = 2
	MsgUnimplemented = 3
	MsgDebug        = 4
	MsgServiceRequest = 5
	MsgServiceAccept  = 6

	MsgKexInit = 20
	MsgNewKeys = 21

	// DH (group1/group14)
	MsgKexDHInit  = 30
	MsgKexDHReply = 31

	// group-exchange-sha256 (RFC4419 §3): GEX_GROUP shares message
	// number 31 with KEXDH_REPLY/KEX_ECDH_REPLY — which meaning applies
	// is determined by which KEX method is active, not by the number.
	MsgKexDHGexRequest = 34
	MsgKexDHGexGroup   = 31
	MsgKexDHGexInit    = 32
	MsgKexDHGexReply   = 33

	// ECDH
	MsgKexECDHInit  = 30
	MsgKexECDHReply = 31

	MsgUserauthRequest = 50
	MsgUserauthFailure = 51
	MsgUserauthSuccess = 52
	MsgUserauthBanner  = 53
	MsgUserauthInfoRequest  = 60
	MsgUserauthInfoResponse = 61
	MsgUserauthPKOK         = 60
	MsgUserauthPasswdChangeReq = 60

	MsgGlobalRequest      = 80
	MsgRequestSuccess     = 81
	MsgRequestFailure     = 82
	MsgChannelOpen            = 90
	MsgChannelOpenConfirmation = 91
	MsgChannelOpenFailure      = 92
	MsgChannelWindowAdjust     = 93
	MsgChannelData             = 94
	MsgChannelExtendedData     = 95
	MsgChannelEOF              = 96
	MsgChannelClose            = 97
	MsgChannelRequest          = 98
	MsgChannelSuccess          = 99
	MsgChannelFailure          = 100
)

// Disconnect reason codes, RFC4253 §11.1.
const (
	DisconnectHostNotAllowedToConnect = 1
	DisconnectProtocolError           = 2
	DisconnectKeyExchangeFailed       = 3
	DisconnectReserved                = 4
	DisconnectMACError                = 5
	DisconnectCompressionError        = 6
	DisconnectServiceNotAvailable     = 7
	DisconnectProtocolVersionNotSupported = 8
	DisconnectHostKeyNotVerifiable    = 9
	DisconnectConnectionLost          = 10
	DisconnectByApplication           = 11
	DisconnectTooManyConnections      = 12
	DisconnectAuthCancelledByUser     = 13
	DisconnectNoMoreAuthMethodsAvailable = 14
	DisconnectIllegalUserName         = 15
)

// Range claims for the service layer's registered dispatch (§4.5).
type MsgRange struct {
	Low, High byte
}

func (r MsgRange) Contains(msg byte) bool { return msg >= r.Low && msg <= r.High }

func (r MsgRange) Overlaps(other MsgRange) bool {
	return r.Low <= other.High && other.Low <= r.High
}
