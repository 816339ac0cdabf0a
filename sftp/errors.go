package sftp

import "errors"

// Local (never sent over the wire) errors for client-side validation,
// grounded on request-errors.go's StatusError->Go-error mapping idea
// but split into static sentinels so callers can errors.Is against
// them directly instead of switching on a status code.
var (
	errShortPacket = errors.New("sftp: packet too short")

	ErrInvalidArgument = errors.New("sftp: invalid argument")
	ErrUnsupported     = errors.New("sftp: operation unsupported")
	ErrChannelClosed   = errors.New("sftp: channel closed with requests pending")
)

// Extended status codes used only when the peer's SSH_FXP_VERSION
// negotiates v5/v6 behaviour (draft-ietf-secsh-filexfer-05/13 §9.1);
// under the plain v3 floor this client otherwise speaks, write
// failures of this kind arrive as the generic FxFailure instead.
const (
	fxNoSpaceOnFilesystem = 14
	fxQuotaExceeded       = 15
)

// StatusError wraps an SSH_FXP_STATUS reply that signalled failure.
type StatusError struct {
	Code    uint32
	Message string
	Lang    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return statusText(e.Code)
}

func statusText(code uint32) string {
	switch code {
	case FxOK:
		return "ok"
	case FxEOF:
		return "EOF"
	case FxNoSuchFile:
		return "no such file"
	case FxPermissionDenied:
		return "permission denied"
	case FxBadMessage:
		return "bad message"
	case FxNoConnection:
		return "no connection"
	case FxConnectionLost:
		return "connection lost"
	case FxOpUnsupported:
		return "operation unsupported"
	case fxNoSpaceOnFilesystem:
		return "no space left on device"
	case fxQuotaExceeded:
		return "quota exceeded"
	default:
		return "failure"
	}
}

// IsNotExist reports whether err is a StatusError signalling a missing
// file, mirroring os.IsNotExist's contract for SFTP-sourced errors.
func IsNotExist(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code == FxNoSuchFile
}

// IsPermission reports whether err is a StatusError signalling denied
// permission, mirroring os.IsPermission.
func IsPermission(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code == FxPermissionDenied
}

// IsEOF reports whether err is the EOF status (§4.8: "EOF is a status,
// not an error upstream of the stream adapter" — callers that don't go
// through the stream adapters still need to recognize it themselves).
func IsEOF(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code == FxEOF
}
