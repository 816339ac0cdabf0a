// Package sshtransport holds the error taxonomy and collaborator
// interfaces shared by every layer of the engine (wire codec, packet
// pipeline, kex, userauth, channel, sftp), so that no layer needs to
// import another layer just to report or recognize an error kind.
package sshtransport

import (
	"fmt"

	"github.com/tredeske/u/uerr"
)

// ErrorKind classifies an Error for callers that need to decide whether
// a failure is fatal to the session or local to one operation.
type ErrorKind int

const (
	// KindProtocol covers malformed packets, bad sequence numbers, and
	// messages arriving outside the state that allows them. Fatal.
	KindProtocol ErrorKind = iota
	// KindCrypto covers MAC failures, signature failures, decryption
	// failures. Fatal.
	KindCrypto
	// KindNegotiation covers empty algorithm negotiation and host-key
	// rejection. Fatal.
	KindNegotiation
	// KindAuth covers exhausted auth methods, rejected credentials, and
	// partial-success dead ends. Local to the auth attempt.
	KindAuth
	// KindChannel covers open refusal, window violation, and request
	// failure. Local to the channel.
	KindChannel
	// KindSftp covers the SFTP status codes (NO_SUCH_FILE and friends).
	// Local to the SFTP request.
	KindSftp
	// KindIO covers failures of the underlying transport.
	KindIO
	// KindTimeout covers an expired deadline on an awaitable operation.
	KindTimeout
	// KindCancelled covers a caller-cancelled operation.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "Protocol"
	case KindCrypto:
		return "Crypto"
	case KindNegotiation:
		return "Negotiation"
	case KindAuth:
		return "Auth"
	case KindChannel:
		return "Channel"
	case KindSftp:
		return "Sftp"
	case KindIO:
		return "Io"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Fatal reports whether an error of this kind should tear down the whole
// transport session (per spec §7: crypto/protocol/negotiation errors are
// fatal, channel/sftp/auth/timeout-of-application-op are local).
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindProtocol, KindCrypto, KindNegotiation:
		return true
	default:
		return false
	}
}

// Error is the engine-wide error type. It embeds uerr.UError for chaining
// (Cause, Is/As-friendly) and adds the Kind used to drive the fatal/local
// policy of spec §7.
type Error struct {
	uerr.UError
	Kind ErrorKind
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap builds a new *Error of the given kind, chaining cause (which may be
// nil) and formatting message the way uerr.Chainf does.
func Wrap(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		UError: uerr.UError{
			Message: fmt.Sprintf(format, args...),
			Cause:   cause,
		},
		Kind: kind,
	}
}

// Is reports whether err is an *Error of kind k, walking Unwrap chains.
func Is(err error, k ErrorKind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == k {
				return true
			}
			err = e.Cause
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
