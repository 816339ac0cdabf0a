// Package userauth implements the §4.6 user authentication protocol
// (RFC4252): none/password/publickey/keyboard-interactive methods,
// FAILURE continuation name-lists with the partial-success bit, and the
// server-side max-auth-attempts counter.
//
// The teacher authenticates a completely different way (a single
// password/token check inside auth.go, no wire protocol at all — xsnet
// just dials a TCP/KCP socket and authenticates once, synchronously,
// before the "session" even starts). This package keeps that file's
// actual verification logic (bcrypt/passlib-backed password checks,
// AuthCtx-style dependency injection) but wraps it in the real
// USERAUTH_REQUEST/FAILURE/SUCCESS wire exchange §4.6 specifies.
package userauth

import (
	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/sshwire"
	"blitter.com/go/sshx/transport"
)

const ServiceName = "ssh-userauth"

const (
	MethodNone                = "none"
	MethodPassword            = "password"
	MethodPublicKey           = "publickey"
	MethodKeyboardInteractive = "keyboard-interactive"
)

// FailureResult carries RFC4252 §5.1's FAILURE payload: the methods
// that may still be tried, and whether the method just attempted
// nonetheless counts as a satisfied partial step (§4.6's "partial
// success" rule for method chaining).
type FailureResult struct {
	CanContinue     []string
	PartialSuccess  bool
}

func writeRequestHeader(b *sshwire.Buffer, user, service, method string) {
	b.PutUint8(transport.MsgUserauthRequest)
	b.PutString(user)
	b.PutString(service)
	b.PutString(method)
}

// readOutcome reads the next message, classifying it as SUCCESS,
// FAILURE (with its continuation list), or — for publickey probes and
// keyboard-interactive flows — returning the raw payload for the
// caller to interpret by message type.
func readOutcome(s *transport.Session) (success bool, failure *FailureResult, raw []byte, err error) {
	payload, err := s.ReadMessage()
	if err != nil {
		return false, nil, nil, err
	}
	r := sshwire.NewBuffer(payload)
	msgType, err := r.GetUint8()
	if err != nil {
		return false, nil, nil, err
	}
	switch msgType {
	case transport.MsgUserauthSuccess:
		return true, nil, nil, nil
	case transport.MsgUserauthFailure:
		methods, err := r.GetNameList()
		if err != nil {
			return false, nil, nil, err
		}
		partial, err := r.GetBool()
		if err != nil {
			return false, nil, nil, err
		}
		return false, &FailureResult{CanContinue: methods, PartialSuccess: partial}, nil, nil
	default:
		return false, nil, payload, nil
	}
}

// RequestNone sends the "none" probe (§4.6): never succeeds against a
// correctly configured server, but its FAILURE reply's name-list tells
// the client which methods are worth trying.
func RequestNone(s *transport.Session, user string) (*FailureResult, error) {
	var b sshwire.Buffer
	writeRequestHeader(&b, user, "ssh-connection", MethodNone)
	if err := s.WriteMessage(b.Bytes()); err != nil {
		return nil, err
	}
	success, failure, _, err := readOutcome(s)
	if err != nil {
		return nil, err
	}
	if success {
		return nil, nil
	}
	return failure, nil
}

// RequestPassword sends a password authentication attempt. A
// PASSWD_CHANGEREQ reply (message 60 in this context) is surfaced via
// changeRequested so the caller can prompt for and resend a new one.
func RequestPassword(s *transport.Session, user, password string) (success bool, failure *FailureResult, changeRequested bool, err error) {
	var b sshwire.Buffer
	writeRequestHeader(&b, user, "ssh-connection", MethodPassword)
	b.PutBool(false) // no password change being submitted
	b.PutString(password)
	if err := s.WriteMessage(b.Bytes()); err != nil {
		return false, nil, false, err
	}
	success, failure, raw, err := readOutcome(s)
	if err != nil {
		return false, nil, false, err
	}
	if raw != nil {
		return false, nil, true, nil // PASSWD_CHANGEREQ
	}
	return success, failure, false, nil
}

// RequestPublicKey implements the two-phase §4.6 publickey method:
// probe with has-sig=false, and only sign + resend if the server
// confirms the key is acceptable with PK_OK.
func RequestPublicKey(s *transport.Session, user string, signer sshtransport.Signer) (success bool, failure *FailureResult, err error) {
	algo := signer.Algorithm()
	blob := signer.PublicKeyBlob()

	var probe sshwire.Buffer
	writeRequestHeader(&probe, user, "ssh-connection", MethodPublicKey)
	probe.PutBool(false)
	probe.PutString(algo)
	probe.PutBytes(blob)
	if err := s.WriteMessage(probe.Bytes()); err != nil {
		return false, nil, err
	}

	payload, err := s.ReadMessage()
	if err != nil {
		return false, nil, err
	}
	r := sshwire.NewBuffer(payload)
	msgType, err := r.GetUint8()
	if err != nil {
		return false, nil, err
	}
	switch msgType {
	case transport.MsgUserauthFailure:
		methods, _ := r.GetNameList()
		partial, _ := r.GetBool()
		return false, &FailureResult{CanContinue: methods, PartialSuccess: partial}, nil
	case transport.MsgUserauthPKOK:
		// fall through to sign-and-resend
	default:
		return false, nil, sshtransport.Wrap(sshtransport.KindProtocol, nil,
			"userauth: unexpected reply to publickey probe")
	}

	sessionID := s.SessionID()
	var signedOver sshwire.Buffer
	signedOver.PutBytes(sessionID)
	writeRequestHeader(&signedOver, user, "ssh-connection", MethodPublicKey)
	signedOver.PutBool(true)
	signedOver.PutString(algo)
	signedOver.PutBytes(blob)
	sig, err := signer.Sign(signedOver.Bytes())
	if err != nil {
		return false, nil, err
	}

	var req sshwire.Buffer
	writeRequestHeader(&req, user, "ssh-connection", MethodPublicKey)
	req.PutBool(true)
	req.PutString(algo)
	req.PutBytes(blob)
	req.PutBytes(sig)
	if err := s.WriteMessage(req.Bytes()); err != nil {
		return false, nil, err
	}
	ok, failureResult, _, err := readOutcome(s)
	return ok, failureResult, err
}

// RequestKeyboardInteractive drives §4.6's keyboard-interactive method:
// send the initial request, then answer INFO_REQUEST rounds via
// responder until SUCCESS/FAILURE arrives.
func RequestKeyboardInteractive(s *transport.Session, user string, responder sshtransport.InteractivePromptResponder) (success bool, failure *FailureResult, err error) {
	var b sshwire.Buffer
	writeRequestHeader(&b, user, "ssh-connection", MethodKeyboardInteractive)
	b.PutString("")   // language tag, unused
	b.PutString("")   // submethods, unused
	if err := s.WriteMessage(b.Bytes()); err != nil {
		return false, nil, err
	}

	for {
		payload, err := s.ReadMessage()
		if err != nil {
			return false, nil, err
		}
		r := sshwire.NewBuffer(payload)
		msgType, err := r.GetUint8()
		if err != nil {
			return false, nil, err
		}
		switch msgType {
		case transport.MsgUserauthSuccess:
			return true, nil, nil
		case transport.MsgUserauthFailure:
			methods, _ := r.GetNameList()
			partial, _ := r.GetBool()
			return false, &FailureResult{CanContinue: methods, PartialSuccess: partial}, nil
		case transport.MsgUserauthInfoRequest:
			name, _ := r.GetString()
			instruction, _ := r.GetString()
			_, _ = r.GetString() // language tag, unused
			count, err := r.GetUint32()
			if err != nil {
				return false, nil, err
			}
			prompts := make([]string, count)
			echo := make([]bool, count)
			for i := range prompts {
				prompts[i], _ = r.GetString()
				echo[i], _ = r.GetBool()
			}
			answers, err := responder.Respond(name, instruction, prompts, echo)
			if err != nil {
				return false, nil, err
			}
			var resp sshwire.Buffer
			resp.PutUint8(transport.MsgUserauthInfoResponse)
			resp.PutUint32(uint32(len(answers)))
			for _, a := range answers {
				resp.PutString(a)
			}
			if err := s.WriteMessage(resp.Bytes()); err != nil {
				return false, nil, err
			}
		default:
			return false, nil, sshtransport.Wrap(sshtransport.KindProtocol, nil,
				"userauth: unexpected message during keyboard-interactive")
		}
	}
}
