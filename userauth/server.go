package userauth

import (
	"blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/sshwire"
	"blitter.com/go/sshx/transport"
)

// DefaultMaxAuthAttempts is §4.6's default cap on failed attempts
// before the server disconnects with NO_MORE_AUTH_METHODS_AVAILABLE.
const DefaultMaxAuthAttempts = 6

// PasswordVerifier checks a submitted username/password pair
// server-side. See store.go for the bcrypt/passlib-backed
// implementation grounded on the teacher's auth.go.
type PasswordVerifier interface {
	VerifyPassword(user, password string) (bool, error)
}

// PublicKeyAuthorizer decides whether a user may authenticate with the
// given key blob, independent of whether the signature itself verifies
// (that is checked by the kex verifier verifierFor picks for the
// algorithm name).
type PublicKeyAuthorizer interface {
	AuthorizedKey(user string, keyBlob []byte) bool
}

// KeyboardInteractiveChallenger issues prompts and checks answers
// server-side (the mirror of sshtransport.InteractivePromptResponder).
type KeyboardInteractiveChallenger interface {
	Challenge(user string) (name, instruction string, prompts []string, echo []bool)
	Verify(user string, answers []string) (bool, error)
}

// Config bundles the server-side collaborators and policy knobs.
// A method whose collaborator is nil always fails; FAILURE replies list
// Methods exactly as given, whether or not that collaborator is set.
type Config struct {
	MaxAuthAttempts int
	Methods         []string // offered in this order on FAILURE replies

	PasswordVerifier    PasswordVerifier
	PublicKeyAuthorizer PublicKeyAuthorizer
	Challenger          KeyboardInteractiveChallenger
}

// Handler implements service.Handler for "ssh-userauth".
type Handler struct {
	Cfg Config

	attempts       int
	satisfied      map[string]bool // not written by Run: FAILURE replies always carry partial success false
}

func NewHandler(cfg Config) *Handler {
	if cfg.MaxAuthAttempts == 0 {
		cfg.MaxAuthAttempts = DefaultMaxAuthAttempts
	}
	return &Handler{Cfg: cfg, satisfied: make(map[string]bool)}
}

func (h *Handler) Name() string { return ServiceName }

func (h *Handler) MsgRange() transport.MsgRange {
	return transport.MsgRange{Low: transport.MsgUserauthRequest, High: transport.MsgUserauthInfoResponse}
}

// Run processes USERAUTH_REQUESTs until SUCCESS, the attempt cap is
// exceeded, or the Session errors.
func (h *Handler) Run(s *transport.Session) error {
	for {
		payload, err := s.ReadMessage()
		if err != nil {
			return err
		}
		r := sshwire.NewBuffer(payload)
		msgType, err := r.GetUint8()
		if err != nil || msgType != transport.MsgUserauthRequest {
			return sshtransport.Wrap(sshtransport.KindProtocol, err, "userauth: expected USERAUTH_REQUEST")
		}
		user, err := r.GetString()
		if err != nil {
			return err
		}
		if _, err := r.GetString(); err != nil { // service name, unused: only ssh-connection is ever requested here
			return err
		}
		method, err := r.GetString()
		if err != nil {
			return err
		}

		ok, err := h.dispatch(s, r, user, method)
		if err != nil {
			return err
		}
		if ok {
			return h.sendSuccess(s)
		}

		h.attempts++
		if h.attempts >= h.Cfg.MaxAuthAttempts {
			return s.Disconnect(transport.DisconnectNoMoreAuthMethodsAvailable, "too many authentication attempts")
		}
		if err := h.sendFailure(s, false); err != nil {
			return err
		}
	}
}

func (h *Handler) dispatch(s *transport.Session, r *sshwire.Buffer, user, method string) (bool, error) {
	switch method {
	case MethodNone:
		return false, nil
	case MethodPassword:
		return h.handlePassword(s, r, user)
	case MethodPublicKey:
		return h.handlePublicKey(s, r, user)
	case MethodKeyboardInteractive:
		return h.handleKeyboardInteractive(s, user)
	default:
		return false, nil
	}
}

func (h *Handler) handlePassword(s *transport.Session, r *sshwire.Buffer, user string) (bool, error) {
	if h.Cfg.PasswordVerifier == nil {
		return false, nil
	}
	if _, err := r.GetBool(); err != nil { // password-change flag, ignored server-side here
		return false, err
	}
	password, err := r.GetString()
	if err != nil {
		return false, err
	}
	ok, err := h.Cfg.PasswordVerifier.VerifyPassword(user, password)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (h *Handler) handlePublicKey(s *transport.Session, r *sshwire.Buffer, user string) (bool, error) {
	if h.Cfg.PublicKeyAuthorizer == nil {
		return false, nil
	}
	hasSig, err := r.GetBool()
	if err != nil {
		return false, err
	}
	algo, err := r.GetString()
	if err != nil {
		return false, err
	}
	blob, err := r.GetBytes()
	if err != nil {
		return false, err
	}
	if !h.Cfg.PublicKeyAuthorizer.AuthorizedKey(user, blob) {
		return false, nil
	}
	if !hasSig {
		return false, h.sendPKOK(s, algo, blob)
	}
	sig, err := r.GetBytes()
	if err != nil {
		return false, err
	}

	var signedOver sshwire.Buffer
	signedOver.PutBytes(s.SessionID())
	signedOver.PutUint8(transport.MsgUserauthRequest)
	signedOver.PutString(user)
	signedOver.PutString("ssh-connection")
	signedOver.PutString(MethodPublicKey)
	signedOver.PutBool(true)
	signedOver.PutString(algo)
	signedOver.PutBytes(blob)

	verifier, ok := verifierFor(algo)
	if !ok {
		return false, nil
	}
	valid, err := verifier.Verify(signedOver.Bytes(), sig, blob)
	if err != nil {
		return false, err
	}
	return valid, nil
}

func (h *Handler) handleKeyboardInteractive(s *transport.Session, user string) (bool, error) {
	if h.Cfg.Challenger == nil {
		return false, nil
	}
	name, instruction, prompts, echo := h.Cfg.Challenger.Challenge(user)
	var req sshwire.Buffer
	req.PutUint8(transport.MsgUserauthInfoRequest)
	req.PutString(name)
	req.PutString(instruction)
	req.PutString("")
	req.PutUint32(uint32(len(prompts)))
	for i, p := range prompts {
		req.PutString(p)
		req.PutBool(echo[i])
	}
	if err := s.WriteMessage(req.Bytes()); err != nil {
		return false, err
	}

	payload, err := s.ReadMessage()
	if err != nil {
		return false, err
	}
	rr := sshwire.NewBuffer(payload)
	msgType, err := rr.GetUint8()
	if err != nil || msgType != transport.MsgUserauthInfoResponse {
		return false, sshtransport.Wrap(sshtransport.KindProtocol, err, "userauth: expected INFO_RESPONSE")
	}
	count, err := rr.GetUint32()
	if err != nil {
		return false, err
	}
	answers := make([]string, count)
	for i := range answers {
		answers[i], _ = rr.GetString()
	}
	return h.Cfg.Challenger.Verify(user, answers)
}

func (h *Handler) sendPKOK(s *transport.Session, algo string, blob []byte) error {
	var b sshwire.Buffer
	b.PutUint8(transport.MsgUserauthPKOK)
	b.PutString(algo)
	b.PutBytes(blob)
	return s.WriteMessage(b.Bytes())
}

func (h *Handler) sendSuccess(s *transport.Session) error {
	var b sshwire.Buffer
	b.PutUint8(transport.MsgUserauthSuccess)
	return s.WriteMessage(b.Bytes())
}

func (h *Handler) sendFailure(s *transport.Session, partial bool) error {
	var b sshwire.Buffer
	b.PutUint8(transport.MsgUserauthFailure)
	b.PutNameList(h.Cfg.Methods)
	b.PutBool(partial)
	return s.WriteMessage(b.Bytes())
}

// verifierFor resolves a host-key-family algorithm name to the
// corresponding kex.*Verifier for publickey signature checks — the
// same verifiers KEX uses to check the server's own host key, reused
// here for client public keys since the wire signature envelope is
// identical (RFC4253 §6.6/RFC5656 §3.1).
func verifierFor(algo string) (sshtransport.Verifier, bool) {
	switch algo {
	case "ssh-rsa":
		return kex.RSAVerifier{}, true
	case "ecdsa-sha2-nistp256", "ecdsa-sha2-nistp384", "ecdsa-sha2-nistp521":
		return kex.ECDSAVerifier{}, true
	case "ssh-ed25519":
		return kex.ED25519Verifier{}, true
	case "ssh-dss":
		return kex.DSSVerifier{}, true
	default:
		return nil, false
	}
}
