package transport

import (
	"bufio"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/sshalgo"
	"blitter.com/go/sshx/sshcipher"
	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/sshwire"
)

// Role distinguishes client/server for tie-break and host-key handling.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

const identificationPrefix = "SSH-2.0-"

// Config bundles the collaborators and preference lists a Session needs.
// Defaults come from sshalgo's DefaultXOrder lists; a caller narrows them
// via package config's Options.
type Config struct {
	Role Role

	SoftwareVersion string // e.g. "sshx_1.0"

	Random sshtransport.Random

	KexNames         []string
	HostKeyNames     []string
	CipherNames      []string
	MacNames         []string
	CompressionNames []string

	KexRegistry     *sshalgo.Registry
	HostKeyRegistry *sshalgo.Registry
	CipherRegistry  *sshalgo.Registry
	MacRegistry     *sshalgo.Registry

	HostKeys        []sshtransport.Signer   // server: keys to offer
	HostKeyVerifier sshtransport.HostKeyVerifier // client: Accept() gate

	// DHGexRange is the client's proposed bit-length window when
	// diffie-hellman-group-exchange-sha256 is negotiated. Zero value
	// means runDHGex applies its own default (2048/2048/8192).
	DHGexRange DHGexRange
}

// DefaultConfig returns a Config wired to this module's builtin
// registries and RFC4253-minimum preference order.
func DefaultConfig(role Role, rnd sshtransport.Random) *Config {
	return &Config{
		Role:             role,
		SoftwareVersion:  "sshx_1.0",
		Random:           rnd,
		KexNames:         sshalgo.DefaultKexOrder,
		HostKeyNames:     sshalgo.DefaultHostKeyOrder,
		CipherNames:      sshalgo.DefaultCipherOrder,
		MacNames:         sshalgo.DefaultMacOrder,
		CompressionNames: sshalgo.DefaultCompressionOrder,
		KexRegistry:      kex.DefaultKexRegistry(),
		HostKeyRegistry:  kex.DefaultHostKeyRegistry(),
		CipherRegistry:   sshcipher.DefaultCipherRegistry(),
		MacRegistry:      sshcipher.DefaultMacRegistry(),
	}
}

// Session drives one Transport through the §4.4 state machine. It owns
// both directions' Codec, the negotiated algorithm names, and the
// session id. This plays the role xsnet.Conn plays in the teacher (one
// struct owning transport + crypto state), but the state it owns is the
// real SSH handshake instead of xsnet's single home-grown KEX call.
type Session struct {
	mu sync.Mutex

	cfg *Config
	t   sshtransport.Transport

	state State

	readCodec  *Codec
	writeCodec *Codec

	readCounter  rekeyCounter
	writeCounter rekeyCounter

	localIdent, peerIdent string

	sessionID []byte // immutable across rekeys, set on first KEX only

	localKexInit, peerKexInit *KexInitPayload

	negotiatedKex         string
	negotiatedHostKey     string
	negotiatedCipherC2S   string
	negotiatedCipherS2C   string
	negotiatedMacC2S      string
	negotiatedMacS2C      string
	negotiatedCompC2S     string
	negotiatedCompS2C     string
}

func NewSession(cfg *Config, t sshtransport.Transport) *Session {
	return &Session{
		cfg:        cfg,
		t:          t,
		state:      StatePreamble,
		readCodec:  NewCodec(cfg.Random),
		writeCodec: NewCodec(cfg.Random),
	}
}

func (s *Session) State() State { return s.state }

// SessionID returns the exchange hash of the first KEX, or nil before
// the first KEX has completed.
func (s *Session) SessionID() []byte { return s.sessionID }

// ExchangeIdentification performs §4.4's identification string exchange
// before any packet framing applies. Both sides write their own line
// first and then read the peer's; the Role is not consulted.
func (s *Session) ExchangeIdentification() error {
	s.localIdent = identificationPrefix + s.cfg.SoftwareVersion
	if _, err := fmt.Fprintf(s.t, "%s\r\n", s.localIdent); err != nil {
		return sshtransport.Wrap(sshtransport.KindIO, err, "identification write failed")
	}

	reader := bufio.NewReader(s.t)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return sshtransport.Wrap(sshtransport.KindIO, err, "identification read failed")
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, identificationPrefix) {
			s.peerIdent = line
			break
		}
		// lines before the identification string are allowed by RFC4253
		// §4.2 (banner text); ignore them.
	}
	s.state = StateKexInit
	return nil
}

// SendKexInit builds and transmits our KEXINIT proposal (plaintext —
// still in StateKexInit, before any cipher is active).
func (s *Session) SendKexInit() (*KexInitPayload, error) {
	k, err := NewKexInitPayload(s.cfg.Random, s.cfg.KexNames, s.cfg.HostKeyNames,
		s.cfg.CipherNames, s.cfg.MacNames, s.cfg.CompressionNames)
	if err != nil {
		return nil, err
	}
	s.localKexInit = k
	if err := s.writeCodec.WritePacket(s.t, k.Marshal()); err != nil {
		return nil, err
	}
	return k, nil
}

// ReceiveKexInit reads and parses the peer's KEXINIT.
func (s *Session) ReceiveKexInit() (*KexInitPayload, error) {
	pkt, err := s.readCodec.ReadPacket(s.t)
	if err != nil {
		return nil, err
	}
	if len(pkt.Payload) == 0 || pkt.Payload[0] != MsgKexInit {
		return nil, sshtransport.Wrap(sshtransport.KindProtocol, nil,
			"expected KEXINIT, got message %d", firstByte(pkt.Payload))
	}
	k, err := ParseKexInit(pkt.Payload)
	if err != nil {
		return nil, err
	}
	s.peerKexInit = k
	s.state = StateKexRun
	return k, nil
}

func firstByte(b []byte) int {
	if len(b) == 0 {
		return -1
	}
	return int(b[0])
}

// NegotiateAlgorithms applies §3's client-preference-first-match rule
// across all six categories. Client and server each call this with
// (our, peer) in client-role order — i.e. the Config whose Role is
// RoleClient always supplies the "client" list to sshalgo.Negotiate.
func (s *Session) NegotiateAlgorithms() error {
	client, server := s.localKexInit, s.peerKexInit
	if s.cfg.Role == RoleServer {
		client, server = s.peerKexInit, s.localKexInit
	}

	var err error
	if s.negotiatedKex, err = sshalgo.Negotiate(sshalgo.KindKex, client.KexAlgorithms, server.KexAlgorithms); err != nil {
		return err
	}
	if s.negotiatedHostKey, err = sshalgo.Negotiate(sshalgo.KindHostKey, client.ServerHostKeyAlgorithms, server.ServerHostKeyAlgorithms); err != nil {
		return err
	}
	if s.negotiatedCipherC2S, err = sshalgo.Negotiate(sshalgo.KindCipher, client.EncryptionClientToServer, server.EncryptionClientToServer); err != nil {
		return err
	}
	if s.negotiatedCipherS2C, err = sshalgo.Negotiate(sshalgo.KindCipher, client.EncryptionServerToClient, server.EncryptionServerToClient); err != nil {
		return err
	}
	if s.negotiatedMacC2S, err = sshalgo.Negotiate(sshalgo.KindMAC, client.MacClientToServer, server.MacClientToServer); err != nil {
		return err
	}
	if s.negotiatedMacS2C, err = sshalgo.Negotiate(sshalgo.KindMAC, client.MacServerToClient, server.MacServerToClient); err != nil {
		return err
	}
	if s.negotiatedCompC2S, err = sshalgo.Negotiate(sshalgo.KindCompression, client.CompressionClientToServer, server.CompressionClientToServer); err != nil {
		return err
	}
	if s.negotiatedCompS2C, err = sshalgo.Negotiate(sshalgo.KindCompression, client.CompressionServerToClient, server.CompressionServerToClient); err != nil {
		return err
	}
	return nil
}

// SendNewKeys transmits SSH_MSG_NEWKEYS and immediately activates the
// new write-direction keys — §4.3's "from the instant NEWKEYS is
// emitted outbound, all subsequent outbound packets use the new keys".
func (s *Session) SendNewKeys(cs sshtransport.CipherSuite, ms sshtransport.MacSuite, comp sshtransport.Compressor, key, iv, macKey []byte) error {
	if err := s.writeCodec.WritePacket(s.t, []byte{MsgNewKeys}); err != nil {
		return err
	}
	if err := cs.Init(key, iv); err != nil {
		return err
	}
	if err := ms.Init(macKey); err != nil {
		return err
	}
	s.writeCodec.Install(cs, ms, comp)
	s.writeCounter.reset()
	return nil
}

// ReceiveNewKeys reads SSH_MSG_NEWKEYS and activates the new
// read-direction keys, symmetric to SendNewKeys.
func (s *Session) ReceiveNewKeys(cs sshtransport.CipherSuite, ms sshtransport.MacSuite, comp sshtransport.Compressor, key, iv, macKey []byte) error {
	pkt, err := s.readCodec.ReadPacket(s.t)
	if err != nil {
		return err
	}
	if len(pkt.Payload) != 1 || pkt.Payload[0] != MsgNewKeys {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil, "expected NEWKEYS")
	}
	if err := cs.Init(key, iv); err != nil {
		return err
	}
	if err := ms.Init(macKey); err != nil {
		return err
	}
	s.readCodec.Install(cs, ms, comp)
	s.readCounter.reset()
	s.state = StateRunning
	return nil
}

// WriteMessage sends one packet of user/protocol data, tracking rekey
// counters. It refuses to send in StateKexInit, StateNewKeys and
// StateClosed. StateKexRun is allowed so the KEX runner can send its
// messages, and WriteMessage does not tell those apart from user data.
func (s *Session) WriteMessage(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePreamble && !s.state.CanSendUserData() && s.state != StateKexRun {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil,
			"cannot send in state %s", s.state)
	}
	if err := s.writeCodec.WritePacket(s.t, payload); err != nil {
		return err
	}
	s.writeCounter.add(len(payload))
	if s.writeCounter.exceeded() && s.state == StateRunning {
		s.state = StateRekeyRequested
	}
	return nil
}

// ReadMessage reads one packet, tracking rekey counters. Transport-level
// messages (1-4) are handled inline; everything else is returned to the
// caller (service layer) for dispatch.
func (s *Session) ReadMessage() ([]byte, error) {
	for {
		pkt, err := s.readCodec.ReadPacket(s.t)
		if err != nil {
			return nil, err
		}
		s.readCounter.add(len(pkt.Payload))
		if s.readCounter.exceeded() && s.state == StateRunning {
			s.mu.Lock()
			s.state = StateRekeyRequested
			s.mu.Unlock()
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		switch pkt.Payload[0] {
		case MsgIgnore, MsgDebug:
			continue
		case MsgDisconnect:
			s.state = StateClosed
			return nil, sshtransport.Wrap(sshtransport.KindProtocol, nil, "peer sent DISCONNECT")
		case MsgUnimplemented:
			continue
		}
		return pkt.Payload, nil
	}
}

// SendUnimplemented replies to an unrecognized-but-in-range message
// number with SSH_MSG_UNIMPLEMENTED carrying the offending sequence
// number (§4.4).
func (s *Session) SendUnimplemented(seq uint32) error {
	var b sshwire.Buffer
	b.PutUint8(MsgUnimplemented)
	b.PutUint32(seq)
	return s.WriteMessage(b.Bytes())
}

// Disconnect sends SSH_MSG_DISCONNECT with the given reason and closes
// the transport.
func (s *Session) Disconnect(reasonCode uint32, description string) error {
	var b sshwire.Buffer
	b.PutUint8(MsgDisconnect)
	b.PutUint32(reasonCode)
	b.PutString(description)
	b.PutString("")
	_ = s.WriteMessage(b.Bytes())
	s.state = StateClosed
	return s.t.Close()
}

// RequestRekey moves Running -> RekeyRequested, the trigger either side
// may pull independent of the byte/packet thresholds (e.g. operator
// command). It is a no-op outside Running.
func (s *Session) RequestRekey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StateRekeyRequested
	}
}

// BeginRekey transitions RekeyRequested -> RekeyRunning so a fresh
// KEXINIT round can start without user data being blocked (§4.4: unlike
// the first handshake, rekey doesn't halt application traffic).
func (s *Session) BeginRekey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRekeyRequested {
		s.state = StateRekeyRunning
	}
}

// mpintFromBytes is a convenience used by the KEX runner (package
// userauth/channel don't need this; kept here since the ECDH
// exchange-hash assembly needs K as a *big.Int while ECDHKex.Shared
// returns the raw shared secret bytes).
func mpintFromBytes(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
