package transport

import (
	"hash"
	"math/big"

	gokex "blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/sshalgo"
	"blitter.com/go/sshx/sshcipher"
	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/sshwire"
)

// RunKex drives one full key-exchange round (initial or rekey) to
// completion: negotiate, exchange DH/ECDH messages, verify the host-key
// signature, derive session keys, and exchange NEWKEYS. On success the
// Session is left in StateRunning with both Codecs active.
//
// signer is consulted only when cfg.Role == RoleServer (it signs the
// exchange hash); verifier only when RoleClient.
func RunKex(s *Session, signer sshtransport.Signer, verifier sshtransport.Verifier) error {
	if _, err := s.SendKexInit(); err != nil {
		return err
	}
	if _, err := s.ReceiveKexInit(); err != nil {
		return err
	}
	if err := s.NegotiateAlgorithms(); err != nil {
		return err
	}

	switch s.negotiatedKex {
	case sshalgo.KexECDHNistP256, sshalgo.KexECDHNistP384, sshalgo.KexECDHNistP521:
		return runECDH(s, signer, verifier)
	case sshalgo.KexDHGroupExchangeSHA256:
		return runDHGex(s, signer, verifier)
	default:
		return runDH(s, signer, verifier)
	}
}

// DHGexRange is the client's proposed bit-length window for
// diffie-hellman-group-exchange-sha256 (RFC4419 §3). Preferred defaults
// apply when a Session's Config leaves it zero.
type DHGexRange struct {
	Min, Preferred, Max int
}

func (r DHGexRange) orDefault() DHGexRange {
	if r.Min == 0 && r.Preferred == 0 && r.Max == 0 {
		return DHGexRange{Min: 2048, Preferred: 2048, Max: 8192}
	}
	return r
}

func runDHGex(s *Session, signer sshtransport.Signer, verifier sshtransport.Verifier) error {
	rng := s.cfg.DHGexRange.orDefault()
	d := gokex.NewDHGroupExchangeSHA256(rng.Min, rng.Preferred, rng.Max)

	if s.cfg.Role == RoleClient {
		var req sshwire.Buffer
		req.PutUint8(MsgKexDHGexRequest)
		req.PutUint32(uint32(rng.Min))
		req.PutUint32(uint32(rng.Preferred))
		req.PutUint32(uint32(rng.Max))
		if err := s.WriteMessage(req.Bytes()); err != nil {
			return err
		}

		groupPayload, err := s.ReadMessage()
		if err != nil {
			return err
		}
		gr := sshwire.NewBuffer(groupPayload)
		msgType, _ := gr.GetUint8()
		if msgType != MsgKexDHGexGroup {
			return sshtransport.Wrap(sshtransport.KindProtocol, nil, "expected KEX_DH_GEX_GROUP")
		}
		p, _ := gr.GetMpint()
		g, _ := gr.GetMpint()
		d.SetGroup(p, g)

		if err := d.GenerateEphemeral(s.cfg.Random); err != nil {
			return err
		}
		var init sshwire.Buffer
		init.PutUint8(MsgKexDHGexInit)
		init.PutMpint(d.E)
		if err := s.WriteMessage(init.Bytes()); err != nil {
			return err
		}

		replyPayload, err := s.ReadMessage()
		if err != nil {
			return err
		}
		rr := sshwire.NewBuffer(replyPayload)
		msgType, _ = rr.GetUint8()
		if msgType != MsgKexDHGexReply {
			return sshtransport.Wrap(sshtransport.KindProtocol, nil, "expected KEX_DH_GEX_REPLY")
		}
		hostKeyBlob, _ := rr.GetBytes()
		f, _ := rr.GetMpint()
		sigBlob, _ := rr.GetBytes()

		k, err := d.Shared(f)
		if err != nil {
			return err
		}
		h := ComputeExchangeHashDHGex(d.NewHash(), ExchangeHashInputDHGex{
			V_C: s.localIdent, V_S: s.peerIdent,
			I_C: s.localKexInit.Marshal(), I_S: s.peerKexInit.Marshal(),
			HostKeyBlob: hostKeyBlob,
			MinBits: rng.Min, PreferredBits: rng.Preferred, MaxBits: rng.Max,
			P: p, G: g, E: d.E, F: f, K: k,
		})

		if s.cfg.HostKeyVerifier == nil || !s.cfg.HostKeyVerifier.Accept("", 0, hostKeyBlob) {
			return sshtransport.Wrap(sshtransport.KindNegotiation, nil, "HOST_KEY_REJECTED")
		}
		ok, err := verifier.Verify(h, sigBlob, hostKeyBlob)
		if err != nil || !ok {
			return sshtransport.Wrap(sshtransport.KindCrypto, err, "BAD_SIGNATURE")
		}
		return finishKex(s, d.NewHash, k, h)
	}

	// server
	reqPayload, err := s.ReadMessage()
	if err != nil {
		return err
	}
	qr := sshwire.NewBuffer(reqPayload)
	msgType, _ := qr.GetUint8()
	if msgType != MsgKexDHGexRequest {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil, "expected KEX_DH_GEX_REQUEST")
	}
	minBits, _ := qr.GetUint32()
	preferredBits, _ := qr.GetUint32()
	maxBits, _ := qr.GetUint32()

	group, _, err := gokex.SelectGroup(int(minBits), int(preferredBits), int(maxBits))
	if err != nil {
		return err
	}
	d.SetGroup(group.P, group.G)

	var groupMsg sshwire.Buffer
	groupMsg.PutUint8(MsgKexDHGexGroup)
	groupMsg.PutMpint(group.P)
	groupMsg.PutMpint(group.G)
	if err := s.WriteMessage(groupMsg.Bytes()); err != nil {
		return err
	}

	if err := d.GenerateEphemeral(s.cfg.Random); err != nil {
		return err
	}

	initPayload, err := s.ReadMessage()
	if err != nil {
		return err
	}
	ir := sshwire.NewBuffer(initPayload)
	msgType, _ = ir.GetUint8()
	if msgType != MsgKexDHGexInit {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil, "expected KEX_DH_GEX_INIT")
	}
	e, _ := ir.GetMpint()
	k, err := d.Shared(e)
	if err != nil {
		return err
	}

	hostKeyBlob := signer.PublicKeyBlob()
	h := ComputeExchangeHashDHGex(d.NewHash(), ExchangeHashInputDHGex{
		V_C: s.peerIdent, V_S: s.localIdent,
		I_C: s.peerKexInit.Marshal(), I_S: s.localKexInit.Marshal(),
		HostKeyBlob: hostKeyBlob,
		MinBits: int(minBits), PreferredBits: int(preferredBits), MaxBits: int(maxBits),
		P: group.P, G: group.G, E: e, F: d.E, K: k,
	})
	sig, err := signer.Sign(h)
	if err != nil {
		return err
	}
	var reply sshwire.Buffer
	reply.PutUint8(MsgKexDHGexReply)
	reply.PutBytes(hostKeyBlob)
	reply.PutMpint(d.E)
	reply.PutBytes(sig)
	if err := s.WriteMessage(reply.Bytes()); err != nil {
		return err
	}
	return finishKex(s, d.NewHash, k, h)
}

func runDH(s *Session, signer sshtransport.Signer, verifier sshtransport.Verifier) error {
	var d *gokex.DHKex
	switch s.negotiatedKex {
	case sshalgo.KexDHGroup1SHA1:
		d = gokex.NewDHGroup1()
	default:
		d = gokex.NewDHGroup14()
	}
	if err := d.GenerateEphemeral(s.cfg.Random); err != nil {
		return err
	}

	if s.cfg.Role == RoleClient {
		var b sshwire.Buffer
		b.PutUint8(MsgKexDHInit)
		b.PutMpint(d.E)
		if err := s.WriteMessage(b.Bytes()); err != nil {
			return err
		}

		payload, err := s.ReadMessage()
		if err != nil {
			return err
		}
		r := sshwire.NewBuffer(payload)
		msgType, _ := r.GetUint8()
		if msgType != MsgKexDHReply {
			return sshtransport.Wrap(sshtransport.KindProtocol, nil, "expected KEXDH_REPLY")
		}
		hostKeyBlob, _ := r.GetBytes()
		f, _ := r.GetMpint()
		sigBlob, _ := r.GetBytes()

		k, err := d.Shared(f)
		if err != nil {
			return err
		}
		h := ComputeExchangeHashDH(d.NewHash(), ExchangeHashInputDH{
			V_C: s.localIdent, V_S: s.peerIdent,
			I_C: s.localKexInit.Marshal(), I_S: s.peerKexInit.Marshal(),
			HostKeyBlob: hostKeyBlob, E: d.E, F: f, K: k,
		})

		if s.cfg.HostKeyVerifier == nil || !s.cfg.HostKeyVerifier.Accept("", 0, hostKeyBlob) {
			return sshtransport.Wrap(sshtransport.KindNegotiation, nil, "HOST_KEY_REJECTED")
		}
		ok, err := verifier.Verify(h, sigBlob, hostKeyBlob)
		if err != nil || !ok {
			return sshtransport.Wrap(sshtransport.KindCrypto, err, "BAD_SIGNATURE")
		}

		return finishKex(s, d.NewHash, k, h)
	}

	// server
	payload, err := s.ReadMessage()
	if err != nil {
		return err
	}
	r := sshwire.NewBuffer(payload)
	msgType, _ := r.GetUint8()
	if msgType != MsgKexDHInit {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil, "expected KEXDH_INIT")
	}
	e, _ := r.GetMpint()
	k, err := d.Shared(e)
	if err != nil {
		return err
	}
	hostKeyBlob := signer.PublicKeyBlob()
	h := ComputeExchangeHashDH(d.NewHash(), ExchangeHashInputDH{
		V_C: s.peerIdent, V_S: s.localIdent,
		I_C: s.peerKexInit.Marshal(), I_S: s.localKexInit.Marshal(),
		HostKeyBlob: hostKeyBlob, E: e, F: d.E, K: k,
	})
	sig, err := signer.Sign(h)
	if err != nil {
		return err
	}
	var reply sshwire.Buffer
	reply.PutUint8(MsgKexDHReply)
	reply.PutBytes(hostKeyBlob)
	reply.PutMpint(d.E)
	reply.PutBytes(sig)
	if err := s.WriteMessage(reply.Bytes()); err != nil {
		return err
	}
	return finishKex(s, d.NewHash, k, h)
}

func runECDH(s *Session, signer sshtransport.Signer, verifier sshtransport.Verifier) error {
	var e *gokex.ECDHKex
	switch s.negotiatedKex {
	case sshalgo.KexECDHNistP384:
		e = gokex.NewECDHNistP384()
	case sshalgo.KexECDHNistP521:
		e = gokex.NewECDHNistP521()
	default:
		e = gokex.NewECDHNistP256()
	}
	if err := e.GenerateEphemeral(); err != nil {
		return err
	}

	if s.cfg.Role == RoleClient {
		var b sshwire.Buffer
		b.PutUint8(MsgKexECDHInit)
		b.PutBytes(e.PublicBytes())
		if err := s.WriteMessage(b.Bytes()); err != nil {
			return err
		}

		payload, err := s.ReadMessage()
		if err != nil {
			return err
		}
		r := sshwire.NewBuffer(payload)
		msgType, _ := r.GetUint8()
		if msgType != MsgKexECDHReply {
			return sshtransport.Wrap(sshtransport.KindProtocol, nil, "expected KEX_ECDH_REPLY")
		}
		hostKeyBlob, _ := r.GetBytes()
		qs, _ := r.GetBytes()
		sigBlob, _ := r.GetBytes()

		secret, err := e.Shared(qs)
		if err != nil {
			return err
		}
		k := mpintFromBytes(secret)
		h := ComputeExchangeHashECDH(e.NewHash(), ExchangeHashInputECDH{
			V_C: s.localIdent, V_S: s.peerIdent,
			I_C: s.localKexInit.Marshal(), I_S: s.peerKexInit.Marshal(),
			HostKeyBlob: hostKeyBlob, QC: e.PublicBytes(), QS: qs, K: k,
		})

		if s.cfg.HostKeyVerifier == nil || !s.cfg.HostKeyVerifier.Accept("", 0, hostKeyBlob) {
			return sshtransport.Wrap(sshtransport.KindNegotiation, nil, "HOST_KEY_REJECTED")
		}
		ok, err := verifier.Verify(h, sigBlob, hostKeyBlob)
		if err != nil || !ok {
			return sshtransport.Wrap(sshtransport.KindCrypto, err, "BAD_SIGNATURE")
		}
		return finishKex(s, e.NewHash, k, h)
	}

	// server
	payload, err := s.ReadMessage()
	if err != nil {
		return err
	}
	r := sshwire.NewBuffer(payload)
	msgType, _ := r.GetUint8()
	if msgType != MsgKexECDHInit {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil, "expected KEX_ECDH_INIT")
	}
	qc, _ := r.GetBytes()
	secret, err := e.Shared(qc)
	if err != nil {
		return err
	}
	k := mpintFromBytes(secret)
	hostKeyBlob := signer.PublicKeyBlob()
	h := ComputeExchangeHashECDH(e.NewHash(), ExchangeHashInputECDH{
		V_C: s.peerIdent, V_S: s.localIdent,
		I_C: s.peerKexInit.Marshal(), I_S: s.localKexInit.Marshal(),
		HostKeyBlob: hostKeyBlob, QC: qc, QS: e.PublicBytes(), K: k,
	})
	sig, err := signer.Sign(h)
	if err != nil {
		return err
	}
	var reply sshwire.Buffer
	reply.PutUint8(MsgKexECDHReply)
	reply.PutBytes(hostKeyBlob)
	reply.PutBytes(e.PublicBytes())
	reply.PutBytes(sig)
	if err := s.WriteMessage(reply.Bytes()); err != nil {
		return err
	}
	return finishKex(s, e.NewHash, k, h)
}

// finishKex assigns the session id (first KEX only), derives the six
// session keys, installs ciphers/macs/compressors on both Codecs, and
// completes the NEWKEYS exchange (§4.3/§7.2).
func finishKex(s *Session, newHash func() hash.Hash, k *big.Int, h []byte) error {
	if s.sessionID == nil {
		s.sessionID = h
	}

	c2sKeySize, c2sIVSize, ok := sshcipher.Sizes(s.negotiatedCipherC2S)
	if !ok {
		return sshtransport.Wrap(sshtransport.KindCrypto, nil, "unknown cipher %q", s.negotiatedCipherC2S)
	}
	s2cKeySize, s2cIVSize, ok := sshcipher.Sizes(s.negotiatedCipherS2C)
	if !ok {
		return sshtransport.Wrap(sshtransport.KindCrypto, nil, "unknown cipher %q", s.negotiatedCipherS2C)
	}
	c2sMacKeySize, ok := sshcipher.MacKeySize(s.negotiatedMacC2S)
	if !ok {
		return sshtransport.Wrap(sshtransport.KindCrypto, nil, "unknown mac %q", s.negotiatedMacC2S)
	}
	s2cMacKeySize, ok := sshcipher.MacKeySize(s.negotiatedMacS2C)
	if !ok {
		return sshtransport.Wrap(sshtransport.KindCrypto, nil, "unknown mac %q", s.negotiatedMacS2C)
	}

	keys := DeriveKeysAsymmetric(newHash, k, h, s.sessionID,
		c2sIVSize, s2cIVSize, c2sKeySize, s2cKeySize, c2sMacKeySize, s2cMacKeySize)

	newCipher := func(name string) (sshtransport.CipherSuite, error) {
		f, ok := s.cfg.CipherRegistry.Lookup(name)
		if !ok {
			return nil, sshtransport.Wrap(sshtransport.KindCrypto, nil, "cipher %q not registered", name)
		}
		return f.(sshcipher.Factory)(), nil
	}
	newMac := func(name string) (sshtransport.MacSuite, error) {
		f, ok := s.cfg.MacRegistry.Lookup(name)
		if !ok {
			return nil, sshtransport.Wrap(sshtransport.KindCrypto, nil, "mac %q not registered", name)
		}
		return f.(sshcipher.MacFactory)(), nil
	}

	outCipherName, inCipherName := s.negotiatedCipherC2S, s.negotiatedCipherS2C
	outMacName, inMacName := s.negotiatedMacC2S, s.negotiatedMacS2C
	outIV, inIV := keys.IVClientToServer, keys.IVServerToClient
	outEnc, inEnc := keys.EncClientToServer, keys.EncServerToClient
	outMacKey, inMacKey := keys.MacClientToServer, keys.MacServerToClient
	if s.cfg.Role == RoleServer {
		outCipherName, inCipherName = inCipherName, outCipherName
		outMacName, inMacName = inMacName, outMacName
		outIV, inIV = inIV, outIV
		outEnc, inEnc = inEnc, outEnc
		outMacKey, inMacKey = inMacKey, outMacKey
	}

	outCS, err := newCipher(outCipherName)
	if err != nil {
		return err
	}
	inCS, err := newCipher(inCipherName)
	if err != nil {
		return err
	}
	outMS, err := newMac(outMacName)
	if err != nil {
		return err
	}
	inMS, err := newMac(inMacName)
	if err != nil {
		return err
	}

	if err := s.SendNewKeys(outCS, outMS, NoneCompressor, outEnc, outIV, outMacKey); err != nil {
		return err
	}
	if err := s.ReceiveNewKeys(inCS, inMS, NoneCompressor, inEnc, inIV, inMacKey); err != nil {
		return err
	}
	return nil
}
