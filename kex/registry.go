package kex

import (
	"blitter.com/go/sshx/sshalgo"
	"blitter.com/go/sshx/sshtransport"
)

// VerifierFactory builds a fresh Verifier for a host-key algorithm name.
type VerifierFactory func() sshtransport.Verifier

// DefaultHostKeyRegistry returns a Registry of Verifier factories for the
// RFC4253/5656/8709 host-key algorithms this module negotiates.
// ssh-dss is included for interoperability with legacy peers even though
// it is last in sshalgo.DefaultHostKeyOrder.
func DefaultHostKeyRegistry() *sshalgo.Registry {
	builtins := map[string]interface{}{
		sshalgo.HostKeyRSA:       VerifierFactory(func() sshtransport.Verifier { return RSAVerifier{} }),
		sshalgo.HostKeyECDSAP256: VerifierFactory(func() sshtransport.Verifier { return ECDSAVerifier{} }),
		sshalgo.HostKeyECDSAP384: VerifierFactory(func() sshtransport.Verifier { return ECDSAVerifier{} }),
		sshalgo.HostKeyECDSAP521: VerifierFactory(func() sshtransport.Verifier { return ECDSAVerifier{} }),
		sshalgo.HostKeyED25519:   VerifierFactory(func() sshtransport.Verifier { return ED25519Verifier{} }),
		sshalgo.HostKeyDSS:       VerifierFactory(func() sshtransport.Verifier { return DSSVerifier{} }),
	}
	return sshalgo.NewRegistry(sshalgo.KindHostKey, builtins)
}

// DefaultKexRegistry returns a Registry of factories constructing the
// default (non-extension) KEX methods. Each factory returns an
// interface{} because the concrete KEX types (DHKex, DHGroupExchange,
// ECDHKex) expose different method shapes (mpint vs. byte-slice public
// values) — package transport's RunKex switches on the negotiated
// method name to drive the right exchange sequence, mirroring how getStream's caller in xsnet
// already switches on KEX method before calling the matching *Setup
// function.
type KexFactory func() interface{}

func DefaultKexRegistry() *sshalgo.Registry {
	builtins := map[string]interface{}{
		sshalgo.KexDHGroup1SHA1:          KexFactory(func() interface{} { return NewDHGroup1() }),
		sshalgo.KexDHGroup14SHA1:         KexFactory(func() interface{} { return NewDHGroup14() }),
		sshalgo.KexDHGroupExchangeSHA256: KexFactory(func() interface{} { return NewDHGroupExchangeSHA256(2048, 3072, 8192) }),
		sshalgo.KexECDHNistP256:          KexFactory(func() interface{} { return NewECDHNistP256() }),
		sshalgo.KexECDHNistP384:          KexFactory(func() interface{} { return NewECDHNistP384() }),
		sshalgo.KexECDHNistP521:          KexFactory(func() interface{} { return NewECDHNistP521() }),
	}
	return sshalgo.NewRegistry(sshalgo.KindKex, builtins)
}

// RegisterExtensionKex adds the post-quantum and legacy KEX methods as
// opt-in extensions (§9).
func RegisterExtensionKex(reg *sshalgo.Registry) error {
	for name, f := range map[string]KexFactory{
		KexHerradura256:  func() interface{} { return NewHerradura256() },
		KexKyber768:      func() interface{} { return NewKyber768() },
		KexNewHopeSimple: func() interface{} { return NewNewHopeSimple() },
	} {
		if err := reg.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}
