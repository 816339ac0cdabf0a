package kex

import (
	"crypto/sha256"
	"math/big"

	"blitter.com/go/kyber"
	"blitter.com/go/newhope"

	herradurakex "blitter.com/go/sshx/kex/herradura"
	"blitter.com/go/sshx/sshtransport"
)

// Extension KEX method names (§9 design note). None appear in
// sshalgo.DefaultKexOrder; registering them only makes them negotiable
// when a caller's own preference list names them (config's
// preferred-kex option).
const (
	KexHerradura256  = "herradura256@blitter.com"
	KexKyber768      = "kyber768@blitter.com"
	KexNewHopeSimple = "newhope-simple@blitter.com"
)

// HerraduraKex adapts herradura's home-grown finite-cyclic-group
// exchange (kept verbatim, see kex/herradura) behind a D/Shared pair:
// D stands in for DHKex's E, and Shared returns the secret's SHA-256 as
// bytes. Package transport's RunKex has no case for this method.
// Grounded on herradurakex.go in full —
// the math (fscx/fscxRevolve/D/FA) is untouched; only the session
// wrapper and parameter sizes are new.
type HerraduraKex struct {
	h *herradurakex.HerraduraKEx
}

func NewHerradura256() *HerraduraKex {
	return &HerraduraKex{h: herradurakex.New(256, 64)}
}

// D is our public value, sent to the peer in place of a DH public E.
func (k *HerraduraKex) D() *big.Int { return k.h.D() }

// Shared derives the session secret once the peer's D has arrived.
func (k *HerraduraKex) Shared(peerD *big.Int) []byte {
	k.h.PeerD = peerD
	k.h.FA()
	sum := sha256.Sum256([]byte(k.h.String()))
	return sum[:]
}

// KyberKex adapts blitter.com/go/kyber's post-quantum KEM (Kyber768) to
// the Signer-free, plain-KEM shape §4.3 generalizes KEX collaborators
// to: GenerateEphemeral produces a public blob to send, Shared consumes
// the peer's response blob. Grounded on xsnet/net.go's
// KyberDialSetup/KyberAcceptSetup.
type KyberKex struct {
	priv *kyber.PrivateKey
	pub  *kyber.PublicKey
}

func NewKyber768() *KyberKex { return &KyberKex{} }

func (k *KyberKex) GenerateEphemeral(rnd sshtransport.Random) ([]byte, error) {
	pub, priv, err := kyber.Kyber768.GenerateKeyPair(randReaderFor(rnd))
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "kyber768: keygen failed")
	}
	k.priv, k.pub = priv, pub
	return pub.Bytes(), nil
}

// SharedAsInitiator encapsulates against the peer's public key, returning
// the ciphertext to send and the derived secret.
func (k *KyberKex) SharedAsInitiator(rnd sshtransport.Random, peerPub []byte) (ciphertext, secret []byte, err error) {
	pub, err := kyber.Kyber768.PublicKeyFromBytes(peerPub)
	if err != nil {
		return nil, nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "kyber768: bad peer public key")
	}
	ct, ss, err := pub.KEMEncrypt(randReaderFor(rnd))
	if err != nil {
		return nil, nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "kyber768: encapsulation failed")
	}
	return ct, ss, nil
}

// SharedAsResponder decapsulates a ciphertext received from the peer
// using our own private key generated in GenerateEphemeral.
func (k *KyberKex) SharedAsResponder(ciphertext []byte) ([]byte, error) {
	ss, err := k.priv.KEMDecrypt(ciphertext)
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "kyber768: decapsulation failed")
	}
	return ss, nil
}

// NewHopeSimpleKex adapts blitter.com/go/newhope's NewHope-Simple
// post-quantum lattice KEX. Grounded on xsnet/net.go's
// NewHopeSimpleDialSetup/NewHopeSimpleAcceptSetup.
type NewHopeSimpleKex struct {
	priv *newhope.PrivateKeyAlice
}

func NewNewHopeSimple() *NewHopeSimpleKex { return &NewHopeSimpleKex{} }

func (k *NewHopeSimpleKex) GenerateAlice(rnd sshtransport.Random) (pubSend []byte, err error) {
	priv, pub, err := newhope.GenerateKeyPairSimpleAlice(randReaderFor(rnd))
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "newhope-simple: keygen failed")
	}
	k.priv = priv
	return pub.Send[:], nil
}

func (k *NewHopeSimpleKex) SharedAlice(bobSend []byte) ([]byte, error) {
	var pubBob newhope.PublicKeySimpleBob
	copy(pubBob.Send[:], bobSend)
	secret, err := newhope.KeyExchangeSimpleAlice(&pubBob, k.priv)
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "newhope-simple: exchange failed")
	}
	return secret, nil
}

func (k *NewHopeSimpleKex) SharedBob(rnd sshtransport.Random, aliceSend []byte) (bobSend, secret []byte, err error) {
	var pubAlice newhope.PublicKeySimpleAlice
	copy(pubAlice.Send[:], aliceSend)
	pubBob, ss, err := newhope.KeyExchangeSimpleBob(randReaderFor(rnd), &pubAlice)
	if err != nil {
		return nil, nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "newhope-simple: exchange failed")
	}
	return pubBob.Send[:], ss, nil
}

// randReaderFor adapts the sshtransport.Random collaborator to io.Reader,
// the shape kyber/newhope expect, matching net.go's randReader wrapper
// around rand.Read.
type randReaderAdapter struct{ rnd sshtransport.Random }

func (a randReaderAdapter) Read(b []byte) (int, error) {
	if err := a.rnd.Fill(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func randReaderFor(rnd sshtransport.Random) randReaderAdapter { return randReaderAdapter{rnd: rnd} }
