package kex

import (
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"math/big"

	"blitter.com/go/sshx/sshalgo"
	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/sshwire"
)

// RSASigner/RSAVerifier, ECDSASigner/ECDSAVerifier, ED25519Signer/
// ED25519Verifier, and DSSVerifier implement sshtransport.Signer/
// Verifier for the §4.3 host-key algorithms. Wire encodings (blob and
// signature layout) follow RFC4253 §6.6 and RFC5656 §3.1.

// --- ssh-rsa ---

type RSASigner struct {
	Priv *rsa.PrivateKey
}

func (s *RSASigner) Algorithm() string { return sshalgo.HostKeyRSA }

func (s *RSASigner) PublicKeyBlob() []byte {
	var b sshwire.Buffer
	b.PutString(sshalgo.HostKeyRSA)
	b.PutMpint(big.NewInt(int64(s.Priv.PublicKey.E)))
	b.PutMpint(s.Priv.PublicKey.N)
	return b.Bytes()
}

func (s *RSASigner) Sign(data []byte) ([]byte, error) {
	h := sha1.Sum(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.Priv, crypto.SHA1, h[:])
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "ssh-rsa: sign failed")
	}
	var b sshwire.Buffer
	b.PutString(sshalgo.HostKeyRSA)
	b.PutBytes(sig)
	return b.Bytes(), nil
}

type RSAVerifier struct{}

func (RSAVerifier) Verify(data, sig, keyBlob []byte) (bool, error) {
	n, e, err := parseRSABlob(keyBlob)
	if err != nil {
		return false, err
	}
	algo, rawSig, err := parseSignatureEnvelope(sig)
	if err != nil {
		return false, err
	}
	if algo != sshalgo.HostKeyRSA {
		return false, sshtransport.Wrap(sshtransport.KindCrypto, nil, "ssh-rsa: signature algorithm mismatch %q", algo)
	}
	pub := &rsa.PublicKey{N: n, E: int(e.Int64())}
	h := sha1.Sum(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, h[:], rawSig); err != nil {
		return false, nil
	}
	return true, nil
}

func parseRSABlob(blob []byte) (n, e *big.Int, err error) {
	r := sshwire.NewBuffer(blob)
	algo, err := r.GetString()
	if err != nil || algo != sshalgo.HostKeyRSA {
		return nil, nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "ssh-rsa: bad key blob")
	}
	e, err = r.GetMpint()
	if err != nil {
		return nil, nil, err
	}
	n, err = r.GetMpint()
	if err != nil {
		return nil, nil, err
	}
	return n, e, nil
}

func parseSignatureEnvelope(sig []byte) (algo string, raw []byte, err error) {
	r := sshwire.NewBuffer(sig)
	algo, err = r.GetString()
	if err != nil {
		return "", nil, err
	}
	raw, err = r.GetBytes()
	if err != nil {
		return "", nil, err
	}
	return algo, raw, nil
}

// --- ecdsa-sha2-nistp{256,384,521} ---

type ECDSASigner struct {
	Priv  *ecdsa.PrivateKey
	Curve string // sshalgo.HostKeyECDSAP{256,384,521}
}

func (s *ECDSASigner) Algorithm() string { return s.Curve }

func (s *ECDSASigner) PublicKeyBlob() []byte {
	var b sshwire.Buffer
	b.PutString(s.Curve)
	b.PutString(curveIdentifier(s.Curve))
	b.PutBytes(elliptic.Marshal(s.Priv.Curve, s.Priv.X, s.Priv.Y))
	return b.Bytes()
}

func (s *ECDSASigner) Sign(data []byte) ([]byte, error) {
	digest := ecdsaDigest(s.Curve, data)
	r, ss, err := ecdsa.Sign(rand.Reader, s.Priv, digest)
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "%s: sign failed", s.Curve)
	}
	var rs sshwire.Buffer
	rs.PutMpint(r)
	rs.PutMpint(ss)
	var b sshwire.Buffer
	b.PutString(s.Curve)
	b.PutBytes(rs.Bytes())
	return b.Bytes(), nil
}

type ECDSAVerifier struct{}

func (ECDSAVerifier) Verify(data, sig, keyBlob []byte) (bool, error) {
	r := sshwire.NewBuffer(keyBlob)
	curveName, err := r.GetString()
	if err != nil {
		return false, err
	}
	if _, err := r.GetString(); err != nil { // curve identifier, redundant with curveName
		return false, err
	}
	pointBytes, err := r.GetBytes()
	if err != nil {
		return false, err
	}
	curve := curveForName(curveName)
	if curve == nil {
		return false, sshtransport.Wrap(sshtransport.KindCrypto, nil, "%s: unsupported curve", curveName)
	}
	x, y := elliptic.Unmarshal(curve, pointBytes)
	if x == nil {
		return false, sshtransport.Wrap(sshtransport.KindCrypto, nil, "%s: invalid public point", curveName)
	}
	algo, rawSig, err := parseSignatureEnvelope(sig)
	if err != nil {
		return false, err
	}
	if algo != curveName {
		return false, sshtransport.Wrap(sshtransport.KindCrypto, nil, "%s: signature algorithm mismatch %q", curveName, algo)
	}
	rs := sshwire.NewBuffer(rawSig)
	sigR, err := rs.GetMpint()
	if err != nil {
		return false, err
	}
	sigS, err := rs.GetMpint()
	if err != nil {
		return false, err
	}
	pub := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	digest := ecdsaDigest(curveName, data)
	return ecdsa.Verify(pub, digest, sigR, sigS), nil
}

func curveIdentifier(name string) string {
	switch name {
	case sshalgo.HostKeyECDSAP256:
		return "nistp256"
	case sshalgo.HostKeyECDSAP384:
		return "nistp384"
	case sshalgo.HostKeyECDSAP521:
		return "nistp521"
	default:
		return ""
	}
}

func curveForName(name string) elliptic.Curve {
	switch name {
	case sshalgo.HostKeyECDSAP256:
		return elliptic.P256()
	case sshalgo.HostKeyECDSAP384:
		return elliptic.P384()
	case sshalgo.HostKeyECDSAP521:
		return elliptic.P521()
	default:
		return nil
	}
}

func ecdsaDigest(curveName string, data []byte) []byte {
	switch curveName {
	case sshalgo.HostKeyECDSAP256:
		h := sha256.Sum256(data)
		return h[:]
	case sshalgo.HostKeyECDSAP384:
		h := sha512.Sum384(data)
		return h[:]
	default:
		h := sha512.Sum512(data)
		return h[:]
	}
}

// --- ssh-ed25519 ---

type ED25519Signer struct {
	Priv ed25519.PrivateKey
}

func (s *ED25519Signer) Algorithm() string { return sshalgo.HostKeyED25519 }

func (s *ED25519Signer) PublicKeyBlob() []byte {
	var b sshwire.Buffer
	b.PutString(sshalgo.HostKeyED25519)
	b.PutBytes(s.Priv.Public().(ed25519.PublicKey))
	return b.Bytes()
}

func (s *ED25519Signer) Sign(data []byte) ([]byte, error) {
	sig := ed25519.Sign(s.Priv, data)
	var b sshwire.Buffer
	b.PutString(sshalgo.HostKeyED25519)
	b.PutBytes(sig)
	return b.Bytes(), nil
}

type ED25519Verifier struct{}

func (ED25519Verifier) Verify(data, sig, keyBlob []byte) (bool, error) {
	r := sshwire.NewBuffer(keyBlob)
	algo, err := r.GetString()
	if err != nil || algo != sshalgo.HostKeyED25519 {
		return false, sshtransport.Wrap(sshtransport.KindCrypto, err, "ssh-ed25519: bad key blob")
	}
	pubBytes, err := r.GetBytes()
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return false, sshtransport.Wrap(sshtransport.KindCrypto, err, "ssh-ed25519: bad public key length")
	}
	sigAlgo, rawSig, err := parseSignatureEnvelope(sig)
	if err != nil {
		return false, err
	}
	if sigAlgo != sshalgo.HostKeyED25519 {
		return false, sshtransport.Wrap(sshtransport.KindCrypto, nil, "ssh-ed25519: signature algorithm mismatch %q", sigAlgo)
	}
	return ed25519.Verify(ed25519.PublicKey(pubBytes), data, rawSig), nil
}

// --- ssh-dss (DSA; legacy, retained for interop with older peers) ---

type DSSVerifier struct{}

func (DSSVerifier) Verify(data, sig, keyBlob []byte) (bool, error) {
	r := sshwire.NewBuffer(keyBlob)
	algo, err := r.GetString()
	if err != nil || algo != sshalgo.HostKeyDSS {
		return false, sshtransport.Wrap(sshtransport.KindCrypto, err, "ssh-dss: bad key blob")
	}
	p, err := r.GetMpint()
	if err != nil {
		return false, err
	}
	q, err := r.GetMpint()
	if err != nil {
		return false, err
	}
	g, err := r.GetMpint()
	if err != nil {
		return false, err
	}
	y, err := r.GetMpint()
	if err != nil {
		return false, err
	}
	algo2, rawSig, err := parseSignatureEnvelope(sig)
	if err != nil {
		return false, err
	}
	if algo2 != sshalgo.HostKeyDSS || len(rawSig) != 40 {
		return false, sshtransport.Wrap(sshtransport.KindCrypto, nil, "ssh-dss: malformed signature")
	}
	sigR := new(big.Int).SetBytes(rawSig[:20])
	sigS := new(big.Int).SetBytes(rawSig[20:])
	pub := dsa.PublicKey{
		Parameters: dsa.Parameters{P: p, Q: q, G: g},
		Y:          y,
	}
	h := sha1.Sum(data)
	return dsa.Verify(&pub, h[:], sigR, sigS), nil
}
