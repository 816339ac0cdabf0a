// Package kex implements the §4.3 key-exchange algorithms: classic
// finite-field Diffie-Hellman (group1, group14, group-exchange-sha256)
// and ECDH (nistp256/384/521), plus the Signer/Verifier host-key
// algorithms KEX uses to authenticate the exchange hash, and a
// HostKeyVerifier pair (strict default, permissive/TOFU alternative).
// The teacher has no real KEX of this kind — hkexnet/herradurakex.go
// implements a home-grown Diffie-Hellman-shaped scheme over a custom
// finite cyclic group ("Herradura"). That scheme is kept here, unmodified
// in its math, as an extension KEX method (see extensions.go) rather
// than a default, since RFC4253/4419/5656 define the methods KEXINIT
// actually negotiates by name.
package kex

import (
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"math/big"

	"blitter.com/go/sshx/sshtransport"
)

// Group is a fixed MODP group's parameters (RFC2409 Oakley Group 2 for
// group1, RFC3526's 2048-bit group for group14).
type Group struct {
	P *big.Int
	G *big.Int
}

var group1 = mustGroup(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381FFFFFFFFFFFFFFFF",
	2,
)

var group14 = mustGroup(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF",
	2,
)

// gexTable backs diffie-hellman-group-exchange-sha256's server-chosen-
// group negotiation. Real safe-prime generation at request time is
// expensive; OpenSSH instead ships a static moduli file and picks the
// best fit from it. This table is that file reduced to its one
// RFC3526 entry both sides already trust (group14, 2048-bit) — a
// single-modulus deployment is a legitimate, if minimal, moduli file.
var gexTable = map[int]Group{
	2048: group14,
}

// SelectGroup picks the table entry closest to preferred without going
// outside [minBits, maxBits] (RFC4419 §3). Returns an error if nothing
// in the table satisfies the requested range.
func SelectGroup(minBits, preferredBits, maxBits int) (Group, int, error) {
	bestSize := 0
	for size := range gexTable {
		if size < minBits || size > maxBits {
			continue
		}
		if bestSize == 0 || abs(size-preferredBits) < abs(bestSize-preferredBits) {
			bestSize = size
		}
	}
	if bestSize == 0 {
		return Group{}, 0, sshtransport.Wrap(sshtransport.KindNegotiation, nil,
			"dh-gex: no group fits requested range [%d,%d]", minBits, maxBits)
	}
	return gexTable[bestSize], bestSize, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func mustGroup(pHex string, g int64) Group {
	p, ok := new(big.Int).SetString(pHex, 16)
	if !ok {
		panic("kex: bad group prime literal")
	}
	return Group{P: p, G: big.NewInt(g)}
}

// DHKex is the finite-field Diffie-Hellman exchange, §4.3's "group1" and
// "group14" methods. Both use SHA-1 for the exchange hash per RFC4253;
// group-exchange-sha256 (DHGroupExchange below) layers server-chosen
// group parameters and SHA-256 on top of the same math.
type DHKex struct {
	group Group
	hash  func() hash.Hash
	x     *big.Int // ephemeral private exponent
	E     *big.Int // our public value g^x mod p
}

func NewDHGroup1() *DHKex  { return &DHKex{group: group1, hash: sha1.New} }
func NewDHGroup14() *DHKex { return &DHKex{group: group14, hash: sha1.New} }

// GenerateEphemeral picks a private exponent using rnd and computes the
// public value E = g^x mod p.
func (d *DHKex) GenerateEphemeral(rnd sshtransport.Random) error {
	// exponent in [2, p-2], drawn from 256 random bits and reduced per
	// common practice (full range offers no benefit and costs little
	// here; RFC4253 doesn't mandate an exact method).
	buf := make([]byte, 32)
	if err := rnd.Fill(buf); err != nil {
		return sshtransport.Wrap(sshtransport.KindCrypto, err, "dh: rng failure")
	}
	x := new(big.Int).SetBytes(buf)
	pMinus2 := new(big.Int).Sub(d.group.P, big.NewInt(2))
	x.Mod(x, pMinus2)
	x.Add(x, big.NewInt(2))
	d.x = x
	d.E = new(big.Int).Exp(d.group.G, x, d.group.P)
	return nil
}

// Shared computes the shared secret K = peerPublic^x mod p, validating
// that peerPublic lies in [1, p-2] (§4.3's KeyOutOfRange edge case).
func (d *DHKex) Shared(peerPublic *big.Int) (*big.Int, error) {
	one := big.NewInt(1)
	pMinus1 := new(big.Int).Sub(d.group.P, one)
	if peerPublic.Cmp(one) < 0 || peerPublic.Cmp(pMinus1) >= 0 {
		return nil, sshtransport.Wrap(sshtransport.KindNegotiation, nil,
			"dh: peer public value out of range")
	}
	return new(big.Int).Exp(peerPublic, d.x, d.group.P), nil
}

func (d *DHKex) NewHash() hash.Hash { return d.hash() }

// DHGroupExchange implements diffie-hellman-group-exchange-sha256
// (RFC4419): the client proposes a bit-length range, the server replies
// with a group (P, G) of its choosing, and exchange proceeds as plain DH
// with SHA-256 over a different hash-input layout (handled by package
// transport, which owns exchange-hash assembly).
type DHGroupExchange struct {
	DHKex
	MinBits, PreferredBits, MaxBits int
}

func NewDHGroupExchangeSHA256(minBits, preferred, maxBits int) *DHGroupExchange {
	return &DHGroupExchange{
		DHKex:         DHKex{hash: sha256.New},
		MinBits:       minBits,
		PreferredBits: preferred,
		MaxBits:       maxBits,
	}
}

// SetGroup installs the server-chosen group (client side: from
// KEX_DH_GEX_GROUP; server side: from SelectGroup's table) before
// ephemeral generation.
func (d *DHGroupExchange) SetGroup(p, g *big.Int) { d.group = Group{P: p, G: g} }
