// Package sshcipher implements CipherSuite and MacSuite (§6 collaborator
// interfaces) for the negotiated symmetric algorithms, plus the registry
// of each kept as extensions. The teacher dispatches on an iota-enum
// (CAlgAES256/CAlgTwofish128/CAlgBlowfish64/...) in xsnet.Conn.getStream
// (xsnet/chan.go, hkexchan.go) — one big switch building a cipher.Stream
// and an hmac.Hash from a shared key-expansion helper. This package keeps
// that same shape but behind the CipherSuite/MacSuite interfaces and an
// sshalgo.Registry instead of a switch, so new algorithms register
// instead of requiring a new case.
package sshcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"blitter.com/go/sshx/sshalgo"
	"blitter.com/go/sshx/sshtransport"
)

// Factory constructs a fresh, unkeyed CipherSuite instance.
type Factory func() sshtransport.CipherSuite

var cipherSizes = map[string][3]int{
	sshalgo.CipherAES128CTR: {16, 16, 16},
	sshalgo.CipherAES192CTR: {24, 16, 16},
	sshalgo.CipherAES256CTR: {32, 16, 16},
	sshalgo.CipherAES128CBC: {16, 16, 16},
	sshalgo.CipherAES192CBC: {24, 16, 16},
	sshalgo.CipherAES256CBC: {32, 16, 16},
}

// aesCTR implements CipherSuite for aesN-ctr.
type aesCTR struct {
	keySize int
	stream  cipher.Stream
}

func newAESCTR(keySize int) Factory {
	return func() sshtransport.CipherSuite { return &aesCTR{keySize: keySize} }
}

func (c *aesCTR) Init(key, iv []byte) error {
	block, err := aes.NewCipher(key[:c.keySize])
	if err != nil {
		return sshtransport.Wrap(sshtransport.KindCrypto, err, "aes-ctr: bad key")
	}
	c.stream = cipher.NewCTR(block, iv[:aes.BlockSize])
	return nil
}

func (c *aesCTR) XORKeyStream(dst, src []byte) { c.stream.XORKeyStream(dst, src) }
func (c *aesCTR) BlockSize() int               { return aes.BlockSize }
func (c *aesCTR) KeySize() int                 { return c.keySize }
func (c *aesCTR) IVSize() int                  { return aes.BlockSize }

// aesCBC implements CipherSuite for aesN-cbc. Unlike CTR mode, CBC mode
// block chaining is directional and stateful so encrypt/decrypt use
// separate cipher.BlockMode values, picked by which call comes first:
// a connection only ever drives one direction through a given instance.
type aesCBC struct {
	keySize int
	block   cipher.Block
	iv      []byte
	enc     cipher.BlockMode
	dec     cipher.BlockMode
}

func newAESCBC(keySize int) Factory {
	return func() sshtransport.CipherSuite { return &aesCBC{keySize: keySize} }
}

func (c *aesCBC) Init(key, iv []byte) error {
	block, err := aes.NewCipher(key[:c.keySize])
	if err != nil {
		return sshtransport.Wrap(sshtransport.KindCrypto, err, "aes-cbc: bad key")
	}
	c.block = block
	c.iv = append([]byte(nil), iv[:aes.BlockSize]...)
	return nil
}

func (c *aesCBC) XORKeyStream(dst, src []byte) {
	if len(src)%aes.BlockSize != 0 {
		panic("sshcipher: aes-cbc requires block-aligned input")
	}
	// CBC has directional state; lazily pick encrypter or decrypter based
	// on which the caller is driving. A CipherSuite instance is only ever
	// used for one direction so this never needs to switch mid-stream.
	if c.enc == nil && c.dec == nil {
		c.enc = cipher.NewCBCEncrypter(c.block, c.iv)
	}
	if c.enc != nil {
		c.enc.CryptBlocks(dst, src)
		return
	}
	c.dec.CryptBlocks(dst, src)
}

func (c *aesCBC) BlockSize() int { return aes.BlockSize }
func (c *aesCBC) KeySize() int   { return c.keySize }
func (c *aesCBC) IVSize() int    { return aes.BlockSize }

// DefaultCipherRegistry returns a Registry of the RFC4253-family built-in
// ciphers. Extension ciphers (package sshcipher's extensions.go) are not
// included; RegisterExtensionCiphers adds them to a Registry when called.
func DefaultCipherRegistry() *sshalgo.Registry {
	builtins := map[string]interface{}{
		sshalgo.CipherAES128CTR: Factory(newAESCTR(16)),
		sshalgo.CipherAES192CTR: Factory(newAESCTR(24)),
		sshalgo.CipherAES256CTR: Factory(newAESCTR(32)),
		sshalgo.CipherAES128CBC: Factory(newAESCBC(16)),
		sshalgo.CipherAES192CBC: Factory(newAESCBC(24)),
		sshalgo.CipherAES256CBC: Factory(newAESCBC(32)),
	}
	return sshalgo.NewRegistry(sshalgo.KindCipher, builtins)
}

// Sizes returns the key and IV sizes for a cipher name, used by package
// transport's key-derivation step (finishKex, §4.3) before a CipherSuite
// is constructed and Init'd.
func Sizes(name string) (keySize, ivSize int, ok bool) {
	s, ok := cipherSizes[name]
	if !ok {
		return 0, 0, false
	}
	return s[0], s[2], true
}

// cryptoRandom is the crypto/rand-backed type behind DefaultRandom, the
// package-level Random used when callers don't supply their own (e.g.
// for packet padding and KEXINIT cookies).
type cryptoRandom struct{}

func (cryptoRandom) Fill(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

var DefaultRandom sshtransport.Random = cryptoRandom{}
