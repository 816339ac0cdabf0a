package sshcipher

import (
	"crypto/cipher"

	"blitter.com/go/cryptmt"
	"blitter.com/go/wanderer"
	"github.com/aead/chacha20/chacha"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/twofish"

	"blitter.com/go/sshx/sshalgo"
	"blitter.com/go/sshx/sshtransport"
)

// Extension cipher names. None of these are sent in a default KEXINIT
// proposal (see sshalgo.DefaultCipherOrder); a caller must opt in via
// config's preferred-ciphers list to negotiate one.
const (
	CipherTwofish128 = "twofish128-cbc@blitter.com"
	CipherBlowfish64 = "blowfish64-cbc@blitter.com"
	CipherChaCha20   = "chacha20-12@blitter.com"
	CipherCryptMT1   = "cryptmt1@blitter.com"
	CipherWanderer   = "wanderer@blitter.com"
)

// RegisterExtensionCiphers adds the teacher's non-standard stream/block
// ciphers (xsnet/chan.go's getStream dispatch: CAlgTwofish128/
// CAlgBlowfish64/CAlgCryptMT1/CAlgWanderer/CAlgChaCha20_12) to reg as opt-in
// extensions, each behind the CipherSuite interface instead of that
// switch statement.
func RegisterExtensionCiphers(reg *sshalgo.Registry) error {
	for name, f := range map[string]Factory{
		CipherTwofish128: func() sshtransport.CipherSuite { return &blockOFB{newBlock: newTwofishBlock, blockSize: twofish.BlockSize, keySize: twofish.BlockSize} },
		CipherBlowfish64: func() sshtransport.CipherSuite { return &blockOFB{newBlock: newBlowfishBlock, blockSize: blowfish.BlockSize, keySize: blowfish.BlockSize} },
		CipherChaCha20:   func() sshtransport.CipherSuite { return &chacha20Suite{} },
		CipherCryptMT1:   func() sshtransport.CipherSuite { return &cryptMT1Suite{} },
		CipherWanderer:   func() sshtransport.CipherSuite { return &wandererSuite{} },
	} {
		if err := reg.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

func newTwofishBlock(key []byte) (cipher.Block, error) { return twofish.NewCipher(key) }
func newBlowfishBlock(key []byte) (cipher.Block, error) { return blowfish.NewCipher(key) }

// blockOFB drives a block cipher in OFB mode, matching getStream's
// cipher.NewOFB(block, iv) usage for Twofish and Blowfish.
type blockOFB struct {
	newBlock  func(key []byte) (cipher.Block, error)
	blockSize int
	keySize   int
	stream    cipher.Stream
}

func (b *blockOFB) Init(key, iv []byte) error {
	block, err := b.newBlock(key[:b.keySize])
	if err != nil {
		return sshtransport.Wrap(sshtransport.KindCrypto, err, "blockOFB: bad key")
	}
	b.stream = cipher.NewOFB(block, iv[:b.blockSize])
	return nil
}

func (b *blockOFB) XORKeyStream(dst, src []byte) { b.stream.XORKeyStream(dst, src) }
func (b *blockOFB) BlockSize() int               { return b.blockSize }
func (b *blockOFB) KeySize() int                 { return b.keySize }
func (b *blockOFB) IVSize() int                  { return b.blockSize }

// chacha20Suite wraps github.com/aead/chacha20/chacha, the stream cipher
// getStream builds for CAlgChaCha20_12.
type chacha20Suite struct {
	stream cipher.Stream
}

func (c *chacha20Suite) Init(key, iv []byte) error {
	s, err := chacha.NewCipher(iv[:chacha.INonceSize], key[:chacha.KeySize], 20)
	if err != nil {
		return sshtransport.Wrap(sshtransport.KindCrypto, err, "chacha20: init failed")
	}
	c.stream = s
	return nil
}

func (c *chacha20Suite) XORKeyStream(dst, src []byte) { c.stream.XORKeyStream(dst, src) }
func (c *chacha20Suite) BlockSize() int               { return 1 }
func (c *chacha20Suite) KeySize() int                 { return chacha.KeySize }
func (c *chacha20Suite) IVSize() int                  { return chacha.INonceSize }

// cryptMT1Suite wraps blitter.com/go/cryptmt, a keystream-only stream
// cipher (no IV — the entire keymat feeds the MT19937-64 seed).
type cryptMT1Suite struct {
	c *cryptmt.Cipher
}

const cryptMT1KeySize = 64

func (c *cryptMT1Suite) Init(key, iv []byte) error {
	c.c = cryptmt.New(key[:cryptMT1KeySize])
	return nil
}

func (c *cryptMT1Suite) XORKeyStream(dst, src []byte) { c.c.XORKeyStream(dst, src) }
func (c *cryptMT1Suite) BlockSize() int               { return 1 }
func (c *cryptMT1Suite) KeySize() int                 { return cryptMT1KeySize }
func (c *cryptMT1Suite) IVSize() int                  { return 0 }

// wandererSuite wraps blitter.com/go/wanderer's sbox-walk stream cipher.
// It has no notion of a transport reader/writer in our usage — only
// XORKeyStream is exercised, so wanderer.New is given nil for r/w.
type wandererSuite struct {
	c *wanderer.Cipher
}

const (
	wandererKeySize = 64
	wandererBoxW    = 2
	wandererBoxH    = 2
)

func (c *wandererSuite) Init(key, iv []byte) error {
	c.c = wanderer.New(nil, nil, 0, key[:wandererKeySize], wandererBoxW, wandererBoxH)
	return nil
}

func (c *wandererSuite) XORKeyStream(dst, src []byte) { c.c.XORKeyStream(dst, src) }
func (c *wandererSuite) BlockSize() int               { return 1 }
func (c *wandererSuite) KeySize() int                 { return wandererKeySize }
func (c *wandererSuite) IVSize() int                  { return 0 }
