package sshcipher

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"blitter.com/go/sshx/sshalgo"
	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/sshwire"
)

// MacFactory constructs a fresh, unkeyed MacSuite instance.
type MacFactory func() sshtransport.MacSuite

var macSizes = map[string]struct {
	new   func() hash.Hash
	size  int
	trunc int
}{
	sshalgo.MacHMACSHA1:   {sha1.New, 20, 20},
	sshalgo.MacHMACSHA196: {sha1.New, 20, 12},
	sshalgo.MacHMACSHA256: {sha256.New, 32, 32},
	sshalgo.MacHMACSHA512: {sha512.New, 64, 64},
	sshalgo.MacHMACMD5:    {md5.New, 16, 16},
	sshalgo.MacHMACMD596:  {md5.New, 16, 12},
}

// hmacSuite implements MacSuite, covering both full-length and the
// "-96" truncated variants via trunc.
type hmacSuite struct {
	newHash func() hash.Hash
	size    int
	trunc   int
	key     []byte
}

func (m *hmacSuite) Init(key []byte) error {
	m.key = append([]byte(nil), key[:m.size]...)
	return nil
}

func (m *hmacSuite) Compute(seq uint32, packet []byte) []byte {
	mac := hmac.New(m.newHash, m.key)
	var seqBuf sshwire.Buffer
	seqBuf.PutUint32(seq)
	mac.Write(seqBuf.Bytes())
	mac.Write(packet)
	sum := mac.Sum(nil)
	return sum[:m.trunc]
}

func (m *hmacSuite) Size() int { return m.trunc }

// DefaultMacRegistry returns a Registry of the RFC4253-family built-in
// MACs, grounded on the digest set the teacher already links in via
// xsnet/chan.go's HMAC dispatch (SHA256/SHA512 there; this adds the
// SHA1/MD5 family RFC4253 requires as baseline interoperability).
func DefaultMacRegistry() *sshalgo.Registry {
	builtins := make(map[string]interface{}, len(macSizes))
	for name, s := range macSizes {
		name, s := name, s
		builtins[name] = MacFactory(func() sshtransport.MacSuite {
			return &hmacSuite{newHash: s.new, size: s.size, trunc: s.trunc}
		})
	}
	return sshalgo.NewRegistry(sshalgo.KindMAC, builtins)
}

// MacKeySize returns the key length a named MAC requires.
func MacKeySize(name string) (int, bool) {
	s, ok := macSizes[name]
	if !ok {
		return 0, false
	}
	return s.size, true
}
