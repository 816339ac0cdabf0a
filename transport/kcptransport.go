// KCP transport: an alternate Transport over github.com/xtaci/kcp-go,
// a reliable-UDP session layer. Grounded on hkexnet/kcp.go's
// kcpDial/kcpListen/_newKCPBlockCrypt, which selects a kcp.BlockCrypt by
// name and derives its key via pbkdf2. KCP's own BlockCrypt is a
// transport-level obfuscation layer independent of this module's SSH
// packet cipher — the SSH CipherSuite negotiated in KEXINIT still runs
// on top, same as it would over a NetTransport.
package transport

import (
	"crypto/sha1"
	"net"
	"time"

	kcp "github.com/xtaci/kcp-go"
	"golang.org/x/crypto/pbkdf2"

	"blitter.com/go/sshx/sshtransport"
)

// KCPBlockCryptName mirrors hkexnet/kcp.go's extension-string alg
// selection (KCP_NONE/KCP_AES/KCP_BLOWFISH/...), trimmed to the subset
// kcp-go still exposes constructors for.
type KCPBlockCryptName string

const (
	KCPNone     KCPBlockCryptName = "KCP_NONE"
	KCPAES      KCPBlockCryptName = "KCP_AES"
	KCPBlowfish KCPBlockCryptName = "KCP_BLOWFISH"
	KCPTwofish  KCPBlockCryptName = "KCP_TWOFISH"
	KCPSalsa20  KCPBlockCryptName = "KCP_SALSA20"
)

func newKCPBlockCrypt(name KCPBlockCryptName, key []byte) (kcp.BlockCrypt, error) {
	switch name {
	case KCPNone:
		return kcp.NewNoneBlockCrypt(key)
	case KCPAES:
		return kcp.NewAESBlockCrypt(key)
	case KCPBlowfish:
		return kcp.NewBlowfishBlockCrypt(key)
	case KCPTwofish:
		return kcp.NewTwofishBlockCrypt(key)
	case KCPSalsa20:
		return kcp.NewSalsa20BlockCrypt(key)
	default:
		return kcp.NewAESBlockCrypt(key)
	}
}

// deriveKCPKey mirrors kcp.go's pbkdf2.Key(passphrase, salt, 1024, 32, sha1.New) call.
func deriveKCPKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, 1024, 32, sha1.New)
}

// DialKCP opens a client-side KCP session wrapped as a Transport.
func DialKCP(addr string, passphrase, salt []byte, alg KCPBlockCryptName) (sshtransport.Transport, error) {
	block, err := newKCPBlockCrypt(alg, deriveKCPKey(passphrase, salt))
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindIO, err, "kcp: block crypt setup failed")
	}
	sess, err := kcp.DialWithOptions(addr, block, 10, 3)
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindIO, err, "kcp: dial %s failed", addr)
	}
	return &kcpTransport{sess}, nil
}

// ListenKCP starts a server-side KCP listener.
func ListenKCP(addr string, passphrase, salt []byte, alg KCPBlockCryptName) (net.Listener, error) {
	block, err := newKCPBlockCrypt(alg, deriveKCPKey(passphrase, salt))
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindIO, err, "kcp: block crypt setup failed")
	}
	l, err := kcp.ListenWithOptions(addr, block, 10, 3)
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindIO, err, "kcp: listen %s failed", addr)
	}
	return l, nil
}

// AcceptKCP accepts the next session on a listener from ListenKCP and
// wraps it as a Transport, mirroring hkexnet's HKExListener.AcceptKCP.
func AcceptKCP(l net.Listener) (sshtransport.Transport, error) {
	conn, err := l.Accept()
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindIO, err, "kcp: accept failed")
	}
	sess, ok := conn.(*kcp.UDPSession)
	if !ok {
		return nil, sshtransport.Wrap(sshtransport.KindIO, nil, "kcp: accepted non-KCP connection")
	}
	return &kcpTransport{sess}, nil
}

type kcpTransport struct {
	sess *kcp.UDPSession
}

func (t *kcpTransport) Read(p []byte) (int, error)  { return t.sess.Read(p) }
func (t *kcpTransport) Write(p []byte) (int, error) { return t.sess.Write(p) }
func (t *kcpTransport) Close() error                { return t.sess.Close() }
func (t *kcpTransport) SetDeadline(tm time.Time) error      { return t.sess.SetDeadline(tm) }
func (t *kcpTransport) SetReadDeadline(tm time.Time) error  { return t.sess.SetReadDeadline(tm) }
func (t *kcpTransport) SetWriteDeadline(tm time.Time) error { return t.sess.SetWriteDeadline(tm) }
