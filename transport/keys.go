package transport

import (
	"hash"
	"math/big"

	"blitter.com/go/sshx/sshwire"
)

// SessionKeys holds the six derived byte-strings (RFC4253 §7.2): IV and
// encryption key per direction, plus MAC key per direction. The
// session_id fed into the derivation is the exchange hash of the *first*
// KEX and never changes across rekeys (§3's session-id immutability
// invariant).
type SessionKeys struct {
	IVClientToServer  []byte
	IVServerToClient  []byte
	EncClientToServer []byte
	EncServerToClient []byte
	MacClientToServer []byte
	MacServerToClient []byte
}

// DeriveKeys implements RFC4253 §7.2's key-expansion: each key material
// is HASH(K || H || X || session_id), extended with HASH(K || H || K1 ||
// K2 || ...) when more bytes are needed than one hash output provides.
func DeriveKeys(newHash func() hash.Hash, k *big.Int, h, sessionID []byte,
	ivLen, encKeyLen, macKeyLen int) *SessionKeys {

	derive := func(tag byte, length int) []byte {
		out := deriveOne(newHash, k, h, sessionID, tag, length)
		return out
	}

	return &SessionKeys{
		IVClientToServer:  derive('A', ivLen),
		IVServerToClient:  derive('B', ivLen),
		EncClientToServer: derive('C', encKeyLen),
		EncServerToClient: derive('D', encKeyLen),
		MacClientToServer: derive('E', macKeyLen),
		MacServerToClient: derive('F', macKeyLen),
	}
}

// DeriveKeysAsymmetric is DeriveKeys generalized to let each direction's
// cipher/MAC negotiate independently, since RFC4253 allows
// encryption_client_to_server and encryption_server_to_client (and the
// MAC/compression equivalents) to resolve to different algorithms.
func DeriveKeysAsymmetric(newHash func() hash.Hash, k *big.Int, h, sessionID []byte,
	c2sIVLen, s2cIVLen, c2sEncLen, s2cEncLen, c2sMacLen, s2cMacLen int) *SessionKeys {

	return &SessionKeys{
		IVClientToServer:  deriveOne(newHash, k, h, sessionID, 'A', c2sIVLen),
		IVServerToClient:  deriveOne(newHash, k, h, sessionID, 'B', s2cIVLen),
		EncClientToServer: deriveOne(newHash, k, h, sessionID, 'C', c2sEncLen),
		EncServerToClient: deriveOne(newHash, k, h, sessionID, 'D', s2cEncLen),
		MacClientToServer: deriveOne(newHash, k, h, sessionID, 'E', c2sMacLen),
		MacServerToClient: deriveOne(newHash, k, h, sessionID, 'F', s2cMacLen),
	}
}

func deriveOne(newHash func() hash.Hash, k *big.Int, h, sessionID []byte, tag byte, length int) []byte {
	var mpintK sshwire.Buffer
	mpintK.PutMpint(k)

	mk := newHash()
	mk.Write(mpintK.Bytes())
	mk.Write(h)
	mk.Write([]byte{tag})
	mk.Write(sessionID)
	out := mk.Sum(nil)

	for len(out) < length {
		mk2 := newHash()
		mk2.Write(mpintK.Bytes())
		mk2.Write(h)
		mk2.Write(out)
		out = append(out, mk2.Sum(nil)...)
	}
	return out[:length]
}
