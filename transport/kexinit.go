package transport

import (
	"hash"
	"math/big"

	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/sshwire"
)

// KexInitPayload is the §4.3 KEXINIT message: a 16-byte cookie plus ten
// name-lists. Marshal/ParseKexInit include the leading MsgKexInit byte so
// the raw payload (needed whole, for the exchange hash) round-trips
// exactly.
type KexInitPayload struct {
	Cookie                  [16]byte
	KexAlgorithms           []string
	ServerHostKeyAlgorithms []string
	EncryptionClientToServer []string
	EncryptionServerToClient []string
	MacClientToServer        []string
	MacServerToClient        []string
	CompressionClientToServer []string
	CompressionServerToClient []string
	LanguagesClientToServer   []string
	LanguagesServerToClient   []string
	FirstKexPacketFollows     bool
}

func (k *KexInitPayload) Marshal() []byte {
	var b sshwire.Buffer
	b.PutUint8(MsgKexInit)
	b.PutFixed(k.Cookie[:])
	b.PutNameList(k.KexAlgorithms)
	b.PutNameList(k.ServerHostKeyAlgorithms)
	b.PutNameList(k.EncryptionClientToServer)
	b.PutNameList(k.EncryptionServerToClient)
	b.PutNameList(k.MacClientToServer)
	b.PutNameList(k.MacServerToClient)
	b.PutNameList(k.CompressionClientToServer)
	b.PutNameList(k.CompressionServerToClient)
	b.PutNameList(k.LanguagesClientToServer)
	b.PutNameList(k.LanguagesServerToClient)
	b.PutBool(k.FirstKexPacketFollows)
	b.PutUint32(0) // reserved
	return b.Bytes()
}

func ParseKexInit(payload []byte) (*KexInitPayload, error) {
	r := sshwire.NewBuffer(payload)
	msgType, err := r.GetUint8()
	if err != nil || msgType != MsgKexInit {
		return nil, sshtransport.Wrap(sshtransport.KindProtocol, err, "kexinit: bad message type")
	}
	cookieBytes, err := r.GetFixed(16)
	if err != nil {
		return nil, err
	}
	k := &KexInitPayload{}
	copy(k.Cookie[:], cookieBytes)

	fields := []*[]string{
		&k.KexAlgorithms, &k.ServerHostKeyAlgorithms,
		&k.EncryptionClientToServer, &k.EncryptionServerToClient,
		&k.MacClientToServer, &k.MacServerToClient,
		&k.CompressionClientToServer, &k.CompressionServerToClient,
		&k.LanguagesClientToServer, &k.LanguagesServerToClient,
	}
	for _, f := range fields {
		list, err := r.GetNameList()
		if err != nil {
			return nil, err
		}
		*f = list
	}
	follows, err := r.GetBool()
	if err != nil {
		return nil, err
	}
	k.FirstKexPacketFollows = follows
	return k, nil
}

// NewKexInitPayload builds a proposal from the ordered preference lists
// a Config carries (§4.3's "client preference first" negotiation rule
// applies symmetrically to both sides' proposals).
func NewKexInitPayload(rnd sshtransport.Random, kexNames, hostKeyNames, cipherNames, macNames, compNames []string) (*KexInitPayload, error) {
	k := &KexInitPayload{
		KexAlgorithms:             kexNames,
		ServerHostKeyAlgorithms:   hostKeyNames,
		EncryptionClientToServer:  cipherNames,
		EncryptionServerToClient:  cipherNames,
		MacClientToServer:         macNames,
		MacServerToClient:         macNames,
		CompressionClientToServer: compNames,
		CompressionServerToClient: compNames,
	}
	if err := rnd.Fill(k.Cookie[:]); err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindCrypto, err, "kexinit: cookie rng failed")
	}
	return k, nil
}

// ExchangeHashInputDH assembles the RFC4253 §8 hash input for
// diffie-hellman-group{1,14}-sha1. ecdh-sha2-* uses
// ExchangeHashInputECDH instead, since its Q_C/Q_S are byte strings
// rather than mpints.
type ExchangeHashInputDH struct {
	V_C, V_S       string // identification strings, CR/LF stripped
	I_C, I_S       []byte // raw KEXINIT payloads (with leading msg byte)
	HostKeyBlob    []byte
	E, F           *big.Int
	K              *big.Int
}

func ComputeExchangeHashDH(h hash.Hash, in ExchangeHashInputDH) []byte {
	var b sshwire.Buffer
	b.PutString(in.V_C)
	b.PutString(in.V_S)
	b.PutBytes(in.I_C)
	b.PutBytes(in.I_S)
	b.PutBytes(in.HostKeyBlob)
	b.PutMpint(in.E)
	b.PutMpint(in.F)
	b.PutMpint(in.K)
	h.Reset()
	h.Write(b.Bytes())
	return h.Sum(nil)
}

// ExchangeHashInputECDH is RFC5656 §4's variant: Q_C/Q_S are raw
// uncompressed EC points, not mpints.
type ExchangeHashInputECDH struct {
	V_C, V_S    string
	I_C, I_S    []byte
	HostKeyBlob []byte
	QC, QS      []byte
	K           *big.Int
}

// ExchangeHashInputDHGex is RFC4419 §3's variant: the client's proposed
// bit-length range and the server-chosen group are folded into the hash
// alongside the usual DH values.
type ExchangeHashInputDHGex struct {
	V_C, V_S                        string
	I_C, I_S                        []byte
	HostKeyBlob                     []byte
	MinBits, PreferredBits, MaxBits int
	P, G                            *big.Int
	E, F                            *big.Int
	K                               *big.Int
}

func ComputeExchangeHashDHGex(h hash.Hash, in ExchangeHashInputDHGex) []byte {
	var b sshwire.Buffer
	b.PutString(in.V_C)
	b.PutString(in.V_S)
	b.PutBytes(in.I_C)
	b.PutBytes(in.I_S)
	b.PutBytes(in.HostKeyBlob)
	b.PutUint32(uint32(in.MinBits))
	b.PutUint32(uint32(in.PreferredBits))
	b.PutUint32(uint32(in.MaxBits))
	b.PutMpint(in.P)
	b.PutMpint(in.G)
	b.PutMpint(in.E)
	b.PutMpint(in.F)
	b.PutMpint(in.K)
	h.Reset()
	h.Write(b.Bytes())
	return h.Sum(nil)
}

func ComputeExchangeHashECDH(h hash.Hash, in ExchangeHashInputECDH) []byte {
	var b sshwire.Buffer
	b.PutString(in.V_C)
	b.PutString(in.V_S)
	b.PutBytes(in.I_C)
	b.PutBytes(in.I_S)
	b.PutBytes(in.HostKeyBlob)
	b.PutBytes(in.QC)
	b.PutBytes(in.QS)
	b.PutMpint(in.K)
	h.Reset()
	h.Write(b.Bytes())
	return h.Sum(nil)
}
