// Package sshwire implements the SSH primitive wire types (§4.1):
// uint32, uint64, string, mpint, name-list, boolean. It generalizes the
// ad hoc binary.Write/binary.Read calls scattered through the teacher's
// xsnet.Conn.Read/WritePacket into a single reusable Buffer, in the same
// spirit as usftp/packet.go's marshal/unmarshal helpers.
package sshwire

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"blitter.com/go/sshx/sshtransport"
)

// Buffer wraps a byte slice being built up (Writer side) or consumed
// (Reader side). A zero Buffer is a ready-to-use writer.
type Buffer struct {
	b   []byte // writer: accumulated bytes. reader: remaining bytes.
	pos int    // reader: consumed so far (also used by Len/Bytes)
}

// NewBuffer wraps b for reading.
func NewBuffer(b []byte) *Buffer { return &Buffer{b: b} }

// Bytes returns the accumulated (writer) or remaining (reader) bytes.
func (w *Buffer) Bytes() []byte { return w.b[w.pos:] }

// Len returns the number of unread/unwritten bytes.
func (w *Buffer) Len() int { return len(w.b) - w.pos }

func malformed(what string) error {
	return sshtransport.Wrap(sshtransport.KindProtocol, nil, "malformed field: %s", what)
}

// --- encode ---

func (w *Buffer) PutUint8(v uint8) { w.b = append(w.b, v) }

// PutFixed writes p as-is, with no length prefix.
func (w *Buffer) PutFixed(p []byte) { w.b = append(w.b, p...) }

func (w *Buffer) PutBool(v bool) {
	if v {
		w.b = append(w.b, 1)
	} else {
		w.b = append(w.b, 0)
	}
}

func (w *Buffer) PutUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
}

func (w *Buffer) PutUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
}

// PutString writes a uint32 length followed by the raw bytes.
func (w *Buffer) PutString(s string) {
	w.PutUint32(uint32(len(s)))
	w.b = append(w.b, s...)
}

// PutBytes writes a uint32 length followed by p (an SSH "string" that
// happens to carry binary data, e.g. a key blob or signature).
func (w *Buffer) PutBytes(p []byte) {
	w.PutUint32(uint32(len(p)))
	w.b = append(w.b, p...)
}

// PutMpint writes v as a two's-complement big-endian mpint: a leading
// zero byte is prepended only when the high bit of the first byte would
// otherwise be mistaken for the sign bit.
func (w *Buffer) PutMpint(v *big.Int) {
	if v.Sign() == 0 {
		w.PutUint32(0)
		return
	}
	b := v.Bytes()
	if v.Sign() < 0 {
		// two's complement negative encoding, per RFC4251 §5
		length := len(b)
		neg := make([]byte, length)
		borrow := 1
		for i := length - 1; i >= 0; i-- {
			x := int(^b[i]&0xff) + borrow
			neg[i] = byte(x)
			borrow = x >> 8
		}
		if neg[0]&0x80 == 0 {
			neg = append([]byte{0xff}, neg...)
		}
		w.PutUint32(uint32(len(neg)))
		w.b = append(w.b, neg...)
		return
	}
	if b[0]&0x80 != 0 {
		w.PutUint32(uint32(len(b) + 1))
		w.b = append(w.b, 0)
		w.b = append(w.b, b...)
		return
	}
	w.PutUint32(uint32(len(b)))
	w.b = append(w.b, b...)
}

// PutNameList writes a comma-joined ASCII list. Every element must be
// non-empty, printable ASCII, and comma-free; violating that is a
// programming error in the caller, not a wire condition, so it panics.
func (w *Buffer) PutNameList(names []string) {
	for _, n := range names {
		if err := validateName(n); err != nil {
			panic(err)
		}
	}
	w.PutString(strings.Join(names, ","))
}

func validateName(n string) error {
	if len(n) == 0 {
		return malformed("empty name-list element")
	}
	for _, r := range n {
		if r == ',' || r < 0x20 || r > 0x7e {
			return malformed(fmt.Sprintf("non-printable or comma in name %q", n))
		}
	}
	return nil
}

// --- decode ---

func (r *Buffer) GetUint8() (uint8, error) {
	if r.Len() < 1 {
		return 0, malformed("uint8: short buffer")
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *Buffer) GetBool() (bool, error) {
	v, err := r.GetUint8()
	return v != 0, err
}

// GetFixed reads exactly n raw bytes with no length prefix (e.g. the
// KEXINIT cookie).
func (r *Buffer) GetFixed(n int) ([]byte, error) {
	if r.Len() < n {
		return nil, malformed("fixed: short buffer")
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *Buffer) GetUint32() (uint32, error) {
	if r.Len() < 4 {
		return 0, malformed("uint32: short buffer")
	}
	v := binary.BigEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Buffer) GetUint64() (uint64, error) {
	if r.Len() < 8 {
		return 0, malformed("uint64: short buffer")
	}
	v := binary.BigEndian.Uint64(r.b[r.pos:])
	r.pos += 8
	return v, nil
}

// GetBytes reads a length-prefixed byte run, validating the declared
// length against what remains (per §4.1: fail with MalformedField when a
// declared length exceeds remaining bytes).
func (r *Buffer) GetBytes() ([]byte, error) {
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Len()) {
		return nil, malformed("string: declared length exceeds remaining bytes")
	}
	v := r.b[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

func (r *Buffer) GetString() (string, error) {
	b, err := r.GetBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Buffer) GetMpint() (*big.Int, error) {
	b, err := r.GetBytes()
	if err != nil {
		return nil, err
	}
	v := new(big.Int)
	if len(b) == 0 {
		return v, nil
	}
	if b[0]&0x80 != 0 {
		// negative: invert + add one over the raw bytes, then negate
		tmp := make([]byte, len(b))
		for i, x := range b {
			tmp[i] = ^x
		}
		v.SetBytes(tmp)
		v.Add(v, big.NewInt(1))
		v.Neg(v)
		return v, nil
	}
	v.SetBytes(b)
	return v, nil
}

func (r *Buffer) GetNameList() ([]string, error) {
	s, err := r.GetString()
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return strings.Split(s, ","), nil
}

// Rest returns whatever bytes remain unconsumed, without advancing.
func (r *Buffer) Rest() []byte { return r.b[r.pos:] }
