package sftp

import (
	"encoding/binary"
	"testing"
)

func TestAttributesRoundTripPreservesUnknownFlags(t *testing.T) {
	// SSH_FILEXFER_ATTR_CREATETIME from draft-ietf-secsh-filexfer v4+:
	// not one of the five bits this codec names a field for, and it
	// carries a real 8-byte uint64 payload on the wire — unlike bit
	// 0x10 with zero accompanying bytes, this actually exercises the
	// "preserve bytes this client can't interpret" invariant.
	const attrCreateTime = 0x00000010

	in := &Attributes{
		Flags:             attrSize | attrPermissions | attrCreateTime,
		Size:              1234,
		Permissions:       0o755,
		UnknownFieldBytes: []byte{0, 0, 0, 0, 0x65, 0x4a, 0x10, 0x00}, // an arbitrary 8-byte CREATETIME value
	}

	buf := marshalAttrs(nil, in)
	out, rest, err := unmarshalAttrs(buf)
	if err != nil {
		t.Fatalf("unmarshalAttrs: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes: %d", len(rest))
	}
	if out.Flags != in.Flags {
		t.Fatalf("flags not preserved: got %#x want %#x", out.Flags, in.Flags)
	}
	if out.Size != in.Size || out.Permissions != in.Permissions {
		t.Fatalf("fields not preserved: %+v", out)
	}
	if string(out.UnknownFieldBytes) != string(in.UnknownFieldBytes) {
		t.Fatalf("unknown field bytes not preserved: got %x want %x", out.UnknownFieldBytes, in.UnknownFieldBytes)
	}

	// Re-encoding must reproduce the original bytes exactly, including
	// the unknown bit's payload, since nothing in this codec should
	// silently drop or misalign it.
	buf2 := marshalAttrs(nil, out)
	if string(buf) != string(buf2) {
		t.Fatalf("round trip not byte-identical:\n in=%x\nout=%x", buf, buf2)
	}
}

func TestAttributesUnknownFlagsWithExtendedIsRejected(t *testing.T) {
	// Unknown bits combined with Extended in the same blob are
	// ambiguous (this codec can't know where the unknown bits' payload
	// ends and Extended's count field begins), so decode must fail
	// loudly rather than misparse.
	const attrCreateTime = 0x00000010
	b := binary.BigEndian.AppendUint32(nil, attrCreateTime|attrExtended)
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 0) // CREATETIME payload
	b = binary.BigEndian.AppendUint32(b, 0)

	_, _, err := unmarshalAttrs(b)
	if err == nil {
		t.Fatal("expected an error for unknown flags combined with extended attrs")
	}
}

func TestAttributesExtendedRoundTrip(t *testing.T) {
	in := &Attributes{
		Flags: attrExtended,
		Extended: []ExtendedAttr{
			{Type: "foo@example.com", Data: "bar"},
		},
	}
	buf := marshalAttrs(nil, in)
	out, _, err := unmarshalAttrs(buf)
	if err != nil {
		t.Fatalf("unmarshalAttrs: %v", err)
	}
	if len(out.Extended) != 1 || out.Extended[0].Type != "foo@example.com" || out.Extended[0].Data != "bar" {
		t.Fatalf("extended attrs not preserved: %+v", out.Extended)
	}
}

func TestOpenModePflags(t *testing.T) {
	m := OpenRead | OpenWrite | OpenCreate
	if got := m.pflags(); got != 0x01|0x02|0x08 {
		t.Fatalf("pflags() = %#x, want %#x", got, 0x01|0x02|0x08)
	}
}

func TestStatusTextKnownCodes(t *testing.T) {
	cases := map[uint32]string{
		FxOK:               "ok",
		FxEOF:              "EOF",
		FxNoSuchFile:       "no such file",
		FxPermissionDenied: "permission denied",
	}
	for code, want := range cases {
		if got := statusText(code); got != want {
			t.Errorf("statusText(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestIsNotExistIsPermissionIsEOF(t *testing.T) {
	if !IsNotExist(&StatusError{Code: FxNoSuchFile}) {
		t.Error("IsNotExist should match FxNoSuchFile")
	}
	if !IsPermission(&StatusError{Code: FxPermissionDenied}) {
		t.Error("IsPermission should match FxPermissionDenied")
	}
	if !IsEOF(&StatusError{Code: FxEOF}) {
		t.Error("IsEOF should match FxEOF")
	}
	if IsNotExist(&StatusError{Code: FxFailure}) {
		t.Error("IsNotExist should not match FxFailure")
	}
}
