// Package sftp implements the §4.8 SFTP client subsystem: request-id
// based dispatch over a "sftp" subsystem channel, handle-based file
// operations, a lazy readDir iterator, and buffered stream adapters.
//
// Grounded on tredeske-u/usftp throughout — its packet.go's flag-gated
// attribute codec, its client_conn.go's per-request completion-sink
// dispatch keyed by request id, and its file.go's InputStream/
// OutputStream-shaped readers/writers — adapted to run over this
// module's own channel.Channel (an io.Reader/io.Writer) instead of a
// raw ssh.Session's Stdin/Stdout pipe, and rewritten so unknown
// attribute flag bits survive a decode/encode round trip unchanged
// (the teacher's unmarshalFileStat only understands the four
// version-3 flags it names).
package sftp

import (
	"encoding/binary"
	"time"

	"blitter.com/go/sshx/sshtransport"
)

// ProtocolVersion is the version this client requests in SSH_FXP_INIT.
// draft-ietf-secsh-filexfer v3 is what OpenSSH and most servers speak;
// v4/v6 behaviours are negotiated opportunistically when both peers
// advertise them via extension pairs, not via a higher INIT version.
const ProtocolVersion = 3

// Packet type octets (draft-ietf-secsh-filexfer-02 §3).
const (
	fxpInit     = 1
	fxpVersion  = 2
	fxpOpen     = 3
	fxpClose    = 4
	fxpRead     = 5
	fxpWrite    = 6
	fxpLstat    = 7
	fxpFstat    = 8
	fxpSetstat  = 9
	fxpFsetstat = 10
	fxpOpendir  = 11
	fxpReaddir  = 12
	fxpRemove   = 13
	fxpMkdir    = 14
	fxpRmdir    = 15
	fxpRealpath = 16
	fxpStat     = 17
	fxpRename   = 18
	fxpReadlink = 19
	fxpSymlink  = 20

	fxpStatus  = 101
	fxpHandle  = 102
	fxpData    = 103
	fxpName    = 104
	fxpAttrs   = 105

	fxpExtended      = 200
	fxpExtendedReply = 201
)

// Status codes (draft-ietf-secsh-filexfer-02 §7).
const (
	FxOK               = 0
	FxEOF              = 1
	FxNoSuchFile       = 2
	FxPermissionDenied = 3
	FxFailure          = 4
	FxBadMessage       = 5
	FxNoConnection     = 6
	FxConnectionLost   = 7
	FxOpUnsupported    = 8
)

// OpenMode is the client-facing open-flags type; pflags yields the wire
// pflags bitset (§4.8: Read 0x1, Write 0x2, Append 0x4, Create 0x8,
// Truncate 0x10, Exclusive 0x20).
type OpenMode uint32

const (
	OpenRead      OpenMode = 0x01
	OpenWrite     OpenMode = 0x02
	OpenAppend    OpenMode = 0x04
	OpenCreate    OpenMode = 0x08
	OpenTruncate  OpenMode = 0x10
	OpenExclusive OpenMode = 0x20
)

func (m OpenMode) pflags() uint32 { return uint32(m) }

// CopyMode selects which rename extension to request; absence of the
// extension in the server's SSH_FXP_VERSION reply fails locally with
// ErrUnsupported rather than silently falling back to plain RENAME.
type CopyMode int

const (
	CopyModeDefault  CopyMode = iota // plain SSH_FXP_RENAME; fails if target exists
	CopyModeAtomic                   // posix-rename@openssh.com
	CopyModeOverwrite                // posix-rename@openssh.com as well; no separate overwrite extension or RENAME flag is sent
)

const extPosixRename = "posix-rename@openssh.com"

// Attribute flag bits (draft-ietf-secsh-filexfer-02 §5). knownAttrFlags
// is every bit this codec assigns a field to; anything else (v4+'s
// SSH_FILEXFER_ATTR_CREATETIME=0x10, ATTR_ACL=0x20, ATTR_OWNERGROUP=
// 0x80, ATTR_SUBSECOND_TIMES=0x100, etc.) is a flag bit this client
// doesn't lay a struct field out for.
const (
	attrSize        = 0x00000001
	attrUIDGID      = 0x00000002
	attrPermissions = 0x00000004
	attrACModTime   = 0x00000008
	attrExtended    = 0x80000000

	knownAttrFlags = attrSize | attrUIDGID | attrPermissions | attrACModTime | attrExtended
)

// Attributes mirrors the wire SSH_FXP_ATTRS structure. Every field this
// codec doesn't interpret a flag bit for (a future protocol version's
// bit this client chooses not to populate) still has to survive a
// decode/re-encode cycle byte-for-byte (spec §4.8's attrs invariant),
// so UnknownFieldBytes captures the raw wire bytes for any such bits,
// verbatim and in their original wire position — between ACModTime and
// Extended, the fixed slot every defined protocol version places
// additional per-file fields in before the always-last Extended block.
type Attributes struct {
	Flags             uint32
	Size              uint64
	UID, GID          uint32
	Permissions       uint32
	ATime, MTime      uint32
	UnknownFieldBytes []byte
	Extended          []ExtendedAttr
}

type ExtendedAttr struct {
	Type string
	Data string
}

func (a *Attributes) HasSize() bool        { return a.Flags&attrSize != 0 }
func (a *Attributes) HasUIDGID() bool      { return a.Flags&attrUIDGID != 0 }
func (a *Attributes) HasPermissions() bool { return a.Flags&attrPermissions != 0 }
func (a *Attributes) HasTimes() bool       { return a.Flags&attrACModTime != 0 }
func (a *Attributes) HasExtended() bool    { return a.Flags&attrExtended != 0 }

// AccessTime and ModTime each read their own stored field rather than
// sharing one — the source this protocol was distilled from apparently
// reused a single timestamp for both, a bug this client does not
// replicate.
func (a *Attributes) AccessTime() time.Time {
	return time.Unix(int64(a.ATime), 0)
}

func (a *Attributes) ModTime() time.Time {
	return time.Unix(int64(a.MTime), 0)
}

// IsDir reports whether Permissions' file-type bits (populated whenever
// HasPermissions is true) mark this entry as a directory.
func (a *Attributes) IsDir() bool {
	const s_IFDIR = 0o040000
	return a.HasPermissions() && a.Permissions&s_IFDIR == s_IFDIR
}

// marshalAttrs appends a's wire encoding to b, preserving every flag
// bit set in a.Flags — including ones this struct doesn't name a field
// for — rather than recomputing flags from which fields are non-zero.
func marshalAttrs(b []byte, a *Attributes) []byte {
	b = binary.BigEndian.AppendUint32(b, a.Flags)
	if a.Flags&attrSize != 0 {
		b = binary.BigEndian.AppendUint64(b, a.Size)
	}
	if a.Flags&attrUIDGID != 0 {
		b = binary.BigEndian.AppendUint32(b, a.UID)
		b = binary.BigEndian.AppendUint32(b, a.GID)
	}
	if a.Flags&attrPermissions != 0 {
		b = binary.BigEndian.AppendUint32(b, a.Permissions)
	}
	if a.Flags&attrACModTime != 0 {
		b = binary.BigEndian.AppendUint32(b, a.ATime)
		b = binary.BigEndian.AppendUint32(b, a.MTime)
	}
	if a.Flags & ^uint32(knownAttrFlags) != 0 {
		b = append(b, a.UnknownFieldBytes...)
	}
	if a.Flags&attrExtended != 0 {
		b = binary.BigEndian.AppendUint32(b, uint32(len(a.Extended)))
		for _, e := range a.Extended {
			b = appendString(b, e.Type)
			b = appendString(b, e.Data)
		}
	}
	return b
}

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// unmarshalAttrs decodes from b, returning the remaining bytes. Flag
// bits this version doesn't know how to lay out a field for (every bit
// outside knownAttrFlags) carry undecoded payload this client can't
// interpret, but §4.8 still requires re-encoding to be byte-identical —
// so rather than skip those bytes (misaligning whatever follows) or
// drop them (breaking the round-trip invariant), their raw bytes are
// captured verbatim in UnknownFieldBytes. Extended is always the last
// field on the wire in every defined protocol version, so "everything
// between ACModTime and Extended" is well-defined when Extended isn't
// itself present; combining unknown bits with Extended in the same
// blob is ambiguous (no way to know where one ends and the other
// begins without understanding the unknown bits' own layout) and is
// reported as a protocol error instead of silently misparsed.
func unmarshalAttrs(b []byte) (*Attributes, []byte, error) {
	flags, b, err := getUint32(b)
	if err != nil {
		return nil, b, err
	}
	a := &Attributes{Flags: flags}
	if flags&attrSize != 0 {
		if a.Size, b, err = getUint64(b); err != nil {
			return nil, b, err
		}
	}
	if flags&attrUIDGID != 0 {
		if a.UID, b, err = getUint32(b); err != nil {
			return nil, b, err
		}
		if a.GID, b, err = getUint32(b); err != nil {
			return nil, b, err
		}
	}
	if flags&attrPermissions != 0 {
		if a.Permissions, b, err = getUint32(b); err != nil {
			return nil, b, err
		}
	}
	if flags&attrACModTime != 0 {
		if a.ATime, b, err = getUint32(b); err != nil {
			return nil, b, err
		}
		if a.MTime, b, err = getUint32(b); err != nil {
			return nil, b, err
		}
	}
	if flags&^uint32(knownAttrFlags) != 0 {
		if flags&attrExtended != 0 {
			return nil, b, sshtransport.Wrap(sshtransport.KindSftp, nil,
				"sftp: attrs flags %#08x mix unsupported bits with extended attributes, boundary is ambiguous", flags)
		}
		a.UnknownFieldBytes = append([]byte(nil), b...)
		b = nil
	}
	if flags&attrExtended != 0 {
		var count uint32
		if count, b, err = getUint32(b); err != nil {
			return nil, b, err
		}
		ext := make([]ExtendedAttr, count)
		for i := range ext {
			if ext[i].Type, b, err = getString(b); err != nil {
				return nil, b, err
			}
			if ext[i].Data, b, err = getString(b); err != nil {
				return nil, b, err
			}
		}
		a.Extended = ext
	}
	return a, b, nil
}

func getUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errShortPacket
	}
	return binary.BigEndian.Uint32(b), b[4:], nil
}

func getUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, errShortPacket
	}
	return binary.BigEndian.Uint64(b), b[8:], nil
}

func getString(b []byte) (string, []byte, error) {
	n, b, err := getUint32(b)
	if err != nil {
		return "", b, err
	}
	if uint64(n) > uint64(len(b)) {
		return "", nil, errShortPacket
	}
	return string(b[:n]), b[n:], nil
}
