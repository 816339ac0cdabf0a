package sftp

import (
	"encoding/binary"
	"io"

	"blitter.com/go/sshx/sshtransport"
)

// DirEntry is one SSH_FXP_NAME entry as returned by READDIR: a listing
// filename, its pre-rendered "ls -l"-style longname, and its decoded
// attributes.
type DirEntry struct {
	Filename string
	Longname string
	Attrs    Attributes
}

// ReadDirIterator lazily walks one OPENDIR handle's entries, buffering
// one SSH_FXP_READDIR response at a time (§4.8: "then sequence of
// entries terminated by EOF"). It is finite and not restartable — once
// exhausted or closed, a fresh OpenDir call is required to walk the
// directory again.
type ReadDirIterator struct {
	client *Client
	handle *Handle

	buf  []DirEntry
	pos  int
	done bool
	err  error
}

// OpenDir issues SSH_FXP_OPENDIR and returns an iterator over its
// entries.
func (c *Client) OpenDir(path string) (*ReadDirIterator, error) {
	typ, payload, err := c.call(fxpOpendir, func(id uint32) []byte {
		return appendString(appendUint32(id), path)
	})
	if err != nil {
		return nil, err
	}
	h, err := parseHandleOrStatus(typ, payload)
	if err != nil {
		return nil, err
	}
	return &ReadDirIterator{client: c, handle: h}, nil
}

func appendUint32(id uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, id)
}

// Next advances the iterator, returning false once the directory is
// exhausted or an error occurred; callers should check Err afterward.
// The underlying handle is closed automatically on the EOF status that
// terminates the listing, per §4.8.
func (it *ReadDirIterator) Next() (DirEntry, bool) {
	for it.pos >= len(it.buf) {
		if it.done {
			return DirEntry{}, false
		}
		if !it.fetch() {
			return DirEntry{}, false
		}
	}
	e := it.buf[it.pos]
	it.pos++
	return e, true
}

func (it *ReadDirIterator) fetch() bool {
	typ, payload, err := it.client.call(fxpReaddir, func(id uint32) []byte {
		return appendString(appendUint32(id), it.handle.id)
	})
	if err != nil {
		it.err = err
		it.done = true
		return false
	}
	switch typ {
	case fxpName:
		count, rest, err := getUint32(payload)
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		entries := make([]DirEntry, 0, count)
		for i := uint32(0); i < count; i++ {
			var e DirEntry
			if e.Filename, rest, err = getString(rest); err != nil {
				it.err = err
				it.done = true
				return false
			}
			if e.Longname, rest, err = getString(rest); err != nil {
				it.err = err
				it.done = true
				return false
			}
			var attrs *Attributes
			if attrs, rest, err = unmarshalAttrs(rest); err != nil {
				it.err = err
				it.done = true
				return false
			}
			e.Attrs = *attrs
			entries = append(entries, e)
		}
		it.buf = entries
		it.pos = 0
		return len(entries) > 0
	case fxpStatus:
		se, serr := parseStatus(payload)
		it.done = true
		if serr != nil {
			it.err = serr
			return false
		}
		if se.Code != FxEOF {
			it.err = se
		}
		it.client.Close(it.handle)
		it.handle = nil
		return false
	default:
		it.err = sshtransport.Wrap(sshtransport.KindSftp, nil,
			"sftp: unexpected response to READDIR, got packet type %d", typ)
		it.done = true
		return false
	}
}

// Err returns the error, if any, that stopped iteration. A clean EOF
// from the server yields a nil Err.
func (it *ReadDirIterator) Err() error { return it.err }

// Close releases the directory handle without waiting for EOF; safe to
// call after the iterator has already auto-closed on EOF.
func (it *ReadDirIterator) Close() error {
	if it.done && it.handle == nil {
		return nil
	}
	h := it.handle
	it.handle = nil
	if h == nil {
		return nil
	}
	return it.client.Close(h)
}

var _ io.Closer = (*ReadDirIterator)(nil)
