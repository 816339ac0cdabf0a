package sftp

import (
	"encoding/binary"

	"blitter.com/go/sshx/sshtransport"
)

// Handle is the opaque, server-issued identifier naming an open file
// or directory (§4.8's Handle glossary entry): unforgeable by the
// client, valid from OPEN/OPENDIR until CLOSE completes.
type Handle struct {
	id string
}

// Open issues SSH_FXP_OPEN. Exclusive without Create is rejected
// locally per §4.8 rather than sent to the server.
func (c *Client) Open(path string, modes OpenMode) (*Handle, error) {
	if modes&OpenExclusive != 0 && modes&OpenCreate == 0 {
		return nil, ErrInvalidArgument
	}
	var attrs Attributes
	if modes&OpenCreate != 0 {
		attrs.Flags = attrPermissions
		attrs.Permissions = 0o644
	}

	typ, payload, err := c.call(fxpOpen, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		b = appendString(b, path)
		b = binary.BigEndian.AppendUint32(b, modes.pflags())
		b = marshalAttrs(b, &attrs)
		return b
	})
	if err != nil {
		return nil, err
	}
	return parseHandleOrStatus(typ, payload)
}

func parseHandleOrStatus(typ uint8, payload []byte) (*Handle, error) {
	switch typ {
	case fxpHandle:
		h, _, err := getString(payload)
		if err != nil {
			return nil, err
		}
		return &Handle{id: h}, nil
	case fxpStatus:
		se, err := parseStatus(payload)
		if err != nil {
			return nil, err
		}
		return nil, se
	default:
		return nil, sshtransport.Wrap(sshtransport.KindSftp, nil,
			"sftp: unexpected response to handle-returning request, got packet type %d", typ)
	}
}

// Close issues SSH_FXP_CLOSE; the handle must not be used afterward.
func (c *Client) Close(h *Handle) error {
	return c.callExpectStatus(fxpClose, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		return appendString(b, h.id)
	})
}

// Read issues SSH_FXP_READ at off for up to len(buf) bytes, returning a
// possibly-short read. EOF is reported as the sftp.IsEOF-recognisable
// StatusError, not io.EOF — callers wanting io.Reader semantics should
// use Open's stream adapter (OpenInputStream) instead.
func (c *Client) Read(h *Handle, off uint64, buf []byte) (int, error) {
	typ, payload, err := c.call(fxpRead, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		b = appendString(b, h.id)
		b = binary.BigEndian.AppendUint64(b, off)
		b = binary.BigEndian.AppendUint32(b, uint32(len(buf)))
		return b
	})
	if err != nil {
		return 0, err
	}
	switch typ {
	case fxpData:
		n, data, err := getUint32(payload)
		if err != nil {
			return 0, err
		}
		if int(n) > len(data) {
			return 0, errShortPacket
		}
		copy(buf, data[:n])
		return int(n), nil
	case fxpStatus:
		se, err := parseStatus(payload)
		if err != nil {
			return 0, err
		}
		return 0, se
	default:
		return 0, sshtransport.Wrap(sshtransport.KindSftp, nil,
			"sftp: unexpected response to READ, got packet type %d", typ)
	}
}

// Write issues SSH_FXP_WRITE at off.
func (c *Client) Write(h *Handle, off uint64, buf []byte) error {
	return c.callExpectStatus(fxpWrite, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		b = appendString(b, h.id)
		b = binary.BigEndian.AppendUint64(b, off)
		b = binary.BigEndian.AppendUint32(b, uint32(len(buf)))
		return append(b, buf...)
	})
}
