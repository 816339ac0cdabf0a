package sftp

import (
	"encoding/binary"

	"blitter.com/go/sshx/sshtransport"
)

func (c *Client) Remove(path string) error {
	return c.callExpectStatus(fxpRemove, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		return appendString(b, path)
	})
}

func (c *Client) Mkdir(path string) error {
	return c.callExpectStatus(fxpMkdir, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		b = appendString(b, path)
		var attrs Attributes
		return marshalAttrs(b, &attrs)
	})
}

func (c *Client) Rmdir(path string) error {
	return c.callExpectStatus(fxpRmdir, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		return appendString(b, path)
	})
}

// Rename issues SSH_FXP_RENAME, or the posix-rename@openssh.com
// extension when mode requests POSIX or overwrite semantics (§4.8);
// both of those modes send the same request. Requesting a mode
// the server didn't advertise in SSH_FXP_VERSION's extensions fails
// locally with ErrUnsupported rather than silently downgrading.
func (c *Client) Rename(oldPath, newPath string, mode CopyMode) error {
	switch mode {
	case CopyModeDefault:
		return c.callExpectStatus(fxpRename, func(id uint32) []byte {
			b := binary.BigEndian.AppendUint32(nil, id)
			b = appendString(b, oldPath)
			return appendString(b, newPath)
		})
	case CopyModeAtomic, CopyModeOverwrite:
		if !c.supportsExtension(extPosixRename) {
			return ErrUnsupported
		}
		return c.callExpectStatus(fxpExtended, func(id uint32) []byte {
			b := binary.BigEndian.AppendUint32(nil, id)
			b = appendString(b, extPosixRename)
			b = appendString(b, oldPath)
			return appendString(b, newPath)
		})
	default:
		return ErrInvalidArgument
	}
}

func (c *Client) Symlink(target, linkPath string) error {
	return c.callExpectStatus(fxpSymlink, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		// SSH_FXP_SYMLINK's argument order is linkpath then targetpath
		// in draft-ietf-secsh-filexfer-02 §6.9 (OpenSSH swapped it
		// historically; this client follows the spec text, matching
		// most current server implementations).
		b = appendString(b, linkPath)
		return appendString(b, target)
	})
}

func (c *Client) Link(oldPath, newPath string, symbolic bool) error {
	if symbolic {
		return c.Symlink(oldPath, newPath)
	}
	const extHardlink = "hardlink@openssh.com"
	if !c.supportsExtension(extHardlink) {
		return ErrUnsupported
	}
	return c.callExpectStatus(fxpExtended, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		b = appendString(b, extHardlink)
		b = appendString(b, oldPath)
		return appendString(b, newPath)
	})
}

func (c *Client) statLike(typ uint8, path string) (*Attributes, error) {
	rtyp, payload, err := c.call(typ, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		return appendString(b, path)
	})
	if err != nil {
		return nil, err
	}
	return parseAttrsOrStatus(rtyp, payload)
}

func parseAttrsOrStatus(typ uint8, payload []byte) (*Attributes, error) {
	switch typ {
	case fxpAttrs:
		a, _, err := unmarshalAttrs(payload)
		return a, err
	case fxpStatus:
		se, err := parseStatus(payload)
		if err != nil {
			return nil, err
		}
		return nil, se
	default:
		return nil, sshtransport.Wrap(sshtransport.KindSftp, nil,
			"sftp: unexpected response to *STAT, got packet type %d", typ)
	}
}

func (c *Client) Stat(path string) (*Attributes, error)  { return c.statLike(fxpStat, path) }
func (c *Client) Lstat(path string) (*Attributes, error) { return c.statLike(fxpLstat, path) }

func (c *Client) Fstat(h *Handle) (*Attributes, error) {
	typ, payload, err := c.call(fxpFstat, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		return appendString(b, h.id)
	})
	if err != nil {
		return nil, err
	}
	return parseAttrsOrStatus(typ, payload)
}

func (c *Client) Setstat(path string, attrs *Attributes) error {
	return c.callExpectStatus(fxpSetstat, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		b = appendString(b, path)
		return marshalAttrs(b, attrs)
	})
}

func (c *Client) Fsetstat(h *Handle, attrs *Attributes) error {
	return c.callExpectStatus(fxpFsetstat, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		b = appendString(b, h.id)
		return marshalAttrs(b, attrs)
	})
}

func (c *Client) Realpath(path string) (string, error) {
	return c.nameReply(fxpRealpath, path)
}

func (c *Client) Readlink(path string) (string, error) {
	return c.nameReply(fxpReadlink, path)
}

// nameReply issues a request whose success reply is SSH_FXP_NAME with
// exactly one entry (realpath/readlink's shape per §4.8), returning
// just that entry's filename.
func (c *Client) nameReply(typ uint8, path string) (string, error) {
	rtyp, payload, err := c.call(typ, func(id uint32) []byte {
		b := binary.BigEndian.AppendUint32(nil, id)
		return appendString(b, path)
	})
	if err != nil {
		return "", err
	}
	switch rtyp {
	case fxpName:
		count, payload, err := getUint32(payload)
		if err != nil {
			return "", err
		}
		if count == 0 {
			return "", sshtransport.Wrap(sshtransport.KindSftp, nil,
				"sftp: SSH_FXP_NAME returned no entries")
		}
		name, _, err := getString(payload)
		return name, err
	case fxpStatus:
		se, err := parseStatus(payload)
		if err != nil {
			return "", err
		}
		return "", se
	default:
		return "", sshtransport.Wrap(sshtransport.KindSftp, nil,
			"sftp: unexpected response to realpath/readlink, got packet type %d", rtyp)
	}
}
