package transport

import (
	"bytes"
	"compress/zlib"
	"io"

	"blitter.com/go/sshx/sshtransport"
)

// noneCompressor is the identity Compressor for "none".
type noneCompressor struct{}

func (noneCompressor) Compress(p []byte) ([]byte, error)   { return p, nil }
func (noneCompressor) Decompress(p []byte) ([]byte, error) { return p, nil }

var NoneCompressor sshtransport.Compressor = noneCompressor{}

// zlibCompressor implements "zlib"/"zlib@openssh.com" with one
// zlib.Writer/Reader pair reused across the connection's lifetime, since
// RFC4253's zlib compression is a single continuous stream, not
// independently-compressed packets.
type zlibCompressor struct {
	w      *zlib.Writer
	wBuf   bytes.Buffer
	r      io.ReadCloser
	rBuf   *bytes.Buffer
}

func NewZlibCompressor() sshtransport.Compressor {
	z := &zlibCompressor{rBuf: new(bytes.Buffer)}
	z.w = zlib.NewWriter(&z.wBuf)
	return z
}

func (z *zlibCompressor) Compress(p []byte) ([]byte, error) {
	z.wBuf.Reset()
	if _, err := z.w.Write(p); err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindProtocol, err, "zlib: compress failed")
	}
	if err := z.w.Flush(); err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindProtocol, err, "zlib: flush failed")
	}
	out := make([]byte, z.wBuf.Len())
	copy(out, z.wBuf.Bytes())
	return out, nil
}

func (z *zlibCompressor) Decompress(p []byte) ([]byte, error) {
	z.rBuf.Write(p)
	if z.r == nil {
		r, err := zlib.NewReader(z.rBuf)
		if err != nil {
			return nil, sshtransport.Wrap(sshtransport.KindProtocol, err, "zlib: reader init failed")
		}
		z.r = r
	}
	out, err := io.ReadAll(z.r)
	if err != nil && err != io.EOF {
		return nil, sshtransport.Wrap(sshtransport.KindProtocol, err, "zlib: decompress failed")
	}
	return out, nil
}
