package sftp

import "io"

// InputStream adapts a handle opened for reading into an io.Reader,
// issuing READ in defaultMaxReadWrite-sized chunks and translating the
// EOF status into io.EOF. Grounded on usftp's file.go Reader, simplified
// to the single-outstanding-request shape this client's dispatcher
// already gives every call.
type InputStream struct {
	client *Client
	handle *Handle
	off    uint64
	closed bool
}

// OpenInputStream opens path for reading and returns a stream reader
// over it; the handle is closed automatically when Close is called or
// when Read first observes end-of-file.
func (c *Client) OpenInputStream(path string) (*InputStream, error) {
	h, err := c.Open(path, OpenRead)
	if err != nil {
		return nil, err
	}
	return &InputStream{client: c, handle: h}, nil
}

func (s *InputStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}
	chunk := p
	if uint32(len(chunk)) > s.client.maxReadWrite {
		chunk = chunk[:s.client.maxReadWrite]
	}
	n, err := s.client.Read(s.handle, s.off, chunk)
	s.off += uint64(n)
	if err != nil {
		if IsEOF(err) {
			s.closeHandle()
			if n > 0 {
				return n, nil
			}
			return n, io.EOF
		}
		return n, err
	}
	return n, nil
}

func (s *InputStream) closeHandle() {
	if s.closed {
		return
	}
	s.closed = true
	s.client.Close(s.handle)
}

// Close releases the underlying handle; safe to call after Read has
// already observed end-of-file and closed it itself.
func (s *InputStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close(s.handle)
}

var _ io.ReadCloser = (*InputStream)(nil)

// OutputStream adapts a handle opened for writing into an io.Writer,
// issuing WRITE at a running offset and splitting a buffer larger than
// the client's maxReadWrite into successive WRITEs, each at the offset
// the previous one ended (§4.8's stream-adapter write semantics). By default the target is created/truncated; pass Append
// via OpenOutputStreamMode to extend an existing file instead.
type OutputStream struct {
	client *Client
	handle *Handle
	off    uint64
	closed bool
}

// OpenOutputStream opens path for writing, creating and truncating it
// if necessary.
func (c *Client) OpenOutputStream(path string) (*OutputStream, error) {
	return c.OpenOutputStreamMode(path, OpenWrite|OpenCreate|OpenTruncate)
}

// OpenOutputStreamMode opens path for writing under the given modes,
// for callers that want Append or Exclusive semantics instead of the
// create/truncate default.
func (c *Client) OpenOutputStreamMode(path string, modes OpenMode) (*OutputStream, error) {
	h, err := c.Open(path, modes)
	if err != nil {
		return nil, err
	}
	return &OutputStream{client: c, handle: h}, nil
}

func (s *OutputStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	written := 0
	for len(p) > 0 {
		chunk := p
		if uint32(len(chunk)) > s.client.maxReadWrite {
			chunk = chunk[:s.client.maxReadWrite]
		}
		if err := s.client.Write(s.handle, s.off, chunk); err != nil {
			return written, err
		}
		s.off += uint64(len(chunk))
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

// Close releases the underlying handle. It does not itself flush
// anything beyond what Write already sent, since every Write call
// completes its WRITE request synchronously before returning.
func (s *OutputStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close(s.handle)
}

var _ io.WriteCloser = (*OutputStream)(nil)
