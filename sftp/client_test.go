package sftp

import (
	"encoding/binary"
	"io"
	"testing"
)

// pipeConn joins a client-facing io.Reader/io.Writer pair to a
// fake-server-facing pair over in-memory pipes, so Client can be
// driven end-to-end without a real network or subsystem channel.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }

func newPipePair() (client Conn, server Conn) {
	c2s_r, c2s_w := io.Pipe()
	s2c_r, s2c_w := io.Pipe()
	return pipeConn{r: s2c_r, w: c2s_w}, pipeConn{r: c2s_r, w: s2c_w}
}

func writeFrame(w io.Writer, typ uint8, payload []byte) error {
	framed := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(framed, uint32(1+len(payload)))
	framed[4] = typ
	copy(framed[5:], payload)
	_, err := w.Write(framed)
	return err
}

// fakeServer answers exactly the INIT/OPEN/WRITE/READ/CLOSE sequence
// TestClientOpenWriteReadClose drives, enough to exercise the
// dispatcher without reimplementing a whole SFTP server.
func fakeServer(t *testing.T, conn Conn) {
	t.Helper()
	br := conn

	readOne := func() (uint8, []byte) {
		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return 0, nil
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return 0, nil
		}
		return buf[0], buf[1:]
	}

	// INIT
	typ, _ := readOne()
	if typ != fxpInit {
		t.Errorf("expected INIT, got %d", typ)
		return
	}
	verPayload := binary.BigEndian.AppendUint32(nil, ProtocolVersion)
	if err := writeFrame(conn, fxpVersion, verPayload); err != nil {
		return
	}

	// OPEN
	typ, payload := readOne()
	if typ != fxpOpen {
		t.Errorf("expected OPEN, got %d", typ)
		return
	}
	id, _, _ := getUint32(payload)
	handle := "h1"
	if err := writeFrame(conn, fxpHandle, appendString(binary.BigEndian.AppendUint32(nil, id), handle)); err != nil {
		return
	}

	// WRITE
	typ, payload = readOne()
	if typ != fxpWrite {
		t.Errorf("expected WRITE, got %d", typ)
		return
	}
	id, _, _ = getUint32(payload)
	statusPayload := binary.BigEndian.AppendUint32(nil, id)
	statusPayload = binary.BigEndian.AppendUint32(statusPayload, FxOK)
	statusPayload = appendString(statusPayload, "")
	statusPayload = appendString(statusPayload, "")
	if err := writeFrame(conn, fxpStatus, statusPayload); err != nil {
		return
	}

	// READ
	typ, payload = readOne()
	if typ != fxpRead {
		t.Errorf("expected READ, got %d", typ)
		return
	}
	id, _, _ = getUint32(payload)
	dataPayload := binary.BigEndian.AppendUint32(nil, id)
	dataPayload = appendString(dataPayload, "hello")
	if err := writeFrame(conn, fxpData, dataPayload); err != nil {
		return
	}

	// CLOSE
	typ, payload = readOne()
	if typ != fxpClose {
		t.Errorf("expected CLOSE, got %d", typ)
		return
	}
	id, _, _ = getUint32(payload)
	statusPayload = binary.BigEndian.AppendUint32(nil, id)
	statusPayload = binary.BigEndian.AppendUint32(statusPayload, FxOK)
	statusPayload = appendString(statusPayload, "")
	statusPayload = appendString(statusPayload, "")
	writeFrame(conn, fxpStatus, statusPayload)
}

func TestClientOpenWriteReadClose(t *testing.T) {
	clientConn, serverConn := newPipePair()
	go fakeServer(t, serverConn)

	c, err := NewClient(clientConn)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	h, err := c.Open("/tmp/x", OpenRead|OpenWrite|OpenCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := c.Write(h, 0, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 16)
	n, err := c.Read(h, 0, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("Read returned %q, want %q", buf[:n], "hello")
	}

	if err := c.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenRejectsExclusiveWithoutCreate(t *testing.T) {
	clientConn, serverConn := newPipePair()
	go func() {
		// Only need to answer INIT; Open should reject locally before
		// sending anything.
		var lenBuf [4]byte
		io.ReadFull(serverConn, lenBuf[:])
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		io.ReadFull(serverConn, buf)
		writeFrame(serverConn, fxpVersion, binary.BigEndian.AppendUint32(nil, ProtocolVersion))
	}()

	c, err := NewClient(clientConn)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = c.Open("/tmp/x", OpenRead|OpenExclusive)
	if err != ErrInvalidArgument {
		t.Fatalf("Open with Exclusive-without-Create = %v, want ErrInvalidArgument", err)
	}
}
