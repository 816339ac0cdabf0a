package sftp

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"blitter.com/go/sshx/sshtransport"
)

// Conn is the minimal surface sftp.Client needs from its transport — a
// byte stream. *channel.Channel satisfies this directly; tests and
// other non-SSH transports can supply any io.ReadWriteCloser.
type Conn interface {
	io.Reader
	io.Writer
}

// outboundFrame is one fully-marshalled SFTP packet (length prefix
// included) queued for the writer goroutine.
type outboundFrame struct {
	data []byte
}

// pendingRequest is the completion sink for one in-flight request-id,
// grounded on client_conn.go's clientReq_/onResp-keyed-by-id dispatch,
// simplified to a single response struct per id since none of this
// client's operations need usftp's multi-packet nextPkt machinery.
type pendingRequest struct {
	sink chan response
}

type response struct {
	typ     uint8
	payload []byte
	err     error
}

// Client drives one SSH_FXP_INIT/VERSION-negotiated SFTP session over
// a subsystem channel. The request dispatcher (§4.8) maps request-id
// to completion sink; a monotonically increasing counter modulo 2^32
// assigns ids, and a single lock guards only insert/remove (per the
// concurrency model's "SFTP pending-request map is guarded by a single
// lock held only for insert/remove").
type Client struct {
	conn Conn

	version    uint32
	extensions map[string]string

	nextID uint32

	mu      sync.Mutex
	pending map[uint32]*pendingRequest
	closed  bool
	closeErr error

	outbound chan outboundFrame
	writerDone chan struct{}

	maxReadWrite uint32 // chunk size used by stream adapters and getdataSlice-style reads
}

const defaultMaxReadWrite = 32 * 1024

// NewClient performs the SSH_FXP_INIT/VERSION exchange over conn and
// starts the reader/writer goroutines described in §5: one reader task
// deframing inbound packets and dispatching by id, one writer task
// draining an outbound queue so concurrent callers never interleave a
// packet's bytes.
func NewClient(conn Conn) (*Client, error) {
	c := &Client{
		conn:         conn,
		pending:      make(map[uint32]*pendingRequest),
		outbound:     make(chan outboundFrame, 64),
		writerDone:   make(chan struct{}),
		maxReadWrite: defaultMaxReadWrite,
	}

	go c.writeLoop()

	var initPkt []byte
	initPkt = append(initPkt, fxpInit)
	initPkt = binary.BigEndian.AppendUint32(initPkt, ProtocolVersion)
	if err := c.enqueueFrame(initPkt); err != nil {
		return nil, err
	}

	br := bufio.NewReader(conn)
	typ, payload, err := readFrame(br)
	if err != nil {
		return nil, err
	}
	if typ != fxpVersion {
		return nil, sshtransport.Wrap(sshtransport.KindSftp, nil,
			"sftp: expected SSH_FXP_VERSION, got packet type %d", typ)
	}
	version, payload, err := getUint32(payload)
	if err != nil {
		return nil, err
	}
	c.version = version
	c.extensions = make(map[string]string)
	for len(payload) > 0 {
		var name, data string
		if name, payload, err = getString(payload); err != nil {
			break
		}
		if data, payload, err = getString(payload); err != nil {
			break
		}
		c.extensions[name] = data
	}

	go c.readLoop(br)
	return c, nil
}

// Extensions returns the name/data pairs the server advertised in its
// SSH_FXP_VERSION reply (e.g. "posix-rename@openssh.com").
func (c *Client) Extensions() map[string]string { return c.extensions }

func (c *Client) supportsExtension(name string) bool {
	_, ok := c.extensions[name]
	return ok
}

func readFrame(br *bufio.Reader) (typ uint8, payload []byte, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(br, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return 0, nil, errShortPacket
	}
	buf := make([]byte, n)
	if _, err = io.ReadFull(br, buf); err != nil {
		return 0, nil, err
	}
	return buf[0], buf[1:], nil
}

func (c *Client) writeLoop() {
	defer close(c.writerDone)
	for frame := range c.outbound {
		if _, err := c.conn.Write(frame.data); err != nil {
			c.failAllPending(err)
			return
		}
	}
}

func (c *Client) enqueueFrame(typeAndPayload []byte) error {
	framed := make([]byte, 4+len(typeAndPayload))
	binary.BigEndian.PutUint32(framed, uint32(len(typeAndPayload)))
	copy(framed[4:], typeAndPayload)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	c.outbound <- outboundFrame{data: framed}
	return nil
}

func (c *Client) readLoop(br *bufio.Reader) {
	for {
		typ, payload, err := readFrame(br)
		if err != nil {
			c.failAllPending(err)
			return
		}
		if len(payload) < 4 {
			continue
		}
		id, payload, err := getUint32(payload)
		if err != nil {
			continue
		}
		c.mu.Lock()
		pr, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}
		pr.sink <- response{typ: typ, payload: payload}
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	pending := c.pending
	c.pending = make(map[uint32]*pendingRequest)
	c.mu.Unlock()

	for _, pr := range pending {
		pr.sink <- response{err: ErrChannelClosed}
	}
}

// Close stops this client's reader/writer goroutines. In-flight
// requests fail with ErrChannelClosed (§4.8: "on channel close with
// pending requests, all sinks fail with ChannelClosed").
func (c *Client) Close() error {
	c.failAllPending(ErrChannelClosed)
	close(c.outbound)
	<-c.writerDone
	return nil
}

// call sends a request packet with a fresh id and blocks for its
// response, the dispatcher's core primitive.
func (c *Client) call(typ uint8, marshalPayload func(id uint32) []byte) (uint8, []byte, error) {
	id := atomic.AddUint32(&c.nextID, 1)

	pr := &pendingRequest{sink: make(chan response, 1)}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, nil, c.closeErr
	}
	c.pending[id] = pr
	c.mu.Unlock()

	pkt := append([]byte{typ}, marshalPayload(id)...)
	if err := c.enqueueFrame(pkt); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return 0, nil, err
	}

	r := <-pr.sink
	return r.typ, r.payload, r.err
}

// callExpectStatus issues a request whose only successful reply is
// SSH_FXP_STATUS(OK) — close/remove/mkdir/rmdir/rename/symlink/link/
// setstat/fsetstat all share this shape.
func (c *Client) callExpectStatus(typ uint8, marshalPayload func(id uint32) []byte) error {
	rtyp, payload, err := c.call(typ, marshalPayload)
	if err != nil {
		return err
	}
	return statusErrorOrNil(rtyp, payload)
}

func statusErrorOrNil(typ uint8, payload []byte) error {
	if typ != fxpStatus {
		return sshtransport.Wrap(sshtransport.KindSftp, nil,
			"sftp: expected SSH_FXP_STATUS, got packet type %d", typ)
	}
	se, err := parseStatus(payload)
	if err != nil {
		return err
	}
	if se.Code == FxOK {
		return nil
	}
	return se
}

func parseStatus(payload []byte) (*StatusError, error) {
	code, payload, err := getUint32(payload)
	if err != nil {
		return nil, err
	}
	msg, payload, _ := getString(payload)
	lang, _, _ := getString(payload)
	return &StatusError{Code: code, Message: msg, Lang: lang}, nil
}
