// Package channel implements the §4.7 connection protocol's channel
// layer: CHANNEL_OPEN/OPEN_CONFIRMATION/OPEN_FAILURE, credit-based
// window flow control, EOF/CLOSE teardown, and channel requests
// (exec/shell/subsystem/pty-req/env/window-change/exit-status/
// exit-signal) answered in FIFO order when want_reply is set.
//
// The teacher has nothing structurally similar — xsnet.Conn multiplexes
// exactly one logical stream per TCP/KCP connection, plus a fixed set
// of control-message types (CSOChAlgs, CSOExecCmd, CSOTunSetup, ...)
// read inline by hkexnet.Conn.Read/WritePacket. This package keeps that
// "one Session, one demux loop, many logical streams" shape — see
// Multiplexer.Serve below, grounded on the same read-loop-dispatches-
// by-tag idea as hkexnet.Conn's packet type switch — but generalizes
// the fixed control-message set into RFC4254's actual per-channel
// protocol.
package channel

import (
	"io"
	"sync"

	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/sshwire"
	"blitter.com/go/sshx/transport"
)

const ServiceName = "ssh-connection"

// DefaultWindowSize and DefaultMaxPacketSize are this module's opening
// offer when a caller doesn't specify its own (generous enough for
// interactive and bulk-transfer use, matching what OpenSSH offers).
const (
	DefaultWindowSize     = 2 * 1024 * 1024
	DefaultMaxPacketSize  = 32 * 1024
)

// Channel is one logical, bidirectional, flow-controlled stream
// multiplexed over a Session (§4.7). Use Multiplexer to open or accept
// one; Channel itself only knows how to move data and requests once
// OPEN_CONFIRMATION has happened.
type Channel struct {
	mux               *Multiplexer
	localID, remoteID uint32
	maxPacketSize     uint32

	mu          sync.Mutex
	sendWindow  uint32 // credit the peer has granted us, not yet spent
	recvWindow  uint32 // credit we've granted the peer, not yet spent (consumed by handleData)
	pendingGrant uint32 // consumed-but-not-yet-regranted bytes; flushed via WINDOW_ADJUST
	recvHighWaterMark uint32 // flush pendingGrant once it reaches this much

	incoming    chan []byte // ordinary DATA, in arrival order
	extIncoming chan extData
	closed      bool
	eofSent     bool
	eofRecv     bool
	closeSent   bool
	closeRecv   bool

	readBuf []byte // leftover from a partially-consumed incoming chunk

	pendingRequests chan *pendingRequest // FIFO for our own want_reply requests
	incomingRequests chan *IncomingRequest

	windowCond *sync.Cond // signaled whenever sendWindow grows or the channel closes
}

type extData struct {
	dataType uint32
	data     []byte
}

type pendingRequest struct {
	done chan bool
}

// IncomingRequest is a channel request (exec, shell, pty-req, ...) the
// peer sent us, surfaced for the caller to answer via Reply.
type IncomingRequest struct {
	Type      string
	WantReply bool
	Payload   []byte

	ch *Channel
}

// Reply answers an IncomingRequest; a no-op (but still required to
// drain the FIFO ordering invariant) when WantReply is false.
func (r *IncomingRequest) Reply(success bool) error {
	if !r.WantReply {
		return nil
	}
	var b sshwire.Buffer
	if success {
		b.PutUint8(transport.MsgChannelSuccess)
	} else {
		b.PutUint8(transport.MsgChannelFailure)
	}
	b.PutUint32(r.ch.remoteID)
	return r.ch.mux.session.WriteMessage(b.Bytes())
}

// Multiplexer owns the channel table for one Session's "ssh-connection"
// service instance (§4.5 hands control here once SERVICE_ACCEPT for
// ssh-connection completes).
type Multiplexer struct {
	session *transport.Session

	mu      sync.Mutex
	nextID  uint32
	chans   map[uint32]*Channel

	openRequests chan *OpenRequest // server side: incoming CHANNEL_OPENs to accept/reject

	pendingOpens map[uint32]chan openResult // client side: local-id -> result sink
}

type openResult struct {
	remoteID      uint32
	remoteWindow  uint32
	remoteMaxPkt  uint32
	failureReason uint32
	failureMsg    string
	ok            bool
}

// OpenRequest is an incoming CHANNEL_OPEN the server side must Accept or
// Reject.
type OpenRequest struct {
	ChannelType     string
	SenderID        uint32
	InitialWindow   uint32
	MaxPacketSize   uint32
	ExtraData       []byte

	mux *Multiplexer
}

func NewMultiplexer(s *transport.Session) *Multiplexer {
	return &Multiplexer{
		session:      s,
		chans:        make(map[uint32]*Channel),
		openRequests: make(chan *OpenRequest, 16),
		pendingOpens: make(map[uint32]chan openResult),
	}
}

// Open implements the client side of §4.7: send CHANNEL_OPEN and block
// for OPEN_CONFIRMATION/OPEN_FAILURE.
func (m *Multiplexer) Open(channelType string, extraData []byte) (*Channel, error) {
	m.mu.Lock()
	localID := m.nextID
	m.nextID++
	result := make(chan openResult, 1)
	m.pendingOpens[localID] = result
	m.mu.Unlock()

	var b sshwire.Buffer
	b.PutUint8(transport.MsgChannelOpen)
	b.PutString(channelType)
	b.PutUint32(localID)
	b.PutUint32(DefaultWindowSize)
	b.PutUint32(DefaultMaxPacketSize)
	b.PutFixed(extraData)
	if err := m.session.WriteMessage(b.Bytes()); err != nil {
		return nil, err
	}

	r := <-result
	if !r.ok {
		return nil, sshtransport.Wrap(sshtransport.KindProtocol, nil,
			"channel open refused: reason %d: %s", r.failureReason, r.failureMsg)
	}
	return m.newChannel(localID, r.remoteID, r.remoteWindow, r.remoteMaxPkt), nil
}

func (m *Multiplexer) newChannel(localID, remoteID, remoteWindow, remoteMaxPkt uint32) *Channel {
	ch := &Channel{
		mux:              m,
		localID:          localID,
		remoteID:         remoteID,
		maxPacketSize:    remoteMaxPkt,
		sendWindow:       remoteWindow,
		recvWindow:       DefaultWindowSize,
		recvHighWaterMark: DefaultWindowSize / 2,
		incoming:         make(chan []byte, 64),
		extIncoming:      make(chan extData, 16),
		pendingRequests:  make(chan *pendingRequest, 16),
		incomingRequests: make(chan *IncomingRequest, 16),
	}
	ch.windowCond = sync.NewCond(&ch.mu)
	m.mu.Lock()
	m.chans[localID] = ch
	m.mu.Unlock()
	return ch
}

// Accept answers an incoming OpenRequest.
func (r *OpenRequest) Accept() (*Channel, error) {
	localID := r.mux.allocID()
	ch := r.mux.newChannel(localID, r.SenderID, r.InitialWindow, r.MaxPacketSize)

	var b sshwire.Buffer
	b.PutUint8(transport.MsgChannelOpenConfirmation)
	b.PutUint32(r.SenderID)
	b.PutUint32(localID)
	b.PutUint32(DefaultWindowSize)
	b.PutUint32(DefaultMaxPacketSize)
	if err := r.mux.session.WriteMessage(b.Bytes()); err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *OpenRequest) Reject(reasonCode uint32, message string) error {
	var b sshwire.Buffer
	b.PutUint8(transport.MsgChannelOpenFailure)
	b.PutUint32(r.SenderID)
	b.PutUint32(reasonCode)
	b.PutString(message)
	b.PutString("")
	return r.mux.session.WriteMessage(b.Bytes())
}

func (m *Multiplexer) allocID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return id
}

// Accepts returns the channel over which incoming CHANNEL_OPEN requests
// arrive for the server side to Accept/Reject.
func (m *Multiplexer) Accepts() <-chan *OpenRequest { return m.openRequests }

// Serve runs the single demultiplexing read loop: one ReadMessage call
// at a time (Session.ReadMessage isn't safe for concurrent callers),
// dispatched by channel-layer message type to the right Channel or to
// the OpenRequest queue. Runs until a Session read errs.
func (m *Multiplexer) Serve() error {
	for {
		payload, err := m.session.ReadMessage()
		if err != nil {
			m.closeAll(err)
			return err
		}
		if len(payload) == 0 {
			continue
		}
		r := sshwire.NewBuffer(payload)
		msgType, _ := r.GetUint8()
		switch msgType {
		case transport.MsgChannelOpen:
			m.handleOpen(r)
		case transport.MsgChannelOpenConfirmation:
			m.handleOpenConfirmation(r)
		case transport.MsgChannelOpenFailure:
			m.handleOpenFailure(r)
		case transport.MsgChannelWindowAdjust:
			m.handleWindowAdjust(r)
		case transport.MsgChannelData:
			m.handleData(r)
		case transport.MsgChannelExtendedData:
			m.handleExtendedData(r)
		case transport.MsgChannelEOF:
			m.handleEOF(r)
		case transport.MsgChannelClose:
			m.handleClose(r)
		case transport.MsgChannelRequest:
			m.handleRequest(r)
		case transport.MsgChannelSuccess:
			m.handleRequestReply(r, true)
		case transport.MsgChannelFailure:
			m.handleRequestReply(r, false)
		case transport.MsgGlobalRequest, transport.MsgRequestSuccess, transport.MsgRequestFailure:
			// global (connection-wide) requests and their replies are
			// not dispatched anywhere; Serve discards them.
		}
	}
}

func (m *Multiplexer) closeAll(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.chans {
		ch.mu.Lock()
		if !ch.closed {
			ch.closed = true
			close(ch.incoming)
			close(ch.extIncoming)
		}
		ch.mu.Unlock()
		ch.windowCond.Broadcast()
	}
}

func (m *Multiplexer) lookup(id uint32) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chans[id]
	return ch, ok
}

func (m *Multiplexer) handleOpen(r *sshwire.Buffer) {
	chanType, _ := r.GetString()
	senderID, _ := r.GetUint32()
	window, _ := r.GetUint32()
	maxPkt, _ := r.GetUint32()
	extra := r.Rest()
	m.openRequests <- &OpenRequest{
		ChannelType: chanType, SenderID: senderID,
		InitialWindow: window, MaxPacketSize: maxPkt,
		ExtraData: extra, mux: m,
	}
}

func (m *Multiplexer) handleOpenConfirmation(r *sshwire.Buffer) {
	localID, _ := r.GetUint32()
	remoteID, _ := r.GetUint32()
	remoteWindow, _ := r.GetUint32()
	remoteMaxPkt, _ := r.GetUint32()
	m.mu.Lock()
	sink, ok := m.pendingOpens[localID]
	delete(m.pendingOpens, localID)
	m.mu.Unlock()
	if ok {
		sink <- openResult{remoteID: remoteID, remoteWindow: remoteWindow, remoteMaxPkt: remoteMaxPkt, ok: true}
	}
}

func (m *Multiplexer) handleOpenFailure(r *sshwire.Buffer) {
	localID, _ := r.GetUint32()
	reason, _ := r.GetUint32()
	msg, _ := r.GetString()
	m.mu.Lock()
	sink, ok := m.pendingOpens[localID]
	delete(m.pendingOpens, localID)
	m.mu.Unlock()
	if ok {
		sink <- openResult{failureReason: reason, failureMsg: msg, ok: false}
	}
}

func (m *Multiplexer) handleWindowAdjust(r *sshwire.Buffer) {
	localID, _ := r.GetUint32()
	n, _ := r.GetUint32()
	if ch, ok := m.lookup(localID); ok {
		ch.mu.Lock()
		ch.sendWindow += n
		ch.mu.Unlock()
		ch.windowCond.Broadcast()
	}
}

// handleData enforces the §4.7 oversend invariant: a DATA message
// larger than our advertised receive window is a protocol violation.
func (m *Multiplexer) handleData(r *sshwire.Buffer) {
	localID, _ := r.GetUint32()
	data, err := r.GetBytes()
	if err != nil {
		return
	}
	ch, ok := m.lookup(localID)
	if !ok {
		return
	}
	ch.mu.Lock()
	if uint32(len(data)) > ch.recvWindow {
		ch.mu.Unlock()
		_ = m.session.Disconnect(transport.DisconnectProtocolError, "channel data exceeded advertised window")
		return
	}
	ch.recvWindow -= uint32(len(data))
	ch.mu.Unlock()
	ch.incoming <- data
}

func (m *Multiplexer) handleExtendedData(r *sshwire.Buffer) {
	localID, _ := r.GetUint32()
	dataType, _ := r.GetUint32()
	data, err := r.GetBytes()
	if err != nil {
		return
	}
	if ch, ok := m.lookup(localID); ok {
		ch.extIncoming <- extData{dataType: dataType, data: data}
	}
}

func (m *Multiplexer) handleEOF(r *sshwire.Buffer) {
	localID, _ := r.GetUint32()
	if ch, ok := m.lookup(localID); ok {
		ch.mu.Lock()
		ch.eofRecv = true
		ch.mu.Unlock()
		close(ch.incoming)
	}
}

func (m *Multiplexer) handleClose(r *sshwire.Buffer) {
	localID, _ := r.GetUint32()
	ch, ok := m.lookup(localID)
	if !ok {
		return
	}
	ch.mu.Lock()
	ch.closeRecv = true
	needsSend := !ch.closeSent
	ch.mu.Unlock()
	if needsSend {
		_ = ch.Close()
	}
	m.mu.Lock()
	delete(m.chans, localID)
	m.mu.Unlock()
}

func (m *Multiplexer) handleRequest(r *sshwire.Buffer) {
	localID, _ := r.GetUint32()
	reqType, _ := r.GetString()
	wantReply, _ := r.GetBool()
	payload := r.Rest()
	if ch, ok := m.lookup(localID); ok {
		ch.incomingRequests <- &IncomingRequest{Type: reqType, WantReply: wantReply, Payload: payload, ch: ch}
	}
}

func (m *Multiplexer) handleRequestReply(r *sshwire.Buffer, success bool) {
	localID, _ := r.GetUint32()
	if ch, ok := m.lookup(localID); ok {
		select {
		case pr := <-ch.pendingRequests:
			pr.done <- success
		default:
		}
	}
}

// Requests returns incoming channel requests (exec, shell, pty-req,
// ...) for the server side to answer in arrival order.
func (c *Channel) Requests() <-chan *IncomingRequest { return c.incomingRequests }

// SendRequest issues a channel request; if wantReply, blocks until the
// peer answers with CHANNEL_SUCCESS/FAILURE, in FIFO order per §4.7.
func (c *Channel) SendRequest(name string, wantReply bool, payload []byte) (bool, error) {
	var b sshwire.Buffer
	b.PutUint8(transport.MsgChannelRequest)
	b.PutUint32(c.remoteID)
	b.PutString(name)
	b.PutBool(wantReply)
	b.PutFixed(payload)

	var pr *pendingRequest
	if wantReply {
		pr = &pendingRequest{done: make(chan bool, 1)}
		c.pendingRequests <- pr
	}
	if err := c.mux.session.WriteMessage(b.Bytes()); err != nil {
		return false, err
	}
	if !wantReply {
		return true, nil
	}
	return <-pr.done, nil
}

// Write sends p as one or more CHANNEL_DATA messages, chunked to
// respect both maxPacketSize and the current send-window credit,
// blocking on windowCond when the window is exhausted until a
// WINDOW_ADJUST arrives.
func (c *Channel) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		c.mu.Lock()
		for c.sendWindow == 0 && !c.closed {
			// window replenishment arrives asynchronously via the
			// Multiplexer's read loop (handleWindowAdjust), which
			// broadcasts on windowCond once sendWindow grows.
			c.windowCond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return written, io.ErrClosedPipe
		}
		chunk := uint32(len(p))
		if chunk > c.maxPacketSize {
			chunk = c.maxPacketSize
		}
		if chunk > c.sendWindow {
			chunk = c.sendWindow
		}
		c.sendWindow -= chunk
		c.mu.Unlock()

		var b sshwire.Buffer
		b.PutUint8(transport.MsgChannelData)
		b.PutUint32(c.remoteID)
		b.PutBytes(p[:chunk])
		if err := c.mux.session.WriteMessage(b.Bytes()); err != nil {
			return written, err
		}
		written += int(chunk)
		p = p[chunk:]
	}
	return written, nil
}

// Read returns data from the peer, consuming it in the order received.
// It replenishes our advertised receive window once consumption passes
// the high-water mark, via CHANNEL_WINDOW_ADJUST.
func (c *Channel) Read(p []byte) (int, error) {
	if len(c.readBuf) == 0 {
		chunk, ok := <-c.incoming
		if !ok {
			return 0, io.EOF
		}
		c.readBuf = chunk
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]

	c.mu.Lock()
	c.pendingGrant += uint32(n)
	adjust := uint32(0)
	if c.pendingGrant >= c.recvHighWaterMark {
		adjust = c.pendingGrant
		c.pendingGrant = 0
		c.recvWindow += adjust
	}
	c.mu.Unlock()

	if adjust > 0 {
		var b sshwire.Buffer
		b.PutUint8(transport.MsgChannelWindowAdjust)
		b.PutUint32(c.remoteID)
		b.PutUint32(adjust)
		if err := c.mux.session.WriteMessage(b.Bytes()); err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadExtended reads one extended-data chunk (stderr, typically) along
// with its data-type code (SSH_EXTENDED_DATA_STDERR = 1).
func (c *Channel) ReadExtended() (dataType uint32, data []byte, err error) {
	chunk, ok := <-c.extIncoming
	if !ok {
		return 0, nil, io.EOF
	}
	return chunk.dataType, chunk.data, nil
}

// SendEOF signals no more data will be sent from this side (§4.7).
func (c *Channel) SendEOF() error {
	c.mu.Lock()
	if c.eofSent {
		c.mu.Unlock()
		return nil
	}
	c.eofSent = true
	c.mu.Unlock()

	var b sshwire.Buffer
	b.PutUint8(transport.MsgChannelEOF)
	b.PutUint32(c.remoteID)
	return c.mux.session.WriteMessage(b.Bytes())
}

// Close exchanges CHANNEL_CLOSE; the channel's local-id is only free
// for reuse once CLOSE has been both sent and received (§4.7).
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closeSent {
		c.mu.Unlock()
		return nil
	}
	c.closeSent = true
	c.closed = true
	c.mu.Unlock()
	c.windowCond.Broadcast()

	var b sshwire.Buffer
	b.PutUint8(transport.MsgChannelClose)
	b.PutUint32(c.remoteID)
	return c.mux.session.WriteMessage(b.Bytes())
}
