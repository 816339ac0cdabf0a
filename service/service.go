// Package service implements the §4.5 service layer: SERVICE_REQUEST/
// SERVICE_ACCEPT negotiation and dispatch of post-accept traffic to the
// registered handler owning that message-number range.
//
// The teacher has no service layer at all — hkexnet.Conn runs a single
// fixed protocol end to end. This package is grounded on the shape of
// tredeske-u's AuthCtx-style dependency injection (function-typed
// collaborator fields) generalized into a small registry, the same
// pattern sshalgo.Registry already establishes for algorithm names.
package service

import (
	"fmt"
	"sort"
	"sync"

	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/sshwire"
	"blitter.com/go/sshx/transport"
)

// Handler owns one named service ("ssh-userauth", "ssh-connection") once
// it has been accepted: Run is invoked with the Session positioned right
// after SERVICE_ACCEPT/REQUEST and should loop until the service ends or
// the Session closes.
type Handler interface {
	Name() string
	MsgRange() transport.MsgRange
	Run(s *transport.Session) error
}

// Registry claims non-overlapping message-number ranges for named
// services and resolves SERVICE_REQUEST to a Handler. Overlapping claims
// are a programming error caught at Register time (§4.5), not a runtime
// negotiation outcome.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[h.Name()]; exists {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil,
			"service: %q already registered", h.Name())
	}
	for name, existing := range r.handlers {
		if existing.MsgRange().Overlaps(h.MsgRange()) {
			return sshtransport.Wrap(sshtransport.KindProtocol, nil,
				"service: %q message range overlaps %q", h.Name(), name)
		}
	}
	r.handlers[h.Name()] = h
	return nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns registered service names, sorted, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RequestService is the client side of §4.5: send SERVICE_REQUEST and
// block for SERVICE_ACCEPT. A non-matching or unexpected reply is a
// protocol error.
func RequestService(s *transport.Session, name string) error {
	var req sshwire.Buffer
	req.PutUint8(transport.MsgServiceRequest)
	req.PutString(name)
	if err := s.WriteMessage(req.Bytes()); err != nil {
		return err
	}

	payload, err := s.ReadMessage()
	if err != nil {
		return err
	}
	r := sshwire.NewBuffer(payload)
	msgType, err := r.GetUint8()
	if err != nil || msgType != transport.MsgServiceAccept {
		return sshtransport.Wrap(sshtransport.KindProtocol, err, "service: expected SERVICE_ACCEPT")
	}
	accepted, err := r.GetString()
	if err != nil {
		return err
	}
	if accepted != name {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil,
			"service: accepted %q, requested %q", accepted, name)
	}
	return nil
}

// ServeOne is the server side of §4.5: read one SERVICE_REQUEST, look it
// up in reg, reply SERVICE_ACCEPT, and hand control to the Handler. An
// unknown service name disconnects the session (no SERVICE_REJECT
// message exists in RFC4253 — a disconnect is the only defined response).
func ServeOne(s *transport.Session, reg *Registry) error {
	payload, err := s.ReadMessage()
	if err != nil {
		return err
	}
	r := sshwire.NewBuffer(payload)
	msgType, err := r.GetUint8()
	if err != nil || msgType != transport.MsgServiceRequest {
		return sshtransport.Wrap(sshtransport.KindProtocol, err, "service: expected SERVICE_REQUEST")
	}
	name, err := r.GetString()
	if err != nil {
		return err
	}

	h, ok := reg.Lookup(name)
	if !ok {
		_ = s.Disconnect(transport.DisconnectServiceNotAvailable,
			fmt.Sprintf("service %q not available", name))
		return sshtransport.Wrap(sshtransport.KindProtocol, nil, "service: %q not available", name)
	}

	var accept sshwire.Buffer
	accept.PutUint8(transport.MsgServiceAccept)
	accept.PutString(name)
	if err := s.WriteMessage(accept.Bytes()); err != nil {
		return err
	}
	return h.Run(s)
}
