// Package sshalgo implements the extension registries for KEX, host-key,
// cipher, MAC, and compression algorithms (§9 design note:
// "Extension registries"). The teacher enumerates algorithms as
// iota-based constants switched over directly in xsnet.Conn
// (CAlgAES256/CAlgTwofish128/... in xsnet/net.go, KEX_HERRADURA256/...
// in hkexnet/consts.go). That doesn't extend at runtime. Here a Registry
// holds a fixed set of built-ins plus a case-insensitive,
// insertion-checked map of runtime-registered extensions; registration
// rejects collisions with either set.
package sshalgo

import (
	"sort"
	"strings"
	"sync"

	"blitter.com/go/sshx/sshtransport"
)

// Kind names which registry a name belongs to, purely for error messages.
type Kind string

const (
	KindKex         Kind = "kex"
	KindHostKey     Kind = "host-key"
	KindCipher      Kind = "cipher"
	KindMAC         Kind = "mac"
	KindCompression Kind = "compression"
)

// Registry is a name -> factory map. T is left as interface{} at this
// layer; package kex and package sshcipher instantiate Registry with
// their own concrete factory function types.
type Registry struct {
	kind     Kind
	mu       sync.RWMutex
	builtins map[string]interface{}
	extra    map[string]interface{}
}

// NewRegistry creates a Registry pre-populated with builtins. Builtins
// are immutable for the lifetime of the Registry.
func NewRegistry(kind Kind, builtins map[string]interface{}) *Registry {
	r := &Registry{
		kind:     kind,
		builtins: make(map[string]interface{}, len(builtins)),
		extra:    make(map[string]interface{}),
	}
	for k, v := range builtins {
		r.builtins[strings.ToLower(k)] = v
	}
	return r
}

// Register adds an extension entry. It fails if name collides
// (case-insensitively) with a built-in or a previously registered
// extension — the insertion-checked part of §9's design note.
func (r *Registry) Register(name string, factory interface{}) error {
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.builtins[key]; ok {
		return sshtransport.Wrap(sshtransport.KindNegotiation, nil,
			"%s: %q collides with a built-in algorithm", r.kind, name)
	}
	if _, ok := r.extra[key]; ok {
		return sshtransport.Wrap(sshtransport.KindNegotiation, nil,
			"%s: %q already registered as an extension", r.kind, name)
	}
	r.extra[key] = factory
	return nil
}

// Lookup resolves name to its factory, built-in or extension.
func (r *Registry) Lookup(name string) (interface{}, bool) {
	key := strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.builtins[key]; ok {
		return v, true
	}
	if v, ok := r.extra[key]; ok {
		return v, true
	}
	return nil, false
}

// Names returns every registered name (built-in and extension), sorted,
// builtins first in map order is not guaranteed so callers needing a
// canonical preference order should maintain their own ordered list —
// this is only used for introspection/diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.builtins)+len(r.extra))
	for k := range r.builtins {
		out = append(out, k)
	}
	for k := range r.extra {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Negotiate implements §3's AlgorithmSet negotiation rule and the
// testable property in §8: the chosen algorithm is the first element of
// client preference list c that also appears in server list s. It
// returns Negotiation error (NO_MATCHING_ALGORITHM) if none match.
func Negotiate(kind Kind, c, s []string) (string, error) {
	serverSet := make(map[string]bool, len(s))
	for _, name := range s {
		serverSet[strings.ToLower(name)] = true
	}
	for _, name := range c {
		if serverSet[strings.ToLower(name)] {
			return name, nil
		}
	}
	return "", sshtransport.Wrap(sshtransport.KindNegotiation, nil,
		"%s: no matching algorithm (client=%v server=%v)", kind, c, s)
}
