package kex

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"blitter.com/go/sshx/sshtransport"
)

// KnownHostsVerifier is a HostKeyVerifier backed by a flat file of
// "host:port:base64(sha256(keyblob))" records, one per line, comments
// starting with '#' — the same colon-delimited record-scan shape as
// hkexauth.go's AuthUser, adapted from a username:cookie:cmdlist record
// to a host:port:fingerprint one.
type KnownHostsVerifier struct {
	path  string
	mu    sync.Mutex
	known map[string]string // "host:port" -> fingerprint
	// AcceptNew, when true, appends an unseen host's key to the file
	// instead of rejecting it (trust-on-first-use). Default false
	// (strict): unseen hosts are rejected.
	AcceptNew bool
}

func NewKnownHostsVerifier(path string) (*KnownHostsVerifier, error) {
	v := &KnownHostsVerifier{path: path, known: make(map[string]string)}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return v, nil
	}
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindIO, err, "known_hosts: open %s", path)
	}
	defer f.Close()
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		v.known[parts[0]+":"+parts[1]] = parts[2]
	}
	if err := scan.Err(); err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindIO, err, "known_hosts: read %s", path)
	}
	return v, nil
}

func fingerprint(keyBlob []byte) string {
	sum := sha256.Sum256(keyBlob)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (v *KnownHostsVerifier) Accept(hostname string, port int, keyBlob []byte) bool {
	key := hostname + ":" + strconv.Itoa(port)
	want := fingerprint(keyBlob)

	v.mu.Lock()
	defer v.mu.Unlock()

	if got, ok := v.known[key]; ok {
		return got == want
	}
	if !v.AcceptNew {
		return false
	}
	v.known[key] = want
	v.appendLocked(key, want)
	return true
}

func (v *KnownHostsVerifier) appendLocked(key, fp string) {
	f, err := os.OpenFile(v.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return // best-effort; Accept() already returned true for this session
	}
	defer f.Close()
	parts := strings.SplitN(key, ":", 2)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s:%s:%s\n", parts[0], parts[1], fp)
	f.Write(buf.Bytes())
}

// StrictHostKeyVerifier rejects any host key not already present in a
// caller-supplied allow-list, keyed by "host:port" -> fingerprint. This
// is the default client posture the spec requires (§6): unattended TOFU
// is opt-in via KnownHostsVerifier.AcceptNew, never the default.
type StrictHostKeyVerifier struct {
	Allow map[string]string
}

func (v StrictHostKeyVerifier) Accept(hostname string, port int, keyBlob []byte) bool {
	want, ok := v.Allow[hostname+":"+strconv.Itoa(port)]
	if !ok {
		return false
	}
	return want == fingerprint(keyBlob)
}

var _ sshtransport.HostKeyVerifier = (*KnownHostsVerifier)(nil)
var _ sshtransport.HostKeyVerifier = StrictHostKeyVerifier{}
