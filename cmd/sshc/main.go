//go:build !windows
// +build !windows

// Command sshc is the client front-end: it dials a server, drives
// §4.4's handshake, authenticates over §4.6, opens a "session" channel
// and either runs an interactive shell or a single remote command.
// Grounded on xs/xs.go's flag layout and its MakeRaw/ReadPassword/
// isatty-gated interactive-vs-batch split, replumbed onto this
// module's transport/userauth/channel stack.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/mattn/go-isatty"

	"blitter.com/go/sshx/channel"
	"blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/service"
	"blitter.com/go/sshx/sshcipher"
	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/terminal"
	"blitter.com/go/sshx/transport"
	"blitter.com/go/sshx/userauth"
)

func main() {
	var server string
	var user string
	var cmdStr string
	var knownHostsPath string
	var insecureSkipHostKeyCheck bool
	var useKCP bool
	var kcpPassphrase string
	var kcpSalt string
	var kcpAlg string

	flag.StringVar(&server, "s", "", "server `host:port`")
	flag.StringVar(&user, "u", os.Getenv("USER"), "remote username")
	flag.StringVar(&cmdStr, "x", "", "run `command` (if not specified, run interactive shell)")
	flag.StringVar(&knownHostsPath, "known-hosts", os.Getenv("HOME")+"/.sshx/known_hosts", "known-hosts file")
	flag.BoolVar(&insecureSkipHostKeyCheck, "insecure-skip-host-key-check", false, "trust any host key (testing only)")
	flag.BoolVar(&useKCP, "kcp", false, "dial over KCP (reliable UDP) instead of TCP")
	flag.StringVar(&kcpPassphrase, "kcp-passphrase", "", "KCP block-cipher passphrase (required with -kcp)")
	flag.StringVar(&kcpSalt, "kcp-salt", "", "KCP pbkdf2 salt (required with -kcp, must match the server's)")
	flag.StringVar(&kcpAlg, "kcp-alg", string(transport.KCPAES), "KCP block cipher: KCP_NONE|KCP_AES|KCP_BLOWFISH|KCP_TWOFISH|KCP_SALSA20")
	flag.Parse()

	if server == "" {
		flag.Usage()
		os.Exit(1)
	}

	t, err := dialTransport(server, useKCP, kcpPassphrase, kcpSalt, kcpAlg)
	if err != nil {
		log.Fatal(err)
	}
	defer t.Close()

	verifier, err := hostKeyVerifier(knownHostsPath, insecureSkipHostKeyCheck)
	if err != nil {
		log.Fatal(err)
	}

	cfg := transport.DefaultConfig(transport.RoleClient, sshcipher.DefaultRandom)
	cfg.HostKeyVerifier = verifier
	s := transport.NewSession(cfg, t)

	if err := s.ExchangeIdentification(); err != nil {
		log.Fatal("identification: ", err)
	}
	if err := transport.RunKex(s, nil, verifier); err != nil {
		log.Fatal("key exchange: ", err)
	}

	if err := service.RequestService(s, userauth.ServiceName); err != nil {
		log.Fatal("userauth service: ", err)
	}
	if err := authenticate(s, user); err != nil {
		log.Fatal("authentication: ", err)
	}
	if err := service.RequestService(s, channel.ServiceName); err != nil {
		log.Fatal("connection service: ", err)
	}

	mux := channel.NewMultiplexer(s)
	go func() { _ = mux.Serve() }()

	ch, err := mux.Open("session", nil)
	if err != nil {
		log.Fatal("open channel: ", err)
	}

	interactive := cmdStr == "" && isatty.IsTerminal(os.Stdin.Fd())

	if interactive {
		runInteractive(ch)
	} else {
		runBatch(ch, cmdStr)
	}
}

// dialTransport opens the underlying byte stream to server, either a
// plain TCP connection (the default) or a KCP (reliable-UDP) session
// when -kcp is given — grounded on hkexnet/kcp.go's kcpDial, now
// selected as an alternate transport.Transport collaborator rather
// than the teacher's only transport.
func dialTransport(server string, useKCP bool, kcpPassphrase, kcpSalt, kcpAlg string) (sshtransport.Transport, error) {
	if !useKCP {
		conn, err := net.Dial("tcp", server)
		if err != nil {
			return nil, err
		}
		return transport.NewNetTransport(conn), nil
	}
	if kcpPassphrase == "" || kcpSalt == "" {
		return nil, sshtransport.Wrap(sshtransport.KindIO, nil, "-kcp-passphrase and -kcp-salt are required with -kcp")
	}
	return transport.DialKCP(server, []byte(kcpPassphrase), []byte(kcpSalt), transport.KCPBlockCryptName(kcpAlg))
}

func authenticate(s *transport.Session, user string) error {
	fmt.Fprintf(os.Stderr, "%s@%s's password: ", user, "")
	var pw []byte
	var err error
	if isatty.IsTerminal(os.Stdin.Fd()) {
		pw, err = terminal.ReadPassword(os.Stdin.Fd())
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	ok, failure, _, err := userauth.RequestPassword(s, user, string(pw))
	if err != nil {
		return err
	}
	if !ok {
		methods := "none"
		if failure != nil {
			methods = fmt.Sprint(failure.CanContinue)
		}
		return sshtransport.Wrap(sshtransport.KindAuth, nil,
			"authentication failed, server allows: %s", methods)
	}
	return nil
}

func hostKeyVerifier(path string, insecure bool) (sshtransport.HostKeyVerifier, error) {
	if insecure {
		return trustAllVerifier{}, nil
	}
	v, err := kex.NewKnownHostsVerifier(path)
	if err != nil {
		return nil, err
	}
	v.AcceptNew = true
	return v, nil
}

// trustAllVerifier skips host-key verification entirely; only ever
// selected via an explicit opt-in flag, for local testing against a
// server whose key isn't in known_hosts yet.
type trustAllVerifier struct{}

func (trustAllVerifier) Accept(hostname string, port int, keyBlob []byte) bool { return true }

func runInteractive(ch *channel.Channel) {
	oldState, err := terminal.MakeRaw(os.Stdin.Fd())
	if err == nil {
		defer terminal.Restore(os.Stdin.Fd(), oldState)
	}

	if ok, err := ch.RequestPty(channel.PtyRequest{
		Term:        envOr("TERM", "xterm-256color"),
		WidthChars:  80,
		HeightChars: 24,
	}); err != nil || !ok {
		log.Println("pty-req refused:", err)
	}
	if ok, err := ch.Shell(); err != nil || !ok {
		log.Fatal("shell request refused: ", err)
	}

	go func() { _, _ = io.Copy(ch, os.Stdin) }()
	_, _ = io.Copy(os.Stdout, ch)
}

func runBatch(ch *channel.Channel, cmd string) {
	if ok, err := ch.Exec(cmd); err != nil || !ok {
		log.Fatal("exec refused: ", err)
	}
	go func() { _, _ = io.Copy(ch, os.Stdin) }()
	_, _ = io.Copy(os.Stdout, ch)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
