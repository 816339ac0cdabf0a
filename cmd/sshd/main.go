//go:build !windows
// +build !windows

// Command sshd is the server front-end: it listens for TCP
// connections, drives §4.4's handshake and §4.6's userauth over each
// one, then serves the connection-protocol channel layer, spawning a
// PTY-backed shell for "shell"/"exec" requests and relaying "subsystem
// sftp" to the system's sftp-server binary. Grounded on xsd/xsd.go's
// accept loop and its pty.Start/io.Copy/goutmp session-accounting
// shape, replumbed onto this module's own transport/userauth/channel
// stack instead of xsnet.Conn's single fixed protocol.
package main

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os/exec"
	"syscall"
	"unsafe"

	"github.com/kr/pty"

	"blitter.com/go/goutmp"

	"blitter.com/go/sshx/channel"
	"blitter.com/go/sshx/config"
	"blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/logger"
	"blitter.com/go/sshx/service"
	"blitter.com/go/sshx/sshcipher"
	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/transport"
	"blitter.com/go/sshx/userauth"
)

// sshOpenAdministrativelyProhibited is RFC4254 §5.1's SSH_OPEN_
// ADMINISTRATIVELY_PROHIBITED reason code; package channel defines no
// open-failure reason constants, so a policy rejection here uses the
// RFC value directly.
const sshOpenAdministrativelyProhibited = 1

func main() {
	var listenAddr string
	var passwdFile string
	var cfgPath string
	var sftpServerPath string
	var useKCP bool
	var kcpPassphrase string
	var kcpSalt string
	var kcpAlg string

	flag.StringVar(&listenAddr, "l", ":2022", "listen address")
	flag.StringVar(&passwdFile, "passwd", "/etc/sshx.passwd", "bcrypt credential file (see cmd/xspasswd-tool)")
	flag.StringVar(&cfgPath, "c", "", "YAML config file (optional)")
	flag.StringVar(&sftpServerPath, "sftp-server", "/usr/lib/openssh/sftp-server", "path to the sftp-server binary used for \"subsystem sftp\"")
	flag.BoolVar(&useKCP, "kcp", false, "listen over KCP (reliable UDP) instead of TCP")
	flag.StringVar(&kcpPassphrase, "kcp-passphrase", "", "KCP block-cipher passphrase (required with -kcp)")
	flag.StringVar(&kcpSalt, "kcp-salt", "", "KCP pbkdf2 salt (required with -kcp, must match the client's)")
	flag.StringVar(&kcpAlg, "kcp-alg", string(transport.KCPAES), "KCP block cipher: KCP_NONE|KCP_AES|KCP_BLOWFISH|KCP_TWOFISH|KCP_SALSA20")
	flag.Parse()

	opts := config.Defaults()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			log.Fatal(err)
		}
		opts = loaded
	}
	if err := opts.Validate(); err != nil {
		log.Fatal(err)
	}

	signer, err := ephemeralHostKey()
	if err != nil {
		log.Fatal(err)
	}

	if useKCP && (kcpPassphrase == "" || kcpSalt == "") {
		log.Fatal("-kcp-passphrase and -kcp-salt are required with -kcp")
	}

	var ln net.Listener
	if useKCP {
		ln, err = transport.ListenKCP(listenAddr, []byte(kcpPassphrase), []byte(kcpSalt), transport.KCPBlockCryptName(kcpAlg))
	} else {
		ln, err = net.Listen("tcp", listenAddr)
	}
	if err != nil {
		log.Fatal(err)
	}
	_ = logger.LogInfo("listening on " + listenAddr)

	for {
		t, err := acceptTransport(ln, useKCP)
		if err != nil {
			_ = logger.LogErr("accept: " + err.Error())
			continue
		}
		go handleConn(t, signer, opts, passwdFile, sftpServerPath)
	}
}

// acceptTransport accepts one connection from ln, wrapping it as a
// Transport via AcceptKCP when the listener is KCP-backed (so KCP
// sessions route through their own Transport rather than relying on
// *kcp.UDPSession also satisfying net.Conn), or via NewNetTransport
// otherwise.
func acceptTransport(ln net.Listener, useKCP bool) (sshtransport.Transport, error) {
	if useKCP {
		return transport.AcceptKCP(ln)
	}
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	return transport.NewNetTransport(conn), nil
}

func ephemeralHostKey() (*kex.ED25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, err
	}
	return &kex.ED25519Signer{Priv: priv}, nil
}

func handleConn(t sshtransport.Transport, signer *kex.ED25519Signer, opts *config.Options, passwdFile, sftpServerPath string) {
	defer t.Close()

	cfg := transport.DefaultConfig(transport.RoleServer, sshcipher.DefaultRandom)
	cfg.HostKeys = []sshtransport.Signer{signer}
	s := transport.NewSession(cfg, t)

	if err := s.ExchangeIdentification(); err != nil {
		_ = logger.LogErr("ident: " + err.Error())
		return
	}
	if err := transport.RunKex(s, signer, nil); err != nil {
		_ = logger.LogErr("kex: " + err.Error())
		return
	}

	reg := service.NewRegistry()
	authCfg := userauth.Config{
		MaxAuthAttempts:  opts.MaxAuthRequests,
		Methods:          []string{"publickey", "password"},
		PasswordVerifier: userauth.NewFileStore(passwdFile),
	}
	if err := reg.Register(userauth.NewHandler(authCfg)); err != nil {
		_ = logger.LogErr(err.Error())
		return
	}
	if err := reg.Register(&connectionHandler{sftpServerPath: sftpServerPath}); err != nil {
		_ = logger.LogErr(err.Error())
		return
	}

	if err := service.ServeOne(s, reg); err != nil {
		_ = logger.LogErr("userauth: " + err.Error())
		return
	}
	if err := service.ServeOne(s, reg); err != nil {
		_ = logger.LogErr("connection: " + err.Error())
		return
	}
}

// connectionHandler implements service.Handler for "ssh-connection",
// owning one Multiplexer per transport session.
type connectionHandler struct {
	sftpServerPath string
}

func (h *connectionHandler) Name() string { return channel.ServiceName }

func (h *connectionHandler) MsgRange() transport.MsgRange {
	return transport.MsgRange{Low: transport.MsgGlobalRequest, High: transport.MsgChannelFailure}
}

func (h *connectionHandler) Run(s *transport.Session) error {
	mux := channel.NewMultiplexer(s)

	serveErr := make(chan error, 1)
	go func() { serveErr <- mux.Serve() }()

	for req := range mux.Accepts() {
		switch req.ChannelType {
		case "session":
			ch, err := req.Accept()
			if err != nil {
				_ = logger.LogErr("accept session channel: " + err.Error())
				continue
			}
			go serveSession(ch, h.sftpServerPath)
		default:
			_ = req.Reject(sshOpenAdministrativelyProhibited, "channel type not supported")
		}
	}
	return <-serveErr
}

// serveSession answers one "session" channel's requests: pty-req,
// window-change, shell/exec (PTY-backed), and "subsystem sftp"
// (relayed to an external sftp-server process), the same repertoire
// xsd.go's runShellAs offered, minus its setuid/login special-casing.
func serveSession(ch *channel.Channel, sftpServerPath string) {
	var ptyReq channel.PtyRequest
	havePty := false

	for req := range ch.Requests() {
		switch req.Type {
		case channel.RequestPtyReq:
			p, err := channel.ParsePtyRequest(req.Payload)
			if err == nil {
				ptyReq = p
				havePty = true
			}
			_ = req.Reply(err == nil)

		case channel.RequestShell, channel.RequestExec:
			cmdLine := "/bin/bash -i -l"
			if req.Type == channel.RequestExec {
				if c, err := channel.ParseExecPayload(req.Payload); err == nil {
					cmdLine = c
				}
			}
			_ = req.Reply(true)
			runShell(ch, cmdLine, ptyReq, havePty)
			return

		case channel.RequestSubsystem:
			name, err := channel.ParseSubsystemPayload(req.Payload)
			if err != nil || name != "sftp" {
				_ = req.Reply(false)
				continue
			}
			_ = req.Reply(true)
			runSftpServer(ch, sftpServerPath)
			return

		case channel.RequestWindowChange:
			_, _, _, _, err := channel.ParseWindowChangePayload(req.Payload)
			_ = req.Reply(err == nil)

		default:
			_ = req.Reply(false)
		}
	}
}

func runShell(ch *channel.Channel, cmdLine string, ptyReq channel.PtyRequest, havePty bool) {
	defer ch.Close()

	cmd := exec.Command("/bin/bash", "-c", cmdLine)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		_ = logger.LogErr("pty.Start: " + err.Error())
		_ = ch.SendExitStatus(1)
		return
	}
	defer ptmx.Close()

	if havePty && ptyReq.WidthChars > 0 {
		_ = pty.Setsize(ptmx, &pty.Winsize{
			Rows: uint16(ptyReq.HeightChars),
			Cols: uint16(ptyReq.WidthChars),
		})
	}

	if pts, nameErr := ptsName(ptmx.Fd()); nameErr == nil {
		utmpx := goutmp.Put_utmp("remote", pts, "sshx")
		defer goutmp.Unput_utmp(utmpx)
		goutmp.Put_lastlog_entry("sshx", "remote", pts, "sshx")
	}

	go func() { _, _ = io.Copy(ptmx, ch) }()
	_, _ = io.Copy(ch, ptmx)

	_ = cmd.Wait()
	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	_ = ch.SendExitStatus(uint32(code))
}

// ptsName resolves a pty master fd to its slave device path, grounded
// on xsd.go's own TIOCGPTN-based ptsName (Linux-only, same as that
// file).
func ptsName(fd uintptr) (string, error) {
	var n uint32
	if _, _, errno := syscall.Syscall6(syscall.SYS_IOCTL, fd, syscall.TIOCGPTN, uintptr(unsafe.Pointer(&n)), 0, 0, 0); errno != 0 {
		return "", errno
	}
	return fmt.Sprintf("/dev/pts/%d", n), nil
}

// runSftpServer relays this channel's bytes to and from an external
// sftp-server process — this module's own sftp package is a client
// only, per its scope, so the server half of "subsystem sftp" is
// delegated the same way OpenSSH's sshd does.
func runSftpServer(ch *channel.Channel, sftpServerPath string) {
	defer ch.Close()

	cmd := exec.Command(sftpServerPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = logger.LogErr(err.Error())
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = logger.LogErr(err.Error())
		return
	}
	if err := cmd.Start(); err != nil {
		_ = logger.LogErr("starting sftp-server: " + err.Error())
		return
	}

	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(stdin, ch); done <- struct{}{} }()
	go func() { _, _ = io.Copy(ch, stdout); done <- struct{}{} }()
	<-done
	_ = cmd.Wait()
}
