//go:build !windows
// +build !windows

// Command sftp is a line-oriented SFTP client: it dials a server,
// authenticates, opens the "sftp" subsystem channel and drives package
// sftp's Client over it, exposing get/put/ls/rm/mkdir/rmdir/ln/mv as
// one-shot subcommands. Grounded on xs/xs.go's dial/auth sequence
// (shared with cmd/sshc) plus demo/client's command-per-invocation
// shape from the tredeske-u pack, rather than that demo's interactive
// REPL.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"blitter.com/go/sshx/channel"
	"blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/service"
	"blitter.com/go/sshx/sftp"
	"blitter.com/go/sshx/sshcipher"
	"blitter.com/go/sshx/sshtransport"
	"blitter.com/go/sshx/terminal"
	"blitter.com/go/sshx/transport"
	"blitter.com/go/sshx/userauth"
)

func main() {
	var server string
	var user string
	var knownHostsPath string
	var insecure bool

	flag.StringVar(&server, "s", "", "server `host:port`")
	flag.StringVar(&user, "u", os.Getenv("USER"), "remote username")
	flag.StringVar(&knownHostsPath, "known-hosts", os.Getenv("HOME")+"/.sshx/known_hosts", "known-hosts file")
	flag.BoolVar(&insecure, "insecure-skip-host-key-check", false, "trust any host key (testing only)")
	flag.Parse()

	args := flag.Args()
	if server == "" || len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: sftp -s host:port [-u user] <get|put|ls|rm|mkdir|rmdir|mv|ln> args...")
		os.Exit(1)
	}

	client, closeConn, err := dial(server, user, knownHostsPath, insecure)
	if err != nil {
		log.Fatal(err)
	}
	defer closeConn()
	defer client.Close()

	if err := runCommand(client, args[0], args[1:]); err != nil {
		log.Fatal(err)
	}
}

func dial(server, user, knownHostsPath string, insecure bool) (*sftp.Client, func(), error) {
	conn, err := net.Dial("tcp", server)
	if err != nil {
		return nil, nil, err
	}

	verifier, err := hostKeyVerifier(knownHostsPath, insecure)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	t := transport.NewNetTransport(conn)
	cfg := transport.DefaultConfig(transport.RoleClient, sshcipher.DefaultRandom)
	cfg.HostKeyVerifier = verifier
	s := transport.NewSession(cfg, t)

	if err := s.ExchangeIdentification(); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := transport.RunKex(s, nil, verifier); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := service.RequestService(s, userauth.ServiceName); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := authenticate(s, user); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := service.RequestService(s, channel.ServiceName); err != nil {
		conn.Close()
		return nil, nil, err
	}

	mux := channel.NewMultiplexer(s)
	go func() { _ = mux.Serve() }()

	ch, err := mux.Open("session", nil)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if ok, err := ch.Subsystem("sftp"); err != nil || !ok {
		conn.Close()
		return nil, nil, sshtransport.Wrap(sshtransport.KindSftp, err, "server refused subsystem sftp")
	}

	c, err := sftp.NewClient(ch)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return c, func() { conn.Close() }, nil
}

func authenticate(s *transport.Session, user string) error {
	fmt.Fprintf(os.Stderr, "%s's password: ", user)
	pw, err := terminal.ReadPassword(os.Stdin.Fd())
	fmt.Fprintln(os.Stderr)
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
		return sshtransport.Wrap(sshtransport.KindAuth, nil, "authentication failed, server allows: %s", methods)
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

type trustAllVerifier struct{}

func (trustAllVerifier) Accept(hostname string, port int, keyBlob []byte) bool { return true }

func runCommand(c *sftp.Client, cmd string, args []string) error {
	switch cmd {
	case "ls":
		return cmdLs(c, argOr(args, 0, "."))
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: get remote local")
		}
		return cmdGet(c, args[0], args[1])
	case "put":
		if len(args) < 2 {
			return fmt.Errorf("usage: put local remote")
		}
		return cmdPut(c, args[0], args[1])
	case "rm":
		return c.Remove(argOr(args, 0, ""))
	case "mkdir":
		return c.Mkdir(argOr(args, 0, ""))
	case "rmdir":
		return c.Rmdir(argOr(args, 0, ""))
	case "mv":
		if len(args) < 2 {
			return fmt.Errorf("usage: mv old new")
		}
		return c.Rename(args[0], args[1], sftp.CopyModeDefault)
	case "ln":
		if len(args) < 2 {
			return fmt.Errorf("usage: ln target linkpath")
		}
		return c.Symlink(args[0], args[1])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdLs(c *sftp.Client, dir string) error {
	entries, err := c.ReadDirEntries(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Println(e.Longname)
	}
	return nil
}

func cmdGet(c *sftp.Client, remote, local string) error {
	in, err := c.OpenInputStream(remote)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(local)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func cmdPut(c *sftp.Client, local, remote string) error {
	in, err := os.Open(local)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := c.OpenOutputStream(remote)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func argOr(args []string, i int, fallback string) string {
	if i < len(args) {
		return args[i]
	}
	return fallback
}
