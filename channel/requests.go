package channel

import "blitter.com/go/sshx/sshwire"

// This file holds the payload codecs for the well-known channel request
// types (§4.7's "exec"/"shell"/"subsystem"/"pty-req"/"env"/
// "window-change"/"exit-status"/"exit-signal"). The teacher has no
// equivalent — hkexnet.Conn runs one fixed command per connection,
// chosen at CSOExecCmd time — so these are modeled directly on RFC4254
// §6 rather than adapted from existing code.

const (
	RequestExec         = "exec"
	RequestShell        = "shell"
	RequestSubsystem     = "subsystem"
	RequestPtyReq        = "pty-req"
	RequestEnv           = "env"
	RequestWindowChange  = "window-change"
	RequestExitStatus    = "exit-status"
	RequestExitSignal    = "exit-signal"
)

// Exec requests the peer run command in place of the channel's default
// shell.
func (c *Channel) Exec(command string) (bool, error) {
	var b sshwire.Buffer
	b.PutString(command)
	return c.SendRequest(RequestExec, true, b.Bytes())
}

// Shell requests the peer start an interactive shell on this channel.
func (c *Channel) Shell() (bool, error) {
	return c.SendRequest(RequestShell, true, nil)
}

// Subsystem requests a well-known subsystem (e.g. "sftp") be attached to
// this channel.
func (c *Channel) Subsystem(name string) (bool, error) {
	var b sshwire.Buffer
	b.PutString(name)
	return c.SendRequest(RequestSubsystem, true, b.Bytes())
}

// PtyRequest describes a pseudo-terminal allocation (§6.2).
type PtyRequest struct {
	Term                   string
	WidthChars, HeightChars uint32
	WidthPixels, HeightPixels uint32
	Modes                  []byte // opaque termios encoding; passed through as-is
}

func (c *Channel) RequestPty(p PtyRequest) (bool, error) {
	var b sshwire.Buffer
	b.PutString(p.Term)
	b.PutUint32(p.WidthChars)
	b.PutUint32(p.HeightChars)
	b.PutUint32(p.WidthPixels)
	b.PutUint32(p.HeightPixels)
	b.PutBytes(p.Modes)
	return c.SendRequest(RequestPtyReq, true, b.Bytes())
}

// SetEnv requests the peer set an environment variable for the
// subsequently-requested shell/exec (§6.7). Most servers only honor a
// fixed allow-list; callers should not assume success implies the
// variable took effect beyond what SendRequest's reply reports.
func (c *Channel) SetEnv(name, value string) (bool, error) {
	var b sshwire.Buffer
	b.PutString(name)
	b.PutString(value)
	return c.SendRequest(RequestEnv, true, b.Bytes())
}

// WindowChange notifies the peer of a terminal resize (§6.7); never
// expects a reply.
func (c *Channel) WindowChange(widthChars, heightChars, widthPixels, heightPixels uint32) error {
	var b sshwire.Buffer
	b.PutUint32(widthChars)
	b.PutUint32(heightChars)
	b.PutUint32(widthPixels)
	b.PutUint32(heightPixels)
	_, err := c.SendRequest(RequestWindowChange, false, b.Bytes())
	return err
}

// SendExitStatus reports a process's exit code (§6.10); never expects a
// reply.
func (c *Channel) SendExitStatus(code uint32) error {
	var b sshwire.Buffer
	b.PutUint32(code)
	_, err := c.SendRequest(RequestExitStatus, false, b.Bytes())
	return err
}

// ExitSignal describes a process killed by a signal (§6.10).
type ExitSignal struct {
	Signal       string // without the "SIG" prefix, e.g. "TERM"
	CoreDumped   bool
	ErrorMessage string
}

func (c *Channel) SendExitSignal(sig ExitSignal) error {
	var b sshwire.Buffer
	b.PutString(sig.Signal)
	b.PutBool(sig.CoreDumped)
	b.PutString(sig.ErrorMessage)
	b.PutString("")
	_, err := c.SendRequest(RequestExitSignal, false, b.Bytes())
	return err
}

// ParsePtyRequest decodes an incoming pty-req payload.
func ParsePtyRequest(payload []byte) (PtyRequest, error) {
	r := sshwire.NewBuffer(payload)
	var p PtyRequest
	var err error
	if p.Term, err = r.GetString(); err != nil {
		return p, err
	}
	if p.WidthChars, err = r.GetUint32(); err != nil {
		return p, err
	}
	if p.HeightChars, err = r.GetUint32(); err != nil {
		return p, err
	}
	if p.WidthPixels, err = r.GetUint32(); err != nil {
		return p, err
	}
	if p.HeightPixels, err = r.GetUint32(); err != nil {
		return p, err
	}
	p.Modes, err = r.GetBytes()
	return p, err
}

// ParseExecPayload decodes an incoming exec request's command string.
func ParseExecPayload(payload []byte) (string, error) {
	return sshwire.NewBuffer(payload).GetString()
}

// ParseSubsystemPayload decodes an incoming subsystem request's name.
func ParseSubsystemPayload(payload []byte) (string, error) {
	return sshwire.NewBuffer(payload).GetString()
}

// ParseWindowChangePayload decodes an incoming window-change request.
func ParseWindowChangePayload(payload []byte) (widthChars, heightChars, widthPixels, heightPixels uint32, err error) {
	r := sshwire.NewBuffer(payload)
	if widthChars, err = r.GetUint32(); err != nil {
		return
	}
	if heightChars, err = r.GetUint32(); err != nil {
		return
	}
	if widthPixels, err = r.GetUint32(); err != nil {
		return
	}
	heightPixels, err = r.GetUint32()
	return
}
