//go:build linux || freebsd
// +build linux freebsd

// Package terminal puts a local TTY into raw mode and reads a single
// line without echo, the cmd/* front-ends' building block for password
// and passphrase prompts. Adapted from termmode_bsd.go/
// termmode_windows.go (renamed out of the teacher's root package and
// generalized to the Linux ioctl numbers the teacher's file never
// carried — it only ever built under the freebsd tag).
package terminal

import (
	"errors"
	"io"
	"unsafe"

	unix "golang.org/x/sys/unix"
)

// State holds a terminal's termios settings so MakeRaw's caller can
// restore them with Restore.
type State struct {
	termios unix.Termios
}

func getTermios(fd uintptr) (unix.Termios, error) {
	var t unix.Termios
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, getTermiosRequest, uintptr(unsafe.Pointer(&t))); errno != 0 {
		return t, errno
	}
	return t, nil
}

func setTermios(fd uintptr, t *unix.Termios) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, setTermiosRequest, uintptr(unsafe.Pointer(t))); errno != 0 {
		return errno
	}
	return nil
}

// MakeRaw puts the terminal connected to fd into raw mode, returning
// its previous state so the caller can Restore it.
func MakeRaw(fd uintptr) (*State, error) {
	oldState, err := getTermios(fd)
	if err != nil {
		return nil, err
	}

	newState := oldState
	newState.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	newState.Oflag &^= unix.OPOST
	newState.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	newState.Cflag &^= unix.CSIZE | unix.PARENB
	newState.Cflag |= unix.CS8
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0

	if err := setTermios(fd, &newState); err != nil {
		return nil, err
	}
	return &State{termios: oldState}, nil
}

// Restore restores fd to a previously captured State.
func Restore(fd uintptr, state *State) error {
	if state == nil {
		return errors.New("terminal: nil State")
	}
	return setTermios(fd, &state.termios)
}

// ReadPassword reads a line from fd with local echo disabled, the
// slice returned excludes the trailing newline.
func ReadPassword(fd uintptr) ([]byte, error) {
	oldState, err := getTermios(fd)
	if err != nil {
		return nil, err
	}

	newState := oldState
	newState.Lflag &^= unix.ECHO
	newState.Lflag |= unix.ICANON | unix.ISIG
	newState.Iflag |= unix.ICRNL
	if err := setTermios(fd, &newState); err != nil {
		return nil, err
	}
	defer setTermios(fd, &oldState)

	return readPasswordLine(fdReader(fd))
}

type fdReader uintptr

func (r fdReader) Read(buf []byte) (int, error) {
	return unix.Read(int(r), buf)
}

// readPasswordLine reads from reader until it finds \n or io.EOF. The
// slice returned does not include the \n; any \r is dropped too, so
// the same code path handles CRLF-terminated input.
func readPasswordLine(reader io.Reader) ([]byte, error) {
	var buf [1]byte
	var ret []byte

	for {
		n, err := reader.Read(buf[:])
		if n > 0 {
			switch buf[0] {
			case '\n':
				return ret, nil
			case '\r':
			default:
				ret = append(ret, buf[0])
			}
			continue
		}
		if err != nil {
			if err == io.EOF && len(ret) > 0 {
				return ret, nil
			}
			return ret, err
		}
	}
}
