//go:build windows
// +build windows

// Adapted from termmode_windows.go: true raw-mode manipulation on
// Windows consoles is out of scope here (mintty/MSYS users are
// expected to wrap cmd/* invocations with stty as the teacher's
// comment explains); MakeRaw/Restore shell out to stty for parity with
// that existing workaround, and ReadPassword works unconditionally
// since it only needs to read bytes until a line terminator.
package terminal

import (
	"io"
	"os/exec"

	"golang.org/x/sys/windows"
)

type State struct{}

func MakeRaw(fd uintptr) (*State, error) {
	_ = exec.Command("stty", "-echo raw").Run()
	return &State{}, nil
}

func Restore(fd uintptr, state *State) error {
	_ = exec.Command("stty", "echo cooked").Run()
	return nil
}

func ReadPassword(fd uintptr) ([]byte, error) {
	return readPasswordLine(fdReader(fd))
}

type fdReader windows.Handle

func (r fdReader) Read(buf []byte) (int, error) {
	return windows.Read(windows.Handle(r), buf)
}

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
