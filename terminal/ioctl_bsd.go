//go:build freebsd
// +build freebsd

package terminal

import unix "golang.org/x/sys/unix"

const (
	getTermiosRequest = unix.TIOCGETA
	setTermiosRequest = unix.TIOCSETA
)
