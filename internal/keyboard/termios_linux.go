//go:build linux

package keyboard

import "golang.org/x/sys/unix"

// enterRawMode disables canonical input and echo so single keypresses
// arrive immediately, returning a func that restores the prior state.
// ISIG stays cleared too: Ctrl+C is read as a byte and mapped to the
// immediate-interrupt event rather than delivered as SIGINT.
func enterRawMode(fd int) (func(), error) {
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO | unix.ISIG
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}
	return func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, old)
	}, nil
}
