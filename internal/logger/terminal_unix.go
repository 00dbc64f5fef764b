//go:build linux || darwin || freebsd || netbsd || openbsd

package logger

import "golang.org/x/sys/unix"

// isTerminal reports whether fd is attached to a terminal, deciding
// whether the text handler emits ANSI colors.
func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), ioctlReadTermios)
	return err == nil
}
