//go:build darwin

package logger

import (
	"os"

	"golang.org/x/sys/unix"
)

// redirectStderr points fd 2 at the log file.
func redirectStderr(f *os.File) {
	unix.Dup2(int(f.Fd()), int(os.Stderr.Fd()))
}
