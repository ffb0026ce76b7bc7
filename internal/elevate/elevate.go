// Package elevate checks for and acquires the OS privileges needed to
// create a kernel TUN interface.
package elevate

import (
	"io"
	"os"
)

// IsTerminal reports whether r is an interactive terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isTerminal(f.Fd())
}
