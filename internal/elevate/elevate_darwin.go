//go:build darwin

package elevate

import (
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// IsAdmin reports whether the process runs as root; utun creation needs it.
func IsAdmin() bool {
	return unix.Geteuid() == 0
}

// promptCommand runs argv through osascript, which shows the native
// authorization dialog.
func promptCommand(argv []string) *exec.Cmd {
	path, err := exec.LookPath("osascript")
	if err != nil {
		return nil
	}
	script := fmt.Sprintf(`do shell script "%s" with administrator privileges`, appleScriptEscape(shellJoin(argv)))
	return exec.Command(path, "-e", script)
}

// appleScriptEscape escapes s for an AppleScript double-quoted string.
func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TIOCGETA)
	return err == nil
}
