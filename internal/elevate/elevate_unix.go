//go:build linux || darwin

package elevate

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// RunAsAdmin re-launches the current executable as root, first through the
// desktop authorization prompt and then through sudo. On success it does
// not return.
func RunAsAdmin() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	argv := append([]string{exe}, os.Args[1:]...)

	if cmd := promptCommand(argv); cmd != nil {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := cmd.Run(); err == nil {
			os.Exit(0)
		}
	}

	// sudo only works from a terminal
	sudoPath, err := exec.LookPath("sudo")
	if err != nil {
		return fmt.Errorf("no authorization prompt or sudo available; please run as root")
	}
	return syscall.Exec(sudoPath, append([]string{"sudo"}, argv...), os.Environ())
}

// shellJoin quotes argv for /bin/sh.
func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(parts, " ")
}
