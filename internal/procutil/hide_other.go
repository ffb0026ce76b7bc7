//go:build !windows

package procutil

import "os/exec"

// HideWindow returns cmd unchanged; only Windows opens console windows.
func HideWindow(cmd *exec.Cmd) *exec.Cmd {
	return cmd
}
