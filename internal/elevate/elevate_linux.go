//go:build linux

package elevate

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// IsAdmin reports whether the process may create and configure network
// interfaces: it runs as root or holds CAP_NET_ADMIN.
func IsAdmin() bool {
	if unix.Geteuid() == 0 {
		return true
	}
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false
	}
	return data[0].Effective&(1<<unix.CAP_NET_ADMIN) != 0
}

// promptCommand runs argv through pkexec, which shows a graphical prompt
// when a polkit agent is running.
func promptCommand(argv []string) *exec.Cmd {
	path, err := exec.LookPath("pkexec")
	if err != nil {
		return nil
	}
	return exec.Command(path, argv...)
}

func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}
