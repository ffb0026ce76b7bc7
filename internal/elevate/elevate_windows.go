//go:build windows

package elevate

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// IsAdmin returns true if the current process has administrator privileges.
func IsAdmin() bool {
	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := windows.Token(0).IsMember(sid)
	if err != nil {
		return false
	}
	return member
}

// RunAsAdmin re-launches the current executable through UAC. If the user
// accepts, the current process exits; if they cancel, an error is returned.
func RunAsAdmin() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	verb, _ := windows.UTF16PtrFromString("runas")
	file, _ := windows.UTF16PtrFromString(exe)
	params, _ := windows.UTF16PtrFromString(windows.ComposeCommandLine(os.Args[1:]))
	cwd, _ := windows.UTF16PtrFromString("")

	if err := windows.ShellExecute(0, verb, file, params, cwd, windows.SW_NORMAL); err != nil {
		return fmt.Errorf("UAC elevation failed or was cancelled: %w", err)
	}

	os.Exit(0)
	return nil
}

func isTerminal(fd uintptr) bool {
	var mode uint32
	return windows.GetConsoleMode(windows.Handle(fd), &mode) == nil
}
