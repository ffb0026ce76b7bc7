//go:build windows

// Package wintundll locates the wintun driver DLL that kernel TUN mode
// needs on Windows.
package wintundll

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// Ensure returns nil when wintun.dll is next to the executable or on the
// DLL search path.
func Ensure() error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	dllPath := filepath.Join(filepath.Dir(exePath), "wintun.dll")
	if _, err := os.Stat(dllPath); err == nil {
		return nil
	}

	dll, err := windows.LoadDLL("wintun.dll")
	if err != nil {
		return fmt.Errorf("wintun.dll not found next to %s or on the DLL search path; download it from https://www.wintun.net or use userspace mode: %w", exePath, err)
	}
	dll.Release()
	return nil
}
