package ui

import (
	"os/exec"
	"runtime"
)

// openerCommand returns the platform command that opens path with its
// default application.
func openerCommand(goos, path string) *exec.Cmd {
	switch goos {
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path)
	case "darwin":
		return exec.Command("open", path)
	default:
		return exec.Command("xdg-open", path)
	}
}

// openPath starts the opener without waiting for the application to exit.
func openPath(path string) error {
	cmd := openerCommand(runtime.GOOS, path)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
