package web

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Opener reveals a folder in the desktop file manager.
type Opener func(path string) error

// OpenFolder launches the platform file manager on path without waiting
// for it to exit.
func OpenFolder(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("explorer", path)
	case "darwin":
		cmd = exec.Command("open", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
