//go:build windows
// +build windows

package executor

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// detectBrowser looks for Edge, Chrome and Firefox in PATH and their default install locations
func detectBrowser(logger *zap.Logger) BrowserCommand {
	candidates := []struct {
		name string
		path string
	}{
		{"msedge", filepath.Join(os.Getenv("ProgramFiles(x86)"), "Microsoft", "Edge", "Application", "msedge.exe")},
		{"chrome", filepath.Join(os.Getenv("ProgramFiles"), "Google", "Chrome", "Application", "chrome.exe")},
		{"firefox", filepath.Join(os.Getenv("ProgramFiles"), "Mozilla Firefox", "firefox.exe")},
	}

	for _, c := range candidates {
		if commandExists(c.name) {
			return commandFor(c.name, c.name)
		}
		if _, err := os.Stat(c.path); err == nil {
			logger.Debug("Using browser from install location", zap.String("path", c.path))
			return commandFor(c.name, c.path)
		}
	}

	return BrowserCommand{}
}
