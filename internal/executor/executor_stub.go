//go:build !linux && !windows
// +build !linux,!windows

package executor

import (
	"go.uber.org/zap"
)

// detectBrowser only searches PATH on other platforms (macOS, BSD, etc.)
func detectBrowser(logger *zap.Logger) BrowserCommand {
	for _, binary := range []string{"chromium", "google-chrome", "firefox"} {
		if commandExists(binary) {
			return commandFor(binary, binary)
		}
	}
	logger.Warn("No browser in PATH; set renderer.browser to enable web content")
	return BrowserCommand{}
}
