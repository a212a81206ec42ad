//go:build linux
// +build linux

package executor

import (
	"os"

	"go.uber.org/zap"
)

// Ordered list of browsers to try (highest priority first)
var browserBinaries = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"microsoft-edge",
	"firefox",
}

// detectBrowser analyzes the environment to choose the best browser
func detectBrowser(logger *zap.Logger) BrowserCommand {
	session := os.Getenv("XDG_SESSION_TYPE")
	wayland := os.Getenv("WAYLAND_DISPLAY")

	logger.Debug("Detecting browser",
		zap.String("session", session),
		zap.String("wayland", wayland))

	for _, binary := range browserBinaries {
		if !commandExists(binary) {
			continue
		}
		cmd := commandFor(binary, binary)
		if (wayland != "" || session == "wayland") && binary != "firefox" {
			// Chromium defaults to XWayland, which ignores window placement under some compositors
			cmd.Args = append([]string{"--ozone-platform-hint=auto"}, cmd.Args...)
		}
		return cmd
	}

	return BrowserCommand{} // No browser found
}
