package executor

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// browserStopGrace is how long a browser gets to exit before it is killed
const browserStopGrace = 3 * time.Second

// BrowserCommand represents a detected browser able to open a borderless window.
// Args placeholders: {url}, {x}, {y}, {w}, {h}, {profile}
type BrowserCommand struct {
	Name   string
	Binary string
	Args   []string
}

var (
	chromiumArgs = []string{
		"--app={url}",
		"--window-position={x},{y}",
		"--window-size={w},{h}",
		"--user-data-dir={profile}",
		"--no-first-run",
		"--noerrdialogs",
		"--disable-infobars",
		"--disable-session-crashed-bubble",
		"--autoplay-policy=no-user-gesture-required",
	}
	// firefox cannot place a window, kiosk covers the display
	firefoxArgs = []string{"--new-instance", "--profile", "{profile}", "--kiosk", "{url}"}
)

// Expand fills the placeholders of the command arguments
func (c BrowserCommand) Expand(url string, rect image.Rectangle, profile string) []string {
	r := strings.NewReplacer(
		"{url}", url,
		"{x}", strconv.Itoa(rect.Min.X),
		"{y}", strconv.Itoa(rect.Min.Y),
		"{w}", strconv.Itoa(rect.Dx()),
		"{h}", strconv.Itoa(rect.Dy()),
		"{profile}", profile,
	)
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = r.Replace(arg)
	}
	return args
}

// commandFor builds the command for a browser binary from its name
func commandFor(name, binary string) BrowserCommand {
	if strings.Contains(strings.ToLower(filepath.Base(binary)), "firefox") {
		return BrowserCommand{Name: name, Binary: binary, Args: firefoxArgs}
	}
	return BrowserCommand{Name: name, Binary: binary, Args: chromiumArgs}
}

// commandExists checks if a binary exists in PATH
func commandExists(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

// Launcher opens URLs in borderless browser windows
type Launcher struct {
	logger  *zap.Logger
	command BrowserCommand
}

// NewLauncher uses binary when set, otherwise detects an installed browser
func NewLauncher(logger *zap.Logger, binary string) (*Launcher, error) {
	var cmd BrowserCommand
	if binary != "" {
		if !commandExists(binary) {
			return nil, fmt.Errorf("configured browser %q not found", binary)
		}
		cmd = commandFor(filepath.Base(binary), binary)
	} else {
		cmd = detectBrowser(logger)
	}
	if cmd.Binary == "" {
		return nil, fmt.Errorf("no supported browser found on this system")
	}

	logger.Info("Browser detected",
		zap.String("name", cmd.Name),
		zap.String("binary", cmd.Binary))

	return &Launcher{logger: logger, command: cmd}, nil
}

// Command returns the browser in use
func (l *Launcher) Command() BrowserCommand {
	return l.command
}

// Window is one running browser window with its private profile
type Window struct {
	proc    *Process
	profile string
}

// Open starts a browser window showing url inside rect
func (l *Launcher) Open(ctx context.Context, url string, rect image.Rectangle) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// a private profile forces a new browser process instead of a tab in a running one
	profile, err := os.MkdirTemp("", "screend-browser-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create browser profile: %w", err)
	}

	args := l.command.Expand(url, rect, profile)
	proc, err := StartProcess(l.logger, l.command.Binary, args...)
	if err != nil {
		_ = os.RemoveAll(profile)
		return nil, err
	}

	l.logger.Debug("Browser window opened",
		zap.String("url", url),
		zap.Stringer("rect", rect))

	return &Window{proc: proc, profile: profile}, nil
}

// Exited is closed when the browser process is gone
func (w *Window) Exited() <-chan struct{} {
	return w.proc.Exited()
}

// Close stops the browser and removes its profile
func (w *Window) Close() error {
	return multierr.Append(w.proc.Stop(browserStopGrace), os.RemoveAll(w.profile))
}
