// Package renderer puts playback items on screen. Images and videos play in
// one mpv window per zone driven over JSON-IPC; web pages and apps open in a
// browser window on the zone rectangle. A full-display backdrop window shows
// idle messages and carries kiosk fullscreen.
package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/executor"
	"github.com/genricoloni/screend/internal/playback"
	"go.uber.org/zap"
)

// idleTextMillis keeps an idle message on screen until replaced
const idleTextMillis = 24 * 60 * 60 * 1000

// notifyTextMillis is how long a transient notice stays on screen
const notifyTextMillis = 15 * 1000

var errNotStarted = errors.New("renderer not started")

// MediaSource provides local files for remote assets
type MediaSource interface {
	Media(ctx context.Context, url string) (string, error)
	FittedImage(ctx context.Context, url string, size domain.ScreenResolution) (string, error)
	ShellFile(ctx context.Context, url string) (string, error)
}

// BrowserOpener opens web content on a rectangle of the display
type BrowserOpener interface {
	Open(ctx context.Context, url string, rect image.Rectangle) (io.Closer, error)
}

// NewBrowserOpener adapts a browser launcher; a nil launcher disables web content
func NewBrowserOpener(l *executor.Launcher) BrowserOpener {
	if l == nil {
		return nil
	}
	return launcherOpener{l: l}
}

type launcherOpener struct {
	l *executor.Launcher
}

func (o launcherOpener) Open(ctx context.Context, url string, rect image.Rectangle) (io.Closer, error) {
	w, err := o.l.Open(ctx, url, rect)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Options configure the renderer
type Options struct {
	MPVBinary string
	// ExitKey is bound in every window to request a kiosk exit
	ExitKey   string
	SplashURL string
}

// Renderer implements playback.Renderer on top of mpv windows
type Renderer struct {
	logger  *zap.Logger
	display Display
	media   MediaSource
	browser BrowserOpener
	launch  launchFunc
	opts    Options

	mu       sync.Mutex
	backdrop mpvConn
	wg       sync.WaitGroup

	exitRequests      chan struct{}
	fullscreenChanges chan bool
}

var _ playback.Renderer = (*Renderer)(nil)

// NewRenderer creates a renderer for display
func NewRenderer(logger *zap.Logger, display Display, media MediaSource, browser BrowserOpener, opts Options) *Renderer {
	if opts.MPVBinary == "" {
		opts.MPVBinary = "mpv"
	}
	return &Renderer{
		logger:            logger,
		display:           display,
		media:             media,
		browser:           browser,
		launch:            newLauncher(logger, opts.MPVBinary),
		opts:              opts,
		exitRequests:      make(chan struct{}, 1),
		fullscreenChanges: make(chan bool, 1),
	}
}

// Start opens the backdrop window
func (r *Renderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backdrop != nil {
		return nil
	}

	conn, err := r.launch(ctx, r.display.Bounds, roleBackdrop)
	if err != nil {
		return fmt.Errorf("failed to open backdrop window: %w", err)
	}
	if err := bindExitKey(ctx, conn, r.opts.ExitKey); err != nil {
		r.logger.Warn("Failed to bind kiosk exit key", zap.String("key", r.opts.ExitKey), zap.Error(err))
	}
	if _, err := conn.Command(ctx, "observe_property", 1, "fullscreen"); err != nil {
		r.logger.Warn("Failed to observe fullscreen", zap.Error(err))
	}

	r.backdrop = conn
	r.wg.Add(1)
	go r.watchBackdrop(conn)

	r.logger.Info("Renderer started", zap.Stringer("display", r.display.Bounds))
	return nil
}

// Stop closes the backdrop window
func (r *Renderer) Stop(ctx context.Context) error {
	r.mu.Lock()
	conn := r.backdrop
	r.backdrop = nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	r.wg.Wait()
	r.logger.Info("Renderer stopped")
	return err
}

func (r *Renderer) watchBackdrop(conn mpvConn) {
	defer r.wg.Done()
	for ev := range conn.Events() {
		switch ev.Name {
		case "property-change":
			if ev.Property != "fullscreen" {
				continue
			}
			var on bool
			if err := json.Unmarshal(ev.Data, &on); err != nil {
				continue
			}
			// keep only the latest state
			select {
			case <-r.fullscreenChanges:
			default:
			}
			r.fullscreenChanges <- on
		case "client-message":
			if len(ev.Args) > 0 && ev.Args[0] == exitMessage {
				r.requestExit()
			}
		}
	}
}

func (r *Renderer) requestExit() {
	select {
	case r.exitRequests <- struct{}{}:
	default:
	}
}

func (r *Renderer) backdropConn() (mpvConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backdrop == nil {
		return nil, errNotStarted
	}
	return r.backdrop, nil
}

// OpenSurface implements playback.Renderer
func (r *Renderer) OpenSurface(ctx context.Context, zone domain.Zone) (playback.Surface, error) {
	rect := r.display.ZoneRect(zone)
	conn, err := r.launch(ctx, rect, roleZone)
	if err != nil {
		return nil, fmt.Errorf("failed to open zone window: %w", err)
	}
	if err := bindExitKey(ctx, conn, r.opts.ExitKey); err != nil {
		r.logger.Debug("Failed to bind kiosk exit key in zone", zap.String("zone", zone.ID), zap.Error(err))
	}

	// content replaces whatever idle message was showing
	if backdrop, err := r.backdropConn(); err == nil {
		_, _ = backdrop.Command(ctx, "show-text", "", 1)
	}

	r.logger.Debug("Zone surface opened", zap.String("zone", zone.ID), zap.Stringer("rect", rect))
	return newZoneSurface(r.logger, zone, rect, conn, r.media, r.browser, r.requestExit), nil
}

// ShowIdle implements playback.Renderer
func (r *Renderer) ShowIdle(ctx context.Context, message string) error {
	conn, err := r.backdropConn()
	if err != nil {
		return err
	}

	splash := ""
	if r.opts.SplashURL != "" {
		if splash, err = r.media.ShellFile(ctx, r.opts.SplashURL); err != nil {
			r.logger.Warn("Splash unavailable", zap.String("url", r.opts.SplashURL), zap.Error(err))
			splash = ""
		}
	}

	if splash != "" {
		_, err = conn.Command(ctx, "loadfile", splash, "replace")
	} else {
		_, err = conn.Command(ctx, "stop")
	}
	if err != nil {
		return fmt.Errorf("failed to clear backdrop: %w", err)
	}

	if message == "" {
		return nil
	}
	if _, err := conn.Command(ctx, "show-text", message, idleTextMillis); err != nil {
		return fmt.Errorf("failed to show message: %w", err)
	}
	r.logger.Info("Idle screen shown", zap.String("message", message))
	return nil
}

// Notify overlays a short notice on the backdrop; an empty message clears it
func (r *Renderer) Notify(ctx context.Context, message string) error {
	conn, err := r.backdropConn()
	if err != nil {
		return err
	}
	_, err = conn.Command(ctx, "show-text", message, notifyTextMillis)
	return err
}

// SetFullscreen switches the backdrop in or out of fullscreen
func (r *Renderer) SetFullscreen(ctx context.Context, on bool) error {
	conn, err := r.backdropConn()
	if err != nil {
		return err
	}
	_, err = conn.Command(ctx, "set_property", "fullscreen", on)
	return err
}

// Fullscreen reports whether the backdrop is fullscreen
func (r *Renderer) Fullscreen(ctx context.Context) (bool, error) {
	conn, err := r.backdropConn()
	if err != nil {
		return false, err
	}
	data, err := conn.Command(ctx, "get_property", "fullscreen")
	if err != nil {
		return false, err
	}
	var on bool
	if err := json.Unmarshal(data, &on); err != nil {
		return false, fmt.Errorf("decode fullscreen: %w", err)
	}
	return on, nil
}

// FullscreenChanges delivers the latest fullscreen state whenever it changes
func (r *Renderer) FullscreenChanges() <-chan bool {
	return r.fullscreenChanges
}

// ExitRequests fires when the kiosk exit key is pressed in any window
func (r *Renderer) ExitRequests() <-chan struct{} {
	return r.exitRequests
}
