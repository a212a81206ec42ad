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
	"github.com/genricoloni/screend/internal/playback"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNoBrowser is returned for web items when no browser is available
var ErrNoBrowser = errors.New("no browser available for web content")

// zoneSurface renders one zone: images and videos in its own mpv window,
// web pages and apps in a browser window placed on the same rectangle
type zoneSurface struct {
	logger  *zap.Logger
	zone    domain.Zone
	rect    image.Rectangle
	mpv     mpvConn
	media   MediaSource
	browser BrowserOpener
	exitKey func()

	done chan error
	wg   sync.WaitGroup

	mu     sync.Mutex
	video  bool
	window io.Closer
}

var _ playback.Surface = (*zoneSurface)(nil)

func newZoneSurface(logger *zap.Logger, zone domain.Zone, rect image.Rectangle, conn mpvConn, media MediaSource, browser BrowserOpener, exitKey func()) *zoneSurface {
	s := &zoneSurface{
		logger:  logger.With(zap.String("zone", zone.ID)),
		zone:    zone,
		rect:    rect,
		mpv:     conn,
		media:   media,
		browser: browser,
		exitKey: exitKey,
		done:    make(chan error, 1),
	}
	s.wg.Add(1)
	go s.watch()
	return s
}

// watch turns end-file events of the current video into Done values
func (s *zoneSurface) watch() {
	defer s.wg.Done()
	for ev := range s.mpv.Events() {
		switch ev.Name {
		case "end-file":
			s.endFile(ev)
		case "client-message":
			if len(ev.Args) > 0 && ev.Args[0] == exitMessage && s.exitKey != nil {
				s.exitKey()
			}
		}
	}
}

func (s *zoneSurface) endFile(ev Event) {
	var result error
	switch ev.Reason {
	case "eof":
	case "error":
		result = fmt.Errorf("video failed: %s", ev.FileError)
	default:
		// stop/redirect/quit come from replacing or closing the file
		return
	}

	s.mu.Lock()
	wasVideo := s.video
	s.video = false
	s.mu.Unlock()
	if !wasVideo {
		return
	}

	select {
	case s.done <- result:
	default:
	}
}

func (s *zoneSurface) setVideo(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = v
}

func (s *zoneSurface) drainDone() {
	select {
	case <-s.done:
	default:
	}
}

// Show implements playback.Surface
func (s *zoneSurface) Show(ctx context.Context, item domain.PlaybackItem) error {
	switch item.MediaType {
	case domain.MediaImage:
		path, err := s.media.FittedImage(ctx, item.URL, Size(s.rect))
		if err != nil {
			return fmt.Errorf("failed to prepare image: %w", err)
		}
		s.setVideo(false)
		if err := s.load(ctx, path); err != nil {
			return err
		}
		s.closeWindow()
		return nil

	case domain.MediaVideo:
		path, err := s.media.Media(ctx, item.URL)
		if err != nil {
			s.logger.Warn("Video not cached, streaming from origin", zap.String("url", item.URL), zap.Error(err))
			path = item.URL
		}
		s.drainDone()
		s.setVideo(true)
		if err := s.load(ctx, path); err != nil {
			s.setVideo(false)
			return err
		}
		s.closeWindow()
		return nil

	case domain.MediaWebPage, domain.MediaApp:
		if s.browser == nil {
			return ErrNoBrowser
		}
		window, err := s.browser.Open(ctx, item.URL, s.rect)
		if err != nil {
			return fmt.Errorf("failed to open browser: %w", err)
		}
		s.setVideo(false)
		if _, err := s.mpv.Command(ctx, "stop"); err != nil {
			s.logger.Debug("Failed to clear zone window", zap.Error(err))
		}
		s.replaceWindow(window)
		return nil
	}

	return fmt.Errorf("unsupported media type %q", item.MediaType)
}

func (s *zoneSurface) load(ctx context.Context, path string) error {
	if _, err := s.mpv.Command(ctx, "loadfile", path, "replace"); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	if _, err := s.mpv.Command(ctx, "set_property", "pause", false); err != nil {
		s.logger.Debug("Failed to unpause", zap.Error(err))
	}
	return nil
}

func (s *zoneSurface) replaceWindow(w io.Closer) {
	s.mu.Lock()
	old := s.window
	s.window = w
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Debug("Failed to close browser window", zap.Error(err))
		}
	}
}

func (s *zoneSurface) closeWindow() {
	s.replaceWindow(nil)
}

// Done implements playback.Surface
func (s *zoneSurface) Done() <-chan error {
	return s.done
}

// State implements playback.Surface
func (s *zoneSurface) State(ctx context.Context) (playback.VideoState, error) {
	var st playback.VideoState
	if err := s.property(ctx, "time-pos", &st.Position); err != nil {
		return st, err
	}
	// duration is unknown for some streams
	_ = s.property(ctx, "duration", &st.Duration)
	if err := s.property(ctx, "pause", &st.Paused); err != nil {
		return st, err
	}
	_ = s.property(ctx, "eof-reached", &st.Ended)
	return st, nil
}

func (s *zoneSurface) property(ctx context.Context, name string, dst any) error {
	data, err := s.mpv.Command(ctx, "get_property", name)
	if err != nil {
		return err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// Restart implements playback.Surface: seek to start and resume
func (s *zoneSurface) Restart(ctx context.Context) error {
	if _, err := s.mpv.Command(ctx, "seek", 0, "absolute"); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if _, err := s.mpv.Command(ctx, "set_property", "pause", false); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}

// Close implements playback.Surface
func (s *zoneSurface) Close() error {
	s.mu.Lock()
	window := s.window
	s.window = nil
	s.mu.Unlock()

	var err error
	if window != nil {
		err = multierr.Append(err, window.Close())
	}
	err = multierr.Append(err, s.mpv.Close())
	s.wg.Wait()
	return err
}
