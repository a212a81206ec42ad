// Package kiosk locks the display in full-screen and gates leaving that mode
// behind an optional exit password.
package kiosk

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/kvstore"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const displayTimeout = 2 * time.Second

const (
	promptMessage   = "Kiosk exit requested. Run 'screend kiosk exit' to confirm."
	mismatchMessage = "Incorrect exit password"
)

var (
	// ErrWrongPassword is returned when an exit attempt does not match the configured password
	ErrWrongPassword = errors.New("incorrect kiosk exit password")
	// ErrLocked is returned for operations kiosk mode suppresses, such as disconnect
	ErrLocked = errors.New("kiosk mode is active")
)

// State is the controller's mode
type State int

const (
	StateInactive State = iota
	StateActive
	StateExitPrompt
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExitPrompt:
		return "exit_prompt"
	default:
		return "inactive"
	}
}

// Display is the full-screen surface the controller locks
type Display interface {
	SetFullscreen(ctx context.Context, on bool) error
	FullscreenChanges() <-chan bool
	ExitRequests() <-chan struct{}
	Notify(ctx context.Context, message string) error
}

// ScreenSaver suppresses display blanking while kiosk mode is active
type ScreenSaver interface {
	Inhibit() error
	Release() error
}

// Controller is the kiosk state machine
type Controller struct {
	logger        *zap.Logger
	display       Display
	store         domain.Store
	passwords     *PasswordStore
	saver         ScreenSaver
	reassertDelay time.Duration
	after         func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	state   State
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewController creates a kiosk controller. saver may be nil.
func NewController(logger *zap.Logger, display Display, store domain.Store, passwords *PasswordStore, saver ScreenSaver, reassertDelay time.Duration) *Controller {
	return &Controller{
		logger:        logger,
		display:       display,
		store:         store,
		passwords:     passwords,
		saver:         saver,
		reassertDelay: reassertDelay,
		after:         time.After,
	}
}

// Start restores the persisted mode and begins watching the display. The
// watcher runs until Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	enabled := kvstore.KioskMode(c.store)
	if enabled {
		c.state = StateActive
	}
	c.mu.Unlock()

	if enabled {
		c.lock(ctx)
	}

	c.wg.Add(1)
	go c.watch(watchCtx)

	c.logger.Info("Kiosk controller started", zap.Bool("active", enabled))
	return nil
}

// Stop halts the watcher. The persisted mode is left untouched.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var err error
	if c.saver != nil {
		err = c.saver.Release()
	}
	c.logger.Info("Kiosk controller stopped")
	return err
}

// State returns the current mode
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether kiosk mode is on, including while an exit prompt is open
func (c *Controller) Active() bool {
	return c.State() != StateInactive
}

// Configure persists the kiosk choice and exit password and applies it
// immediately when the controller is running
func (c *Controller) Configure(enabled bool, exitPassword string) error {
	if err := c.passwords.Set(exitPassword); err != nil {
		return fmt.Errorf("failed to store exit password: %w", err)
	}
	if err := kvstore.SaveKioskMode(c.store, enabled); err != nil {
		return fmt.Errorf("failed to persist kiosk mode: %w", err)
	}

	c.mu.Lock()
	running := c.running
	prev := c.state
	if enabled && prev == StateInactive {
		c.state = StateActive
	} else if !enabled {
		c.state = StateInactive
	}
	c.mu.Unlock()

	if !running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), displayTimeout)
	defer cancel()
	if enabled && prev == StateInactive {
		c.lock(ctx)
	} else if !enabled && prev != StateInactive {
		c.unlock(ctx)
	}
	c.logger.Info("Kiosk mode configured", zap.Bool("enabled", enabled), zap.Bool("password", exitPassword != ""))
	return nil
}

// RequestExit opens the exit confirmation
func (c *Controller) RequestExit(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.state = StateExitPrompt
	c.mu.Unlock()

	c.logger.Info("Kiosk exit requested")
	c.notify(ctx, promptMessage)
}

// Cancel closes an open exit confirmation and stays locked
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateExitPrompt {
		c.mu.Unlock()
		return
	}
	c.state = StateActive
	c.mu.Unlock()

	c.notify(ctx, "")
}

// Exit leaves kiosk mode if password matches the configured one. Without a
// configured password any input is accepted. On mismatch the mode stays active
// and ErrWrongPassword is returned.
func (c *Controller) Exit(ctx context.Context, password string) error {
	c.mu.Lock()
	if c.state == StateInactive {
		c.mu.Unlock()
		return nil
	}

	if expected, ok := c.passwords.Get(); ok && expected != "" {
		if subtle.ConstantTimeCompare([]byte(expected), []byte(password)) != 1 {
			c.state = StateExitPrompt
			c.mu.Unlock()
			c.logger.Warn("Kiosk exit refused: wrong password")
			c.notify(ctx, mismatchMessage)
			return ErrWrongPassword
		}
	}

	if err := kvstore.SaveKioskMode(c.store, false); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to persist kiosk mode: %w", err)
	}
	c.state = StateInactive
	c.mu.Unlock()

	c.logger.Info("Kiosk mode exited")
	c.notify(ctx, "")
	return c.unlock(ctx)
}

// lock enters full-screen and inhibits the screensaver
func (c *Controller) lock(ctx context.Context) {
	if err := c.display.SetFullscreen(ctx, true); err != nil {
		c.logger.Warn("Failed to enter full-screen", zap.Error(err))
	}
	if c.saver != nil {
		if err := c.saver.Inhibit(); err != nil {
			c.logger.Warn("Screensaver inhibition unavailable", zap.Error(err))
		}
	}
}

// unlock releases full-screen and the screensaver
func (c *Controller) unlock(ctx context.Context) error {
	err := c.display.SetFullscreen(ctx, false)
	if c.saver != nil {
		err = multierr.Append(err, c.saver.Release())
	}
	if err != nil {
		c.logger.Warn("Failed to release kiosk display", zap.Error(err))
	}
	return err
}

func (c *Controller) notify(ctx context.Context, message string) {
	if err := c.display.Notify(ctx, message); err != nil {
		c.logger.Debug("Kiosk notice not shown", zap.Error(err))
	}
}

// watch re-asserts full-screen after the platform drops it and turns the exit
// key into an exit prompt
func (c *Controller) watch(ctx context.Context) {
	defer c.wg.Done()

	var reassert <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case on, ok := <-c.display.FullscreenChanges():
			if !ok {
				return
			}
			if on {
				reassert = nil
				continue
			}
			if c.Active() && reassert == nil {
				c.logger.Debug("Full-screen lost, re-asserting", zap.Duration("delay", c.reassertDelay))
				reassert = c.after(c.reassertDelay)
			}

		case <-reassert:
			reassert = nil
			if !c.Active() {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, displayTimeout)
			if err := c.display.SetFullscreen(sctx, true); err != nil {
				c.logger.Warn("Failed to re-assert full-screen", zap.Error(err))
			}
			cancel()

		case _, ok := <-c.display.ExitRequests():
			if !ok {
				return
			}
			c.RequestExit(ctx)
		}
	}
}
