// Package engine orchestrates a pairing session. While the screen is paired it
// runs the content sync loop and every periodic task under one cancellable
// context; disconnect, reset or a vanished screen tear them all down together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/control"
	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/heartbeat"
	"github.com/genricoloni/screend/internal/kiosk"
	"github.com/genricoloni/screend/internal/kvstore"
	"github.com/genricoloni/screend/internal/pairing"
	"github.com/genricoloni/screend/internal/playback"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrAlreadyPaired is returned when pairing a screen that already has an identity
var ErrAlreadyPaired = errors.New("screen is already paired, disconnect first")

// Syncer resolves and follows the screen's content
type Syncer interface {
	Initial(ctx context.Context) error
	Run(ctx context.Context) error
	OnUnpaired(fn func())
	Fingerprint() domain.Fingerprint
	Status() domain.SyncStatus
}

// Pairer performs pairing
type Pairer interface {
	Paired() bool
	Pair(ctx context.Context, code string, opts pairing.Options) (*domain.PairingResult, error)
}

// Screen shows full-screen messages when nothing plays
type Screen interface {
	ShowMessage(ctx context.Context, message string) error
}

// Lock reports the kiosk state
type Lock interface {
	State() kiosk.State
}

// Task is a periodic task bound to a session
type Task interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Wiper erases one piece of local state
type Wiper interface {
	Clear() error
}

// ActivitySource reports the latest liveness signal
type ActivitySource interface {
	Last() (time.Time, string)
}

// Components are the collaborators of a session
type Components struct {
	Store     domain.Store
	Pairing   Pairer
	Sync      Syncer
	Screen    Screen
	Kiosk     Lock
	Cache     Wiper
	Passwords interface{ Delete() error }
	Activity  ActivitySource
	// Tasks start in order once a session begins and stop in reverse
	Tasks   []Task
	Version string
}

// Engine owns the session lifecycle
type Engine struct {
	logger *zap.Logger
	c      Components

	mu      sync.Mutex
	running bool
	active  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var (
	_ control.Session         = (*Engine)(nil)
	_ heartbeat.StateResetter = (*Engine)(nil)
)

// NewEngine creates a session orchestrator
func NewEngine(logger *zap.Logger, c Components) *Engine {
	e := &Engine{logger: logger, c: c}
	c.Sync.OnUnpaired(e.onUnpaired)
	return e
}

// Attach appends session tasks. Tasks that reset the engine's own state are
// attached after construction; it must be called before Start.
func (e *Engine) Attach(tasks ...Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.c.Tasks = append(e.c.Tasks, tasks...)
}

// Start begins a session when the screen is paired, otherwise shows the
// pairing screen. It returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	e.running = true
	e.logger.Info("Engine starting...", zap.String("version", e.c.Version))

	if !e.c.Pairing.Paired() {
		e.showLocked(playback.MessageUnpaired)
		return nil
	}
	e.beginLocked()
	return nil
}

// Stop ends the running session
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false
	err := e.endLocked(ctx)
	e.logger.Info("Engine stopped")
	return err
}

// beginLocked launches the session goroutine. The session context is not
// derived from the caller's: lifecycle start contexts expire.
func (e *Engine) beginLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.active = true

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.session(ctx)
	}()
}

// session loads the initial content, starts every task and follows the content
// until ctx is cancelled. It runs without e.mu so a slow first resolve never
// blocks Stop or Disconnect.
func (e *Engine) session(ctx context.Context) {
	if err := e.c.Sync.Initial(ctx); err != nil {
		switch {
		case errors.Is(err, domain.ErrNoContentAssigned):
			e.logger.Info("No content assigned")
		case domain.IsContentNotFound(err):
			// onUnpaired ends the session
			return
		case ctx.Err() != nil:
			return
		default:
			e.logger.Warn("Initial content unavailable, waiting for the server", zap.Error(err))
		}
	}
	if ctx.Err() != nil {
		return
	}

	for _, t := range e.c.Tasks {
		if err := t.Start(ctx); err != nil {
			e.logger.Error("Failed to start session task", zap.Error(err))
		}
	}
	e.logger.Info("Session started")

	if err := e.c.Sync.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("Content sync ended", zap.Error(err))
	}
}

// endLocked cancels the session and waits for every task
func (e *Engine) endLocked(ctx context.Context) error {
	if !e.active {
		return nil
	}
	e.active = false
	e.cancel()
	e.wg.Wait()

	var err error
	for i := len(e.c.Tasks) - 1; i >= 0; i-- {
		err = multierr.Append(err, e.c.Tasks[i].Stop(ctx))
	}
	e.logger.Info("Session ended")
	return err
}

func (e *Engine) showLocked(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.c.Screen.ShowMessage(ctx, message); err != nil {
		e.logger.Warn("Failed to show message", zap.String("message", message), zap.Error(err))
	}
}

// onUnpaired runs on the sync goroutine, which ends right after. The teardown
// happens elsewhere and never waits for that goroutine.
func (e *Engine) onUnpaired() {
	go func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.active {
			return
		}
		e.active = false
		e.cancel()
		e.stopTasks()
		e.showLocked(playback.MessageUnpaired)
	}()
}

// stopTasks stops the tasks without waiting for the session goroutines
func (e *Engine) stopTasks() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(e.c.Tasks) - 1; i >= 0; i-- {
		if err := e.c.Tasks[i].Stop(ctx); err != nil {
			e.logger.Warn("Failed to stop session task", zap.Error(err))
		}
	}
	e.logger.Info("Session ended: screen unpaired")
}

// Pair implements control.Session
func (e *Engine) Pair(ctx context.Context, code string, kioskMode bool, exitPassword string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.c.Pairing.Paired() {
		return ErrAlreadyPaired
	}

	_, err := e.c.Pairing.Pair(ctx, code, pairing.Options{Kiosk: kioskMode, ExitPassword: exitPassword})
	if err != nil {
		if domain.IsPairingError(err) {
			e.showLocked(fmt.Sprintf("%s\n%v", playback.MessageUnpaired, err))
		}
		return err
	}

	if e.running {
		e.beginLocked()
	}
	return nil
}

// Disconnect implements control.Session. Kiosk mode suppresses it.
func (e *Engine) Disconnect(ctx context.Context) error {
	if e.c.Kiosk != nil && e.c.Kiosk.State() != kiosk.StateInactive {
		return kiosk.ErrLocked
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.endLocked(ctx)
	err = multierr.Append(err, e.ResetState())
	e.showLocked(playback.MessageUnpaired)
	e.logger.Info("Screen disconnected")
	return err
}

// ResetState erases the identity, the offline cache and the kiosk password.
// Running tasks are left alone: a reset is followed by a process reload.
func (e *Engine) ResetState() error {
	err := e.c.Store.Clear()
	if e.c.Cache != nil {
		err = multierr.Append(err, e.c.Cache.Clear())
	}
	if e.c.Passwords != nil {
		err = multierr.Append(err, e.c.Passwords.Delete())
	}
	if err != nil {
		e.logger.Error("Failed to reset local state", zap.Error(err))
	}
	return err
}

// Status implements control.Session
func (e *Engine) Status(ctx context.Context) control.Status {
	status := control.Status{
		Content: e.c.Sync.Fingerprint(),
		Version: e.c.Version,
		Kiosk:   kiosk.StateInactive.String(),
	}
	if id, ok := kvstore.Identity(e.c.Store); ok {
		status.Paired = true
		status.ScreenID = id.ScreenID
		status.Sync = e.c.Sync.Status()
	}
	if e.c.Kiosk != nil {
		status.Kiosk = e.c.Kiosk.State().String()
	}
	if e.c.Activity != nil {
		status.LastActivity, _ = e.c.Activity.Last()
	}
	return status
}
