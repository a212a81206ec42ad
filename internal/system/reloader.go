// Package system replaces the running player with a fresh copy of itself.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const hookTimeout = 5 * time.Second

var errReloadInProgress = errors.New("reload already in progress")

// Hook runs right before the process is replaced
type Hook func(ctx context.Context) error

// ExecFunc replaces the running process image with path
type ExecFunc func(path string, argv, env []string) error

// Reloader implements domain.Reloader by re-executing the current binary with
// the original arguments and environment
type Reloader struct {
	logger     *zap.Logger
	executable func() (string, error)
	exec       ExecFunc
	args       []string

	mu     sync.Mutex
	hooks  []Hook
	active atomic.Bool
}

var _ domain.Reloader = (*Reloader)(nil)

// NewReloader creates a reloader for the current process
func NewReloader(logger *zap.Logger) *Reloader {
	return NewReloaderWithExec(logger, execSelf)
}

// NewReloaderWithExec creates a reloader that hands the process over through exec
func NewReloaderWithExec(logger *zap.Logger, exec ExecFunc) *Reloader {
	return &Reloader{
		logger:     logger,
		executable: os.Executable,
		exec:       exec,
		args:       os.Args,
	}
}

// BeforeReload registers fn to run before the process is replaced. Child
// processes such as player windows must be stopped there, they would
// otherwise outlive the reload.
func (r *Reloader) BeforeReload(fn Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Reload runs the hooks and replaces the process. It only returns on failure.
func (r *Reloader) Reload(reason string) error {
	if !r.active.CompareAndSwap(false, true) {
		return errReloadInProgress
	}
	defer r.active.Store(false)

	path, err := r.executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	r.logger.Warn("Reloading player", zap.String("reason", reason), zap.String("executable", path))

	if err := r.runHooks(); err != nil {
		// a half-stopped player is worse than a fresh one
		r.logger.Warn("Reload hooks failed, continuing", zap.Error(err))
	}
	_ = r.logger.Sync()

	if err := r.exec(path, r.args, os.Environ()); err != nil {
		r.logger.Error("Process reload failed", zap.Error(err))
		return fmt.Errorf("failed to reload process: %w", err)
	}
	return nil
}

func (r *Reloader) runHooks() error {
	r.mu.Lock()
	hooks := append([]Hook(nil), r.hooks...)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	var err error
	for i := len(hooks) - 1; i >= 0; i-- {
		err = multierr.Append(err, hooks[i](ctx))
	}
	return err
}
