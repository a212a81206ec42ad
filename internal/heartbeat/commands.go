package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/kvstore"
	"go.uber.org/zap"
)

// ContentReloader re-resolves content now and restarts playback at the first item
type ContentReloader interface {
	ForceReload()
}

// CacheClearer purges the offline cache
type CacheClearer interface {
	Clear() error
}

// StateResetter purges the offline cache and every persisted key,
// returning the device to the pairing state
type StateResetter interface {
	ResetState() error
}

// CommandOptions tune the command channel
type CommandOptions struct {
	Interval time.Duration
	// RebootDelay lets the success report flush before the process reloads
	RebootDelay time.Duration
}

// CommandChannel polls for remote commands and executes each delivered
// command at most once
type CommandChannel struct {
	logger   *zap.Logger
	remote   domain.Remote
	store    domain.Store
	content  ContentReloader
	cache    CacheClearer
	state    StateResetter
	reloader domain.Reloader
	activity domain.ActivityRecorder
	opts     CommandOptions
	after    func(d time.Duration) <-chan time.Time

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastID     string
	lastResult domain.CommandResult
}

// NewCommandChannel creates the command poller
func NewCommandChannel(logger *zap.Logger, remote domain.Remote, store domain.Store, content ContentReloader, cache CacheClearer, state StateResetter, reloader domain.Reloader, activity domain.ActivityRecorder, opts CommandOptions) *CommandChannel {
	return &CommandChannel{
		logger:   logger,
		remote:   remote,
		store:    store,
		content:  content,
		cache:    cache,
		state:    state,
		reloader: reloader,
		activity: activity,
		opts:     opts,
		after:    time.After,
		// a reboot or reset reloads the process; remember it across the reload
		lastID: kvstore.LastCommand(store),
	}
}

// Start polls right away and then once per interval
func (c *CommandChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		every(ctx, c.opts.Interval, func() { c.poll(ctx) })
	}()

	c.logger.Info("Command channel started", zap.Duration("interval", c.opts.Interval))
	return nil
}

// Stop halts polling and waits for a command in flight
func (c *CommandChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	if err := waitGroup(ctx, &c.wg); err != nil {
		return err
	}
	c.logger.Info("Command channel stopped")
	return nil
}

// poll fetches and handles at most one command. Errors wait for the next tick.
func (c *CommandChannel) poll(ctx context.Context) {
	id, ok := kvstore.Identity(c.store)
	if !ok {
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	cmd, err := c.remote.PollCommand(pollCtx, id.ScreenID)
	cancel()
	if err != nil {
		c.logger.Warn("Command poll failed", zap.Error(err))
		return
	}
	if cmd == nil {
		return
	}

	c.Handle(ctx, *cmd)
}

// Handle executes cmd unless it was already executed, then reports the result
func (c *CommandChannel) Handle(ctx context.Context, cmd domain.Command) {
	logger := c.logger.With(zap.String("command", cmd.ID), zap.String("type", string(cmd.Type)))

	c.mu.Lock()
	if cmd.ID != "" && cmd.ID == c.lastID {
		result := c.lastResult
		c.mu.Unlock()
		if result.CommandID == "" {
			result = domain.CommandResult{CommandID: cmd.ID, Success: true, Message: "already executed"}
		}
		logger.Info("Command redelivered, reporting previous result")
		c.report(ctx, logger, result)
		return
	}
	c.lastID = cmd.ID
	c.mu.Unlock()

	logger.Info("Executing command")

	var err error
	switch cmd.Type {
	case domain.CommandReboot:
		c.activity.Touch("command")
		c.remember(cmd.ID)
		c.finish(ctx, logger, cmd, nil)
		c.reloadLater("reboot command")
		return

	case domain.CommandReload:
		c.activity.Touch("command")
		c.finish(ctx, logger, cmd, nil)
		c.content.ForceReload()
		return

	case domain.CommandClearCache:
		c.activity.Touch("command")
		if clearErr := c.cache.Clear(); clearErr != nil {
			err = &domain.CommandExecutionError{CommandID: cmd.ID, Type: cmd.Type, Err: clearErr}
		}
		c.finish(ctx, logger, cmd, err)
		return

	case domain.CommandReset:
		c.activity.Touch("command")
		if resetErr := c.state.ResetState(); resetErr != nil {
			c.finish(ctx, logger, cmd, &domain.CommandExecutionError{CommandID: cmd.ID, Type: cmd.Type, Err: resetErr})
			return
		}
		c.remember(cmd.ID)
		c.finish(ctx, logger, cmd, nil)
		c.reloadLater("reset command")
		return
	}

	err = &domain.CommandExecutionError{
		CommandID: cmd.ID,
		Type:      cmd.Type,
		Err:       fmt.Errorf("unknown command type %q", cmd.Type),
	}
	c.finish(ctx, logger, cmd, err)
}

// remember persists the id of a command that reloads the process
func (c *CommandChannel) remember(id string) {
	if err := kvstore.SaveLastCommand(c.store, id); err != nil {
		c.logger.Warn("Failed to persist command id", zap.String("command", id), zap.Error(err))
	}
}

func (c *CommandChannel) finish(ctx context.Context, logger *zap.Logger, cmd domain.Command, err error) {
	result := domain.CommandResult{CommandID: cmd.ID, Success: err == nil}
	if err != nil {
		result.Message = err.Error()
		logger.Warn("Command failed", zap.Error(err))
	} else {
		logger.Info("Command executed")
	}

	c.mu.Lock()
	c.lastResult = result
	c.mu.Unlock()

	c.report(ctx, logger, result)
}

func (c *CommandChannel) report(ctx context.Context, logger *zap.Logger, result domain.CommandResult) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := c.remote.ReportCommandResult(ctx, result); err != nil {
		logger.Warn("Failed to report command result", zap.Error(err))
	}
}

// reloadLater reloads the process once the reboot delay has passed. A stopped
// channel still reloads: the command was acknowledged. The goroutine is not
// tracked by wg, the reload hooks stop this channel and would wait on it.
func (c *CommandChannel) reloadLater(reason string) {
	go func() {
		<-c.after(c.opts.RebootDelay)
		if err := c.reloader.Reload(reason); err != nil {
			c.logger.Error("Process reload failed", zap.String("reason", reason), zap.Error(err))
		}
	}()
}
