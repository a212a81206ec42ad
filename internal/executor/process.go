// Package executor starts and supervises the external programs the player
// drives: the media renderer and the browser used for web content.
package executor

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Process is a child process running in its own process group
type Process struct {
	logger *zap.Logger
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

// StartProcess starts binary detached from the daemon's process group and
// reaps it in the background so it never turns into a zombie
func StartProcess(logger *zap.Logger, binary string, args ...string) (*Process, error) {
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	p := &Process{
		logger: logger.With(zap.String("process", filepath.Base(binary)), zap.Int("pid", cmd.Process.Pid)),
		cmd:    cmd,
		exited: make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.exited)
	}()

	p.logger.Debug("Process started", zap.Strings("args", args))
	return p, nil
}

// Exited is closed once the process has been reaped
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Err is the wait error of an exited process
func (p *Process) Err() error {
	select {
	case <-p.exited:
		return p.err
	default:
		return nil
	}
}

// Stop asks the process group to terminate and kills it once grace has passed
func (p *Process) Stop(grace time.Duration) error {
	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := terminate(p.cmd); err != nil {
		p.logger.Debug("Terminate signal failed", zap.Error(err))
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(grace):
	}

	p.logger.Warn("Process ignored terminate, killing", zap.Duration("grace", grace))
	if err := kill(p.cmd); err != nil {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	<-p.exited
	return nil
}
