package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/genricoloni/screend/internal/executor"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	socketWaitRetries = 20
	socketWaitDelay   = 150 * time.Millisecond
	quitGrace         = 3 * time.Second

	// exitMessage is the script-message sent by the kiosk exit keybinding
	exitMessage = "screend-kiosk-exit"
)

// mpvConn is a controllable mpv window
type mpvConn interface {
	Command(ctx context.Context, args ...any) (json.RawMessage, error)
	Events() <-chan Event
	Close() error
}

// windowRole tells the launcher how to dress the window
type windowRole int

const (
	roleBackdrop windowRole = iota
	roleZone
)

// launchFunc opens an mpv window covering rect
type launchFunc func(ctx context.Context, rect image.Rectangle, role windowRole) (mpvConn, error)

// mpvArgs builds the command line of one window. Playback is driven over IPC,
// the window only needs placement and a still-image policy.
func mpvArgs(socket string, rect image.Rectangle, role windowRole) []string {
	args := []string{
		"--no-terminal",
		"--really-quiet",
		"--idle=yes",
		"--force-window=yes",
		"--input-ipc-server=" + socket,
		"--no-border",
		fmt.Sprintf("--geometry=%dx%d+%d+%d", rect.Dx(), rect.Dy(), rect.Min.X, rect.Min.Y),
		"--no-osc",
		"--input-default-bindings=no",
		"--cursor-autohide=always",
		"--keep-open=no",
		"--loop-file=no",
		"--image-display-duration=inf",
		"--hwdec=auto-safe",
		"--background=color",
		"--background-color=#000000",
	}
	if role == roleZone {
		args = append(args, "--ontop", "--no-focus-on=open")
	}
	return args
}

// mpvProcess is one mpv window process and its IPC connection
type mpvProcess struct {
	*ipcClient
	proc   *executor.Process
	socket string
}

// newLauncher returns the launchFunc spawning binary
func newLauncher(logger *zap.Logger, binary string) launchFunc {
	return func(ctx context.Context, rect image.Rectangle, role windowRole) (mpvConn, error) {
		return launchMPV(ctx, logger, binary, rect, role)
	}
}

func launchMPV(ctx context.Context, logger *zap.Logger, binary string, rect image.Rectangle, role windowRole) (*mpvProcess, error) {
	socket := filepath.Join(os.TempDir(), "screend-"+uuid.NewString()+".sock")

	proc, err := executor.StartProcess(logger, binary, mpvArgs(socket, rect, role)...)
	if err != nil {
		return nil, err
	}

	conn, err := waitForSocket(ctx, proc, socket)
	if err != nil {
		// If socket never became ready, kill the orphaned process
		_ = proc.Stop(0)
		_ = os.Remove(socket)
		return nil, fmt.Errorf("mpv socket not ready: %w", err)
	}

	return &mpvProcess{
		ipcClient: newIPCClient(logger, conn),
		proc:      proc,
		socket:    socket,
	}, nil
}

// waitForSocket polls until the mpv IPC socket is accepting connections
func waitForSocket(ctx context.Context, proc *executor.Process, socket string) (net.Conn, error) {
	var d net.Dialer
	for i := 0; i < socketWaitRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-proc.Exited():
			return nil, fmt.Errorf("mpv exited before socket was ready: %v", proc.Err())
		case <-time.After(socketWaitDelay):
		}

		conn, err := d.DialContext(ctx, "unix", socket)
		if err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("socket %s not ready after %d attempts", socket, socketWaitRetries)
}

// Close quits mpv gracefully, then reaps it and removes the socket
func (m *mpvProcess) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	_, _ = m.Command(ctx, "quit")

	// mpv may already have closed its end after quit
	_ = m.ipcClient.Close()
	err := m.proc.Stop(quitGrace)
	if rmErr := os.Remove(m.socket); rmErr != nil && !os.IsNotExist(rmErr) {
		err = multierr.Append(err, rmErr)
	}
	return err
}

// bindExitKey makes key post exitMessage as a client-message event
func bindExitKey(ctx context.Context, conn mpvConn, key string) error {
	if key == "" {
		return nil
	}
	_, err := conn.Command(ctx, "keybind", key, "script-message "+exitMessage)
	return err
}
