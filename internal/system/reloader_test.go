package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type execCall struct {
	path string
	argv []string
}

func newTestReloader(execErr error) (*Reloader, *[]execCall) {
	var calls []execCall
	r := NewReloaderWithExec(zap.NewNop(), func(path string, argv, env []string) error {
		calls = append(calls, execCall{path: path, argv: argv})
		return execErr
	})
	r.executable = func() (string, error) { return "/nonexistent/screend", nil }
	r.args = []string{"screend", "run", "--log-level=debug"}
	return r, &calls
}

func TestReloader_ExecsWithOriginalArgs(t *testing.T) {
	r, calls := newTestReloader(nil)

	require.NoError(t, r.Reload("reboot command"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "/nonexistent/screend", (*calls)[0].path)
	assert.Equal(t, []string{"screend", "run", "--log-level=debug"}, (*calls)[0].argv)
}

func TestReloader_HooksRunInReverseOrder(t *testing.T) {
	r, calls := newTestReloader(nil)
	var order []string
	r.BeforeReload(func(context.Context) error {
		order = append(order, "renderer")
		return nil
	})
	r.BeforeReload(func(context.Context) error {
		order = append(order, "session")
		return errors.New("already stopped")
	})

	require.NoError(t, r.Reload("inactivity"))
	assert.Equal(t, []string{"session", "renderer"}, order)
	assert.Len(t, *calls, 1, "a failing hook does not block the reload")
}

func TestReloader_ExecFailure(t *testing.T) {
	r, _ := newTestReloader(errors.New("permission denied"))

	err := r.Reload("reset command")
	assert.ErrorContains(t, err, "permission denied")
	assert.False(t, r.active.Load(), "a failed reload can be retried")
}

func TestReloader_ExecutableMissing(t *testing.T) {
	r, calls := newTestReloader(nil)
	r.executable = func() (string, error) { return "", errors.New("no /proc") }

	assert.Error(t, r.Reload("skip-waiting"))
	assert.Empty(t, *calls)
}
