//go:build windows
// +build windows

package system

import (
	"os"
	"os/exec"
)

// execSelf starts a detached copy and exits, Windows has no exec(2)
func execSelf(path string, argv, env []string) error {
	cmd := exec.Command(path, argv[1:]...)
	cmd.Env = env
	if err := cmd.Start(); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
