//go:build !windows
// +build !windows

package system

import "syscall"

func execSelf(path string, argv, env []string) error {
	return syscall.Exec(path, argv, env)
}
