//go:build windows

package oracle

import "os/exec"

// setupProcessGroup is a no-op on Windows; CommandContext kills the go tool
// and WaitDelay releases the pipes.
func setupProcessGroup(cmd *exec.Cmd) {}
