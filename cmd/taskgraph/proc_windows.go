//go:build windows

package main

import "os/exec"

// configureDaemonProc is a no-op; Windows has no setsid.
func configureDaemonProc(cmd *exec.Cmd) {}
