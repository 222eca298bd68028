// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package pty

import "os"

// DefaultShell returns the shell to spawn when no explicit command is given.
// Honors SHELL, falling back to /bin/bash, then /bin/sh — delegating actual
// discovery policy to the environment the way the teacher's shell.go does.
func DefaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if _, err := os.Stat("/bin/bash"); err == nil {
		return "/bin/bash"
	}
	return "/bin/sh"
}
