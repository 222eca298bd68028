// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package pty

import (
	"os/exec"

	"github.com/hyper-ai-inc/ptymanager/internal/childproc"
	"github.com/hyper-ai-inc/ptymanager/internal/router"
	"github.com/hyper-ai-inc/ptymanager/internal/utf8split"
)

// readBufSize matches the original implementation's 4096-byte PTY reads
// (spec.md §4.3).
const readBufSize = 4096

// ExitFunc is invoked exactly once per reader worker, only when the PTY it
// served had been assigned to a terminal id (spec.md §4.3 step 3). It is the
// hook the exit emitter (C7) is built on.
type ExitFunc func(terminalID string, exitCode *int)

// ReadLoop is the long-lived per-PTY reader worker (C3). It runs until the
// master reaches EOF or errors, splitting each read on UTF-8 boundaries
// before handing complete bytes to the router, then recovers the child's
// exit status and notifies onExit iff the router was ever assigned.
//
// Call this on its own goroutine; it blocks for the PTY's entire lifetime.
func ReadLoop(master *Master, rtr *router.Router, child *childproc.Handle, onExit ExitFunc) {
	buf := make([]byte, readBufSize)
	var carry []byte

	for {
		n, err := master.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)
			if k := utf8split.SplitPoint(carry); k > 0 {
				rtr.Route(carry[:k])
				// Start a fresh carry: the routed slice may still sit in the
				// frontend's channel buffer, so its backing array must not be
				// reused.
				carry = append([]byte(nil), carry[k:]...)
			}
		}
		if err != nil {
			break
		}
	}

	// Flush whatever incomplete tail remains — this only happens at EOF, and
	// lossy decoding downstream will turn any malformed remainder into
	// replacement characters.
	if len(carry) > 0 {
		rtr.Route(carry)
	}

	exitCode := waitExitCode(child)

	if terminalID, assigned := rtr.AssignedID(); assigned {
		onExit(terminalID, exitCode)
	}
}

// waitExitCode takes the child handle (if not already taken elsewhere) and
// waits for it, translating the result into the lossy i32-ish exit code the
// frontend expects. Returns nil if the process was already taken/reaped or
// its exit status could not be determined.
func waitExitCode(child *childproc.Handle) *int {
	cmd := child.Take()
	if cmd == nil {
		return nil
	}

	err := cmd.Wait()
	if err == nil {
		code := 0
		return &code
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		return &code
	}
	return nil
}
