// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package pty wraps a single pseudo-terminal's master side and the shell
// spawned against its slave. It is the platform PTY abstraction spec.md §1
// names as an external collaborator (openpty/spawn/resize/reader/writer),
// implemented here on top of github.com/creack/pty exactly as the teacher's
// sandbox/internal/pty/pty.go does.
package pty

import (
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/hyper-ai-inc/ptymanager/internal/childproc"
)

// Size is a PTY's character-cell dimensions. Pixel dimensions are never
// tracked — the terminal emulator this manager serves works in cells only.
type Size struct {
	Cols uint16
	Rows uint16
}

// DefaultPoolSize is the 80×24 a pooled shell is opened at before it is
// resized and handed to a frontend (spec.md §4.4, §9 open question 3).
var DefaultPoolSize = Size{Cols: 80, Rows: 24}

// Master is the master side of a pseudo-terminal. The shell running against
// its slave is held separately, in the childproc.Handle Spawn returns.
type Master struct {
	// ID correlates a Master across its pool→session lifetime in logs; it
	// has no relationship to the frontend-assigned TerminalId.
	ID string

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// Spawn opens a pseudo-terminal at the given size and starts command in it.
// If command is empty, DefaultShell() is used. If dir is non-empty, the
// child's working directory is set at spawn time (the fresh-spawn path of
// create_terminal — no in-shell `cd` is needed in this case).
func Spawn(command string, size Size, dir string) (*Master, *childproc.Handle, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		parts = []string{DefaultShell()}
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	if dir != "" {
		cmd.Dir = dir
	}

	file, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: size.Cols, Rows: size.Rows})
	if err != nil {
		return nil, nil, err
	}

	m := &Master{ID: uuid.NewString(), file: file}
	return m, childproc.New(cmd), nil
}

// Read reads raw bytes from the master side.
func (m *Master) Read(buf []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, os.ErrClosed
	}
	f := m.file
	m.mu.Unlock()
	return f.Read(buf)
}

// Write writes bytes to the shell's stdin via the master side.
func (m *Master) Write(data []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, os.ErrClosed
	}
	f := m.file
	m.mu.Unlock()
	return f.Write(data)
}

// Resize changes the PTY's character-cell dimensions.
func (m *Master) Resize(size Size) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return os.ErrClosed
	}
	return pty.Setsize(m.file, &pty.Winsize{Cols: size.Cols, Rows: size.Rows})
}

// Close closes the master file descriptor. It does not kill the child
// process — callers that own a childproc.Handle are responsible for that;
// closing the master is what lets an already-killed child's reader see EOF.
func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.file.Close()
}
