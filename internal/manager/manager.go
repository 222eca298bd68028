// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package manager implements the PTY Manager façade (C6): the single public
// surface a frontend's RPC adapter calls into, plus the exit-event emission
// path (C7).
package manager

import (
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hyper-ai-inc/ptymanager/internal/pool"
	"github.com/hyper-ai-inc/ptymanager/internal/pty"
	"github.com/hyper-ai-inc/ptymanager/internal/router"
	"github.com/hyper-ai-inc/ptymanager/internal/sessions"
)

// ErrNotFound is returned by operations addressing an unknown terminal id.
var ErrNotFound = errors.New("terminal not found")

// TerminalExitEvent is delivered exactly once per assigned PTY, after its
// child process exits.
type TerminalExitEvent struct {
	TerminalID string
	ExitCode   *int
}

// ExitEmitter posts terminal-exit events to the frontend. Separated from
// Manager so tests and the RPC adapter can each supply their own sink,
// mirroring the Hub.onStop callback pattern in the teacher's
// sandbox/internal/pty/hub.go.
type ExitEmitter interface {
	EmitTerminalExit(TerminalExitEvent)
}

// Manager owns the session table and the warm pool, and exposes the
// create/write/resize/close/cwd/warm/refresh operations spec.md §4.6 names.
type Manager struct {
	sessions *sessions.Table
	pool     *pool.Pool
	emitter  ExitEmitter
}

// New creates a Manager. emitter receives every assigned PTY's exit event.
func New(emitter ExitEmitter) *Manager {
	m := &Manager{
		sessions: sessions.New(),
		emitter:  emitter,
	}
	m.pool = pool.New(m.onExit)
	return m
}

func (m *Manager) onExit(terminalID string, exitCode *int) {
	m.emitter.EmitTerminalExit(TerminalExitEvent{TerminalID: terminalID, ExitCode: exitCode})
}

// CreateTerminal pops a pooled PTY if one is available (retargeting its
// router and resizing it first) or spawns a fresh one, and inserts the
// resulting session into the table.
//
// cwd == "" means no custom working directory was requested.
func (m *Manager) CreateTerminal(terminalID, cwd string, size pty.Size, ch router.Channel) error {
	hasCwd := cwd != ""

	if entry, ok := m.pool.Pop(); ok {
		return m.assignPooled(entry, terminalID, cwd, hasCwd, size, ch)
	}

	return m.spawnFresh(terminalID, cwd, size, ch)
}

func (m *Manager) assignPooled(entry *pool.Entry, terminalID, cwd string, hasCwd bool, size pty.Size, ch router.Channel) error {
	// Resize FIRST: the pooled PTY started at 80×24, and replaying buffered
	// text at the wrong width produces wrong line wraps (spec.md §4.6, §9).
	// A resize failure here is swallowed, not propagated — the original
	// (pty_manager.rs: `let _ = entry.master.resize(...)`) continues the
	// assignment regardless, so a misbehaving Resize never strands the
	// popped entry outside both the pool and the session table.
	_ = entry.Master.Resize(size)

	// Replay the buffered prompt only when no custom cwd was requested — a
	// cwd change forces a fresh prompt anyway, so the stale buffer is
	// discarded instead.
	entry.Router.TransitionToStreaming(terminalID, ch, !hasCwd)

	session := &sessions.Session{Master: entry.Master, Child: entry.Child, Router: entry.Router}

	if hasCwd {
		if _, err := entry.Master.Write([]byte(cdAndClear(cwd))); err != nil {
			m.sessions.Insert(terminalID, session)
			return err
		}
	}

	m.sessions.Insert(terminalID, session)
	return nil
}

func (m *Manager) spawnFresh(terminalID, cwd string, size pty.Size, ch router.Channel) error {
	master, child, err := pty.Spawn("", size, cwd)
	if err != nil {
		return err
	}

	// This PTY never sat in the pool, so its router skips Buffering
	// entirely — it starts directly in Streaming mode with nothing to
	// replay.
	rtr := router.New()
	rtr.TransitionToStreaming(terminalID, ch, false)

	m.sessions.Insert(terminalID, &sessions.Session{Master: master, Child: child, Router: rtr})

	go pty.ReadLoop(master, rtr, child, m.onExit)
	return nil
}

// cdAndClear builds the in-shell command used to move a pooled shell into a
// requested directory. The leading space keeps the command out of shell
// history under HISTCONTROL=ignorespace / HIST_IGNORE_SPACE.
func cdAndClear(dir string) string {
	escaped := strings.ReplaceAll(dir, "'", `'\''`)
	return " cd '" + escaped + "' && clear\n"
}

// WriteTerminal writes data to the session's shell and flushes it.
func (m *Manager) WriteTerminal(terminalID string, data []byte) error {
	session, ok := m.sessions.Get(terminalID)
	if !ok {
		return ErrNotFound
	}
	_, err := session.Master.Write(data)
	return err
}

// ResizeTerminal resizes the session's master.
func (m *Manager) ResizeTerminal(terminalID string, size pty.Size) error {
	session, ok := m.sessions.Get(terminalID)
	if !ok {
		return ErrNotFound
	}
	return session.Master.Resize(size)
}

// CloseTerminal removes the session from the table, best-effort kills its
// child, and invalidates its router so a reader goroutine blocked mid-send
// (nobody draining the now-abandoned channel) is released rather than
// leaking forever. Always succeeds, even for an unknown id — idempotent by
// design.
func (m *Manager) CloseTerminal(terminalID string) error {
	session, ok := m.sessions.Remove(terminalID)
	if ok {
		_ = session.Child.Kill()
		session.Router.Invalidate()
	}
	return nil
}

// GetTerminalCwd reports the session's current working directory via an
// external lsof probe. Returns ("", false, nil) if the directory could not
// be determined — lsof missing, process gone, or no matching line — since
// that failure mode is never surfaced as an error (spec.md §7).
//
// The sessions lock is held only long enough to read the child's pid; it is
// released before lsof runs, so a slow probe never blocks other terminal
// operations (spec.md §4.6, §5).
func (m *Manager) GetTerminalCwd(terminalID string) (string, bool, error) {
	session, ok := m.sessions.Get(terminalID)
	if !ok {
		return "", false, ErrNotFound
	}
	pid, ok := session.Child.Pid()
	if !ok {
		return "", false, nil
	}

	out, err := exec.Command("lsof", "-a", "-p", strconv.Itoa(pid), "-d", "cwd", "-Fn").Output()
	if err != nil {
		return "", false, nil
	}

	for _, line := range strings.Split(string(out), "\n") {
		if path, ok := strings.CutPrefix(line, "n"); ok {
			return path, true, nil
		}
	}
	return "", false, nil
}

// Pool exposes the underlying pool for components (the rc-file watcher)
// that need to call Pool.Refresh directly rather than through the Manager.
func (m *Manager) Pool() *pool.Pool {
	return m.pool
}

// WarmPool pre-spawns up to count fresh pool entries (capped at
// pool.MaxSize total).
func (m *Manager) WarmPool(count int) error {
	return m.pool.Warm(count)
}

// RefreshPool drains the pool, kills the old shells, and re-warms it to
// pool.MaxSize so pooled shells pick up updated rc files and environment.
func (m *Manager) RefreshPool() error {
	return m.pool.Refresh()
}
