// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package sessions implements the session table (C5): the mapping from
// terminal id to its live master handle and child process.
package sessions

import (
	"sync"

	"github.com/hyper-ai-inc/ptymanager/internal/childproc"
	"github.com/hyper-ai-inc/ptymanager/internal/pty"
	"github.com/hyper-ai-inc/ptymanager/internal/router"
)

// Session is a live, assigned PTY (spec.md §3).
type Session struct {
	Master *pty.Master
	Child  *childproc.Handle
	Router *router.Router
}

// Table is a single mutex guarding a map of terminal id to Session.
//
// Locking rule (spec.md §4.5, critical): never hold this lock across a shell
// write, a subprocess spawn/wait, or an external command invocation. Every
// method here does O(1) map work only — callers that need to do I/O (write
// to a session, probe its cwd) must copy what they need out and release the
// lock first, which is exactly what internal/manager does.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates an empty table.
func New() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Insert adds or overwrites the session for id. Inserting a duplicate id
// silently overwrites the prior entry — spec.md §3/§9 flags this as a likely
// bug in the original but preserves the behavior; the practical invariant is
// that the frontend never reuses ids.
func (t *Table) Insert(id string, s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = s
}

// Get returns the session for id, if any.
func (t *Table) Get(id string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Remove deletes and returns the session for id, if any.
func (t *Table) Remove(id string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	return s, ok
}

// Has reports whether id is present, for invariant checks.
func (t *Table) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[id]
	return ok
}
