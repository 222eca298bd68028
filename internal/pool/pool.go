// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package pool implements the warm pool of pre-spawned shells (C4):
// pre-spawned PTYs sitting in Buffering mode, masking shell-startup latency
// from interactive terminal creation.
package pool

import (
	"sync"

	"github.com/hyper-ai-inc/ptymanager/internal/childproc"
	"github.com/hyper-ai-inc/ptymanager/internal/pty"
	"github.com/hyper-ai-inc/ptymanager/internal/router"
)

// MaxSize bounds the pool. Three warm shells cover typical burst creation
// in a tabbed terminal while bounding idle shell cost (spec.md §4.4).
const MaxSize = 3

// Entry is one pre-spawned, idle PTY (spec.md §3 PoolEntry).
type Entry struct {
	Master *pty.Master
	Router *router.Router
	Child  *childproc.Handle
}

// Pool is a bounded, LIFO collection of Entries.
type Pool struct {
	mu       sync.Mutex
	entries  []*Entry
	onExit   pty.ExitFunc
}

// New creates an empty pool. onExit is wired straight through to every
// reader worker a spawned PTY gets — since the reader only ever calls it
// once the PTY has been assigned to a terminal (router.AssignedID), this is
// safe to share between pool-promoted and freshly-spawned sessions alike.
func New(onExit pty.ExitFunc) *Pool {
	return &Pool{onExit: onExit}
}

// Len reports the current pool size.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Warm spawns min(count, MaxSize-current) fresh entries. A per-spawn failure
// aborts the loop and surfaces that error; entries already pushed stay in
// the pool.
func (p *Pool) Warm(count int) error {
	p.mu.Lock()
	current := len(p.entries)
	p.mu.Unlock()

	toSpawn := MaxSize - current
	if count < toSpawn {
		toSpawn = count
	}
	if toSpawn < 0 {
		toSpawn = 0
	}

	for i := 0; i < toSpawn; i++ {
		if err := p.spawnOne(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) spawnOne() error {
	master, child, err := pty.Spawn("", pty.DefaultPoolSize, "")
	if err != nil {
		return err
	}

	entry := &Entry{
		Master: master,
		Router: router.New(),
		Child:  child,
	}

	p.mu.Lock()
	p.entries = append(p.entries, entry)
	p.mu.Unlock()

	go pty.ReadLoop(master, entry.Router, child, p.onExit)
	return nil
}

// Pop removes and returns the most recently pushed entry (LIFO — any order
// would be correct, stack discipline is simplest and keeps locality).
func (p *Pool) Pop() (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	if n == 0 {
		return nil, false
	}
	entry := p.entries[n-1]
	p.entries = p.entries[:n-1]
	return entry, true
}

// Refresh drains the entire pool, kills each old shell, and spawns
// MaxSize fresh replacements. Used when the frontend wants pooled shells to
// pick up updated shell history, rc files, or environment. Every drained
// entry's router is still in Buffering mode with no assigned id, so its
// reader worker's EOF is silent — no exit event fires for pool churn.
func (p *Pool) Refresh() error {
	p.mu.Lock()
	old := p.entries
	p.entries = nil
	p.mu.Unlock()

	for _, entry := range old {
		_ = entry.Child.Kill()
		_ = entry.Master.Close()
	}

	return p.Warm(MaxSize)
}
