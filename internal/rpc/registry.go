// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package rpc

import (
	"sync"

	"github.com/hyper-ai-inc/ptymanager/internal/manager"
)

// Registry routes a manager.TerminalExitEvent back to whichever connection
// created that terminal. A single Manager (and therefore a single exit
// callback) is shared by every connection the server accepts, so the
// callback alone can't know which socket to write to — Registry is the
// lookup in between.
type Registry struct {
	mu     sync.Mutex
	owners map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]*Client)}
}

// claim records that client owns terminalID, so a future exit event for it
// is delivered there.
func (r *Registry) claim(terminalID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[terminalID] = c
}

// release forgets terminalID's owner, e.g. after an explicit close.
func (r *Registry) release(terminalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, terminalID)
}

// EmitTerminalExit implements manager.ExitEmitter. It looks up the owning
// client and forgets the terminal in one step — an exited terminal can
// never exit twice, so there is nothing left to route to later.
func (r *Registry) EmitTerminalExit(ev manager.TerminalExitEvent) {
	r.mu.Lock()
	c := r.owners[ev.TerminalID]
	delete(r.owners, ev.TerminalID)
	r.mu.Unlock()

	if c != nil {
		c.deliverExit(ev)
	}
}
