// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package pool

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const rcDebounceInterval = 500 * time.Millisecond

// defaultRCFiles returns the rc files pooled shells source at spawn time.
// A write to any of them means the next pooled shell would come up with
// stale history/environment, which is exactly the staleness refresh_pool
// exists to fix (spec.md §4.4, §9).
func defaultRCFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return []string{"/etc/profile"}
	}
	return []string{
		filepath.Join(home, ".bashrc"),
		filepath.Join(home, ".zshrc"),
		filepath.Join(home, ".profile"),
		"/etc/profile",
	}
}

// RCWatcher watches a fixed, small set of rc files and debounce-triggers
// Pool.Refresh when one of them changes. It is an opt-in supplement: nothing
// about spec.md's RPC surface requires it, and refresh_pool remains callable
// directly at any time regardless of whether a watcher is running.
//
// Grounded on the debounce-timer-per-path shape of the teacher's
// sandbox/internal/drivesync/watcher.go, trimmed down: one debounce timer
// shared by all watched files rather than one per path, no directory walk (a
// fixed file list, not a tree), no self-caused-event suppression (rc files
// are never written by this process).
type RCWatcher struct {
	pool  *Pool
	fsw   *fsnotify.Watcher
	stop  chan struct{}
	done  chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// NewRCWatcher creates a watcher over files (or defaultRCFiles() if files is
// empty) that calls pool.Refresh on debounced writes. The returned watcher
// is not yet watching — call Start.
func NewRCWatcher(p *Pool, files []string) (*RCWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		files = defaultRCFiles()
	}

	w := &RCWatcher{
		pool: p,
		fsw:  fsw,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue // rc file doesn't exist on this host — nothing to watch
		}
		if err := fsw.Add(f); err != nil {
			log.Printf("pool: rcwatch: failed to watch %s: %v", f, err)
		}
	}

	return w, nil
}

// Start begins watching in the background.
func (w *RCWatcher) Start() {
	go w.loop()
}

// Stop shuts the watcher down.
func (w *RCWatcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
	}
	close(w.stop)
	w.fsw.Close()
	<-w.done
}

func (w *RCWatcher) loop() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.scheduleRefresh()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("pool: rcwatch: watcher error: %v", err)
		}
	}
}

func (w *RCWatcher) scheduleRefresh() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(rcDebounceInterval, func() {
		if err := w.pool.Refresh(); err != nil {
			log.Printf("pool: rcwatch: refresh failed: %v", err)
		}
	})
}
