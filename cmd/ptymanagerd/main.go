// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/hyper-ai-inc/ptymanager/internal/manager"
	"github.com/hyper-ai-inc/ptymanager/internal/pool"
	"github.com/hyper-ai-inc/ptymanager/internal/rpc"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	registry := rpc.NewRegistry()
	mgr := manager.New(registry)

	if n := warmPoolSizeFromEnv(); n > 0 {
		if err := mgr.WarmPool(n); err != nil {
			log.Printf("initial pool warm failed: %v", err)
		}
	}

	if rcWatchEnabledFromEnv() {
		if watcher, err := pool.NewRCWatcher(mgr.Pool(), nil); err != nil {
			log.Printf("rc watcher disabled: %v", err)
		} else {
			watcher.Start()
		}
	}

	wsRouter := rpc.NewRouter(mgr, registry)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /ws", wsRouter.HandleWebSocket)

	log.Printf("Starting ptymanagerd on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// rcWatchEnabledFromEnv reports whether the rc-file watcher should run.
// Off by default — refresh_pool remains callable directly at any time
// regardless of this setting; PTYMANAGER_RCWATCH=1 opts into the automatic
// trigger on top of it.
func rcWatchEnabledFromEnv() bool {
	return os.Getenv("PTYMANAGER_RCWATCH") == "1"
}

// warmPoolSizeFromEnv reads PTYMANAGER_WARM_POOL, defaulting to
// pool.MaxSize. A value of 0 disables startup warming.
func warmPoolSizeFromEnv() int {
	raw := os.Getenv("PTYMANAGER_WARM_POOL")
	if raw == "" {
		return pool.MaxSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return pool.MaxSize
	}
	return n
}
