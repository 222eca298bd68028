// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package rpc

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/hyper-ai-inc/ptymanager/internal/manager"
)

// allowedOrigins reads the comma-separated ALLOWED_ORIGINS environment
// variable.
func allowedOrigins() []string {
	origins := os.Getenv("ALLOWED_ORIGINS")
	if origins == "" {
		return nil
	}
	return strings.Split(origins, ",")
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	allowed := allowedOrigins()
	if len(allowed) == 0 {
		return false
	}

	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == origin || a == "*" {
			return true
		}
		if strings.HasSuffix(a, ":*") {
			prefix := strings.TrimSuffix(a, "*")
			if strings.HasPrefix(origin, prefix) {
				remainder := strings.TrimPrefix(origin, prefix)
				if len(remainder) > 0 && isNumeric(remainder) {
					return true
				}
			}
		}
	}
	return false
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Router upgrades HTTP requests to the single WebSocket endpoint every
// terminal operation goes through.
type Router struct {
	mgr      *manager.Manager
	registry *Registry
}

// NewRouter creates a router backed by mgr. registry must be the same
// Registry instance mgr was constructed with as its ExitEmitter.
func NewRouter(mgr *manager.Manager, registry *Registry) *Router {
	return &Router{mgr: mgr, registry: registry}
}

// HandleWebSocket upgrades the connection and runs it until close.
func (rt *Router) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("rpc: websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, rt.mgr, rt.registry)
	client.Run()
}
