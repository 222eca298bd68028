// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package rpc

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hyper-ai-inc/ptymanager/internal/manager"
	"github.com/hyper-ai-inc/ptymanager/internal/pty"
	"github.com/hyper-ai-inc/ptymanager/internal/router"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one WebSocket connection multiplexing an arbitrary number of
// terminals created through mgr.
type Client struct {
	conn     *websocket.Conn
	mgr      *manager.Manager
	registry *Registry

	output router.Channel // shared across every terminal this client creates
	outgoing chan []byte    // raw frames queued for writePump (exit events, responses)
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(conn *websocket.Conn, mgr *manager.Manager, registry *Registry) *Client {
	return &Client{
		conn:     conn,
		mgr:      mgr,
		registry: registry,
		output:   make(router.Channel, 256),
		outgoing: make(chan []byte, 256),
	}
}

// Run drives the connection until it closes. Blocks the caller; the HTTP
// upgrade handler calls it directly and returns once the connection closes.
func (c *Client) Run() {
	go c.pumpOutput()
	go c.writePump()
	c.readPump() // blocks until the connection closes
}

// pumpOutput forwards the shared output channel's batches to the client as
// binary frames.
func (c *Client) pumpOutput() {
	for out := range c.output {
		select {
		case c.outgoing <- encodeOutputFrame(out.TerminalID, out.Data):
		default:
			// outgoing is full; drop rather than block the whole connection.
		}
	}
}

// deliverExit is called by Registry once per assigned terminal's exit.
func (c *Client) deliverExit(ev manager.TerminalExitEvent) {
	frame := marshalExitEvent(ExitEvent{Type: "terminal-exit", TerminalID: ev.TerminalID, ExitCode: ev.ExitCode})
	select {
	case c.outgoing <- frame:
	default:
	}
}

func (c *Client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("rpc: websocket error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			terminalID, payload, err := decodeInputFrame(data)
			if err != nil {
				log.Printf("rpc: malformed binary frame: %v", err)
				continue
			}
			if err := c.mgr.WriteTerminal(terminalID, payload); err != nil && err != manager.ErrNotFound {
				log.Printf("rpc: write_terminal %s: %v", terminalID, err)
			}

		case websocket.TextMessage:
			var req Request
			if err := json.Unmarshal(data, &req); err != nil {
				log.Printf("rpc: invalid request: %v", err)
				continue
			}
			c.handleRequest(req)
		}
	}
}

func (c *Client) handleRequest(req Request) {
	resp := Response{ID: req.ID}

	switch req.Op {
	case "create_terminal":
		if err := c.mgr.CreateTerminal(req.TerminalID, req.Cwd, pty.Size{Cols: req.Cols, Rows: req.Rows}, c.output); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Ok = true
			c.registry.claim(req.TerminalID, c)
		}

	case "write_terminal":
		// Also reachable via binary frames; exposed here too so a JSON-only
		// client never needs to open a binary frame at all.
		resp.Ok = c.mgr.WriteTerminal(req.TerminalID, []byte(req.Data)) == nil

	case "resize_terminal":
		if err := c.mgr.ResizeTerminal(req.TerminalID, pty.Size{Cols: req.Cols, Rows: req.Rows}); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Ok = true
		}

	case "close_terminal":
		if err := c.mgr.CloseTerminal(req.TerminalID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Ok = true
			c.registry.release(req.TerminalID)
		}

	case "get_terminal_cwd":
		cwd, found, err := c.mgr.GetTerminalCwd(req.TerminalID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Ok = true
			resp.Cwd = cwd
			resp.Found = found
		}

	case "warm_pool":
		if err := c.mgr.WarmPool(req.Count); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Ok = true
		}

	case "refresh_pool":
		if err := c.mgr.RefreshPool(); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Ok = true
		}

	default:
		resp.Error = "unknown operation: " + req.Op
	}

	b, err := json.Marshal(resp)
	if err != nil {
		log.Printf("rpc: marshal response: %v", err)
		return
	}
	select {
	case c.outgoing <- b:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if frameIsJSON(frame) {
				if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			} else {
				if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// frameIsJSON distinguishes the two kinds of frames queued onto outgoing:
// responses/exit events are built with json.Marshal and always start with
// '{'; PTY output frames never do, since their first two bytes are a
// terminal-id length prefix and real terminal ids are short.
func frameIsJSON(frame []byte) bool {
	return len(frame) > 0 && frame[0] == '{'
}
