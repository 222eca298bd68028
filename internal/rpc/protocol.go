// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package rpc is the thin external WebSocket adapter: it maps the RPC
// operations table (create_terminal, write_terminal, resize_terminal,
// close_terminal, get_terminal_cwd, warm_pool, refresh_pool) onto
// internal/manager.Manager calls, and multiplexes every assigned terminal's
// output plus terminal-exit events back over one connection. Grounded on the
// teacher's sandbox/internal/ws/router.go + apps/sandbox/internal/ws/client.go:
// binary frames carry PTY bytes, text frames carry JSON control messages.
package rpc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
)

// Request is one control-channel operation, sent as a JSON text frame.
type Request struct {
	ID         string `json:"id"`
	Op         string `json:"op"`
	TerminalID string `json:"terminal_id,omitempty"`
	Cwd        string `json:"cwd,omitempty"`
	Data       string `json:"data,omitempty"`
	Cols       uint16 `json:"cols,omitempty"`
	Rows       uint16 `json:"rows,omitempty"`
	Count      int    `json:"count,omitempty"`
}

// Response answers a Request by ID.
type Response struct {
	ID    string `json:"id"`
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Cwd   string `json:"cwd,omitempty"`
	Found bool   `json:"found,omitempty"`
}

// ExitEvent is pushed unsolicited, as a JSON text frame, when an assigned
// terminal's shell exits.
type ExitEvent struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminal_id"`
	ExitCode   *int   `json:"exit_code,omitempty"`
}

var errShortFrame = errors.New("rpc: binary frame shorter than its terminal id header")

// encodeOutputFrame builds a binary WebSocket frame carrying one terminal's
// output: a uint16-BE length-prefixed terminal id, then the raw bytes.
func encodeOutputFrame(terminalID string, data []byte) []byte {
	idBytes := []byte(terminalID)
	frame := make([]byte, 2+len(idBytes)+len(data))
	binary.BigEndian.PutUint16(frame[0:2], uint16(len(idBytes)))
	copy(frame[2:], idBytes)
	copy(frame[2+len(idBytes):], data)
	return frame
}

// decodeInputFrame is the inverse of encodeOutputFrame, used for incoming
// binary frames (frontend keystrokes routed to a specific terminal).
func decodeInputFrame(frame []byte) (terminalID string, data []byte, err error) {
	if len(frame) < 2 {
		return "", nil, errShortFrame
	}
	idLen := int(binary.BigEndian.Uint16(frame[0:2]))
	if len(frame) < 2+idLen {
		return "", nil, errShortFrame
	}
	return string(frame[2 : 2+idLen]), frame[2+idLen:], nil
}

func marshalExitEvent(ev ExitEvent) []byte {
	b, err := json.Marshal(ev)
	if err != nil {
		// ExitEvent has no unmarshalable fields; this would be a programmer error.
		panic(err)
	}
	return b
}
