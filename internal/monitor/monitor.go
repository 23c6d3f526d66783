// Package monitor mirrors LED telemetry to browser clients over WebSocket
// and serves a small JSON health endpoint. It is an optional egress: when no
// monitor address is configured nothing here runs, and a slow or absent
// client never stalls the control loop.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openptycho/matrixctl/internal/sequence"
)

const writeDeadline = 200 * time.Millisecond

// StatusFunc supplies the live controller state for /healthz.
type StatusFunc func() map[string]any

// Server broadcasts telemetry events. It satisfies vis.EventSink.
type Server struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	interval  time.Duration
	lastEvent time.Time

	start  time.Time
	events uint64

	status StatusFunc
}

// New returns a server throttling per-LED events to at most one per
// interval. status may be nil.
func New(interval time.Duration, status StatusFunc) *Server {
	return &Server{
		clients:  map[*websocket.Conn]bool{},
		interval: interval,
		start:    time.Now(),
		status:   status,
	}
}

// Handler returns the HTTP routes for the monitor listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("monitor client connected")

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := map[string]any{
		"uptime_s": time.Since(s.start).Seconds(),
		"clients":  len(s.clients),
		"events":   s.events,
	}
	s.mu.RUnlock()
	if s.status != nil {
		for k, v := range s.status() {
			resp[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// LEDEvent broadcasts a single LED state change, throttled to the configured
// interval. Implements vis.EventSink.
func (s *Server) LEDEvent(x, y, color int) {
	s.mu.Lock()
	now := time.Now()
	if !s.lastEvent.IsZero() && now.Sub(s.lastEvent) < s.interval {
		s.mu.Unlock()
		return
	}
	s.lastEvent = now
	s.events++
	s.mu.Unlock()

	s.broadcast(map[string]any{
		"type": "led", "x": x, "y": y, "color": color, "t": now.UnixNano(),
	})
}

// PatternDump broadcasts the full active-cell list. Not throttled; dumps are
// host-requested and rare.
func (s *Server) PatternDump(cells []sequence.Cell) {
	type cell struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	out := make([]cell, len(cells))
	for i, c := range cells {
		out[i] = cell{X: c.X, Y: c.Y}
	}
	s.broadcast(map[string]any{"type": "pattern", "cells": out})
}

func (s *Server) broadcast(msg map[string]any) {
	b, _ := json.Marshal(msg)

	var failed []*websocket.Conn
	s.mu.RLock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("monitor client dropped")
			failed = append(failed, c)
		}
	}
	s.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	s.mu.Lock()
	for _, c := range failed {
		delete(s.clients, c)
		c.Close()
	}
	s.mu.Unlock()
}
