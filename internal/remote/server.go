/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Control receives player signals. It must be safe for concurrent use.
type Control interface {
	RequestAdvance()
	RequestSkip()
	MakeChoice(index int)
	AcceptInput(value string)
}

// Rewinder is implemented by controls that can roll back to the previous line.
type Rewinder interface {
	RollBack()
}

// Command types accepted from clients.
const (
	CommandAdvance = "advance"
	CommandBack    = "back"
	CommandSkip    = "skip"
	CommandChoice  = "choice"
	CommandInput   = "input"
)

// Command is one client to server message. Index is 0-based.
type Command struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`
	Value string `json:"value,omitempty"`
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// Server serves /ws and /healthz.
type Server struct {
	hub      *Hub
	ctrl     Control
	upgrader websocket.Upgrader
}

// NewServer binds a hub to the control that receives client commands.
func NewServer(hub *Hub, ctrl Control) *Server {
	return &Server{
		hub:  hub,
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.hub.log.Info("remote listening", slog.String("addr", addr))
	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("remote listen: %w", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.log.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	c := s.hub.add()
	s.hub.log.Info("client connected", slog.String("remote", r.RemoteAddr))
	go s.writeLoop(conn, c)
	s.readLoop(conn, c)
}

func (s *Server) readLoop(conn *websocket.Conn, c *client) {
	defer func() {
		s.hub.remove(c)
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.log.Warn("client read failed", slog.Any("err", err))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.hub.log.Warn("bad client message", slog.Any("err", err))
			continue
		}
		s.apply(cmd)
	}
}

func (s *Server) apply(cmd Command) {
	switch cmd.Type {
	case CommandAdvance:
		s.ctrl.RequestAdvance()
	case CommandSkip:
		s.ctrl.RequestSkip()
	case CommandChoice:
		s.ctrl.MakeChoice(cmd.Index)
	case CommandInput:
		s.ctrl.AcceptInput(cmd.Value)
	case CommandBack:
		if r, ok := s.ctrl.(Rewinder); ok {
			r.RollBack()
		}
	default:
		s.hub.log.Warn("unknown client command", slog.String("type", cmd.Type))
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.q:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
