/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package remote exposes a running chapter over a websocket: clients receive
// playback events and may send advance, skip, choice and input signals.
package remote

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	applog "gonovel/internal/log"
)

// Event types pushed to clients.
const (
	EventChapterStarted  = "chapter_started"
	EventChapterFinished = "chapter_finished"
	EventLineStarted     = "line_started"
	EventSegmentStarted  = "segment_started"
	EventSegmentFinished = "segment_finished"
	EventText            = "text"
	EventChoices         = "choices"
	EventInput           = "input"
	EventHide            = "hide"
)

// Event is one server to client message.
type Event struct {
	Type     string   `json:"type"`
	Chapter  string   `json:"chapter,omitempty"`
	Line     *int     `json:"line,omitempty"`
	Segment  *int     `json:"segment,omitempty"`
	Speaker  string   `json:"speaker,omitempty"`
	Text     string   `json:"text,omitempty"`
	Complete bool     `json:"complete,omitempty"`
	Title    string   `json:"title,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	TS       string   `json:"ts"`
}

const clientQueue = 64

// Hub fans events out to connected clients. Broadcasting never blocks:
// a client whose queue is full misses the event.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *slog.Logger
	dropped int
}

type client struct {
	q    chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) close() { c.once.Do(func() { close(c.done) }) }

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: map[*client]struct{}{}, log: applog.WithComponent("remote")}
}

func (h *Hub) add() *client {
	c := &client{q: make(chan []byte, clientQueue), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many per-client deliveries were dropped on full queues.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Broadcast queues ev for every client.
func (h *Hub) Broadcast(ev Event) {
	ev.TS = time.Now().UTC().Format(time.RFC3339Nano)
	buf, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", slog.Any("err", err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.q <- buf:
		default:
			// drop if queue full
			h.dropped++
		}
	}
}

func intp(v int) *int { return &v }

// Listener side.

func (h *Hub) ChapterStarted(name string) {
	h.Broadcast(Event{Type: EventChapterStarted, Chapter: name})
}

func (h *Hub) ChapterFinished(name string) {
	h.Broadcast(Event{Type: EventChapterFinished, Chapter: name})
}

func (h *Hub) LineStarted(index int) {
	h.Broadcast(Event{Type: EventLineStarted, Line: intp(index)})
}

func (h *Hub) SegmentStarted(line, segment int) {
	h.Broadcast(Event{Type: EventSegmentStarted, Line: intp(line), Segment: intp(segment)})
}

func (h *Hub) SegmentFinished(line, segment int) {
	h.Broadcast(Event{Type: EventSegmentFinished, Line: intp(line), Segment: intp(segment)})
}

// Presenter side.

func (h *Hub) ShowText(speaker, text string, complete bool) {
	h.Broadcast(Event{Type: EventText, Speaker: speaker, Text: text, Complete: complete})
}

func (h *Hub) ShowChoices(title string, labels []string) {
	h.Broadcast(Event{Type: EventChoices, Title: title, Labels: labels})
}

func (h *Hub) ShowInput(title string) {
	h.Broadcast(Event{Type: EventInput, Title: title})
}

func (h *Hub) HideWidgets() {
	h.Broadcast(Event{Type: EventHide})
}
