/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends anonymous, opt-in play events and crash reports.
//
// Nothing leaves the machine unless GNV_TELEMETRY_OPT_IN is set and an
// endpoint is configured. Events carry chapter names and timings only.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"

	"gonovel/internal/engine"
	applog "gonovel/internal/log"
	"gonovel/internal/version"
)

// Config controls telemetry behavior.
//
// If no URLs are set, events are dropped (no-ops), even if opt-in is true.
type Config struct {
	OptIn        bool          `env:"GNV_TELEMETRY_OPT_IN"`
	EventsURL    string        `env:"GNV_TELEMETRY_URL"`
	CrashURL     string        `env:"GNV_CRASH_UPLOAD_URL"`
	Timeout      time.Duration `env:"GNV_TELEMETRY_TIMEOUT" envDefault:"1500ms"`
	DebugLogging bool          `env:"GNV_TELEMETRY_DEBUG"`
}

// FromEnv reads Config from the environment. Malformed values leave
// telemetry switched off.
func FromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		applog.WithComponent("telemetry").Warn("ignoring telemetry env", slog.Any("err", err))
		return Config{Timeout: 1500 * time.Millisecond}
	}
	cfg.EventsURL = strings.TrimSpace(cfg.EventsURL)
	cfg.CrashURL = strings.TrimSpace(cfg.CrashURL)
	return cfg
}

// Event is one play event as posted to the events endpoint.
type Event struct {
	Name    string         `json:"name"`
	Session string         `json:"session,omitempty"`
	Chapter string         `json:"chapter,omitempty"`
	At      time.Time      `json:"ts"`
	Version string         `json:"version"`
	OS      string         `json:"os"`
	Arch    string         `json:"arch"`
	Props   map[string]any `json:"props,omitempty"`
}

// queueSize bounds the events waiting to be posted; later events are dropped.
const queueSize = 64

// Client posts play events from a single background goroutine. Send never
// blocks the scheduler; send failures are only logged in debug mode.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	q       chan []byte
	pending atomic.Int64 // queued or in flight
	once    sync.Once
	closed  chan struct{}
}

// New constructs a client and starts its sender.
func New(cfg Config) *Client {
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan []byte, queueSize),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events are sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Send queues ev. Build metadata is filled in here.
func (c *Client) Send(ev Event) {
	if !c.Enabled() || ev.Name == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ev.Version, ev.OS, ev.Arch = version.String(), runtime.GOOS, runtime.GOARCH
	body, err := json.Marshal(ev)
	if err != nil {
		c.log.Debug("drop unencodable event", slog.String("name", ev.Name), slog.Any("err", err))
		return
	}
	c.pending.Add(1)
	select {
	case c.q <- body:
	default:
		c.pending.Add(-1)
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry queue full", slog.String("name", ev.Name))
		}
	}
}

// Flush waits until queued events are posted, ctx ends, or half a second passes.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.After(500 * time.Millisecond)
	for c.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Close stops the sender. Events still queued are dropped.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.closed) })
}

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case body := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", body, "telemetry event")
			c.pending.Add(-1)
		}
	}
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug(what+" failed", slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug(what+" sent", slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts an already-serialized crash report to the crash URL if opted in.
// The report is sent synchronously; the process is about to exit.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", report, "crash upload")
}

// Listener reports chapter starts and finishes, with the time spent in each
// chapter and the number of lines started. Session tags every event and
// must be set before the first chapter starts.
type Listener struct {
	engine.NopListener
	Session string

	c       *Client
	now     func() time.Time
	mu      sync.Mutex
	started map[string]time.Time
	lines   int
}

// NewListener returns a listener that reports through c.
func NewListener(c *Client, clock engine.Clock) *Listener {
	l := &Listener{c: c, now: time.Now, started: map[string]time.Time{}}
	if clock != nil {
		l.now = clock.Now
	}
	return l
}

func (l *Listener) send(name, chapter string, props map[string]any) {
	l.c.Send(Event{Name: name, Session: l.Session, Chapter: chapter, At: l.now().UTC(), Props: props})
}

func (l *Listener) ChapterStarted(name string) {
	l.mu.Lock()
	l.started[name] = l.now()
	l.lines = 0
	l.mu.Unlock()
	l.send("chapter_started", name, nil)
}

func (l *Listener) LineStarted(int) {
	l.mu.Lock()
	l.lines++
	l.mu.Unlock()
}

func (l *Listener) ChapterFinished(name string) {
	l.mu.Lock()
	props := map[string]any{"lines": l.lines}
	if t, ok := l.started[name]; ok {
		props["duration_ms"] = l.now().Sub(t).Milliseconds()
		delete(l.started, name)
	}
	l.mu.Unlock()
	l.send("chapter_finished", name, props)
}

// Ending reports the outcome of a playthrough.
func (l *Listener) Ending(chapter string, won bool) {
	l.send("game_ended", chapter, map[string]any{"won": won})
}
