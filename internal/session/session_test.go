/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gonovel/internal/command"
	"gonovel/internal/config"
	"gonovel/internal/engine"
	"gonovel/internal/stage"
	"gonovel/internal/telemetry"
)

type textLog struct{ texts []string }

func (p *textLog) ShowText(_, text string, complete bool) {
	if complete {
		p.texts = append(p.texts, text)
	}
}
func (p *textLog) ShowChoices(string, []string) {}
func (p *textLog) ShowInput(string)             {}
func (p *textLog) HideWidgets()                 {}

type finishLog struct {
	engine.NopListener
	finished []string
}

func (l *finishLog) ChapterFinished(name string) { l.finished = append(l.finished, name) }

func writeChapter(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte(body), 0o644); err != nil {
		t.Fatalf("write chapter: %v", err)
	}
}

func testConfig(t *testing.T) config.AppConfig {
	cfg := config.Defaults()
	cfg.General.StoryDir = t.TempDir()
	cfg.General.AssetsDir = ""
	cfg.Audio.Enabled = false
	cfg.Playback.CharsPerSecond = 0
	return cfg
}

func run(e *engine.Engine, clk *engine.ManualClock, ticks int) {
	for i := 0; i < ticks; i++ {
		e.Tick(clk.Advance(16 * time.Millisecond))
	}
}

func TestSessionPlaysIntoNextChapter(t *testing.T) {
	cfg := testConfig(t)
	writeChapter(t, cfg.General.StoryDir, "chapter0_start", "Anna \"Hi.\" setBackground(park) next()\nload(chapter1)\n")
	writeChapter(t, cfg.General.StoryDir, "chapter1", "\"Still me.\" next()\nwinGame()")

	pres := &textLog{}
	lis := &finishLog{}
	var won *bool
	clk := engine.NewManualClock(time.Unix(0, 0))
	s, err := New(cfg, Options{
		Presenters: []engine.Presenter{pres},
		Listeners:  []engine.Listener{lis},
		Clock:      clk,
		OnEnding:   func(w bool) { won = &w },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if s.Player != nil {
		t.Fatalf("audio player should be nil when disabled")
	}
	if err := s.Start(""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	run(s.Engine, clk, 10)

	if s.Engine.State() != engine.Finished || s.Engine.Chapter() != "chapter1" {
		t.Fatalf("state=%v chapter=%q", s.Engine.State(), s.Engine.Chapter())
	}
	if got := s.Stage.Snapshot().Layers[stage.Background]; got.Name != "park" {
		t.Fatalf("background = %v", got)
	}
	if len(pres.texts) != 2 || pres.texts[0] != "Hi." || pres.texts[1] != "Still me." {
		t.Fatalf("texts = %v", pres.texts)
	}
	if won == nil || !*won {
		t.Fatalf("winGame hook not called")
	}
	if len(lis.finished) != 1 || lis.finished[0] != "chapter1" {
		t.Fatalf("finished = %v", lis.finished)
	}
	// load clears the speaker cache
	if s.Engine.Snapshot().CachedLastSpeaker != "" {
		t.Fatalf("speaker cache should reset on load, got %q", s.Engine.Snapshot().CachedLastSpeaker)
	}
}

func TestSessionResume(t *testing.T) {
	cfg := testConfig(t)
	writeChapter(t, cfg.General.StoryDir, "c", "\"one\"\n\"two\"\n\"three\"")
	pres := &textLog{}
	clk := engine.NewManualClock(time.Unix(0, 0))
	s, err := New(cfg, Options{Presenters: []engine.Presenter{pres}, Clock: clk})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Resume(engine.Snapshot{ChapterName: "c", ChapterProgress: 1, CachedLastSpeaker: "Bo"}); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	run(s.Engine, clk, 2)
	if len(pres.texts) != 1 || pres.texts[0] != "two" {
		t.Fatalf("texts = %v", pres.texts)
	}
	if err := s.Resume(engine.Snapshot{ChapterName: "missing"}); err == nil {
		t.Fatal("expected error for missing chapter")
	}
}

func TestSessionRejectsDuplicateHostCommand(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, Options{Commands: nil})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = New(cfg, Options{Commands: []command.Command{command.Func(HookWinGame, func(string) error { return nil })}})
	if err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestSessionSnapshotWhileRunning(t *testing.T) {
	cfg := testConfig(t)
	writeChapter(t, cfg.General.StoryDir, "c", "\"one\"\n\"two\"")
	writeChapter(t, cfg.General.StoryDir, "d", "Cy \"three\"")
	s, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start("c"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = s.Engine.Run(runCtx, time.Millisecond)
		close(done)
	}()
	defer func() {
		stop()
		<-done
	}()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.ChapterName != "c" {
		t.Fatalf("snapshot = %+v", snap)
	}

	if err := s.ResumeLive(ctx, engine.Snapshot{ChapterName: "d"}); err != nil {
		t.Fatalf("ResumeLive: %v", err)
	}
	snap, err = s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.ChapterName != "d" {
		t.Fatalf("after resume = %+v", snap)
	}
	if err := s.ResumeLive(ctx, engine.Snapshot{ChapterName: "nope"}); err == nil {
		t.Fatal("expected error for missing chapter")
	}
}

func TestCrashTargetUsesConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvConfigPath, filepath.Join(dir, "config.yaml"))
	s, err := New(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ct := s.CrashTarget()
	if ct.Dir != filepath.Join(dir, "crash") || ct.Snapshot == nil {
		t.Fatalf("target = %+v", ct)
	}
}

func TestSessionRollback(t *testing.T) {
	cfg := testConfig(t)
	writeChapter(t, cfg.General.StoryDir, "c", "\"one\"\nsaveTempVal(1,x)\n\"two\"\n\"three\"")
	pres := &textLog{}
	clk := engine.NewManualClock(time.Unix(0, 0))
	s, err := New(cfg, Options{Presenters: []engine.Presenter{pres}, Clock: clk})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Rollback(); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("Rollback before play: %v", err)
	}
	if err := s.Start("c"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	run(s.Engine, clk, 2) // "one"
	for i := 0; i < 2; i++ {
		clk.Advance(time.Second)
		s.Engine.RequestAdvance()
		run(s.Engine, clk, 2)
	}
	if s.Engine.Cursor() != 3 || s.Engine.TempVal(1) != "x" || pres.texts[len(pres.texts)-1] != "two" {
		t.Fatalf("cursor=%d temp=%q texts=%v", s.Engine.Cursor(), s.Engine.TempVal(1), pres.texts)
	}

	// back from "two" skips the action-only line and lands on "one"
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	run(s.Engine, clk, 2)
	if s.Engine.Cursor() != 1 || s.Engine.TempVal(1) != "" || pres.texts[len(pres.texts)-1] != "one" {
		t.Fatalf("cursor=%d temp=%q texts=%v", s.Engine.Cursor(), s.Engine.TempVal(1), pres.texts)
	}
	if err := s.Rollback(); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("Rollback at first line: %v", err)
	}
	if _, _, n := s.History.Stats(); n != 1 {
		t.Fatalf("history entries = %d", n)
	}
}

func TestSessionReportsTelemetry(t *testing.T) {
	var mu sync.Mutex
	var names []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&ev)
		mu.Lock()
		names = append(names, ev.Name)
		mu.Unlock()
	}))
	defer srv.Close()

	cfg := testConfig(t)
	writeChapter(t, cfg.General.StoryDir, "c", "\"only\" next()\nloseGame()")
	clk := engine.NewManualClock(time.Unix(0, 0))
	tc := telemetry.New(telemetry.Config{OptIn: true, EventsURL: srv.URL, Timeout: time.Second})
	s, err := New(cfg, Options{Clock: clk, Telemetry: tc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start("c"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	run(s.Engine, clk, 10)
	s.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := append([]string(nil), names...)
		mu.Unlock()
		if len(got) == 3 {
			want := []string{"chapter_started", "game_ended", "chapter_finished"}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("events = %v, want %v", got, want)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("events = %v", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
