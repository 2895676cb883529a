/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session assembles a playable interpreter from configuration: the
// command registry, the headless stage, the audio player and the engine.
// Hosts (console, remote, desktop) only add their presenter and listener.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"gonovel/internal/audio"
	"gonovel/internal/command"
	"gonovel/internal/config"
	"gonovel/internal/crash"
	"gonovel/internal/engine"
	applog "gonovel/internal/log"
	"gonovel/internal/stage"
	"gonovel/internal/storage"
	"gonovel/internal/telemetry"
	"gonovel/internal/undo"
)

// ErrNoHistory is returned by Back when the chapter has no earlier line.
var ErrNoHistory = errors.New("nothing to roll back to")

// Host hooks the game layer registers on top of the stock command set.
const (
	HookStartGame = "startGame"
	HookWinGame   = "winGame"
	HookLoseGame  = "loseGame"
)

// Options are the host-specific parts of a session.
type Options struct {
	Presenters []engine.Presenter
	Listeners  []engine.Listener
	// Audio overrides the collaborator built from config. Leave nil to use
	// the beep player when audio is enabled, or the headless stage otherwise.
	Audio stage.Audio
	// Clock defaults to the system clock.
	Clock engine.Clock
	// OnEnding is called by winGame()/loseGame().
	OnEnding func(won bool)
	// Commands are registered after the builtins.
	Commands []command.Command
	// Telemetry defaults to a client configured from GNV_TELEMETRY_* variables.
	Telemetry *telemetry.Client
}

// Session is one running playthrough.
type Session struct {
	Config   config.AppConfig
	Engine   *engine.Engine
	Registry *command.Registry
	Stage    *stage.Memory
	Chapters storage.ChapterDir
	Player   *audio.Player // nil when audio is disabled or overridden
	History  *undo.History

	telemetry *telemetry.Client
	usage     *telemetry.Listener
	clock     engine.Clock
	log   *slog.Logger
}

// recorder feeds the rollback history. A line is recorded as it starts, but
// only kept once it shows something, so action-only lines are never a
// rollback target. Choice and input prompts record the state that re-opens them.
// All calls arrive on the scheduler goroutine.
type recorder struct {
	engine.NopListener
	s       *Session
	pending *engine.Snapshot
}

func (r *recorder) ChapterStarted(name string) {
	r.pending = nil
	r.s.History.ClearChapter(name)
}

func (r *recorder) LineStarted(int) {
	snap := r.s.Engine.Snapshot()
	r.pending = &snap
}

func (r *recorder) ShowText(string, string, bool) {
	if r.pending != nil {
		r.push(*r.pending)
		r.pending = nil
	}
}

func (r *recorder) ShowChoices(string, []string) {
	r.pending = nil
	r.push(r.s.Engine.Snapshot())
}

func (r *recorder) ShowInput(string) {
	r.pending = nil
	r.push(r.s.Engine.Snapshot())
}

func (r *recorder) HideWidgets() {}

func (r *recorder) push(snap engine.Snapshot) {
	if err := r.s.History.Record(snap, r.s.clock.Now()); err != nil {
		r.s.log.Warn("history record failed", slog.Any("err", err))
	}
}

// New builds a session from cfg.
func New(cfg config.AppConfig, opts Options) (*Session, error) {
	s := &Session{
		Config:   cfg,
		Registry: command.NewRegistry(),
		Chapters: storage.ChapterDir{Root: cfg.General.StoryDir},
		History:  undo.NewHistory(undo.Config{MaxPerChapter: 200}),
		clock:    opts.Clock,
		log:      applog.WithComponent("session"),
	}
	if s.clock == nil {
		s.clock = engine.SystemClock{}
	}
	s.telemetry = opts.Telemetry
	if s.telemetry == nil {
		s.telemetry = telemetry.New(telemetry.FromEnv())
	}
	s.usage = telemetry.NewListener(s.telemetry, s.clock)
	var catalog stage.Catalog = stage.AnyCatalog{}
	if cfg.General.AssetsDir != "" {
		catalog = stage.DirCatalog{Root: cfg.General.AssetsDir}
	}
	s.Stage = stage.NewMemory(catalog)

	au := opts.Audio
	if au == nil {
		if cfg.Audio.Enabled {
			s.Player = audio.New(catalog, cfg.Audio.Volume)
			au = s.Player
		} else {
			au = s.Stage
		}
	}

	rec := &recorder{s: s}
	e, err := engine.New(engine.Options{
		Registry:              s.Registry,
		Source:                s.Chapters,
		Presenter:             engine.Presenters(append([]engine.Presenter{rec}, opts.Presenters...)),
		Listener:              engine.Listeners(append([]engine.Listener{rec, s.usage}, opts.Listeners...)),
		Clock:                 s.clock,
		CharsPerSecond:        cfg.Playback.CharsPerSecond,
		FastForwardMultiplier: cfg.Playback.FastForwardMultiplier,
		MaxStepsPerTick:       cfg.Playback.MaxStepsPerTick,
	})
	if err != nil {
		return nil, err
	}
	s.Engine = e
	s.usage.Session = e.Session()

	if err := command.RegisterBuiltins(s.Registry, command.Collaborators{
		Layers:     s.Stage,
		Characters: s.Stage,
		Audio:      au,
		Loader:     e,
	}); err != nil {
		return nil, fmt.Errorf("register builtins: %w", err)
	}
	if err := s.Registry.Register(s.hooks(opts.OnEnding)...); err != nil {
		return nil, fmt.Errorf("register hooks: %w", err)
	}
	if err := s.Registry.Register(opts.Commands...); err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}
	s.log.Debug("session ready",
		slog.String("session", e.Session()),
		slog.Int("commands", len(s.Registry.Names())),
		slog.Bool("audio", s.Player != nil))
	return s, nil
}

func (s *Session) hooks(onEnding func(bool)) []command.Command {
	ending := func(won bool) func(string) error {
		return func(string) error {
			s.log.Info("game ended", slog.Bool("won", won), slog.String("chapter", s.Engine.Chapter()))
			s.usage.Ending(s.Engine.Chapter(), won)
			if onEnding != nil {
				onEnding(won)
			}
			return nil
		}
	}
	return []command.Command{
		command.Func(HookStartGame, func(string) error {
			return s.Engine.LoadChapter(s.Config.General.StartChapter)
		}),
		command.Func(HookWinGame, ending(true)),
		command.Func(HookLoseGame, ending(false)),
	}
}

// Start loads chapter, or the configured start chapter when name is empty.
// Call it before the scheduler runs or through Engine.Do.
func (s *Session) Start(name string) error {
	if name == "" {
		name = s.Config.General.StartChapter
	}
	return s.Engine.LoadChapter(name)
}

// Resume restores a saved playthrough, re-reading its chapter from disk.
func (s *Session) Resume(snap engine.Snapshot) error {
	lines, err := s.Chapters.Chapter(snap.ChapterName)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	s.Engine.Restore(snap, lines)
	return nil
}

// Snapshot captures the persisted state on the scheduler goroutine. Use it
// while Engine.Run is active.
func (s *Session) Snapshot(ctx context.Context) (engine.Snapshot, error) {
	res := make(chan engine.Snapshot, 1)
	if err := s.Engine.Do(ctx, func() { res <- s.Engine.Snapshot() }); err != nil {
		return engine.Snapshot{}, err
	}
	select {
	case snap := <-res:
		return snap, nil
	case <-ctx.Done():
		return engine.Snapshot{}, ctx.Err()
	}
}

// ResumeLive is Resume for a running scheduler: the chapter is read here and
// installed on the scheduler goroutine.
func (s *Session) ResumeLive(ctx context.Context, snap engine.Snapshot) error {
	lines, err := s.Chapters.Chapter(snap.ChapterName)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return s.Engine.Do(ctx, func() { s.Engine.Restore(snap, lines) })
}

// Rollback restores the line before the current one. Call it from the
// scheduler goroutine, or before Run.
func (s *Session) Rollback() error {
	snap, ok := s.History.Back(s.Engine.Chapter())
	if !ok {
		return ErrNoHistory
	}
	s.Engine.Restore(snap, s.Engine.Lines())
	tb, _, n := s.History.Stats()
	s.log.Debug("rolled back", slog.Int("cursor", snap.ChapterProgress), slog.Int("history", n), slog.Int("bytes", tb))
	return nil
}

// Back is Rollback for a running scheduler.
func (s *Session) Back(ctx context.Context) error {
	errc := make(chan error, 1)
	if err := s.Engine.Do(ctx, func() { errc <- s.Rollback() }); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CrashTarget describes what to preserve if the process panics. Reports go
// to a crash directory next to the config file.
func (s *Session) CrashTarget() *crash.Target {
	t := &crash.Target{Chapter: s.Engine.Chapter(), Snapshot: s.Engine.Snapshot, Upload: s.telemetry.UploadCrash}
	if p, err := config.ConfigPath(); err == nil {
		t.Dir = filepath.Join(filepath.Dir(p), "crash")
	}
	return t
}

// Close releases audio resources and drains pending telemetry.
func (s *Session) Close() {
	if s.Player != nil {
		s.Player.Close()
	}
	s.telemetry.Flush(context.Background())
	s.telemetry.Close()
}
