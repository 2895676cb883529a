/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package engine runs chapters. It is an explicit state machine: the host
// calls Tick once per frame and the machine advances until it has to wait
// for the player, a timer, or a widget. Input signals may be raised from any
// goroutine; everything else belongs to the goroutine that calls Tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gonovel/internal/command"
	applog "gonovel/internal/log"
	"gonovel/internal/script"
)

// State is the top-level scheduler state.
type State int

const (
	Idle State = iota
	WaitingForAdvance
	PlayingLine
	WaitingForChoice
	WaitingForInput
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingForAdvance:
		return "waiting_for_advance"
	case PlayingLine:
		return "playing_line"
	case WaitingForChoice:
		return "waiting_for_choice"
	case WaitingForInput:
		return "waiting_for_input"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Names handled by the engine itself rather than the registry.
const (
	BuiltinNext           = "next"
	BuiltinSaveTempVal    = "saveTempVal"
	BuiltinSaveTempInput  = "saveTempInput"
	BuiltinSavePlayerName = "savePlayerName"
)

// ChapterSource resolves chapter names to script lines.
type ChapterSource interface {
	Chapter(name string) ([]string, error)
}

// ChapterSourceFunc adapts a function to ChapterSource.
type ChapterSourceFunc func(name string) ([]string, error)

func (f ChapterSourceFunc) Chapter(name string) ([]string, error) { return f(name) }

// Snapshot is the persisted playthrough state.
type Snapshot struct {
	ChapterName       string  `json:"chapter_name"`
	ChapterProgress   int     `json:"chapter_progress"`
	CachedLastSpeaker string  `json:"cached_last_speaker"`
	TempVals          Scratch `json:"temp_vals"`
	PlayerName        string  `json:"player_name"`
}

// Options configures an Engine.
type Options struct {
	Registry  *command.Registry // required
	Source    ChapterSource     // resolves load(name); may be nil
	Presenter Presenter
	Listener  Listener
	Clock     Clock

	CharsPerSecond        float64 // 0 reveals instantly
	FastForwardMultiplier float64
	MaxStepsPerTick       int

	SessionID string
}

// ErrNoSource is returned by LoadChapter when no ChapterSource is configured.
var ErrNoSource = errors.New("no chapter source configured")

const defaultMaxSteps = 256

// Engine interprets one chapter at a time.
type Engine struct {
	registry  *command.Registry
	source    ChapterSource
	presenter Presenter
	listener  Listener
	clock     Clock
	log       *slog.Logger
	session   string

	cps      float64
	fast     float64
	maxSteps int

	// input signals, edge-triggered
	advance atomic.Bool
	skip    atomic.Bool
	choice  atomic.Int64 // noChoice when empty
	inputMu sync.Mutex
	input   *string

	// scheduler-owned
	state      State
	chapter    string
	lines      []string
	cursor     int
	speaker    string
	scratch    Scratch
	playerName string
	lastInput  string
	visible    string
	gen        uint64
	play       *linePlayback
	block      *script.ChoiceBlock
	inputLine  *script.InputLine

	calls chan func()
}

// New builds an engine and reserves the builtin action names in the registry.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if err := opts.Registry.Reserve(BuiltinNext, BuiltinSaveTempVal, BuiltinSaveTempInput, BuiltinSavePlayerName); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e := &Engine{
		registry:  opts.Registry,
		source:    opts.Source,
		presenter: opts.Presenter,
		listener:  opts.Listener,
		clock:     opts.Clock,
		session:   opts.SessionID,
		cps:       opts.CharsPerSecond,
		fast:      opts.FastForwardMultiplier,
		maxSteps:  opts.MaxStepsPerTick,
		calls:     make(chan func(), 16),
	}
	if e.presenter == nil {
		e.presenter = NopPresenter{}
	}
	if e.listener == nil {
		e.listener = NopListener{}
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.maxSteps <= 0 {
		e.maxSteps = defaultMaxSteps
	}
	if e.fast < 1 {
		e.fast = 1
	}
	if e.session == "" {
		e.session = uuid.NewString()
	}
	e.choice.Store(noChoice)
	e.log = applog.WithComponent("engine").With(slog.String("session", e.session))
	return e, nil
}

// Session identifies this engine in logs and saves.
func (e *Engine) Session() string { return e.session }

// State returns the scheduler state.
func (e *Engine) State() State { return e.state }

// Chapter returns the loaded chapter name.
func (e *Engine) Chapter() string { return e.chapter }

// Cursor returns the current line index.
func (e *Engine) Cursor() int { return e.cursor }

// Lines returns the loaded script.
func (e *Engine) Lines() []string { return e.lines }

// Scratch returns a copy of the scratch store.
func (e *Engine) Scratch() Scratch { return e.scratch }

// TempVal implements script.Values.
func (e *Engine) TempVal(slot int) string { return e.scratch.Get(slot) }

// PlayerName implements script.Values.
func (e *Engine) PlayerName() string { return e.playerName }

// LastInput is the most recently accepted text input.
func (e *Engine) LastInput() string { return e.lastInput }

// Choices returns the labels of the open choice block, if any.
func (e *Engine) Choices() []string {
	if e.state != WaitingForChoice || e.block == nil {
		return nil
	}
	out := make([]string, len(e.block.Choices))
	for i, c := range e.block.Choices {
		out[i] = c.Label
	}
	return out
}

// RequestAdvance raises the advance signal. Repeated requests before the
// scheduler looks collapse into one.
func (e *Engine) RequestAdvance() { e.advance.Store(true) }

// RequestSkip asks the scheduler to jump to the last line.
func (e *Engine) RequestSkip() { e.skip.Store(true) }

// noChoice marks an empty choice cell. Negative indices are kept so they
// can be reported as malformed.
const noChoice = math.MinInt64

// MakeChoice selects choice index (0-based) of the open block.
func (e *Engine) MakeChoice(index int) { e.choice.Store(int64(index)) }

// AcceptInput submits text for the open input prompt.
func (e *Engine) AcceptInput(value string) {
	e.inputMu.Lock()
	e.input = &value
	e.inputMu.Unlock()
}

func (e *Engine) takeInput() (string, bool) {
	e.inputMu.Lock()
	defer e.inputMu.Unlock()
	if e.input == nil {
		return "", false
	}
	v := *e.input
	e.input = nil
	return v, true
}

func (e *Engine) clearSignals() {
	e.advance.Store(false)
	e.skip.Store(false)
	e.choice.Store(noChoice)
	e.inputMu.Lock()
	e.input = nil
	e.inputMu.Unlock()
}

// LoadChapter resolves name through the ChapterSource and starts it.
// It implements stage.ChapterLoader, so load(name) actions land here.
func (e *Engine) LoadChapter(name string) error {
	if e.source == nil {
		return ErrNoSource
	}
	lines, err := e.source.Chapter(name)
	if err != nil {
		return fmt.Errorf("load chapter %q: %w", name, err)
	}
	e.Start(name, lines)
	return nil
}

// Start replaces whatever is running with lines from cursor 0 and requests
// the first advance so the chapter begins on the next Tick.
func (e *Engine) Start(name string, lines []string) {
	e.reset(name, lines)
	e.speaker = ""
	e.advance.Store(true)
	e.log.Info("chapter started", slog.String("chapter", name), slog.Int("lines", len(lines)))
	e.listener.ChapterStarted(name)
}

// Restore resumes a saved playthrough at its cursor. The line under the
// cursor replays; no chapter-started notification is sent.
func (e *Engine) Restore(s Snapshot, lines []string) {
	e.reset(s.ChapterName, lines)
	e.cursor = s.ChapterProgress
	if e.cursor < 0 {
		e.cursor = 0
	}
	e.speaker = s.CachedLastSpeaker
	e.scratch = s.TempVals
	e.playerName = s.PlayerName
	e.advance.Store(true)
	e.log.Info("chapter restored", slog.String("chapter", s.ChapterName), slog.Int("cursor", e.cursor))
}

func (e *Engine) reset(name string, lines []string) {
	e.cancelPlayback()
	e.clearSignals()
	e.gen++
	e.chapter = name
	e.lines = lines
	e.cursor = 0
	e.visible = ""
	e.state = WaitingForAdvance
}

// Snapshot captures the persisted state. Mid-line, the cursor still points
// at the line being played so a resume replays it.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		ChapterName:       e.chapter,
		ChapterProgress:   e.cursor,
		CachedLastSpeaker: e.speaker,
		TempVals:          e.scratch,
		PlayerName:        e.playerName,
	}
}

// Do queues fn to run on the scheduler goroutine started by Run.
func (e *Engine) Do(ctx context.Context, fn func()) error {
	select {
	case e.calls <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the scheduler loop: it ticks every interval and runs queued calls
// between ticks until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-e.calls:
			fn()
		case <-t.C:
			e.Tick(e.clock.Now())
		}
	}
}
