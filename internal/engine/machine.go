/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"log/slog"
	"time"

	"gonovel/internal/dialogue"
	applog "gonovel/internal/log"
	"gonovel/internal/script"
)

type segmentPhase int

const (
	phaseGate segmentPhase = iota
	phaseRunning
)

// linePlayback is the in-flight playback of one parsed line.
type linePlayback struct {
	line     script.Line
	speaker  string
	index    int // script index reported to listeners
	next     int // cursor once the actions have run
	seg      int
	phase    segmentPhase
	deadline time.Time
	reveal   *dialogue.Reveal
}

// Tick runs the scheduler until it has to wait for a signal, a timer or a
// widget, or until MaxStepsPerTick steps have been taken.
func (e *Engine) Tick(now time.Time) {
	for i := 0; i < e.maxSteps; i++ {
		if !e.step(now) {
			return
		}
	}
	e.log.Debug("tick step budget exhausted", slog.Int("cursor", e.cursor), slog.String("state", e.state.String()))
}

// step performs one transition and reports whether another may follow
// immediately.
func (e *Engine) step(now time.Time) bool {
	if e.state == Idle || e.state == Finished {
		e.skip.Store(false)
		return false
	}
	if e.skip.Swap(false) {
		e.skipToEnd()
		return true
	}
	switch e.state {
	case WaitingForAdvance:
		return e.stepAdvance(now)
	case PlayingLine:
		return e.stepLine(now)
	case WaitingForChoice:
		return e.stepChoice(now)
	case WaitingForInput:
		return e.stepInput(now)
	}
	return false
}

func (e *Engine) skipToEnd() {
	e.cancelPlayback()
	e.presenter.HideWidgets()
	last := len(e.lines) - 1
	if last < 0 {
		last = 0
	}
	e.cursor = last
	e.state = WaitingForAdvance
	e.advance.Store(true)
	e.log.Debug("skip to end", slog.Int("cursor", e.cursor))
}

func (e *Engine) cancelPlayback() {
	e.play = nil
	e.block = nil
	e.inputLine = nil
}

func (e *Engine) stepAdvance(now time.Time) bool {
	if e.cursor >= len(e.lines) {
		e.finish()
		return false
	}
	raw := e.lines[e.cursor]
	kind := script.Classify(raw)
	if kind == script.KindBlank || kind == script.KindComment {
		e.cursor++
		return true
	}
	if !e.advance.Swap(false) {
		return false
	}
	switch kind {
	case script.KindChoice:
		return e.openChoice()
	case script.KindInput:
		return e.openInput(raw)
	default:
		e.startLine(script.ParseLine(script.Inject(raw, e)), e.cursor, e.cursor+1, now)
		return true
	}
}

func (e *Engine) finish() {
	e.state = Finished
	e.presenter.HideWidgets()
	e.log.Info("chapter finished", slog.String("chapter", e.chapter))
	e.listener.ChapterFinished(e.chapter)
}

func (e *Engine) openChoice() bool {
	injected := append([]string(nil), e.lines...)
	injected[e.cursor] = script.Inject(e.lines[e.cursor], e)
	b := script.ParseChoiceBlock(injected, e.cursor)
	if !b.Valid() {
		for _, err := range b.Errors {
			applog.Diagnostic(e.log, err.Kind, "choice block skipped", slog.Int("line", err.Line), slog.String("err", err.Message))
		}
		if len(b.Errors) == 0 {
			applog.Diagnostic(e.log, applog.KindScriptMalformed, "choice block has no choices", slog.Int("line", e.cursor+1))
		}
		e.cursor = b.End + 1
		e.state = WaitingForAdvance
		return true
	}
	for _, err := range b.Errors {
		applog.Diagnostic(e.log, err.Kind, "choice block", slog.Int("line", err.Line), slog.String("err", err.Message))
	}
	e.block = &b
	e.choice.Store(noChoice)
	labels := make([]string, len(b.Choices))
	for i, c := range b.Choices {
		labels[i] = script.Inject(c.Label, e)
	}
	e.state = WaitingForChoice
	e.presenter.ShowChoices(b.Title, labels)
	return false
}

func (e *Engine) stepChoice(now time.Time) bool {
	idx := e.choice.Swap(noChoice)
	if idx == noChoice {
		return false
	}
	b := e.block
	if idx < 0 || idx >= int64(len(b.Choices)) {
		applog.Diagnostic(e.log, applog.KindArgumentMalformed, "choice index out of range", slog.Int64("index", idx), slog.Int("choices", len(b.Choices)))
		return false
	}
	picked := b.Choices[idx]
	e.log.Debug("choice made", slog.Int64("index", idx), slog.String("label", picked.Label))
	e.presenter.HideWidgets()
	e.block = nil
	e.startLine(script.ParseLine(script.Inject(picked.Action, e)), b.Start, b.End+1, now)
	return true
}

func (e *Engine) openInput(raw string) bool {
	in := script.ParseInputLine(script.Inject(raw, e))
	for _, err := range in.Errors {
		applog.Diagnostic(e.log, err.Kind, "input line", slog.Int("line", e.cursor+1), slog.String("err", err.Message))
	}
	e.inputLine = &in
	e.takeInput()
	e.state = WaitingForInput
	e.presenter.ShowInput(in.Title)
	return false
}

func (e *Engine) stepInput(now time.Time) bool {
	v, ok := e.takeInput()
	if !ok || v == "" {
		return false
	}
	e.lastInput = v
	e.presenter.HideWidgets()
	in := e.inputLine
	e.inputLine = nil
	line := script.Line{Raw: e.lines[e.cursor], Segments: []script.Segment{{Silent: true}}, Actions: in.Actions}
	e.startLine(line, e.cursor, e.cursor+1, now)
	return true
}

// startLine cancels whatever line was playing and begins segment 0.
func (e *Engine) startLine(line script.Line, index, next int, now time.Time) {
	for _, err := range line.Errors {
		applog.Diagnostic(e.log, err.Kind, "line", slog.Int("line", index+1), slog.Int("column", err.Column), slog.String("err", err.Message))
	}
	speaker := ""
	if line.Quoted {
		if line.Speaker != "" {
			e.speaker = line.Speaker
		}
		speaker = e.speaker
	}
	e.play = &linePlayback{line: line, speaker: speaker, index: index, next: next}
	e.state = PlayingLine
	e.listener.LineStarted(index)
	e.beginSegment(now)
}

func (e *Engine) beginSegment(now time.Time) {
	p := e.play
	seg := p.line.Segments[p.seg]
	e.advance.Store(false)
	pretext := ""
	if seg.Append {
		pretext = e.visible
	}
	p.phase = phaseRunning
	p.reveal = dialogue.NewReveal(pretext, seg.Text, e.cps, e.fast, now)
	if seg.Silent {
		p.reveal.Finish()
	}
	e.listener.SegmentStarted(p.index, p.seg)
	if !seg.Silent {
		e.visible = p.reveal.Visible()
		e.presenter.ShowText(p.speaker, e.visible, p.reveal.Done())
	}
}

func (e *Engine) stepLine(now time.Time) bool {
	p := e.play
	seg := p.line.Segments[p.seg]
	if p.phase == phaseGate {
		adv := e.advance.Swap(false)
		if seg.Trigger.Kind == script.AutoDelay {
			if !adv && now.Before(p.deadline) {
				return false
			}
		} else if !adv {
			return false
		}
		e.beginSegment(now)
		return true
	}

	// An advance while the segment runs only fast-forwards it, even when
	// the reveal completes in this same tick.
	adv := e.advance.Swap(false)
	changed := p.reveal.Update(now)
	if adv && !p.reveal.Done() {
		if !p.reveal.Skipping() {
			p.reveal.Skip()
		} else {
			p.reveal.Finish()
			changed = true
		}
	}
	if changed && !seg.Silent {
		e.visible = p.reveal.Visible()
		e.presenter.ShowText(p.speaker, e.visible, p.reveal.Done())
	}
	if !p.reveal.Done() {
		return false
	}
	e.listener.SegmentFinished(p.index, p.seg)

	if p.seg+1 < len(p.line.Segments) {
		p.seg++
		p.phase = phaseGate
		e.advance.Store(false)
		if t := p.line.Segments[p.seg].Trigger; t.Kind == script.AutoDelay {
			p.deadline = now.Add(t.Delay)
		}
		return true
	}
	return e.finishLine(p)
}

// finishLine dispatches the line's actions in order, then moves the cursor.
// An action that loads a chapter replaces the script; the remaining actions
// of the old line are dropped.
func (e *Engine) finishLine(p *linePlayback) bool {
	e.advance.Store(false)
	gen := e.gen
	for _, a := range p.line.Actions {
		e.runAction(a)
		if e.gen != gen {
			return true
		}
	}
	e.play = nil
	e.cursor = p.next
	e.state = WaitingForAdvance
	return true
}

func (e *Engine) runAction(a script.Action) {
	switch a.Name {
	case BuiltinNext:
		e.advance.Store(true)
	case BuiltinSaveTempVal:
		slot := e.scratch.SetFromArgs(a.Args)
		e.log.Debug("temp value saved", slog.Int("slot", slot))
	case BuiltinSaveTempInput:
		slot := e.scratch.SetFromArgs(a.Args + "," + e.lastInput)
		e.log.Debug("temp input saved", slog.Int("slot", slot))
	case BuiltinSavePlayerName:
		e.playerName = e.lastInput
	default:
		_ = e.registry.Dispatch(a.Name, a.Args)
	}
}
