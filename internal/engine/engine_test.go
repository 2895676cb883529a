/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"gonovel/internal/command"
	applog "gonovel/internal/log"
)

type recordingPresenter struct{ events []string }

func (p *recordingPresenter) ShowText(speaker, text string, complete bool) {
	p.events = append(p.events, fmt.Sprintf("text %s|%s|%t", speaker, text, complete))
}
func (p *recordingPresenter) ShowChoices(title string, labels []string) {
	p.events = append(p.events, fmt.Sprintf("choices %s %v", title, labels))
}
func (p *recordingPresenter) ShowInput(title string) { p.events = append(p.events, "input "+title) }
func (p *recordingPresenter) HideWidgets()           { p.events = append(p.events, "hide") }

func (p *recordingPresenter) last(prefix string) string {
	for i := len(p.events) - 1; i >= 0; i-- {
		if strings.HasPrefix(p.events[i], prefix) {
			return p.events[i]
		}
	}
	return ""
}

type recordingListener struct{ events []string }

func (l *recordingListener) ChapterStarted(name string)  { l.events = append(l.events, "started "+name) }
func (l *recordingListener) ChapterFinished(name string) { l.events = append(l.events, "finished "+name) }
func (l *recordingListener) LineStarted(i int)           { l.events = append(l.events, fmt.Sprintf("line %d", i)) }
func (l *recordingListener) SegmentStarted(line, seg int) {
	l.events = append(l.events, fmt.Sprintf("seg+ %d %d", line, seg))
}
func (l *recordingListener) SegmentFinished(line, seg int) {
	l.events = append(l.events, fmt.Sprintf("seg- %d %d", line, seg))
}

type harness struct {
	e     *Engine
	reg   *command.Registry
	pres  *recordingPresenter
	lis   *recordingListener
	clock *ManualClock
	calls []string
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, cps float64, source ChapterSource) *harness {
	t.Helper()
	h := &harness{
		reg:   command.NewRegistry(),
		pres:  &recordingPresenter{},
		lis:   &recordingListener{},
		clock: NewManualClock(t0),
	}
	for _, name := range []string{"cmdA", "cmdB", "cmdC"} {
		name := name
		if err := h.reg.Register(command.Func(name, func(args string) error {
			h.calls = append(h.calls, name+"("+args+")")
			return nil
		})); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	e, err := New(Options{
		Registry:              h.reg,
		Source:                source,
		Presenter:             h.pres,
		Listener:              h.lis,
		Clock:                 h.clock,
		CharsPerSecond:        cps,
		FastForwardMultiplier: 4,
		SessionID:             "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.e = e
	return h
}

func (h *harness) tick() { h.e.Tick(h.clock.Now()) }

func (h *harness) tickAt(d time.Duration) {
	h.clock.Set(t0.Add(d))
	h.tick()
}

func TestNewReservesBuiltinNames(t *testing.T) {
	h := newHarness(t, 0, nil)
	err := h.reg.Register(command.Func("next", func(string) error { return nil }))
	if err == nil {
		t.Fatalf("expected registering next to fail")
	}
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without registry")
	}
}

func TestSingleLineWithNextFinishesChapter(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("intro", []string{"Hello.(next())"})
	h.tick()

	if h.e.State() != Finished {
		t.Fatalf("state = %s, want finished", h.e.State())
	}
	if h.e.Cursor() != 1 {
		t.Fatalf("cursor = %d, want 1", h.e.Cursor())
	}
	want := []string{"started intro", "line 0", "seg+ 0 0", "seg- 0 0", "finished intro"}
	if !reflect.DeepEqual(h.lis.events, want) {
		t.Fatalf("listener events = %v, want %v", h.lis.events, want)
	}
	if got := h.pres.last("text"); got != "text |Hello.|true" {
		t.Fatalf("last text = %q", got)
	}
	h.tick()
	if n := strings.Count(strings.Join(h.lis.events, "\n"), "finished"); n != 1 {
		t.Fatalf("chapter finished fired %d times", n)
	}
}

func TestLinesWaitForAdvance(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("c", []string{`"one" cmdA()`, "", "// note", `"two" cmdB()`})
	h.tick()
	if !reflect.DeepEqual(h.calls, []string{"cmdA()"}) {
		t.Fatalf("calls = %v", h.calls)
	}
	if h.e.State() != WaitingForAdvance || h.e.Cursor() != 3 {
		t.Fatalf("state = %s cursor = %d", h.e.State(), h.e.Cursor())
	}
	h.tick()
	if len(h.calls) != 1 {
		t.Fatalf("line ran without an advance: %v", h.calls)
	}
	h.e.RequestAdvance()
	h.e.RequestAdvance()
	h.tick()
	if !reflect.DeepEqual(h.calls, []string{"cmdA()", "cmdB()"}) {
		t.Fatalf("calls = %v", h.calls)
	}
	if h.e.State() != Finished {
		t.Fatalf("state = %s", h.e.State())
	}
}

func TestAdvanceDuringRevealDoesNotStartNextLine(t *testing.T) {
	h := newHarness(t, 10, nil)
	h.e.Start("c", []string{`"Hi" cmdA()`, `"Second" cmdB()`})
	h.tickAt(0)
	h.tickAt(100 * time.Millisecond)
	h.e.RequestAdvance()
	// the reveal completes in the same tick the advance arrives
	h.tickAt(250 * time.Millisecond)

	want := []string{"started c", "line 0", "seg+ 0 0", "seg- 0 0"}
	if !reflect.DeepEqual(h.lis.events, want) {
		t.Fatalf("events = %v, want %v", h.lis.events, want)
	}
	if h.e.State() != WaitingForAdvance || h.e.Cursor() != 1 {
		t.Fatalf("state = %s cursor = %d", h.e.State(), h.e.Cursor())
	}
	if !reflect.DeepEqual(h.calls, []string{"cmdA()"}) {
		t.Fatalf("calls = %v", h.calls)
	}

	h.e.RequestAdvance()
	h.tickAt(300 * time.Millisecond)
	if h.lis.events[len(h.lis.events)-1] != "seg+ 1 0" {
		t.Fatalf("fresh advance should start line 1: %v", h.lis.events)
	}
}

func TestAdvanceDuringRevealFastForwards(t *testing.T) {
	h := newHarness(t, 10, nil)
	h.e.Start("c", []string{`"Hello there" cmdA()`, `"Second"`})
	h.tickAt(0)
	h.e.RequestAdvance()
	h.tickAt(100 * time.Millisecond)
	if h.e.State() != PlayingLine {
		t.Fatalf("state = %s, want playing", h.e.State())
	}
	h.e.RequestAdvance()
	h.tickAt(110 * time.Millisecond)
	if got := h.pres.last("text"); got != "text |Hello there|true" {
		t.Fatalf("second advance should finish the reveal, last text = %q", got)
	}
	if h.e.Cursor() != 1 || h.e.State() != WaitingForAdvance {
		t.Fatalf("state = %s cursor = %d", h.e.State(), h.e.Cursor())
	}
}

func choiceScript() []string {
	return []string{
		`choice "Pick"`,
		"{",
		`    "A"`,
		"        cmdA()",
		`    "B"`,
		"        cmdB()",
		"}",
		`Narrator "Done."`,
	}
}

func TestChoiceRunsOnlyTheSelectedAction(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("c", choiceScript())
	h.tick()
	if h.e.State() != WaitingForChoice {
		t.Fatalf("state = %s", h.e.State())
	}
	if got := h.pres.last("choices"); got != "choices Pick [A B]" {
		t.Fatalf("presented %q", got)
	}
	if got := h.e.Choices(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("Choices() = %v", got)
	}

	h.e.MakeChoice(5)
	h.tick()
	if h.e.State() != WaitingForChoice || len(h.calls) != 0 {
		t.Fatalf("out of range choice was accepted: state=%s calls=%v", h.e.State(), h.calls)
	}

	h.e.MakeChoice(1)
	h.tick()
	if !reflect.DeepEqual(h.calls, []string{"cmdB()"}) {
		t.Fatalf("calls = %v, want only cmdB", h.calls)
	}
	if h.e.Cursor() != 7 {
		t.Fatalf("cursor = %d, want 7", h.e.Cursor())
	}
	h.e.RequestAdvance()
	h.tick()
	if got := h.pres.last("text"); got != "text Narrator|Done.|true" {
		t.Fatalf("last text = %q", got)
	}
	if h.e.State() != Finished {
		t.Fatalf("state = %s", h.e.State())
	}
}

func TestEmptyChoiceBlockIsDiagnosedAndSkipped(t *testing.T) {
	var buf bytes.Buffer
	applog.Init(applog.Options{Format: "json", Writer: &buf})
	t.Cleanup(func() { applog.Init(applog.Options{Writer: &bytes.Buffer{}}) })

	h := newHarness(t, 0, nil)
	h.e.Start("c", []string{`choice "Nothing"`, "{", "}", `"after"`})
	h.tick()

	if got := h.pres.last("choices"); got != "" {
		t.Fatalf("empty block was presented: %q", got)
	}
	if h.e.State() != WaitingForAdvance || h.e.Cursor() != 3 {
		t.Fatalf("state = %s cursor = %d", h.e.State(), h.e.Cursor())
	}
	if !strings.Contains(buf.String(), `"kind":"script_malformed"`) {
		t.Fatalf("missing diagnostic in %s", buf.String())
	}
}

func TestChoiceWithUnquotedLabelIsStillPresented(t *testing.T) {
	var buf bytes.Buffer
	applog.Init(applog.Options{Format: "json", Writer: &buf})
	t.Cleanup(func() { applog.Init(applog.Options{Writer: &bytes.Buffer{}}) })

	h := newHarness(t, 0, nil)
	h.e.Start("c", []string{`choice "Pick"`, "{", "A", "cmdA()", `"B"`, "cmdB()", "}", `"after"`})
	h.tick()
	if h.e.State() != WaitingForChoice {
		t.Fatalf("state = %s, want waiting for choice", h.e.State())
	}
	if got := h.pres.last("choices"); got != "choices Pick [A B]" {
		t.Fatalf("presented %q", got)
	}
	if !strings.Contains(buf.String(), "choice label must be quoted") {
		t.Fatalf("missing diagnostic in %s", buf.String())
	}
	h.e.MakeChoice(0)
	h.tick()
	if !reflect.DeepEqual(h.calls, []string{"cmdA()"}) {
		t.Fatalf("calls = %v", h.calls)
	}
}

func TestNegativeChoiceIsReported(t *testing.T) {
	var buf bytes.Buffer
	applog.Init(applog.Options{Format: "json", Writer: &buf})
	t.Cleanup(func() { applog.Init(applog.Options{Writer: &bytes.Buffer{}}) })

	h := newHarness(t, 0, nil)
	h.e.Start("c", choiceScript())
	h.tick()
	h.e.MakeChoice(-2)
	h.tick()
	if h.e.State() != WaitingForChoice || len(h.calls) != 0 {
		t.Fatalf("negative choice was accepted: state=%s calls=%v", h.e.State(), h.calls)
	}
	if !strings.Contains(buf.String(), `"kind":"argument_malformed"`) || !strings.Contains(buf.String(), `"index":-2`) {
		t.Fatalf("missing diagnostic in %s", buf.String())
	}
	h.e.MakeChoice(0)
	h.tick()
	if !reflect.DeepEqual(h.calls, []string{"cmdA()"}) {
		t.Fatalf("calls = %v", h.calls)
	}
}

func TestAutoDelayFiresAtDeadline(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("c", []string{`"One{w 2}Two"`})
	h.tickAt(0)
	h.tickAt(1500 * time.Millisecond)
	if strings.Contains(strings.Join(h.lis.events, ","), "seg+ 0 1") {
		t.Fatalf("second segment started early: %v", h.lis.events)
	}
	h.tickAt(2 * time.Second)
	if got := h.pres.last("text"); got != "text |Two|true" {
		t.Fatalf("last text = %q", got)
	}
	if h.e.State() != Finished {
		t.Fatalf("state = %s", h.e.State())
	}
}

func TestAutoDelayIsInterruptible(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("c", []string{`"One{wa 30}Two"`})
	h.tickAt(0)
	h.e.RequestAdvance()
	h.tickAt(100 * time.Millisecond)
	if got := h.pres.last("text"); got != "text |OneTwo|true" {
		t.Fatalf("last text = %q", got)
	}
}

func TestSegmentsPlayInOrder(t *testing.T) {
	h := newHarness(t, 10, nil)
	h.e.Start("c", []string{`Mira "Hi{a} there"`})
	h.tickAt(0)
	h.tickAt(150 * time.Millisecond)
	if got := h.pres.last("text"); got != "text Mira|H|false" {
		t.Fatalf("partial reveal = %q", got)
	}
	h.tickAt(300 * time.Millisecond)
	h.tickAt(2 * time.Second)
	if strings.Contains(strings.Join(h.lis.events, ","), "seg+ 0 1") {
		t.Fatalf("second segment started without an advance: %v", h.lis.events)
	}

	h.e.RequestAdvance()
	h.tickAt(2100 * time.Millisecond)
	h.e.RequestAdvance() // fast-forward
	h.tickAt(2150 * time.Millisecond)
	h.e.RequestAdvance() // force finish
	h.tickAt(2160 * time.Millisecond)

	if got := h.pres.last("text"); got != "text Mira|Hi there|true" {
		t.Fatalf("final text = %q", got)
	}
	want := []string{"started c", "line 0", "seg+ 0 0", "seg- 0 0", "seg+ 0 1", "seg- 0 1", "finished c"}
	if !reflect.DeepEqual(h.lis.events, want) {
		t.Fatalf("events = %v, want %v", h.lis.events, want)
	}
}

func TestSpeakerIsCached(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("c", []string{`Raelin "first"`, `"second"`, "narration"})
	h.tick()
	h.e.RequestAdvance()
	h.tick()
	if got := h.pres.last("text"); got != "text Raelin|second|true" {
		t.Fatalf("cached speaker not used: %q", got)
	}
	h.e.RequestAdvance()
	h.tick()
	if got := h.pres.last("text"); got != "text |narration|true" {
		t.Fatalf("narration = %q", got)
	}
	if s := h.e.Snapshot(); s.CachedLastSpeaker != "Raelin" {
		t.Fatalf("cached speaker = %q", s.CachedLastSpeaker)
	}
}

func TestSkipJumpsToLastLine(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("c", []string{`"one" cmdA()`, `"two" cmdB()`, `"three" cmdC()`})
	h.tick()
	h.e.RequestSkip()
	h.tick()
	if !reflect.DeepEqual(h.calls, []string{"cmdA()", "cmdC()"}) {
		t.Fatalf("calls = %v", h.calls)
	}
	if strings.Contains(strings.Join(h.lis.events, ","), "line 1") {
		t.Fatalf("intermediate line was shown: %v", h.lis.events)
	}
	if h.e.State() != Finished {
		t.Fatalf("state = %s", h.e.State())
	}
}

func TestSkipCancelsOpenChoice(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("c", choiceScript())
	h.tick()
	h.e.RequestSkip()
	h.tick()
	if len(h.calls) != 0 {
		t.Fatalf("choice action ran: %v", h.calls)
	}
	if h.e.State() != Finished {
		t.Fatalf("state = %s", h.e.State())
	}
}

func TestUnknownCommandDoesNotStall(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("c", []string{`"x" nosuch(1,2) cmdA()`})
	h.tick()
	if !reflect.DeepEqual(h.calls, []string{"cmdA()"}) {
		t.Fatalf("calls = %v", h.calls)
	}
	if h.e.State() != Finished {
		t.Fatalf("state = %s", h.e.State())
	}
}

func TestLoadReplacesChapterAndDropsRemainingActions(t *testing.T) {
	src := ChapterSourceFunc(func(name string) ([]string, error) {
		if name != "chapter2" {
			return nil, fmt.Errorf("no chapter %q", name)
		}
		return []string{`"new"`}, nil
	})
	h := newHarness(t, 0, src)
	if err := h.reg.Register(command.Func("load", h.e.LoadChapter)); err != nil {
		t.Fatal(err)
	}
	h.e.Start("chapter1", []string{`"old" load(chapter2) cmdA()`, `"never"`})
	h.tick()

	if len(h.calls) != 0 {
		t.Fatalf("actions after load ran: %v", h.calls)
	}
	if h.e.Chapter() != "chapter2" {
		t.Fatalf("chapter = %q", h.e.Chapter())
	}
	want := []string{"started chapter1", "line 0", "seg+ 0 0", "seg- 0 0", "started chapter2", "line 0", "seg+ 0 0", "seg- 0 0", "finished chapter2"}
	if !reflect.DeepEqual(h.lis.events, want) {
		t.Fatalf("events = %v, want %v", h.lis.events, want)
	}
	if err := h.e.LoadChapter("missing"); err == nil {
		t.Fatalf("expected error for missing chapter")
	}
}

func TestInputStoresPlayerNameAndTempValue(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.e.Start("c", []string{`input "Name?" savePlayerName() saveTempInput(2)`, `"Hi [playerName], [tempVal2]"`})
	h.tick()
	if h.e.State() != WaitingForInput || h.pres.last("input") != "input Name?" {
		t.Fatalf("state = %s events = %v", h.e.State(), h.pres.events)
	}
	h.e.AcceptInput("")
	h.tick()
	if h.e.State() != WaitingForInput {
		t.Fatalf("empty input was accepted")
	}
	h.e.AcceptInput("Ada")
	h.tick()
	if h.e.PlayerName() != "Ada" || h.e.TempVal(2) != "Ada" {
		t.Fatalf("player=%q temp2=%q", h.e.PlayerName(), h.e.TempVal(2))
	}
	h.e.RequestAdvance()
	h.tick()
	if got := h.pres.last("text"); got != "text |Hi Ada, Ada|true" {
		t.Fatalf("text = %q", got)
	}
}

func TestSnapshotAndRestore(t *testing.T) {
	h := newHarness(t, 0, nil)
	lines := []string{`Raelin "first" saveTempVal(3,hello~world)`, `"second" cmdA()`}
	h.e.Start("c", lines)
	h.tick()

	snap := h.e.Snapshot()
	if snap.ChapterName != "c" || snap.ChapterProgress != 1 || snap.CachedLastSpeaker != "Raelin" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.TempVals[2] != "hello world" {
		t.Fatalf("temp vals = %q", snap.TempVals)
	}

	r := newHarness(t, 0, nil)
	r.e.Restore(snap, lines)
	r.tick()
	if !reflect.DeepEqual(r.lis.events, []string{"line 1", "seg+ 1 0", "seg- 1 0", "finished c"}) {
		t.Fatalf("events = %v", r.lis.events)
	}
	if got := r.pres.last("text"); got != "text Raelin|second|true" {
		t.Fatalf("text = %q", got)
	}
}

func TestSnapshotMidLineKeepsCursor(t *testing.T) {
	h := newHarness(t, 10, nil)
	h.e.Start("c", []string{"abcdefghij"})
	h.tickAt(0)
	h.tickAt(300 * time.Millisecond)
	if h.e.State() != PlayingLine {
		t.Fatalf("state = %s", h.e.State())
	}
	if got := h.e.Snapshot().ChapterProgress; got != 0 {
		t.Fatalf("progress = %d, want 0", got)
	}
}
