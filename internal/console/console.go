/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package console is a line-oriented terminal host. Dialogue is printed once
// a segment is fully revealed; player input is read line by line from stdin.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	applog "gonovel/internal/log"
	"gonovel/internal/stage"
)

// Control is the signal side of the engine.
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

type mode int

const (
	modeText mode = iota
	modeChoice
	modeInput
)

var (
	speakerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F780FF")).Bold(true)
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E9E9F4"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Bold(true)
	optionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#BD93F9"))
	numberStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
)

// Console renders engine output to a writer and turns input lines into signals.
// Its Presenter and Listener methods run on the scheduler goroutine; ReadInput
// runs on its own goroutine, so the shared mode is guarded.
type Console struct {
	out io.Writer
	log *slog.Logger

	mu      sync.Mutex
	mode    mode
	choices int
	printed string
	done    chan struct{}
	once    sync.Once
}

// New creates a console writing to out.
func New(out io.Writer) *Console {
	return &Console{out: out, log: applog.WithComponent("console"), done: make(chan struct{})}
}

// Done is closed when the chapter finishes without loading another.
func (c *Console) Done() <-chan struct{} { return c.done }

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// ShowText prints completed segments. An append segment prints only the new tail.
func (c *Console) ShowText(speaker, text string, complete bool) {
	if !complete {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if text == c.printed {
		return
	}
	if c.printed != "" && strings.HasPrefix(text, c.printed) {
		c.printf("%s\n", textStyle.Render(strings.TrimSpace(text[len(c.printed):])))
		c.printed = text
		return
	}
	c.printed = text
	if speaker != "" {
		c.printf("%s %s\n", speakerStyle.Render(speaker+":"), textStyle.Render(text))
		return
	}
	c.printf("%s\n", textStyle.Render(text))
}

func (c *Console) ShowChoices(title string, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = modeChoice
	c.choices = len(labels)
	c.printed = ""
	if title != "" {
		c.printf("%s\n", titleStyle.Render(title))
	}
	for i, l := range labels {
		c.printf("  %s %s\n", numberStyle.Render(strconv.Itoa(i+1)+"."), optionStyle.Render(l))
	}
	c.printf("%s\n", hintStyle.Render("enter a number"))
}

func (c *Console) ShowInput(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = modeInput
	c.printed = ""
	c.printf("%s\n", titleStyle.Render(title))
	c.printf("%s\n", hintStyle.Render("type and press enter"))
}

func (c *Console) HideWidgets() {
	c.mu.Lock()
	c.mode = modeText
	c.choices = 0
	c.mu.Unlock()
}

func (c *Console) ChapterStarted(name string) {
	c.mu.Lock()
	c.printed = ""
	c.mu.Unlock()
	c.printf("%s\n", dimStyle.Render("── "+name+" ──"))
}

func (c *Console) ChapterFinished(name string) {
	c.printf("%s\n", dimStyle.Render("── end of "+name+" ──"))
	c.once.Do(func() { close(c.done) })
}

func (c *Console) LineStarted(int)          {}
func (c *Console) SegmentStarted(int, int)  {}
func (c *Console) SegmentFinished(int, int) {}

// StageEvent prints a headless stage change as a dim line.
func (c *Console) StageEvent(ev stage.Event) {
	c.printf("%s\n", dimStyle.Render("  ["+ev.String()+"]"))
}

// Notice prints a host message.
func (c *Console) Notice(msg string) {
	c.printf("%s\n", hintStyle.Render(msg))
}

// Handle maps one input line to a signal:
// empty advances, "s" skips, "b" rolls back, a number picks a choice
// (1-based), and anything typed while an input prompt is open is submitted.
// Skip and back work in every mode; while an input prompt is open they need
// a leading slash ("/s", "/back") so any answer can be typed.
func (c *Console) Handle(line string, ctrl Control) {
	line = strings.TrimSpace(line)
	c.mu.Lock()
	m, n := c.mode, c.choices
	c.mu.Unlock()

	word := strings.ToLower(line)
	if m != modeInput || strings.HasPrefix(word, "/") {
		switch strings.TrimPrefix(word, "/") {
		case "s", "skip":
			ctrl.RequestSkip()
			return
		case "b", "back":
			if r, ok := ctrl.(Rewinder); ok {
				r.RollBack()
			}
			return
		}
	}

	switch m {
	case modeInput:
		if line == "" {
			return
		}
		ctrl.AcceptInput(line)
	case modeChoice:
		i, err := strconv.Atoi(line)
		if err != nil || i < 1 || i > n {
			c.printf("%s\n", hintStyle.Render(fmt.Sprintf("pick 1-%d, s to skip, b to go back", n)))
			return
		}
		ctrl.MakeChoice(i - 1)
	default:
		if line == "" {
			ctrl.RequestAdvance()
			return
		}
		c.log.Debug("ignored input", slog.String("line", line))
	}
}

// ReadInput feeds lines from r into Handle until r is exhausted or ctx ends.
func (c *Console) ReadInput(ctx context.Context, r io.Reader, ctrl Control) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Handle(sc.Text(), ctrl)
	}
	return sc.Err()
}
