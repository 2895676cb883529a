//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"gonovel/internal/config"
	"gonovel/internal/crash"
	"gonovel/internal/engine"
	applog "gonovel/internal/log"
	"gonovel/internal/session"
	"gonovel/internal/storage"
	"gonovel/internal/version"
)

const (
	recentSlotsKey = "saves.recent"
	recentMax      = 8
)

// Run starts the desktop player on chapter (the configured start chapter when empty).
func Run(cfg config.AppConfig, chapter string) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()))

	fyneApp := app.NewWithID("gonovel")
	w := fyneApp.NewWindow("GoNovel")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1024)
	winH := prefs.IntWithFallback("window.height", 640)
	if winW < 640 {
		winW = 640
	}
	if winH < 400 {
		winH = 400
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	p := newPlayerWidgets()
	view := &View{OnChange: func(s ViewState) { fyne.Do(func() { p.render(s) }) }}

	s, err := session.New(cfg, session.Options{
		Presenters: []engine.Presenter{view},
		Listeners:  []engine.Listener{view},
		OnEnding: func(won bool) {
			msg := "The End"
			if !won {
				msg = "Game Over"
			}
			fyne.Do(func() { p.status.SetText(msg) })
		},
	})
	if err != nil {
		return err
	}
	defer s.Close()
	target := s.CrashTarget()
	defer crash.Recover(target)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.onAdvance = s.Engine.RequestAdvance
	p.onSkip = s.Engine.RequestSkip
	p.onChoice = s.Engine.MakeChoice
	p.onInput = s.Engine.AcceptInput
	p.onBack = func() {
		go func() {
			err := s.Back(ctx)
			switch {
			case errors.Is(err, session.ErrNoHistory):
				fyne.Do(func() { p.status.SetText("Nothing to go back to") })
			case err != nil:
				l.Warn("rollback failed", slog.Any("err", err))
			}
		}()
	}

	if err := s.Start(chapter); err != nil {
		return err
	}
	go func() {
		defer crash.Recover(target)
		_ = s.Engine.Run(ctx, cfg.Playback.TickInterval())
	}()

	var store *storage.SaveStore
	openStore := func() (*storage.SaveStore, error) {
		if store != nil {
			return store, nil
		}
		dsn, err := cfg.SaveDSN()
		if err != nil {
			return nil, err
		}
		st, err := storage.OpenStore(ctx, cfg.Saves.Driver, dsn)
		if err != nil {
			return nil, err
		}
		store = st
		return st, nil
	}
	defer func() {
		if store != nil {
			_ = store.Close()
		}
	}()

	saveSlot := func(slot string) {
		st, err := openStore()
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		snap, err := s.Snapshot(ctx)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		if _, err := st.Save(ctx, slot, snap); err != nil {
			l.Error("save failed", slog.String("slot", slot), slog.Any("err", err))
			dialog.ShowError(err, w)
			return
		}
		addRecentSlot(prefs, slot)
		p.status.SetText(fmt.Sprintf("Saved to %q", slot))
	}
	loadSlot := func(slot string) {
		st, err := openStore()
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		rec, err := st.Load(ctx, slot)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		if err := s.ResumeLive(ctx, rec.State); err != nil {
			l.Error("load failed", slog.String("slot", slot), slog.Any("err", err))
			dialog.ShowError(err, w)
			return
		}
		addRecentSlot(prefs, slot)
		p.status.SetText(fmt.Sprintf("Loaded %q", slot))
	}
	askSlot := func(title string, fn func(string)) {
		entry := widget.NewSelectEntry(loadRecentSlots(prefs))
		entry.SetPlaceHolder("slot name")
		dialog.ShowForm(title, "OK", "Cancel", []*widget.FormItem{widget.NewFormItem("Slot", entry)}, func(ok bool) {
			slot := strings.TrimSpace(entry.Text)
			if ok && slot != "" {
				fn(slot)
			}
		}, w)
	}

	w.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu("Game",
			fyne.NewMenuItem("Save…", func() { askSlot("Save game", saveSlot) }),
			fyne.NewMenuItem("Load…", func() { askSlot("Load game", loadSlot) }),
			fyne.NewMenuItem("Restart chapter", func() {
				_ = s.Engine.Do(ctx, func() {
					if err := s.Engine.LoadChapter(s.Engine.Chapter()); err != nil {
						l.Error("restart failed", slog.Any("err", err))
					}
				})
			}),
		),
		fyne.NewMenu("Help",
			fyne.NewMenuItem("About", func() {
				dialog.ShowInformation("About", "GoNovel\n"+version.String(), w)
			}),
		),
	))

	w.Canvas().SetOnTypedKey(func(k *fyne.KeyEvent) {
		if p.inputOpen {
			return
		}
		switch k.Name {
		case fyne.KeySpace, fyne.KeyReturn, fyne.KeyEnter:
			p.onAdvance()
		case fyne.KeyS:
			p.onSkip()
		case fyne.KeyB, fyne.KeyBackspace:
			p.onBack()
		}
	})
	w.SetContent(p.content)
	w.SetOnClosed(func() {
		size := w.Canvas().Size()
		prefs.SetInt("window.width", int(size.Width))
		prefs.SetInt("window.height", int(size.Height))
		cancel()
	})
	w.ShowAndRun()
	l.Info("UI closed")
	return nil
}

// playerWidgets is the dialogue box plus the choice and input widgets.
type playerWidgets struct {
	chapter  *widget.Label
	speaker  *widget.Label
	text     *widget.Label
	status   *widget.Label
	title    *widget.Label
	choices  *fyne.Container
	input    *widget.Entry
	inputBox *fyne.Container
	next     *widget.Button
	content  fyne.CanvasObject

	inputOpen bool
	onAdvance func()
	onSkip    func()
	onChoice  func(int)
	onInput   func(string)
	onBack    func()
}

func newPlayerWidgets() *playerWidgets {
	p := &playerWidgets{
		chapter: widget.NewLabel(""),
		speaker: widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		text:    widget.NewLabel(""),
		status:  widget.NewLabel(""),
		title:   widget.NewLabelWithStyle("", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		choices: container.NewVBox(),
		input:   widget.NewEntry(),
	}
	p.onAdvance, p.onSkip = func() {}, func() {}
	p.onChoice, p.onInput = func(int) {}, func(string) {}
	p.onBack = func() {}
	p.text.Wrapping = fyne.TextWrapWord
	p.input.OnSubmitted = func(v string) { p.submit(v) }
	submit := widget.NewButton("OK", func() { p.submit(p.input.Text) })
	p.inputBox = container.NewBorder(nil, nil, nil, submit, p.input)
	p.inputBox.Hide()
	p.title.Hide()

	p.next = widget.NewButton("Next", func() { p.onAdvance() })
	skip := widget.NewButton("Skip", func() { p.onSkip() })
	back := widget.NewButton("Back", func() { p.onBack() })
	bar := container.NewHBox(p.chapter, layout.NewSpacer(), p.status, back, skip, p.next)
	dialogue := container.NewVBox(p.speaker, p.text)
	widgets := container.NewVBox(p.title, p.choices, p.inputBox)
	p.content = container.NewBorder(nil, bar, nil, nil, container.NewVBox(widgets, dialogue))
	return p
}

func (p *playerWidgets) submit(v string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	p.onInput(v)
	p.input.SetText("")
}

// render applies s. Must run on the UI thread.
func (p *playerWidgets) render(s ViewState) {
	p.chapter.SetText(s.Chapter)
	p.speaker.SetText(s.Speaker)
	p.text.SetText(s.Text)
	if s.Finished {
		p.status.SetText("Finished")
	} else if p.status.Text == "Finished" {
		p.status.SetText("")
	}

	p.choices.RemoveAll()
	for i, label := range s.Choices {
		idx := i
		p.choices.Add(widget.NewButton(label, func() { p.onChoice(idx) }))
	}
	p.choices.Refresh()

	if s.Title != "" {
		p.title.SetText(s.Title)
		p.title.Show()
	} else {
		p.title.Hide()
	}
	p.inputOpen = s.InputOpen
	if s.InputOpen {
		p.inputBox.Show()
	} else {
		p.inputBox.Hide()
	}
	if len(s.Choices) > 0 || s.InputOpen || s.Finished {
		p.next.Disable()
	} else {
		p.next.Enable()
	}
}

func loadRecentSlots(p fyne.Preferences) []string {
	raw := p.StringWithFallback(recentSlotsKey, "[]")
	var items []string
	if strings.TrimSpace(raw) != "" {
		_ = json.Unmarshal([]byte(raw), &items)
	}
	if items == nil {
		items = []string{}
	}
	return items
}

func saveRecentSlots(p fyne.Preferences, items []string) {
	if len(items) > recentMax {
		items = items[:recentMax]
	}
	b, _ := json.Marshal(items)
	p.SetString(recentSlotsKey, string(b))
}

func addRecentSlot(p fyne.Preferences, slot string) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return
	}
	rec := loadRecentSlots(p)
	out := make([]string, 0, 1+len(rec))
	out = append(out, slot)
	for _, s := range rec {
		if s == slot {
			continue
		}
		out = append(out, s)
	}
	saveRecentSlots(p, out)
}
