/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"sync"

	"gonovel/internal/engine"
)

// ViewState is what the player window shows at one moment.
type ViewState struct {
	Chapter  string
	Speaker  string
	Text     string
	Complete bool

	Title     string   // choice or input prompt
	Choices   []string // non-empty while a choice is open
	InputOpen bool

	Finished bool
}

// View collects presenter and listener calls into a ViewState and hands a
// copy to OnChange. The engine calls it from the scheduler goroutine, so
// OnChange must hop to the UI thread itself.
type View struct {
	mu       sync.Mutex
	state    ViewState
	OnChange func(ViewState)
}

var (
	_ engine.Presenter = (*View)(nil)
	_ engine.Listener  = (*View)(nil)
)

// State returns a copy of the current state.
func (v *View) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.copyLocked()
}

func (v *View) copyLocked() ViewState {
	s := v.state
	s.Choices = append([]string(nil), v.state.Choices...)
	return s
}

func (v *View) update(fn func(s *ViewState)) {
	v.mu.Lock()
	fn(&v.state)
	s := v.copyLocked()
	cb := v.OnChange
	v.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (v *View) ShowText(speaker, text string, complete bool) {
	v.update(func(s *ViewState) {
		s.Speaker, s.Text, s.Complete = speaker, text, complete
	})
}

func (v *View) ShowChoices(title string, labels []string) {
	v.update(func(s *ViewState) {
		s.Title = title
		s.Choices = append([]string(nil), labels...)
		s.InputOpen = false
	})
}

func (v *View) ShowInput(title string) {
	v.update(func(s *ViewState) {
		s.Title = title
		s.Choices = nil
		s.InputOpen = true
	})
}

func (v *View) HideWidgets() {
	v.update(func(s *ViewState) {
		s.Title = ""
		s.Choices = nil
		s.InputOpen = false
	})
}

func (v *View) ChapterStarted(name string) {
	v.update(func(s *ViewState) {
		*s = ViewState{Chapter: name}
	})
}

func (v *View) ChapterFinished(string) {
	v.update(func(s *ViewState) { s.Finished = true })
}

func (v *View) LineStarted(int)          {}
func (v *View) SegmentStarted(int, int)  {}
func (v *View) SegmentFinished(int, int) {}
