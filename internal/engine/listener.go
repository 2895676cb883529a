/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

// Listener receives notifications from the scheduler goroutine.
// ChapterStarted and ChapterFinished fire exactly once per chapter load and completion.
type Listener interface {
	ChapterStarted(name string)
	ChapterFinished(name string)
	LineStarted(index int)
	SegmentStarted(line, segment int)
	SegmentFinished(line, segment int)
}

// NopListener ignores everything; embed it to implement only what you need.
type NopListener struct{}

func (NopListener) ChapterStarted(string)    {}
func (NopListener) ChapterFinished(string)   {}
func (NopListener) LineStarted(int)          {}
func (NopListener) SegmentStarted(int, int)  {}
func (NopListener) SegmentFinished(int, int) {}

// Listeners fans notifications out in order.
type Listeners []Listener

func (ls Listeners) ChapterStarted(name string) {
	for _, l := range ls {
		l.ChapterStarted(name)
	}
}

func (ls Listeners) ChapterFinished(name string) {
	for _, l := range ls {
		l.ChapterFinished(name)
	}
}

func (ls Listeners) LineStarted(index int) {
	for _, l := range ls {
		l.LineStarted(index)
	}
}

func (ls Listeners) SegmentStarted(line, segment int) {
	for _, l := range ls {
		l.SegmentStarted(line, segment)
	}
}

func (ls Listeners) SegmentFinished(line, segment int) {
	for _, l := range ls {
		l.SegmentFinished(line, segment)
	}
}

// Presenter is the display side: dialogue text plus the choice and input widgets.
type Presenter interface {
	// ShowText replaces the dialogue box contents. complete is true once the
	// current segment is fully revealed.
	ShowText(speaker, text string, complete bool)
	ShowChoices(title string, labels []string)
	ShowInput(title string)
	// HideWidgets closes any open choice or input widget.
	HideWidgets()
}

// NopPresenter discards everything.
type NopPresenter struct{}

func (NopPresenter) ShowText(string, string, bool) {}
func (NopPresenter) ShowChoices(string, []string)  {}
func (NopPresenter) ShowInput(string)              {}
func (NopPresenter) HideWidgets()                  {}

// Presenters fans display calls out in order.
type Presenters []Presenter

func (ps Presenters) ShowText(speaker, text string, complete bool) {
	for _, p := range ps {
		p.ShowText(speaker, text, complete)
	}
}

func (ps Presenters) ShowChoices(title string, labels []string) {
	for _, p := range ps {
		p.ShowChoices(title, labels)
	}
}

func (ps Presenters) ShowInput(title string) {
	for _, p := range ps {
		p.ShowInput(title)
	}
}

func (ps Presenters) HideWidgets() {
	for _, p := range ps {
		p.HideWidgets()
	}
}
