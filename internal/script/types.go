/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script turns raw chapter text into executable structures: dialogue
// lines split into paced segments plus trailing actions, choice blocks and
// input prompts. Parsing is total; malformed text produces a best-effort
// value carrying Errors rather than failing.
package script

import (
	"fmt"
	"time"
)

// Kind classifies a raw script line before structured parsing.
type Kind int

const (
	KindBlank Kind = iota
	KindComment
	KindDialogue
	KindChoice
	KindInput
)

func (k Kind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindComment:
		return "comment"
	case KindDialogue:
		return "dialogue"
	case KindChoice:
		return "choice"
	case KindInput:
		return "input"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TriggerKind says what gates the start of a segment.
type TriggerKind int

const (
	OnPlayerAdvance TriggerKind = iota
	AutoDelay
)

// Trigger gates the start of the segment it belongs to. Segment 0's trigger is never consulted.
type Trigger struct {
	Kind  TriggerKind
	Delay time.Duration // only for AutoDelay
}

func (t Trigger) String() string {
	if t.Kind == AutoDelay {
		return fmt.Sprintf("auto(%s)", t.Delay)
	}
	return "advance"
}

// Segment is one paced piece of a line's dialogue.
// Append keeps the text revealed so far on screen and continues after it;
// otherwise the display is cleared first.
// Silent segments belong to action-only lines and are never displayed.
type Segment struct {
	Trigger Trigger
	Text    string
	Append  bool
	Silent  bool
}

// Action is one trailing call, name(args). Args is handed to commands unmodified.
type Action struct {
	Name string
	Args string
}

func (a Action) String() string { return a.Name + "(" + a.Args + ")" }

// Line is a parsed dialogue line.
// Quoted lines use the "speaker \"text\"" form; an empty Speaker on a quoted
// line means the cached last speaker applies.
type Line struct {
	Raw      string
	Quoted   bool
	Speaker  string
	Segments []Segment
	Actions  []Action
	Errors   []Error
}

// Choice is one label/action pair inside a choice block.
type Choice struct {
	Label  string
	Action string
}

// ChoiceBlock spans the lines from a choice opener to its closing brace.
// Start is the opener index, End the index of "}" (or the last consumed
// line when the block is unterminated). Broken marks errors that make the
// block unplayable; an unquoted title or label is reported but still played.
type ChoiceBlock struct {
	Title   string
	Choices []Choice
	Start   int
	End     int
	Errors  []Error
	Broken  bool
}

// Valid reports whether the block can be presented.
func (b ChoiceBlock) Valid() bool { return !b.Broken && len(b.Choices) > 0 }

// InputLine prompts for free text, then runs its actions.
type InputLine struct {
	Title   string
	Actions []Action
	Errors  []Error
}

// Error represents a parse diagnostic with position context.
// Line is 1-based when the error was produced by ParseScript, 0 otherwise.
// Column is 1-based within the raw line.
type Error struct {
	Line    int
	Column  int
	Kind    string
	Message string
}

func (e Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("col %d: %s", e.Column, e.Message)
}
