/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"strconv"
	"strings"

	applog "gonovel/internal/log"
)

// quoted returns the text between the first two quotes of s.
func quoted(s string) (string, bool) {
	first := strings.IndexByte(s, '"')
	if first < 0 {
		return "", false
	}
	second := strings.IndexByte(s[first+1:], '"')
	if second < 0 {
		return "", false
	}
	return s[first+1 : first+1+second], true
}

// ParseChoiceBlock reads the block whose opener is lines[start]:
//
//	choice "Title"
//	{
//	    "Label A"
//	        actionLineA
//	    "Label B"
//	        actionLineB
//	}
//
// Pairing is positional: every non-brace line is a label and the line after it is its action.
func ParseChoiceBlock(lines []string, start int) ChoiceBlock {
	b := ChoiceBlock{Start: start, End: start}
	opener := strings.TrimSpace(lines[start])
	if title, ok := quoted(opener); ok {
		b.Title = title
	} else {
		b.Errors = append(b.Errors, Error{Line: start + 1, Column: 1, Kind: applog.KindScriptMalformed, Message: "choice title must be quoted"})
		b.Title = strings.TrimSpace(strings.TrimPrefix(opener, keywordChoice))
	}

	i := start + 1
	for {
		if i >= len(lines) {
			b.End = len(lines) - 1
			b.Errors = append(b.Errors, Error{Line: start + 1, Column: 1, Kind: applog.KindScriptMalformed, Message: "choice block is missing its closing brace"})
			b.Broken = true
			return b
		}
		trim := strings.TrimSpace(lines[i])
		switch {
		case trim == "{" || trim == "":
			i++
			continue
		case trim == "}":
			b.End = i
			if len(b.Choices) == 0 {
				b.Errors = append(b.Errors, Error{Line: start + 1, Column: 1, Kind: applog.KindScriptMalformed, Message: "choice block has no choices"})
				b.Broken = true
			}
			return b
		}

		label, ok := quoted(trim)
		if !ok {
			b.Errors = append(b.Errors, Error{Line: i + 1, Column: 1, Kind: applog.KindScriptMalformed, Message: "choice label must be quoted"})
			label = trim
		}
		if i+1 >= len(lines) || strings.TrimSpace(lines[i+1]) == "}" {
			b.Errors = append(b.Errors, Error{Line: i + 1, Column: 1, Kind: applog.KindScriptMalformed, Message: "choice " + strconv.Quote(label) + " has no action line"})
			b.Broken = true
			if i+1 < len(lines) {
				b.End = i + 1
			} else {
				b.End = len(lines) - 1
			}
			return b
		}
		b.Choices = append(b.Choices, Choice{Label: label, Action: strings.TrimSpace(lines[i+1])})
		i += 2
	}
}

// ParseInputLine parses: input "Title" action(args) ...
func ParseInputLine(raw string) InputLine {
	in := InputLine{}
	trim := strings.TrimSpace(raw)
	first := strings.IndexByte(trim, '"')
	if first < 0 {
		in.Errors = append(in.Errors, Error{Column: 1, Kind: applog.KindScriptMalformed, Message: "input title must be quoted"})
		rest := strings.TrimSpace(strings.TrimPrefix(trim, keywordInput))
		acts, errs := scanCalls(rest, 0)
		if len(errs) == 0 {
			in.Actions = acts
		} else {
			in.Title = rest
		}
		return in
	}
	second := strings.IndexByte(trim[first+1:], '"')
	if second < 0 {
		in.Errors = append(in.Errors, Error{Column: first + 1, Kind: applog.KindScriptMalformed, Message: "unmatched quote"})
		in.Title = trim[first+1:]
		return in
	}
	closeIdx := first + 1 + second
	in.Title = trim[first+1 : closeIdx]
	acts, errs := scanCalls(trim[closeIdx+1:], closeIdx+2)
	in.Actions = acts
	in.Errors = append(in.Errors, errs...)
	return in
}

// Entry is one executable record of a chapter, as produced by ParseScript.
type Entry struct {
	Index  int
	Kind   Kind
	Line   *Line
	Choice *ChoiceBlock
	Input  *InputLine
}

// ParseScript parses a whole chapter for tooling (checks, proofs). Choice blocks
// consume their body lines. Errors carry 1-based line numbers.
func ParseScript(lines []string) ([]Entry, []Error) {
	var entries []Entry
	var errs []Error
	stamp := func(idx int, es []Error) {
		for _, e := range es {
			if e.Line == 0 {
				e.Line = idx + 1
			}
			errs = append(errs, e)
		}
	}
	for i := 0; i < len(lines); i++ {
		k := Classify(lines[i])
		switch k {
		case KindBlank, KindComment:
			continue
		case KindChoice:
			b := ParseChoiceBlock(lines, i)
			stamp(i, b.Errors)
			for _, c := range b.Choices {
				pl := ParseLine(c.Action)
				stamp(i, pl.Errors)
			}
			entries = append(entries, Entry{Index: i, Kind: k, Choice: &b})
			i = b.End
		case KindInput:
			in := ParseInputLine(lines[i])
			stamp(i, in.Errors)
			entries = append(entries, Entry{Index: i, Kind: k, Input: &in})
		default:
			ln := ParseLine(lines[i])
			stamp(i, ln.Errors)
			entries = append(entries, Entry{Index: i, Kind: k, Line: &ln})
		}
	}
	return entries, errs
}
