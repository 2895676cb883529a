/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	applog "gonovel/internal/log"
)

// Keywords that open multi-part constructs.
const (
	keywordChoice = "choice"
	keywordInput  = "input"
)

// SplitLines splits chapter text into raw lines. A trailing carriage return
// is stripped from each line; nothing else is modified.
func SplitLines(text string) []string {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Classify decides how a raw line is interpreted.
func Classify(raw string) Kind {
	trim := strings.TrimSpace(raw)
	switch {
	case trim == "":
		return KindBlank
	case strings.HasPrefix(trim, "//"):
		return KindComment
	case hasKeyword(trim, keywordChoice):
		return KindChoice
	case hasKeyword(trim, keywordInput):
		return KindInput
	default:
		return KindDialogue
	}
}

// hasKeyword matches kw followed by whitespace or a quote, so "choices are hard" stays dialogue.
func hasKeyword(s, kw string) bool {
	if !strings.HasPrefix(s, kw) {
		return false
	}
	rest := s[len(kw):]
	return rest == "" || rest[0] == '"' || unicode.IsSpace(rune(rest[0]))
}

// ParseLine parses one dialogue line.
//
// Quoted form:  [speaker] "text with {c} markers" action(args) ...
// Bare form:    text with markers action(args) ...   or   text.(action() action())
//
// Lines without any content yield exactly one silent segment.
func ParseLine(raw string) Line {
	ln := Line{Raw: raw}
	first := strings.IndexByte(raw, '"')
	var content string
	hasContent := false
	contentCol := 1

	if first >= 0 {
		ln.Quoted = true
		ln.Speaker = strings.TrimSpace(raw[:first])
		last := strings.LastIndexByte(raw, '"')
		if last == first {
			ln.Errors = append(ln.Errors, Error{Column: first + 1, Kind: applog.KindScriptMalformed, Message: "unmatched quote"})
			content = raw[first+1:]
		} else {
			content = raw[first+1 : last]
			acts, errs := scanCalls(raw[last+1:], last+2)
			ln.Actions = acts
			ln.Errors = append(ln.Errors, errs...)
		}
		hasContent = true
		contentCol = first + 2
	} else {
		body, acts := peelTrailingActions(raw)
		ln.Actions = acts
		content = strings.TrimSpace(body)
		hasContent = content != ""
		contentCol = strings.Index(raw, content) + 1
	}

	if !hasContent {
		ln.Segments = []Segment{{Silent: true}}
		return ln
	}
	segs, errs := splitSegments(content, contentCol)
	ln.Segments = segs
	ln.Errors = append(ln.Errors, errs...)
	return ln
}

// splitSegments cuts content at {...} pacing markers. A marker's trigger
// belongs to the segment that follows it.
func splitSegments(content string, col int) ([]Segment, []Error) {
	var segs []Segment
	var errs []Error
	cur := Segment{}
	var b strings.Builder
	i := 0
	for i < len(content) {
		open := strings.IndexByte(content[i:], '{')
		if open < 0 {
			b.WriteString(content[i:])
			break
		}
		open += i
		closeRel := strings.IndexByte(content[open:], '}')
		if closeRel < 0 {
			// unclosed brace is literal text
			b.WriteString(content[i:])
			break
		}
		closeIdx := open + closeRel
		b.WriteString(content[i:open])
		cur.Text = b.String()
		segs = append(segs, cur)
		b.Reset()

		next, err := parseMarker(content[open+1:closeIdx], col+open)
		if err != nil {
			errs = append(errs, *err)
		}
		cur = next
		i = closeIdx + 1
	}
	cur.Text = b.String()
	segs = append(segs, cur)
	return segs, errs
}

// parseMarker interprets the inside of a {...} marker.
//
//	{c}      wait for advance, clear
//	{a}      wait for advance, append
//	{w n}    wait n seconds (or advance), clear
//	{wa n}   wait n seconds (or advance), append
func parseMarker(body string, col int) (Segment, *Error) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return Segment{}, &Error{Column: col, Kind: applog.KindScriptMalformed, Message: "empty pacing marker"}
	}
	switch fields[0] {
	case "c":
		return Segment{}, nil
	case "a":
		return Segment{Append: true}, nil
	case "w", "wa":
		seg := Segment{Append: fields[0] == "wa"}
		if len(fields) < 2 {
			return seg, nil
		}
		secs, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return seg, &Error{Column: col, Kind: applog.KindArgumentMalformed, Message: "invalid delay " + strconv.Quote(fields[1])}
		}
		seg.Trigger = Trigger{Kind: AutoDelay, Delay: time.Duration(secs * float64(time.Second))}
		return seg, nil
	default:
		return Segment{}, &Error{Column: col, Kind: applog.KindScriptMalformed, Message: "unknown pacing marker " + strconv.Quote(fields[0])}
	}
}

// peelTrailingActions strips name(args) calls and (call call) groups from the end of a bare line.
func peelTrailingActions(raw string) (string, []Action) {
	s := strings.TrimRightFunc(raw, unicode.IsSpace)
	var groups [][]Action
	for strings.HasSuffix(s, ")") {
		open := matchOpenParen(s, len(s)-1)
		if open < 0 {
			break
		}
		identStart := open
		for identStart > 0 && isIdentByte(s[identStart-1]) {
			identStart--
		}
		if identStart < open && isIdentStart(s[identStart]) && (identStart == 0 || isBoundary(s[identStart-1])) {
			groups = append(groups, []Action{{Name: s[identStart:open], Args: s[open+1 : len(s)-1]}})
			s = strings.TrimRightFunc(s[:identStart], unicode.IsSpace)
			continue
		}
		acts, errs := scanCalls(s[open+1:len(s)-1], 0)
		if len(errs) > 0 || len(acts) == 0 {
			break
		}
		groups = append(groups, acts)
		s = strings.TrimRightFunc(s[:open], unicode.IsSpace)
	}
	var out []Action
	for i := len(groups) - 1; i >= 0; i-- {
		out = append(out, groups[i]...)
	}
	return s, out
}

// scanCalls reads whitespace-separated name(args) calls. Anything else is reported.
// base is the 1-based column of s[0] in the raw line (0 suppresses positions).
func scanCalls(s string, base int) ([]Action, []Error) {
	var acts []Action
	var errs []Error
	i := 0
	for {
		for i < len(s) && unicode.IsSpace(rune(s[i])) {
			i++
		}
		if i >= len(s) {
			return acts, errs
		}
		start := i
		for i < len(s) && isIdentByte(s[i]) {
			i++
		}
		if i == start || !isIdentStart(s[start]) || i >= len(s) || s[i] != '(' {
			errs = append(errs, Error{Column: base + start, Kind: applog.KindScriptMalformed, Message: "expected action call near " + strconv.Quote(clip(s[start:], 24))})
			return acts, errs
		}
		closeIdx := matchCloseParen(s, i)
		if closeIdx < 0 {
			errs = append(errs, Error{Column: base + i, Kind: applog.KindScriptMalformed, Message: "unclosed action " + strconv.Quote(s[start:i])})
			return acts, errs
		}
		acts = append(acts, Action{Name: s[start:i], Args: s[i+1 : closeIdx]})
		i = closeIdx + 1
	}
}

func matchCloseParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func matchOpenParen(s string, closeIdx int) int {
	depth := 0
	for i := closeIdx; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool { return isIdentStart(c) || (c >= '0' && c <= '9') }

func isBoundary(c byte) bool { return c == ' ' || c == '\t' || c == ')' }

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
