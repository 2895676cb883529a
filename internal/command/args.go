/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	applog "gonovel/internal/log"
	"gonovel/internal/stage"
)

// Args is a parsed argument string: comma-separated fields, each trimmed.
// Fields naming several targets use ';' between them.
// Lookups past the end return the zero value or the supplied default.
type Args struct {
	Command string
	Raw     string
	Fields  []string
	log     *slog.Logger
}

// ParseArgs splits raw on ','. An empty or blank raw string has no fields.
func ParseArgs(command, raw string) Args {
	a := Args{Command: command, Raw: raw, log: applog.WithComponent("command")}
	if strings.TrimSpace(raw) == "" {
		return a
	}
	for _, f := range strings.Split(raw, ",") {
		a.Fields = append(a.Fields, strings.TrimSpace(f))
	}
	return a
}

// Len is the number of fields.
func (a Args) Len() int { return len(a.Fields) }

// String returns field i, or "" when absent.
func (a Args) String(i int) string {
	if i < 0 || i >= len(a.Fields) {
		return ""
	}
	return a.Fields[i]
}

// Required returns field i or an ErrArgumentMalformed error when it is absent or empty.
func (a Args) Required(i int, what string) (string, error) {
	s := a.String(i)
	if s == "" {
		return "", fmt.Errorf("%w: %s: missing %s", ErrArgumentMalformed, a.Command, what)
	}
	return s, nil
}

// Targets splits field i on ';'. Empty entries are dropped.
func (a Args) Targets(i int) []string {
	return SplitTargets(a.String(i))
}

// AllTargets splits every field on ';'.
func (a Args) AllTargets() []string {
	var out []string
	for _, f := range a.Fields {
		out = append(out, SplitTargets(f)...)
	}
	return out
}

// Float returns field i as a number. An absent field yields def silently;
// a malformed one yields def and a diagnostic.
func (a Args) Float(i int, def float64) float64 {
	s := a.String(i)
	if s == "" {
		return def
	}
	f, ok := ParseFloat(s)
	if !ok {
		a.warn(i, "number")
		return def
	}
	return f
}

// RequiredFloat returns field i as a number or ErrArgumentMalformed.
func (a Args) RequiredFloat(i int, what string) (float64, error) {
	s, err := a.Required(i, what)
	if err != nil {
		return 0, err
	}
	f, ok := ParseFloat(s)
	if !ok {
		return 0, fmt.Errorf("%w: %s: %s %q is not a number", ErrArgumentMalformed, a.Command, what, s)
	}
	return f, nil
}

// Bool returns field i as a boolean with the same absent/malformed rules as Float.
func (a Args) Bool(i int, def bool) bool {
	s := a.String(i)
	if s == "" {
		return def
	}
	b, ok := ParseBool(s)
	if !ok {
		a.warn(i, "boolean")
		return def
	}
	return b
}

// Options probes the optional trailing fields starting at from: a number sets
// the speed, a boolean sets the smooth flag, anything else is ignored.
// Order among the trailing fields does not matter.
func (a Args) Options(from int, speed float64, smooth bool) (float64, bool) {
	for i := from; i < len(a.Fields); i++ {
		f := a.Fields[i]
		if v, ok := ParseFloat(f); ok {
			speed = v
			continue
		}
		if v, ok := ParseBool(f); ok {
			smooth = v
			continue
		}
		if f != "" {
			a.log.Debug("ignoring trailing field", slog.String("command", a.Command), slog.String("field", f))
		}
	}
	return speed, smooth
}

// Image reads field i as an image reference; "null" means no image, absent means default.
func (a Args) Image(i int) stage.ImageRef {
	return ParseImage(a.String(i))
}

func (a Args) warn(i int, want string) {
	applog.Diagnostic(a.log, applog.KindArgumentMalformed, "using default for malformed field",
		slog.String("command", a.Command), slog.Int("field", i), slog.String("value", a.String(i)), slog.String("want", want))
}

// ParseFloat accepts finite decimal numbers only.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseBool accepts "true" and "false" in any letter case, nothing else.
func ParseBool(s string) (bool, bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}

// ParseImage maps the null sentinel.
func ParseImage(s string) stage.ImageRef {
	s = strings.TrimSpace(s)
	if s == "null" {
		return stage.ImageRef{None: true}
	}
	return stage.ImageRef{Name: s}
}

// SplitTargets splits a multi-target field on ';'.
func SplitTargets(field string) []string {
	var out []string
	for _, p := range strings.Split(field, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
