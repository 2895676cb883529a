/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"sort"

	"gonovel/internal/script"
)

// Summary counts what a chapter uses.
type Summary struct {
	Lines       int
	Dialogue    int
	Choices     int
	Inputs      int
	Speakers    map[string]int
	Commands    map[string]int
	Diagnostics int
}

// Summarize walks parsed entries. Dialogue lines without a speaker count
// under the empty name.
func Summarize(entries []script.Entry, diags []script.Error) Summary {
	s := Summary{Speakers: map[string]int{}, Commands: map[string]int{}, Diagnostics: len(diags)}
	count := func(acts []script.Action) {
		for _, a := range acts {
			s.Commands[a.Name]++
		}
	}
	for _, e := range entries {
		s.Lines++
		switch e.Kind {
		case script.KindDialogue:
			s.Dialogue++
			if e.Line.Quoted {
				s.Speakers[e.Line.Speaker]++
			}
			count(e.Line.Actions)
		case script.KindChoice:
			s.Choices++
			for _, c := range e.Choice.Choices {
				count(script.ParseLine(c.Action).Actions)
			}
		case script.KindInput:
			s.Inputs++
			count(e.Input.Actions)
		}
	}
	return s
}

// SortedKeys returns the keys of m ordered by descending count, then name.
func SortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
