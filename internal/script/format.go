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
)

// Format renders a parsed line back into script syntax. Parsing the result
// yields the same speaker, segments and actions.
func Format(l Line) string {
	var b strings.Builder
	silent := len(l.Segments) == 1 && l.Segments[0].Silent
	if !silent {
		if l.Quoted {
			if l.Speaker != "" {
				b.WriteString(l.Speaker)
				b.WriteString(" ")
			}
			b.WriteString("\"")
		}
		for i, seg := range l.Segments {
			if i > 0 {
				b.WriteString(marker(seg))
			}
			b.WriteString(seg.Text)
		}
		if l.Quoted {
			b.WriteString("\"")
		}
	}
	for i, a := range l.Actions {
		if b.Len() > 0 || i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(a.String())
	}
	return b.String()
}

func marker(seg Segment) string {
	if seg.Trigger.Kind == AutoDelay {
		secs := strconv.FormatFloat(seg.Trigger.Delay.Seconds(), 'f', -1, 64)
		if seg.Append {
			return "{wa " + secs + "}"
		}
		return "{w " + secs + "}"
	}
	if seg.Append {
		return "{a}"
	}
	return "{c}"
}
