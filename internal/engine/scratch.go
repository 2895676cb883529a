/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"strconv"
	"strings"
)

// ScratchSlots is the size of the scratch store.
const ScratchSlots = 9

// Scratch is the fixed 9-slot string store written by saveTempVal and read by [tempValN] tags.
type Scratch [ScratchSlots]string

// ClampSlot parses a 1-based slot index. Unparseable input means slot 1;
// out-of-range values clamp to 1..9.
func ClampSlot(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 1
	}
	if n < 1 {
		return 1
	}
	if n > ScratchSlots {
		return ScratchSlots
	}
	return n
}

// Set stores value at the 1-based slot. "~" stands for a space since values
// are written inside action arguments.
func (s *Scratch) Set(slot int, value string) {
	if slot < 1 || slot > ScratchSlots {
		return
	}
	s[slot-1] = strings.ReplaceAll(value, "~", " ")
}

// Get reads a 1-based slot; out of range reads as empty.
func (s *Scratch) Get(slot int) string {
	if slot < 1 || slot > ScratchSlots {
		return ""
	}
	return s[slot-1]
}

// SetFromArgs handles "index,value". The value keeps any further commas.
func (s *Scratch) SetFromArgs(args string) int {
	idx, val, _ := strings.Cut(args, ",")
	slot := ClampSlot(idx)
	s.Set(slot, val)
	return slot
}
