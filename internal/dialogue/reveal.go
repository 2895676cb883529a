/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package dialogue reveals segment text over time. A Reveal is driven by the
// caller's clock; it never starts goroutines or timers of its own.
package dialogue

import (
	"math"
	"time"
)

// Reveal shows Text one rune at a time after a fixed pretext.
type Reveal struct {
	pretext  string
	target   []rune
	shown    int
	progress float64
	cps      float64
	fast     float64
	skipping bool
	last     time.Time
}

// NewReveal starts revealing text at cps runes per second. fastMultiplier
// speeds the reveal up once Skip is called. cps <= 0 reveals instantly.
func NewReveal(pretext, text string, cps, fastMultiplier float64, now time.Time) *Reveal {
	if fastMultiplier < 1 {
		fastMultiplier = 1
	}
	r := &Reveal{pretext: pretext, target: []rune(text), cps: cps, fast: fastMultiplier, last: now}
	if cps <= 0 {
		r.shown = len(r.target)
	}
	return r
}

// Update advances the reveal to now and reports whether the visible text changed.
func (r *Reveal) Update(now time.Time) bool {
	if r.Done() {
		return false
	}
	dt := now.Sub(r.last)
	r.last = now
	if dt <= 0 {
		return false
	}
	rate := r.cps
	if r.skipping {
		rate *= r.fast
	}
	r.progress += dt.Seconds() * rate
	n := int(math.Floor(r.progress))
	if n > len(r.target) {
		n = len(r.target)
	}
	if n == r.shown {
		return false
	}
	r.shown = n
	return true
}

// Skip switches to the fast-forward rate.
func (r *Reveal) Skip() { r.skipping = true }

// Skipping reports whether Skip has been called.
func (r *Reveal) Skipping() bool { return r.skipping }

// Finish reveals everything immediately.
func (r *Reveal) Finish() {
	r.shown = len(r.target)
	r.progress = float64(r.shown)
}

// Done reports whether the whole text is visible.
func (r *Reveal) Done() bool { return r.shown >= len(r.target) }

// Visible is the pretext followed by the revealed part of the text.
func (r *Reveal) Visible() string { return r.pretext + string(r.target[:r.shown]) }

// Full is the pretext followed by the whole text.
func (r *Reveal) Full() string { return r.pretext + string(r.target) }
