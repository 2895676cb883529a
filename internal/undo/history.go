/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo keeps a bounded per-chapter history of playthrough snapshots
// taken as lines start, so the player can roll back to earlier lines.
package undo

import (
	"encoding/json"
	"sync"
	"time"

	"gonovel/internal/engine"
)

// Entry is one recorded line start. Blob is the JSON snapshot; its length is
// what the memory cap accounts for.
type Entry struct {
	Chapter string
	Blob    []byte
	TS      time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; the oldest entries across chapters are pruned when exceeded.
	MaxBytes int
	// MaxPerChapter limits entries kept per chapter (0 means unlimited).
	MaxPerChapter int
	// MinInterval coalesces lines that start within the interval of the previous
	// one (next()-chained or action-only lines), replacing the last entry.
	MinInterval time.Duration
}

// History is safe for concurrent use.
type History struct {
	cfg        Config
	mu         sync.Mutex
	stacks     map[string][]Entry
	totalBytes int
}

func NewHistory(cfg Config) *History {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1024 * 1024
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &History{cfg: cfg, stacks: make(map[string][]Entry)}
}

// Record stores s as the newest line start of its chapter.
func (h *History) Record(s engine.Snapshot, ts time.Time) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return err
	}
	h.Push(Entry{Chapter: s.ChapterName, Blob: blob, TS: ts})
	return nil
}

// Push appends e, or replaces the chapter's last entry when e arrives within MinInterval.
func (h *History) Push(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.stacks[e.Chapter]
	if n := len(stack); n > 0 {
		last := stack[n-1]
		if e.TS.Sub(last.TS) < h.cfg.MinInterval {
			h.totalBytes += len(e.Blob) - len(last.Blob)
			stack[n-1] = e
			h.enforceCapsLocked(e.Chapter)
			return
		}
	}
	h.stacks[e.Chapter] = append(stack, e)
	h.totalBytes += len(e.Blob)
	h.enforceCapsLocked(e.Chapter)
}

// Back drops the current line and returns the one before it. Both entries
// leave the history; the returned line is recorded again when it replays.
// It reports false, leaving the history unchanged, when there is no earlier line.
func (h *History) Back(chapter string) (engine.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.stacks[chapter]
	n := len(stack)
	if n < 2 {
		return engine.Snapshot{}, false
	}
	prev := stack[n-2]
	var s engine.Snapshot
	if err := json.Unmarshal(prev.Blob, &s); err != nil {
		return engine.Snapshot{}, false
	}
	h.totalBytes -= len(prev.Blob) + len(stack[n-1].Blob)
	h.stacks[chapter] = stack[:n-2]
	return s, true
}

// ClearChapter drops a chapter's history to free memory.
func (h *History) ClearChapter(chapter string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.stacks[chapter] {
		h.totalBytes -= len(e.Blob)
	}
	delete(h.stacks, chapter)
	if h.totalBytes < 0 {
		h.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (h *History) Stats() (totalBytes int, chapters int, entries int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	chapters = len(h.stacks)
	for _, v := range h.stacks {
		entries += len(v)
	}
	return h.totalBytes, chapters, entries
}

func (h *History) enforceCapsLocked(chapter string) {
	if h.cfg.MaxPerChapter > 0 {
		stack := h.stacks[chapter]
		if len(stack) > h.cfg.MaxPerChapter {
			toDrop := len(stack) - h.cfg.MaxPerChapter
			for i := 0; i < toDrop; i++ {
				h.totalBytes -= len(stack[i].Blob)
			}
			h.stacks[chapter] = append([]Entry{}, stack[toDrop:]...)
		}
	}
	// prune oldest across all chapters
	for h.cfg.MaxBytes > 0 && h.totalBytes > h.cfg.MaxBytes {
		oldest := ""
		found := false
		var oldestTS time.Time
		for ch, stack := range h.stacks {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = ch, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := h.stacks[oldest]
		h.totalBytes -= len(stack[0].Blob)
		h.stacks[oldest] = stack[1:]
		if len(h.stacks[oldest]) == 0 {
			delete(h.stacks, oldest)
		}
	}
}
