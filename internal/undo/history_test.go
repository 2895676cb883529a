/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"

	"gonovel/internal/engine"
)

func snap(ch string, cursor int) engine.Snapshot {
	return engine.Snapshot{ChapterName: ch, ChapterProgress: cursor}
}

func TestBackReturnsPreviousLine(t *testing.T) {
	h := NewHistory(Config{MaxBytes: 1024 * 1024, MaxPerChapter: 10, MinInterval: 10 * time.Millisecond})
	t0 := time.Now()
	for i := 0; i < 3; i++ {
		if err := h.Record(snap("c", i), t0.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	if _, chapters, total := h.Stats(); chapters != 1 || total != 3 {
		t.Fatalf("expected 1 chapter and 3 entries, got chapters=%d total=%d", chapters, total)
	}
	s, ok := h.Back("c")
	if !ok || s.ChapterProgress != 1 {
		t.Fatalf("back expected cursor 1, got ok=%v cursor=%d", ok, s.ChapterProgress)
	}
	if _, _, total := h.Stats(); total != 1 {
		t.Fatalf("expected 1 entry left, got %d", total)
	}
	if _, ok := h.Back("c"); ok {
		t.Fatal("a single entry is the current line; nothing to roll back to")
	}
	if _, ok := h.Back("other"); ok {
		t.Fatal("unknown chapter should have no history")
	}
}

func TestCoalesce(t *testing.T) {
	h := NewHistory(Config{MaxBytes: 1024 * 1024, MaxPerChapter: 10, MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	_ = h.Record(snap("c", 0), t0)
	_ = h.Record(snap("c", 1), t0.Add(time.Second))
	_ = h.Record(snap("c", 2), t0.Add(time.Second+10*time.Millisecond)) // coalesce
	_, _, total := h.Stats()
	if total != 2 {
		t.Fatalf("expected coalesced to 2 entries, got %d", total)
	}
	s, ok := h.Back("c")
	if !ok || s.ChapterProgress != 0 {
		t.Fatalf("expected cursor 0, got ok=%v cursor=%d", ok, s.ChapterProgress)
	}
}

func TestCaps(t *testing.T) {
	h := NewHistory(Config{MaxBytes: 1 << 20, MaxPerChapter: 2, MinInterval: time.Millisecond})
	for i := 0; i < 10; i++ {
		h.Push(Entry{Chapter: "c", Blob: []byte("xxxxx"), TS: time.Now().Add(time.Duration(i) * time.Second)})
	}
	tb, _, total := h.Stats()
	if total != 2 || tb != 10 {
		t.Fatalf("expected MaxPerChapter cap to limit to 2 (10 bytes), got %d (%d bytes)", total, tb)
	}
}

func TestClearChapterAndStats(t *testing.T) {
	h := NewHistory(Config{MaxBytes: 1024, MaxPerChapter: 10, MinInterval: time.Millisecond})
	h.Push(Entry{Chapter: "c", Blob: []byte("abcdef"), TS: time.Now()})
	tb, chapters, total := h.Stats()
	if tb == 0 || chapters != 1 || total != 1 {
		t.Fatalf("unexpected stats before clear: tb=%d chapters=%d total=%d", tb, chapters, total)
	}
	h.ClearChapter("c")
	tb2, chapters2, total2 := h.Stats()
	if tb2 != 0 || chapters2 != 0 || total2 != 0 {
		t.Fatalf("expected cleared stats to be zero, got tb=%d chapters=%d total=%d", tb2, chapters2, total2)
	}
}

func TestGlobalPruneAcrossChapters(t *testing.T) {
	h := NewHistory(Config{MaxBytes: 8, MaxPerChapter: 0, MinInterval: time.Millisecond})
	t0 := time.Now()
	h.Push(Entry{Chapter: "a", Blob: []byte("xxxx"), TS: t0})
	h.Push(Entry{Chapter: "b", Blob: []byte("yyyy"), TS: t0.Add(time.Second)})
	h.Push(Entry{Chapter: "b", Blob: []byte("zzzz"), TS: t0.Add(2 * time.Second)})

	if tb, chapters, total := h.Stats(); tb != 8 || chapters != 1 || total != 2 {
		t.Fatalf("expected chapter a pruned, got tb=%d chapters=%d total=%d", tb, chapters, total)
	}
}
