/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storypack

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func zipNames(t *testing.T, p string) []string {
	t.Helper()
	r, err := zip.OpenReader(p)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestExportAndInstall(t *testing.T) {
	src := t.TempDir()
	story := filepath.Join(src, "story")
	assets := filepath.Join(src, "assets")
	writeFile(t, filepath.Join(story, "chapter0_start.txt"), "\"Hello.\" load(chapter1)")
	writeFile(t, filepath.Join(story, "chapter1.txt"), "\"Bye.\"")
	writeFile(t, filepath.Join(story, "notes.md"), "not a chapter")
	writeFile(t, filepath.Join(assets, "backgrounds", "park.png"), "png")

	zipPath := filepath.Join(src, "out", "story.zip")
	n, err := Export(story, assets, zipPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 files, got %d", n)
	}
	want := []string{"assets/backgrounds/park.png", "chapters/chapter0_start.txt", "chapters/chapter1.txt", ManifestName}
	got := zipNames(t, zipPath)
	if len(got) != len(want) {
		t.Fatalf("zip entries = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("zip entries = %v, want %v", got, want)
		}
	}

	dst := t.TempDir()
	dstStory := filepath.Join(dst, "story")
	dstAssets := filepath.Join(dst, "assets")
	installed, err := Install(zipPath, dstStory, dstAssets)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if installed != 3 {
		t.Fatalf("expected 3 installed, got %d", installed)
	}
	b, err := os.ReadFile(filepath.Join(dstStory, "chapter1.txt"))
	if err != nil || string(b) != "\"Bye.\"" {
		t.Fatalf("chapter1 = %q, %v", b, err)
	}
	if _, err := os.Stat(filepath.Join(dstAssets, "backgrounds", "park.png")); err != nil {
		t.Fatalf("asset not installed: %v", err)
	}

	// second install skips everything
	again, err := Install(zipPath, dstStory, dstAssets)
	if err != nil || again != 0 {
		t.Fatalf("reinstall = %d, %v", again, err)
	}
}

func TestExport_Errors(t *testing.T) {
	if _, err := Export("", "", ""); err == nil {
		t.Fatalf("expected error on empty args")
	}
	empty := t.TempDir()
	if _, err := Export(empty, "", filepath.Join(empty, "x.zip")); err == nil {
		t.Fatalf("expected error for a story without chapters")
	}
}

func TestInstall_ZipSlipAndSkipExisting(t *testing.T) {
	dir := t.TempDir()
	zpath := filepath.Join(dir, "pack.zip")
	f, err := os.Create(zpath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"../evil.txt":            "nope",
		"chapters/../evil.txt":   "nope",
		"chapters/sub/deep.txt":  "nope",
		"assets/../../evil.png":  "nope",
		"chapters/existing.txt":  "new",
		"chapters/fresh.txt":     "\"fresh\"",
		"assets/music/theme.ogg": "ogg",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close zip file: %v", err)
	}

	story := filepath.Join(dir, "story")
	writeFile(t, filepath.Join(story, "existing.txt"), "old")

	// no assets dir: the asset entry is skipped
	installed, err := Install(zpath, story, "")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if installed != 1 {
		t.Fatalf("expected only fresh.txt installed, got %d", installed)
	}
	if b, _ := os.ReadFile(filepath.Join(story, "existing.txt")); string(b) != "old" {
		t.Fatalf("existing chapter overwritten: %q", b)
	}
	for _, p := range []string{filepath.Join(dir, "evil.txt"), filepath.Join(story, "evil.txt"), filepath.Join(story, "sub")} {
		if _, err := os.Stat(p); err == nil {
			t.Fatalf("%s should not exist", p)
		}
	}
}
