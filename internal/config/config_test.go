/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points the config path at a temp file so the developer's own config is never read.
func isolate(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigPath, p)
	return p
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.General.StartChapter != "chapter0_start" || cfg.Saves.Driver != "sqlite" {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
}

func TestEnvOverridesStoryDir(t *testing.T) {
	isolate(t)
	t.Setenv(EnvStoryDir, "/srv/story")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.General.StoryDir, "/srv/story"; got != want {
		t.Fatalf("General.StoryDir = %q, want %q", got, want)
	}
	if name, ok := EnvOverrideFor("general.story_dir"); !ok || name != EnvStoryDir {
		t.Fatalf("EnvOverrideFor = %q,%v", name, ok)
	}
}

func TestEnvOverridesNumbersAndBools(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTickMs, "33")
	t.Setenv(EnvAudioVolume, "1.7")
	t.Setenv(EnvRemoteEnabled, "yes")
	t.Setenv(EnvCharsPerSec, "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Playback.TickMs != 33 {
		t.Fatalf("TickMs = %d", cfg.Playback.TickMs)
	}
	if cfg.Audio.Volume != 1 {
		t.Fatalf("volume should clamp to 1, got %v", cfg.Audio.Volume)
	}
	if !cfg.Remote.Enabled {
		t.Fatalf("Remote.Enabled expected true from env override")
	}
	if cfg.Playback.CharsPerSecond != Defaults().Playback.CharsPerSecond {
		t.Fatalf("malformed override should keep default, got %v", cfg.Playback.CharsPerSecond)
	}
	if cfg.Playback.TickInterval() != 33*time.Millisecond {
		t.Fatalf("TickInterval = %v", cfg.Playback.TickInterval())
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	p := isolate(t)
	cfg := Defaults()
	cfg.General.StartChapter = "prologue"
	cfg.Saves.Driver = "pgx"
	cfg.Saves.DSN = "postgres://localhost/novel"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.General.StartChapter != "prologue" || got.Saves.Driver != "pgx" {
		t.Fatalf("round trip lost values: %#v", got)
	}
	dsn, err := got.SaveDSN()
	if err != nil || dsn != "postgres://localhost/novel" {
		t.Fatalf("SaveDSN = %q, %v", dsn, err)
	}
}

func TestLoadReportsMalformedFile(t *testing.T) {
	p := isolate(t)
	if err := os.WriteFile(p, []byte("general: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if cfg.General.StartChapter != "chapter0_start" {
		t.Fatalf("defaults should survive a malformed file: %#v", cfg.General)
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "DEBUG"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/tmp/gnv.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/gnv.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestSaveDSNDefaultsForSqliteOnly(t *testing.T) {
	p := isolate(t)
	cfg := Defaults()
	dsn, err := cfg.SaveDSN()
	if err != nil || dsn != filepath.Join(filepath.Dir(p), "saves.db") {
		t.Fatalf("sqlite default dsn = %q, %v", dsn, err)
	}
	cfg.Saves.Driver = "pgx"
	if _, err := cfg.SaveDSN(); err == nil {
		t.Fatalf("pgx without dsn should fail")
	}
}
