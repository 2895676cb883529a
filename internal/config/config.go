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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides applied at load time.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type GeneralConfig struct {
	StoryDir     string `yaml:"story_dir"`
	AssetsDir    string `yaml:"assets_dir"`
	StartChapter string `yaml:"start_chapter"`
}

type PlaybackConfig struct {
	TickMs                int     `yaml:"tick_ms"`
	CharsPerSecond        float64 `yaml:"chars_per_second"`
	FastForwardMultiplier float64 `yaml:"fast_forward_multiplier"`
	MaxStepsPerTick       int     `yaml:"max_steps_per_tick"`
}

type SavesConfig struct {
	Driver    string `yaml:"driver"` // "sqlite" | "pgx"
	DSN       string `yaml:"dsn"`
	ExportDir string `yaml:"export_dir"`
}

type AudioConfig struct {
	Enabled bool    `yaml:"enabled"`
	Volume  float64 `yaml:"volume"` // 0..1
}

type RemoteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Playback      PlaybackConfig `yaml:"playback"`
	Saves         SavesConfig    `yaml:"saves"`
	Audio         AudioConfig    `yaml:"audio"`
	Remote        RemoteConfig   `yaml:"remote"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{StoryDir: "story", AssetsDir: "assets", StartChapter: "chapter0_start"},
		Playback:      PlaybackConfig{TickMs: 16, CharsPerSecond: 40, FastForwardMultiplier: 8, MaxStepsPerTick: 256},
		Saves:         SavesConfig{Driver: "sqlite", DSN: "", ExportDir: ""},
		Audio:         AudioConfig{Enabled: true, Volume: 1},
		Remote:        RemoteConfig{Enabled: false, Addr: "127.0.0.1:7780"},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvStoryDir      = "GNV_STORY_DIR"
	EnvAssetsDir     = "GNV_ASSETS_DIR"
	EnvStartChapter  = "GNV_START_CHAPTER"
	EnvTickMs        = "GNV_TICK_MS"
	EnvCharsPerSec   = "GNV_CHARS_PER_SECOND"
	EnvSavesDriver   = "GNV_SAVES_DRIVER"
	EnvSavesDSN      = "GNV_SAVES_DSN"
	EnvAudioEnabled  = "GNV_AUDIO_ENABLED"
	EnvAudioVolume   = "GNV_AUDIO_VOLUME"
	EnvRemoteEnabled = "GNV_REMOTE_ENABLED"
	EnvRemoteAddr    = "GNV_REMOTE_ADDR"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GNV_LOG_LEVEL"
	EnvLogFormat = "GNV_LOG_FORMAT"
	EnvLogSource = "GNV_LOG_SOURCE"
	EnvLogFile   = "GNV_LOG_FILE"
	// EnvConfigPath points Load/Save at an explicit file.
	EnvConfigPath = "GNV_CONFIG"
)

// envOverrides mirrors the overridable keys. Everything is a string so an
// unset variable can be told apart from a zero value.
type envOverrides struct {
	StoryDir      string `env:"GNV_STORY_DIR"`
	AssetsDir     string `env:"GNV_ASSETS_DIR"`
	StartChapter  string `env:"GNV_START_CHAPTER"`
	TickMs        string `env:"GNV_TICK_MS"`
	CharsPerSec   string `env:"GNV_CHARS_PER_SECOND"`
	SavesDriver   string `env:"GNV_SAVES_DRIVER"`
	SavesDSN      string `env:"GNV_SAVES_DSN"`
	AudioEnabled  string `env:"GNV_AUDIO_ENABLED"`
	AudioVolume   string `env:"GNV_AUDIO_VOLUME"`
	RemoteEnabled string `env:"GNV_REMOTE_ENABLED"`
	RemoteAddr    string `env:"GNV_REMOTE_ADDR"`
	LogLevel      string `env:"GNV_LOG_LEVEL"`
	LogFormat     string `env:"GNV_LOG_FORMAT"`
	LogSource     string `env:"GNV_LOG_SOURCE"`
	LogFile       string `env:"GNV_LOG_FILE"`
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GoNovel")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoNovel")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "gonovel")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// A malformed file is reported but defaults are still returned.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	var fileErr error
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			fileErr = fmt.Errorf("parse %s: %w", path, err)
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, fileErr
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if v := strings.TrimSpace(src.General.StoryDir); v != "" {
		dst.General.StoryDir = v
	}
	if v := strings.TrimSpace(src.General.AssetsDir); v != "" {
		dst.General.AssetsDir = v
	}
	if v := strings.TrimSpace(src.General.StartChapter); v != "" {
		dst.General.StartChapter = v
	}
	if src.Playback.TickMs > 0 {
		dst.Playback.TickMs = src.Playback.TickMs
	}
	if src.Playback.CharsPerSecond > 0 {
		dst.Playback.CharsPerSecond = src.Playback.CharsPerSecond
	}
	if src.Playback.FastForwardMultiplier > 0 {
		dst.Playback.FastForwardMultiplier = src.Playback.FastForwardMultiplier
	}
	if src.Playback.MaxStepsPerTick > 0 {
		dst.Playback.MaxStepsPerTick = src.Playback.MaxStepsPerTick
	}
	if v := strings.ToLower(strings.TrimSpace(src.Saves.Driver)); v != "" {
		dst.Saves.Driver = v
	}
	if v := strings.TrimSpace(src.Saves.DSN); v != "" {
		dst.Saves.DSN = v
	}
	if v := strings.TrimSpace(src.Saves.ExportDir); v != "" {
		dst.Saves.ExportDir = v
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Audio.Enabled = src.Audio.Enabled
	if src.Audio.Volume > 0 {
		dst.Audio.Volume = clamp01(src.Audio.Volume)
	}
	dst.Remote.Enabled = src.Remote.Enabled
	if v := strings.TrimSpace(src.Remote.Addr); v != "" {
		dst.Remote.Addr = v
	}
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
}

func applyEnvOverrides(cfg *AppConfig) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if v := strings.TrimSpace(o.StoryDir); v != "" {
		cfg.General.StoryDir = v
	}
	if v := strings.TrimSpace(o.AssetsDir); v != "" {
		cfg.General.AssetsDir = v
	}
	if v := strings.TrimSpace(o.StartChapter); v != "" {
		cfg.General.StartChapter = v
	}
	if n, err := strconv.Atoi(strings.TrimSpace(o.TickMs)); err == nil && n > 0 {
		cfg.Playback.TickMs = n
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(o.CharsPerSec), 64); err == nil && f > 0 {
		cfg.Playback.CharsPerSecond = f
	}
	if v := strings.TrimSpace(o.SavesDriver); v != "" {
		cfg.Saves.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(o.SavesDSN); v != "" {
		cfg.Saves.DSN = v
	}
	if v := strings.TrimSpace(o.AudioEnabled); v != "" {
		cfg.Audio.Enabled = truthy(v)
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(o.AudioVolume), 64); err == nil {
		cfg.Audio.Volume = clamp01(f)
	}
	if v := strings.TrimSpace(o.RemoteEnabled); v != "" {
		cfg.Remote.Enabled = truthy(v)
	}
	if v := strings.TrimSpace(o.RemoteAddr); v != "" {
		cfg.Remote.Addr = v
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(o.LogFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(o.LogSource); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(o.LogFile); v != "" {
		cfg.Logging.File = v
	}
	return nil
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"general.story_dir":      EnvStoryDir,
		"general.assets_dir":     EnvAssetsDir,
		"general.start_chapter":  EnvStartChapter,
		"playback.tick_ms":       EnvTickMs,
		"playback.chars_per_sec": EnvCharsPerSec,
		"saves.driver":           EnvSavesDriver,
		"saves.dsn":              EnvSavesDSN,
		"audio.enabled":          EnvAudioEnabled,
		"audio.volume":           EnvAudioVolume,
		"remote.enabled":         EnvRemoteEnabled,
		"remote.addr":            EnvRemoteAddr,
		"logging.level":          EnvLogLevel,
		"logging.format":         EnvLogFormat,
		"logging.source":         EnvLogSource,
		"logging.file":           EnvLogFile,
	}
	name, ok := names[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// TickInterval returns the host frame interval.
func (p PlaybackConfig) TickInterval() time.Duration {
	if p.TickMs <= 0 {
		return time.Duration(Defaults().Playback.TickMs) * time.Millisecond
	}
	return time.Duration(p.TickMs) * time.Millisecond
}

// SaveDSN resolves the save store DSN, defaulting to a sqlite file next to the config.
func (c AppConfig) SaveDSN() (string, error) {
	if c.Saves.DSN != "" {
		return c.Saves.DSN, nil
	}
	if c.Saves.Driver == "pgx" {
		return "", errors.New("saves.dsn is required for the pgx driver")
	}
	p, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(p), "saves.db"), nil
}
