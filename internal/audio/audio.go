/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package audio plays music, ambiance and sound effects with gopxl/beep.
// It implements stage.Audio; names are resolved through a stage.Catalog.
package audio

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	applog "gonovel/internal/log"
	"gonovel/internal/stage"
)

// SampleRate is the output rate every track is resampled to.
const SampleRate = beep.SampleRate(48000)

// Output is where finished streams go. The default is the system speaker.
type Output interface {
	Play(s beep.Streamer) error
	// Lock and Unlock guard live changes to streams already playing.
	Lock()
	Unlock()
}

// Decoder opens an audio file as a seekable stream.
type Decoder func(path string) (beep.StreamSeekCloser, beep.Format, error)

// Player implements stage.Audio.
type Player struct {
	mu       sync.Mutex
	catalog  stage.Catalog
	out      Output
	decode   Decoder
	volume   float64
	music    *track
	ambiance map[string]*track
	log      *slog.Logger
}

type track struct {
	name   string
	ctrl   *beep.Ctrl
	vol    *effects.Volume
	source beep.StreamSeekCloser
}

// Option configures a Player.
type Option func(*Player)

// WithOutput replaces the speaker output.
func WithOutput(o Output) Option { return func(p *Player) { p.out = o } }

// WithDecoder replaces the file decoder.
func WithDecoder(d Decoder) Option { return func(p *Player) { p.decode = d } }

// New creates a player resolving asset names through c.
func New(c stage.Catalog, volume float64, opts ...Option) *Player {
	p := &Player{
		catalog:  c,
		out:      &speakerOutput{},
		decode:   DecodeFile,
		ambiance: map[string]*track{},
		log:      applog.WithComponent("audio"),
	}
	for _, o := range opts {
		o(p)
	}
	p.volume = clampVolume(volume)
	return p
}

func (p *Player) open(kind stage.AssetKind, name string, loop bool) (*track, error) {
	path, ok := p.catalog.Resolve(kind, name)
	if !ok {
		return nil, stage.Missing(kind, name)
	}
	src, format, err := p.decode(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", stage.ErrResourceMissing, kind, name, err)
	}
	var s beep.Streamer = src
	if loop {
		s = beep.Loop(-1, src)
	}
	if format.SampleRate != SampleRate && format.SampleRate != 0 {
		s = beep.Resample(3, format.SampleRate, SampleRate, s)
	}
	vol := &effects.Volume{Streamer: s, Base: 2, Volume: volumeToPower(p.volume), Silent: p.volume <= 0.01}
	return &track{name: name, ctrl: &beep.Ctrl{Streamer: vol}, vol: vol, source: src}, nil
}

func (p *Player) start(t *track) error {
	return p.out.Play(beep.Seq(t.ctrl, beep.Callback(func() {
		go func() { _ = t.source.Close() }()
	})))
}

// stop silences a track; the speaker drops it on its next read.
func (p *Player) stop(t *track) {
	if t == nil {
		return
	}
	p.out.Lock()
	t.ctrl.Streamer = nil
	p.out.Unlock()
	_ = t.source.Close()
}

// PlaySFX plays a one-shot effect.
func (p *Player) PlaySFX(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.open(stage.AssetSFX, name, false)
	if err != nil {
		return err
	}
	p.log.Debug("sfx", slog.String("name", name))
	return p.start(t)
}

// PlayMusic replaces the current song. Playing the song that is already
// playing does nothing.
func (p *Player) PlayMusic(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.music != nil && p.music.name == name {
		return nil
	}
	t, err := p.open(stage.AssetMusic, name, true)
	if err != nil {
		return err
	}
	p.stop(p.music)
	p.music = t
	p.log.Debug("music", slog.String("name", name))
	return p.start(t)
}

// StopMusic stops the current song.
func (p *Player) StopMusic() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop(p.music)
	p.music = nil
	return nil
}

// PlayAmbiance adds a looping ambiance layer.
func (p *Player) PlayAmbiance(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ambiance[name]; ok {
		return nil
	}
	t, err := p.open(stage.AssetAmbiance, name, true)
	if err != nil {
		return err
	}
	p.ambiance[name] = t
	p.log.Debug("ambiance", slog.String("name", name))
	return p.start(t)
}

// StopAmbiance stops one ambiance layer, or all of them when name is empty.
func (p *Player) StopAmbiance(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name == "" {
		for n, t := range p.ambiance {
			p.stop(t)
			delete(p.ambiance, n)
		}
		return nil
	}
	if t, ok := p.ambiance[name]; ok {
		p.stop(t)
		delete(p.ambiance, name)
	}
	return nil
}

// SetVolume sets the master volume (0.0 to 1.0) for playing and future tracks.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clampVolume(v)
	p.out.Lock()
	for _, t := range p.tracksLocked() {
		t.vol.Volume = volumeToPower(p.volume)
		t.vol.Silent = p.volume <= 0.01
	}
	p.out.Unlock()
}

// Volume returns the master volume.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Music returns the current song name.
func (p *Player) Music() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.music == nil {
		return ""
	}
	return p.music.name
}

// Ambiance returns the playing ambiance layers, sorted.
func (p *Player) Ambiance() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.ambiance))
	for n := range p.ambiance {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Close stops everything.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tracksLocked() {
		p.stop(t)
	}
	p.music = nil
	p.ambiance = map[string]*track{}
}

func (p *Player) tracksLocked() []*track {
	var ts []*track
	if p.music != nil {
		ts = append(ts, p.music)
	}
	for _, t := range p.ambiance {
		ts = append(ts, t)
	}
	return ts
}

// speakerOutput initialises the speaker on first use.
type speakerOutput struct {
	once sync.Once
	err  error
}

func (s *speakerOutput) Play(st beep.Streamer) error {
	s.once.Do(func() {
		s.err = speaker.Init(SampleRate, SampleRate.N(time.Second/10))
		if s.err != nil {
			applog.WithComponent("audio").Error("speaker init failed", slog.Any("err", s.err))
		}
	})
	if s.err != nil {
		return s.err
	}
	speaker.Play(st)
	return nil
}

func (s *speakerOutput) Lock()   { speaker.Lock() }
func (s *speakerOutput) Unlock() { speaker.Unlock() }

// DecodeFile opens path as MP3, falling back to WAV.
func DecodeFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	streamer, format, err := mp3.Decode(f)
	if err == nil {
		return streamer, format, nil
	}
	_ = f.Close()

	// reopen, the mp3 attempt consumed part of the file
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	streamer, format, err = wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return streamer, format, nil
}
