/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"fmt"
	"sort"
	"sync"
)

// Character is the headless state of one character.
type Character struct {
	Name       string
	Visible    bool
	X, Y       float64
	Face       string
	Body       string
	FacingLeft bool
}

// Event describes one change applied to the stage, for hosts that narrate it.
type Event struct {
	Target string // "layer", "scene", "character", "music", "sfx", "ambiance"
	Detail string
}

func (e Event) String() string { return e.Target + ": " + e.Detail }

// Memory is a headless stage. It implements Layers, Characters and Audio,
// resolves names through a Catalog, and keeps the resulting state.
type Memory struct {
	mu       sync.Mutex
	catalog  Catalog
	observer func(Event)

	layers     map[Layer]ImageRef
	sceneShown bool
	characters map[string]*Character
	music      string
	ambiance   map[string]bool
	sfx        []string
}

// NewMemory creates a stage. A nil catalog resolves every name.
func NewMemory(c Catalog) *Memory {
	if c == nil {
		c = AnyCatalog{}
	}
	return &Memory{
		catalog:    c,
		layers:     map[Layer]ImageRef{},
		sceneShown: true,
		characters: map[string]*Character{},
		ambiance:   map[string]bool{},
	}
}

// Observe registers a callback invoked after each change. Not called under the lock.
func (m *Memory) Observe(fn func(Event)) {
	m.mu.Lock()
	m.observer = fn
	m.mu.Unlock()
}

func (m *Memory) emit(target, format string, args ...any) {
	m.mu.Lock()
	fn := m.observer
	m.mu.Unlock()
	if fn != nil {
		fn(Event{Target: target, Detail: fmt.Sprintf(format, args...)})
	}
}

func (m *Memory) resolveImage(kind AssetKind, img ImageRef) error {
	if img.None || img.Name == "" {
		return nil
	}
	if _, ok := m.catalog.Resolve(kind, img.Name); !ok {
		return Missing(kind, img.Name)
	}
	return nil
}

func (m *Memory) SetLayer(layer Layer, img ImageRef, speed float64, smooth bool) error {
	if err := m.resolveImage(AssetBackdrop, img); err != nil {
		return err
	}
	m.mu.Lock()
	m.layers[layer] = img
	m.mu.Unlock()
	m.emit("layer", "%s -> %s (speed %g, smooth %t)", layer, img, speed, smooth)
	return nil
}

func (m *Memory) TransitionLayer(layer Layer, img ImageRef, effect string, speed float64, smooth bool) error {
	if err := m.resolveImage(AssetBackdrop, img); err != nil {
		return err
	}
	if _, ok := m.catalog.Resolve(AssetTransition, effect); !ok {
		return Missing(AssetTransition, effect)
	}
	m.mu.Lock()
	m.layers[layer] = img
	m.mu.Unlock()
	m.emit("layer", "%s -> %s via %s (speed %g, smooth %t)", layer, img, effect, speed, smooth)
	return nil
}

func (m *Memory) ShowScene(show bool, effect string, speed float64, smooth bool) error {
	if effect != "" {
		if _, ok := m.catalog.Resolve(AssetTransition, effect); !ok {
			return Missing(AssetTransition, effect)
		}
	}
	m.mu.Lock()
	m.sceneShown = show
	m.mu.Unlock()
	m.emit("scene", "show=%t via %q (speed %g, smooth %t)", show, effect, speed, smooth)
	return nil
}

// character returns the named character, creating it hidden on first use.
func (m *Memory) character(name string) (*Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.characters[name]; ok {
		return c, nil
	}
	if _, ok := m.catalog.Resolve(AssetCharacter, name); !ok {
		return nil, Missing(AssetCharacter, name)
	}
	c := &Character{Name: name}
	m.characters[name] = c
	return c, nil
}

func (m *Memory) update(name string, fn func(c *Character)) error {
	c, err := m.character(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	fn(c)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Enter(name string, speed float64, smooth bool) error {
	if err := m.update(name, func(c *Character) { c.Visible = true }); err != nil {
		return err
	}
	m.emit("character", "%s enters (speed %g, smooth %t)", name, speed, smooth)
	return nil
}

func (m *Memory) Exit(name string, speed float64, smooth bool) error {
	if err := m.update(name, func(c *Character) { c.Visible = false }); err != nil {
		return err
	}
	m.emit("character", "%s exits (speed %g, smooth %t)", name, speed, smooth)
	return nil
}

func (m *Memory) Move(name string, x, y, speed float64, smooth bool) error {
	if err := m.update(name, func(c *Character) { c.X, c.Y = x, y }); err != nil {
		return err
	}
	m.emit("character", "%s moves to (%g,%g) (speed %g, smooth %t)", name, x, y, speed, smooth)
	return nil
}

func (m *Memory) SetPosition(name string, x, y float64) error {
	if err := m.update(name, func(c *Character) { c.X, c.Y = x, y }); err != nil {
		return err
	}
	m.emit("character", "%s placed at (%g,%g)", name, x, y)
	return nil
}

func (m *Memory) SetExpression(name string, region Region, expression string, speed float64) error {
	err := m.update(name, func(c *Character) {
		if region == Body {
			c.Body = expression
		} else {
			c.Face = expression
		}
	})
	if err != nil {
		return err
	}
	m.emit("character", "%s %s -> %s (speed %g)", name, region, expression, speed)
	return nil
}

func (m *Memory) Face(name string, f Facing) error {
	err := m.update(name, func(c *Character) {
		switch f {
		case FaceLeft:
			c.FacingLeft = true
		case FaceRight:
			c.FacingLeft = false
		default:
			c.FacingLeft = !c.FacingLeft
		}
	})
	if err != nil {
		return err
	}
	m.emit("character", "%s facing changed", name)
	return nil
}

func (m *Memory) PlaySFX(name string) error {
	if _, ok := m.catalog.Resolve(AssetSFX, name); !ok {
		return Missing(AssetSFX, name)
	}
	m.mu.Lock()
	m.sfx = append(m.sfx, name)
	m.mu.Unlock()
	m.emit("sfx", "%s", name)
	return nil
}

func (m *Memory) PlayMusic(name string) error {
	if _, ok := m.catalog.Resolve(AssetMusic, name); !ok {
		return Missing(AssetMusic, name)
	}
	m.mu.Lock()
	m.music = name
	m.mu.Unlock()
	m.emit("music", "playing %s", name)
	return nil
}

func (m *Memory) StopMusic() error {
	m.mu.Lock()
	m.music = ""
	m.mu.Unlock()
	m.emit("music", "stopped")
	return nil
}

func (m *Memory) PlayAmbiance(name string) error {
	if _, ok := m.catalog.Resolve(AssetAmbiance, name); !ok {
		return Missing(AssetAmbiance, name)
	}
	m.mu.Lock()
	m.ambiance[name] = true
	m.mu.Unlock()
	m.emit("ambiance", "playing %s", name)
	return nil
}

func (m *Memory) StopAmbiance(name string) error {
	m.mu.Lock()
	if name == "" {
		m.ambiance = map[string]bool{}
	} else {
		delete(m.ambiance, name)
	}
	m.mu.Unlock()
	if name == "" {
		m.emit("ambiance", "all stopped")
	} else {
		m.emit("ambiance", "%s stopped", name)
	}
	return nil
}

// Snapshot is a copy of the stage state.
type Snapshot struct {
	Layers     map[Layer]ImageRef
	SceneShown bool
	Characters map[string]Character
	Music      string
	Ambiance   []string
	SFX        []string
}

// Snapshot copies the current state.
func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Layers:     make(map[Layer]ImageRef, len(m.layers)),
		SceneShown: m.sceneShown,
		Characters: make(map[string]Character, len(m.characters)),
		Music:      m.music,
		SFX:        append([]string(nil), m.sfx...),
	}
	for k, v := range m.layers {
		s.Layers[k] = v
	}
	for k, v := range m.characters {
		s.Characters[k] = *v
	}
	for k := range m.ambiance {
		s.Ambiance = append(s.Ambiance, k)
	}
	sort.Strings(s.Ambiance)
	return s
}
