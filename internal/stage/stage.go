/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package stage defines the collaborators that commands drive (layers,
// characters, audio, chapter loading) and a headless in-memory stage used by
// the console host and tests.
package stage

import (
	"errors"
	"fmt"
)

// ErrResourceMissing is returned when a named asset cannot be resolved.
var ErrResourceMissing = errors.New("resource missing")

// Missing wraps ErrResourceMissing with the asset kind and name.
func Missing(kind AssetKind, name string) error {
	return fmt.Errorf("%w: %s %q", ErrResourceMissing, kind, name)
}

// Layer selects one of the stacked image layers.
type Layer int

const (
	Background Layer = iota
	Cinematic
	Foreground
)

func (l Layer) String() string {
	switch l {
	case Background:
		return "background"
	case Cinematic:
		return "cinematic"
	case Foreground:
		return "foreground"
	}
	return fmt.Sprintf("layer(%d)", int(l))
}

// ImageRef names an image. The zero value means "use the default";
// None is an explicit "no image" (the script's null).
type ImageRef struct {
	Name string
	None bool
}

func (r ImageRef) String() string {
	switch {
	case r.None:
		return "null"
	case r.Name == "":
		return "default"
	}
	return r.Name
}

// Region is the part of a character an expression applies to.
type Region int

const (
	Face Region = iota
	Body
)

func (r Region) String() string {
	if r == Body {
		return "body"
	}
	return "face"
}

// Facing changes a character's horizontal orientation.
type Facing int

const (
	Flip Facing = iota
	FaceLeft
	FaceRight
)

// Layers renders background/cinematic/foreground images and scene transitions.
type Layers interface {
	SetLayer(layer Layer, img ImageRef, speed float64, smooth bool) error
	TransitionLayer(layer Layer, img ImageRef, effect string, speed float64, smooth bool) error
	ShowScene(show bool, effect string, speed float64, smooth bool) error
}

// Characters moves and poses on-screen characters.
type Characters interface {
	Enter(name string, speed float64, smooth bool) error
	Exit(name string, speed float64, smooth bool) error
	Move(name string, x, y, speed float64, smooth bool) error
	SetPosition(name string, x, y float64) error
	SetExpression(name string, region Region, expression string, speed float64) error
	Face(name string, f Facing) error
}

// Audio plays music, one-shot effects and looping ambiance.
type Audio interface {
	PlaySFX(name string) error
	PlayMusic(name string) error
	StopMusic() error
	PlayAmbiance(name string) error
	// StopAmbiance stops one track, or all of them when name is empty.
	StopAmbiance(name string) error
}

// ChapterLoader replaces the running chapter.
type ChapterLoader interface {
	LoadChapter(name string) error
}
