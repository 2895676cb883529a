/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"os"
	"path/filepath"
	"strings"
)

// AssetKind groups assets by the directory they live in.
type AssetKind string

const (
	AssetBackdrop   AssetKind = "backdrop"
	AssetTransition AssetKind = "transition"
	AssetCharacter  AssetKind = "character"
	AssetMusic      AssetKind = "music"
	AssetSFX        AssetKind = "sfx"
	AssetAmbiance   AssetKind = "ambiance"
)

// Catalog resolves asset names.
type Catalog interface {
	Resolve(kind AssetKind, name string) (string, bool)
}

// AnyCatalog resolves every name to itself.
type AnyCatalog struct{}

func (AnyCatalog) Resolve(_ AssetKind, name string) (string, bool) { return name, name != "" }

// StaticCatalog resolves from a fixed set, keyed by kind.
type StaticCatalog map[AssetKind][]string

func (c StaticCatalog) Resolve(kind AssetKind, name string) (string, bool) {
	for _, n := range c[kind] {
		if n == name {
			return n, true
		}
	}
	return "", false
}

// DirCatalog looks assets up under Root:
//
//	images/backdrops, images/transitions, characters, audio/music, audio/sfx, audio/ambiance
//
// A name resolves if a file with that base name and any of the kind's extensions exists.
type DirCatalog struct {
	Root string
}

var kindDirs = map[AssetKind]struct {
	dir  string
	exts []string
}{
	AssetBackdrop:   {filepath.Join("images", "backdrops"), []string{".png", ".jpg", ".jpeg"}},
	AssetTransition: {filepath.Join("images", "transitions"), []string{".png", ".jpg", ".jpeg"}},
	AssetCharacter:  {"characters", []string{"", ".png"}},
	AssetMusic:      {filepath.Join("audio", "music"), []string{".mp3", ".wav"}},
	AssetSFX:        {filepath.Join("audio", "sfx"), []string{".wav", ".mp3"}},
	AssetAmbiance:   {filepath.Join("audio", "ambiance"), []string{".mp3", ".wav"}},
}

func (c DirCatalog) Resolve(kind AssetKind, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "..") {
		return "", false
	}
	d, ok := kindDirs[kind]
	if !ok {
		return "", false
	}
	base := filepath.Join(c.Root, d.dir, filepath.FromSlash(name))
	for _, ext := range d.exts {
		p := base + ext
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}
