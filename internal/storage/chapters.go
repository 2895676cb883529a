/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonovel/internal/script"
)

// ChapterExt is the file extension of chapter scripts.
const ChapterExt = ".txt"

// ErrChapterNotFound is returned when no script exists for a chapter name.
var ErrChapterNotFound = errors.New("chapter not found")

// ChapterDir reads chapters from <Root>/<name>.txt.
type ChapterDir struct {
	Root string
}

// Path returns the script path for name. Names may contain '/' to address
// subfolders but may not leave Root.
func (d ChapterDir) Path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("chapter name is empty")
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("chapter name %q escapes the story directory", name)
	}
	return filepath.Join(d.Root, clean+ChapterExt), nil
}

// Chapter loads and splits the script for name.
func (d ChapterDir) Chapter(name string) ([]string, error) {
	p, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrChapterNotFound, name)
		}
		return nil, fmt.Errorf("read chapter %s: %w", name, err)
	}
	return script.SplitLines(string(b)), nil
}

// List returns the chapter names found directly under Root, sorted.
func (d ChapterDir) List() ([]string, error) {
	ents, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("read story dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ChapterExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ChapterExt))
	}
	sort.Strings(out)
	return out, nil
}
