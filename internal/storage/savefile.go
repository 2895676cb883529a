/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gojsonschema "github.com/xeipuuv/gojsonschema"

	"gonovel/internal/engine"
	"gonovel/internal/version"
)

// BackupsDirName is created next to a save file and holds previous versions of it.
const BackupsDirName = "backups"

// ErrInvalidSaveFile is returned when a save file does not parse or does not match the schema.
var ErrInvalidSaveFile = errors.New("invalid save file")

//go:embed save.schema.json
var saveSchemaJSON []byte

var (
	saveSchemaOnce sync.Once
	saveSchema     *gojsonschema.Schema
	saveSchemaErr  error
)

// SaveFile is the portable JSON form of a playthrough.
type SaveFile struct {
	ID      string          `json:"id"`
	Slot    string          `json:"slot,omitempty"`
	SavedAt time.Time       `json:"saved_at"`
	App     string          `json:"app,omitempty"`
	State   engine.Snapshot `json:"state"`
}

// NewSaveFile stamps a snapshot with a fresh id and the current time.
func NewSaveFile(slot string, s engine.Snapshot) SaveFile {
	return SaveFile{
		ID:      uuid.NewString(),
		Slot:    slot,
		SavedAt: time.Now().UTC(),
		App:     version.String(),
		State:   s,
	}
}

// WriteSaveFile writes f to path with transactional semantics and a
// timestamped backup of the previous file (if present).
func WriteSaveFile(path string, f SaveFile) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("save path is required")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.SavedAt.IsZero() {
		f.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal save: %w", err)
	}
	data = append(data, '\n')
	if err := ValidateSave(data); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure save dir: %w", err)
	}
	bdir := filepath.Join(dir, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}

	base := filepath.Base(path)
	if _, statErr := os.Stat(path); statErr == nil {
		stamp := time.Now().Format("20060102-150405")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", base, stamp))
		if cerr := copyFile(path, bpath); cerr != nil {
			return fmt.Errorf("backup current save: %w", cerr)
		}
	}

	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", base, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp save: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace save: %w", rerr)
	}
	return nil
}

// ReadSaveFile loads and validates a save file. If it cannot be read or is
// invalid, the latest backup is tried.
func ReadSaveFile(path string) (SaveFile, error) {
	f, err := readSave(path)
	if err == nil {
		return f, nil
	}
	b, berr := latestBackup(path)
	if berr != nil {
		return SaveFile{}, fmt.Errorf("%w; backup attempt: %v", err, berr)
	}
	f, ferr := readSave(b)
	if ferr != nil {
		return SaveFile{}, fmt.Errorf("%w; backup attempt: %v", err, ferr)
	}
	return f, nil
}

func readSave(path string) (SaveFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SaveFile{}, fmt.Errorf("read save: %w", err)
	}
	if err := ValidateSave(data); err != nil {
		return SaveFile{}, err
	}
	var f SaveFile
	if err := json.Unmarshal(data, &f); err != nil {
		return SaveFile{}, fmt.Errorf("%w: %v", ErrInvalidSaveFile, err)
	}
	return f, nil
}

// ValidateSave checks a save document against the embedded schema.
func ValidateSave(data []byte) error {
	saveSchemaOnce.Do(func() {
		saveSchema, saveSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(saveSchemaJSON))
	})
	if saveSchemaErr != nil {
		return fmt.Errorf("load save schema: %w", saveSchemaErr)
	}
	res, err := saveSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSaveFile, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidSaveFile, strings.Join(msgs, "; "))
	}
	return nil
}

// latestBackup returns the newest timestamped backup of path.
func latestBackup(path string) (string, error) {
	bdir := filepath.Join(filepath.Dir(path), BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return "", fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(path) + "."
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	if len(candidates) == 0 {
		return "", errors.New("no backups found")
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	return candidates[len(candidates)-1], nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
