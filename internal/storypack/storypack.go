/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storypack bundles a story (its chapter scripts and assets) into a
// single .zip archive and installs such archives into a story directory.
package storypack

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	applog "gonovel/internal/log"
	"gonovel/internal/storage"
	"gonovel/internal/version"
)

// ManifestName is the human-readable file at the archive root.
const ManifestName = "storypack.manifest.txt"

// Archive prefixes.
const (
	chaptersPrefix = "chapters/"
	assetsPrefix   = "assets/"
)

// Export writes every chapter of storyDir and, when assetsDir is set, every
// file below it into destZip. It returns the number of files added.
func Export(storyDir, assetsDir, destZip string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("storypack"), "export").With(slog.String("story", storyDir))
	if strings.TrimSpace(storyDir) == "" {
		return 0, errors.New("story directory is required")
	}
	if strings.TrimSpace(destZip) == "" {
		return 0, errors.New("destination is required")
	}
	chapters, err := storage.ChapterDir{Root: storyDir}.List()
	if err != nil {
		return 0, fmt.Errorf("list chapters: %w", err)
	}
	if len(chapters) == 0 {
		return 0, fmt.Errorf("no chapters in %s", storyDir)
	}

	if err := os.MkdirAll(filepath.Dir(destZip), 0o755); err != nil {
		return 0, fmt.Errorf("ensure zip dir: %w", err)
	}
	_ = os.Remove(destZip)
	zf, err := os.Create(destZip)
	if err != nil {
		return 0, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	manifest := fmt.Sprintf("GoNovel Story Pack\nCreated: %s\nVersion: %s\nChapters: %d\n\n%s\n",
		time.Now().Format(time.RFC3339), version.String(), len(chapters), strings.Join(chapters, "\n"))
	w, err := zw.Create(ManifestName)
	if err != nil {
		return 0, fmt.Errorf("add manifest: %w", err)
	}
	if _, err := w.Write([]byte(manifest)); err != nil {
		return 0, fmt.Errorf("write manifest: %w", err)
	}

	added := 0
	for _, name := range chapters {
		src := filepath.Join(storyDir, name+storage.ChapterExt)
		if err := addFile(zw, chaptersPrefix+name+storage.ChapterExt, src); err != nil {
			return added, fmt.Errorf("add chapter %s: %w", name, err)
		}
		added++
	}

	if assetsDir != "" {
		if _, err := os.Stat(assetsDir); err == nil {
			err = filepath.WalkDir(assetsDir, func(p string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				rel, err := filepath.Rel(assetsDir, p)
				if err != nil {
					return err
				}
				if err := addFile(zw, assetsPrefix+filepath.ToSlash(rel), p); err != nil {
					return err
				}
				added++
				return nil
			})
			if err != nil {
				l.Error("zip build failed", slog.Any("err", err))
				return added, fmt.Errorf("build zip: %w", err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("finish zip: %w", err)
	}
	l.Info("story pack exported", slog.Int("files", added), slog.String("zip", destZip))
	return added, nil
}

func addFile(zw *zip.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// Install extracts packZip: chapters/ entries land in storyDir, assets/
// entries in assetsDir. Existing files are never overwritten, entries that
// would escape their directory are ignored, and assets are skipped when
// assetsDir is empty. It returns the number of files written.
func Install(packZip, storyDir, assetsDir string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("storypack"), "install").With(slog.String("story", storyDir))
	if strings.TrimSpace(storyDir) == "" {
		return 0, errors.New("story directory is required")
	}
	if strings.TrimSpace(packZip) == "" {
		return 0, errors.New("pack path is required")
	}
	r, err := zip.OpenReader(packZip)
	if err != nil {
		return 0, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()

	installed := 0
	for _, f := range r.File {
		if f.Name == ManifestName || f.FileInfo().IsDir() {
			continue
		}
		root, rel := route(f.Name, storyDir, assetsDir)
		if root == "" {
			l.Warn("skip entry", slog.String("name", f.Name))
			continue
		}
		target := filepath.Join(root, filepath.FromSlash(rel))
		if _, err := os.Stat(target); err == nil {
			l.Warn("skip existing file", slog.String("path", target))
			continue
		}
		if err := extract(f, target); err != nil {
			return installed, err
		}
		installed++
	}
	l.Info("story pack installed", slog.Int("files", installed))
	return installed, nil
}

// route maps an archive entry to its destination root and a local relative path.
func route(name, storyDir, assetsDir string) (root, rel string) {
	switch {
	case strings.HasPrefix(name, chaptersPrefix):
		root, rel = storyDir, strings.TrimPrefix(name, chaptersPrefix)
		if path.Ext(rel) != storage.ChapterExt || strings.Contains(rel, "/") {
			return "", ""
		}
	case strings.HasPrefix(name, assetsPrefix) && assetsDir != "":
		root, rel = assetsDir, strings.TrimPrefix(name, assetsPrefix)
	default:
		return "", ""
	}
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", ""
	}
	return root, rel
}

func extract(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
