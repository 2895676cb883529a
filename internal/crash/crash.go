/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a crash report plus an autosave of the running playthrough.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"gonovel/internal/engine"
	applog "gonovel/internal/log"
	"gonovel/internal/storage"
	"gonovel/internal/version"
)

// AutosaveFile is the save file written next to the crash report.
const AutosaveFile = "crash.json"

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Target describes what to preserve on a crash.
// Dir receives the report and the autosave; the OS temp dir is used when empty.
// Snapshot may be nil when nothing is playing. Upload, when set, receives
// the report text.
type Target struct {
	Dir      string
	Chapter  string
	Snapshot func() engine.Snapshot
	Upload   func(report []byte)
}

// Recover captures a panic, logs it with a stacktrace, writes a crash report
// and tries to autosave the playthrough.
//
// Usage: defer crash.Recover(target)
func Recover(t *Target) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, report, _ := writeReport(t, r, stack)
		if t != nil && t.Upload != nil && len(report) > 0 {
			t.Upload(report)
		}
		if path, err := autosave(t); err != nil {
			l.Error("crash autosave failed", slog.Any("err", err))
		} else if path != "" {
			l.Info("crash autosave written", slog.String("path", path))
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

func reportDir(t *Target) string {
	if t != nil && t.Dir != "" {
		_ = os.MkdirAll(t.Dir, 0o755)
		return t.Dir
	}
	return os.TempDir()
}

// autosave writes the snapshot, if any. A panic inside the snapshot callback
// is swallowed so the report still gets out.
func autosave(t *Target) (path string, err error) {
	if t == nil || t.Snapshot == nil {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot panicked: %v", r)
		}
	}()
	snap := t.Snapshot()
	if snap.ChapterName == "" {
		return "", nil
	}
	path = filepath.Join(reportDir(t), AutosaveFile)
	return path, storage.WriteSaveFile(path, storage.NewSaveFile("crash", snap))
}

func writeReport(t *Target, panicVal any, stack []byte) (string, []byte, error) {
	dir := reportDir(t)
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "gonovel Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if t != nil && t.Chapter != "" {
		_, _ = fmt.Fprintf(&buf, "Chapter: %s\n", t.Chapter)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, buf.Bytes(), err
	}
	_ = f.Sync()
	return path, buf.Bytes(), nil
}
