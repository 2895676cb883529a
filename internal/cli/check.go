/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"gonovel/internal/config"
	"gonovel/internal/export"
	applog "gonovel/internal/log"
	"gonovel/internal/script"
	"gonovel/internal/session"
	"gonovel/internal/storage"
)

var (
	fileStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#BD93F9")).Bold(true)
	kindStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD"))
)

// finding is one problem reported by check.
type finding struct {
	Chapter string
	Line    int
	Column  int
	Kind    string
	Message string
}

func (a *app) checkCmd() *cobra.Command {
	var all, stats bool
	cmd := &cobra.Command{
		Use:   "check [chapter...]",
		Short: "Parse chapters and report diagnostics",
		Long: `Parse chapters and report malformed lines, bad pacing markers and
calls to commands that are not registered. Exits with status 1 when anything
is found.

Examples:
  gonovel check chapter0_start
  gonovel check --all
  gonovel check --stats chapter1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := storage.ChapterDir{Root: a.cfg.General.StoryDir}
			names := append([]string(nil), args...)
			if all {
				listed, err := dir.List()
				if err != nil {
					return err
				}
				names = append(names, listed...)
			}
			if len(names) == 0 {
				return fmt.Errorf("name a chapter or pass --all")
			}
			known, err := knownCommands(a.cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			total := 0
			for _, arg := range names {
				name, lines, err := readLines(dir, arg)
				if err != nil {
					return err
				}
				fs := checkChapter(name, lines, known)
				printFindings(out, name, fs)
				if stats {
					entries, diags := script.ParseScript(lines)
					printSummary(out, export.Summarize(entries, diags))
				}
				total += len(fs)
			}
			if total > 0 {
				_, _ = fmt.Fprintf(out, "%d problem(s)\n", total)
				return errDiagnostics
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "check every chapter in the story directory")
	cmd.Flags().BoolVar(&stats, "stats", false, "also print line, speaker and command counts")
	return cmd
}

// knownCommands reports whether a name is handled by a headless session
// built from cfg: the stock commands, host hooks and engine builtins.
func knownCommands(cfg config.AppConfig) (func(string) bool, error) {
	cfg.Audio.Enabled = false
	s, err := session.New(cfg, session.Options{})
	if err != nil {
		return nil, err
	}
	s.Close()
	return s.Registry.Has, nil
}

// checkChapter parses lines and adds an unknown_command finding for every
// call the registry would not handle.
func checkChapter(name string, lines []string, known func(string) bool) []finding {
	entries, errs := script.ParseScript(lines)
	var out []finding
	for _, e := range errs {
		out = append(out, finding{Chapter: name, Line: e.Line, Column: e.Column, Kind: e.Kind, Message: e.Message})
	}
	unknown := func(idx int, acts []script.Action) {
		for _, act := range acts {
			if !known(act.Name) {
				out = append(out, finding{
					Chapter: name, Line: idx + 1,
					Kind: applog.KindUnknownCommand, Message: fmt.Sprintf("unknown command %q", act.Name),
				})
			}
		}
	}
	for _, e := range entries {
		switch e.Kind {
		case script.KindChoice:
			for _, c := range e.Choice.Choices {
				unknown(e.Index, script.ParseLine(c.Action).Actions)
			}
		case script.KindInput:
			unknown(e.Index, e.Input.Actions)
		default:
			if e.Line != nil {
				unknown(e.Index, e.Line.Actions)
			}
		}
	}
	return out
}

func printFindings(w io.Writer, name string, fs []finding) {
	if len(fs) == 0 {
		_, _ = fmt.Fprintf(w, "%s %s\n", fileStyle.Render(name+storage.ChapterExt), okStyle.Render("ok"))
		return
	}
	for _, f := range fs {
		_, _ = fmt.Fprintf(w, "%s:%d:%d: %s %s\n",
			fileStyle.Render(f.Chapter+storage.ChapterExt), f.Line, f.Column,
			kindStyle.Render(f.Kind), strings.TrimSpace(f.Message))
	}
}

func printSummary(w io.Writer, s export.Summary) {
	_, _ = fmt.Fprintf(w, "  %d lines, %d dialogue, %d choices, %d inputs\n", s.Lines, s.Dialogue, s.Choices, s.Inputs)
	counts := func(label string, m map[string]int) {
		if len(m) == 0 {
			return
		}
		parts := make([]string, 0, len(m))
		for _, k := range export.SortedKeys(m) {
			name := k
			if name == "" {
				name = "(narrator)"
			}
			parts = append(parts, fmt.Sprintf("%s %d", name, m[k]))
		}
		_, _ = fmt.Fprintf(w, "  %s %s\n", kindStyle.Render(label), strings.Join(parts, ", "))
	}
	counts("speakers:", s.Speakers)
	counts("commands:", s.Commands)
}

// readLines is used by commands that also accept a plain file path.
func readLines(dir storage.ChapterDir, arg string) (string, []string, error) {
	if strings.HasSuffix(arg, storage.ChapterExt) {
		if data, err := os.ReadFile(arg); err == nil {
			return chapterName(filepath.Base(arg)), script.SplitLines(string(data)), nil
		}
	}
	name := chapterName(arg)
	lines, err := dir.Chapter(name)
	return name, lines, err
}
