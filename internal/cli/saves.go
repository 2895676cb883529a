/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"gonovel/internal/storage"
)

func (a *app) openStore(ctx context.Context) (*storage.SaveStore, error) {
	dsn, err := a.cfg.SaveDSN()
	if err != nil {
		return nil, err
	}
	return storage.OpenStore(ctx, a.cfg.Saves.Driver, dsn)
}

// withStore opens the save store for the duration of fn.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, st *storage.SaveStore) error) error {
	ctx := cmd.Context()
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(ctx, st)
}

func (a *app) savesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saves",
		Short: "Manage save slots",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List save slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(ctx context.Context, st *storage.SaveStore) error {
				recs, err := st.List(ctx)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "No saves found")
					return err
				}
				return outputSaves(cmd, recs)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <slot>",
		Short: "Delete a save slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, st *storage.SaveStore) error {
				if err := st.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %q\n", args[0])
				return err
			})
		},
	}

	exp := &cobra.Command{
		Use:   "export <slot> <file>",
		Short: "Export a save slot to a portable JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, st *storage.SaveStore) error {
				rec, err := st.Load(ctx, args[0])
				if err != nil {
					return err
				}
				f := storage.NewSaveFile(rec.Slot, rec.State)
				f.ID = rec.ID
				f.SavedAt = rec.SavedAt
				if err := storage.WriteSaveFile(args[1], f); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %q to %s\n", args[0], args[1])
				return err
			})
		},
	}

	var slot string
	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a save file into a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := storage.ReadSaveFile(args[0])
			if err != nil {
				return err
			}
			target := slot
			if target == "" {
				target = f.Slot
			}
			if strings.TrimSpace(target) == "" {
				return fmt.Errorf("save file has no slot; pass --slot")
			}
			return a.withStore(cmd, func(ctx context.Context, st *storage.SaveStore) error {
				if _, err := st.Save(ctx, target, f.State); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %s into %q\n", args[0], target)
				return err
			})
		},
	}
	imp.Flags().StringVar(&slot, "slot", "", "target slot (default: the slot stored in the file)")

	cmd.AddCommand(list, del, exp, imp)
	return cmd
}

func outputSaves(cmd *cobra.Command, recs []storage.Record) error {
	var (
		headerColor = lipgloss.Color("#F780FF")
		slotColor   = lipgloss.Color("#BD93F9")
		numberColor = lipgloss.Color("#FF79C6")
		dateColor   = lipgloss.Color("#E9E9F4")
		borderColor = lipgloss.Color("#6272A4")
	)
	const (
		slotWidth    = 16
		chapterWidth = 24
		lineWidth    = 8
		dateWidth    = 22
	)
	headerStyle := lipgloss.NewStyle().Foreground(headerColor).Bold(true).Padding(0, 1)
	borderStyle := lipgloss.NewStyle().Foreground(borderColor)
	cell := func(c lipgloss.Color, w int) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c).Width(w).Padding(0, 1)
	}
	sep := borderStyle.Render("│")

	out := cmd.OutOrStdout()
	headers := []string{
		headerStyle.Width(slotWidth).Render("SLOT"),
		headerStyle.Width(chapterWidth).Render("CHAPTER"),
		headerStyle.Width(lineWidth).Render("LINE"),
		headerStyle.Width(dateWidth).Render("SAVED"),
	}
	if _, err := fmt.Fprintln(out, strings.Join(headers, sep)); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, borderStyle.Render(strings.Repeat("─", slotWidth+chapterWidth+lineWidth+dateWidth+3)))
	for _, r := range recs {
		row := []string{
			cell(slotColor, slotWidth).Render(r.Slot),
			cell(dateColor, chapterWidth).Render(r.State.ChapterName),
			cell(numberColor, lineWidth).Render(strconv.Itoa(r.State.ChapterProgress + 1)),
			cell(dateColor, dateWidth).Render(r.SavedAt.Local().Format("2006-01-02 15:04:05")),
		}
		if _, err := fmt.Fprintln(out, strings.Join(row, sep)); err != nil {
			return err
		}
	}
	return nil
}
