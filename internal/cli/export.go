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
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"gonovel/internal/export"
	"gonovel/internal/storage"
)

func (a *app) exportCmd() *cobra.Command {
	var outPath, pageSize string
	var comments bool
	var fontSize float64
	cmd := &cobra.Command{
		Use:   "export <chapter>",
		Short: "Write a chapter proof PDF",
		Long: `Write a chapter proof PDF: a numbered reading script with speakers,
dialogue, pacing marks, actions, choice blocks and diagnostics.

Examples:
  gonovel export chapter0_start
  gonovel export chapter0_start -o proofs/ch0.pdf --page-size Letter`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := storage.ChapterDir{Root: a.cfg.General.StoryDir}
			name, lines, err := readLines(dir, args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = filepath.Join(a.cfg.Saves.ExportDir, name+".pdf")
			}
			opt := export.ProofOptions{PageSize: pageSize, IncludeComments: comments, FontSize: fontSize}
			if err := export.WriteChapterProof(name, lines, outPath, opt); err != nil {
				a.log.Error("export failed", slog.String("chapter", name), slog.Any("err", err))
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", outPath)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&outPath, "out", "o", "", "output PDF path (default <export_dir>/<chapter>.pdf)")
	f.StringVar(&pageSize, "page-size", "A4", "A4 or Letter")
	f.BoolVar(&comments, "comments", false, "include // comment lines")
	f.Float64Var(&fontSize, "font-size", 11, "body font size in points")
	return cmd
}
