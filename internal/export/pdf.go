/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders chapter scripts into review documents.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"gonovel/internal/script"
)

// Color is an RGB triple.
type Color struct{ R, G, B int }

// ProofOptions controls the chapter proof layout.
// Units are points (pt).
type ProofOptions struct {
	PageSize        string // "A4" or "Letter"; A4 when empty
	IncludeComments bool
	FontSize        float64
	ActionColor     Color
	ErrorColor      Color
}

func (o ProofOptions) withDefaults() ProofOptions {
	if o.PageSize == "" {
		o.PageSize = "A4"
	}
	if o.FontSize <= 0 {
		o.FontSize = 11
	}
	if o.ActionColor == (Color{}) {
		o.ActionColor = Color{R: 90, G: 90, B: 140}
	}
	if o.ErrorColor == (Color{}) {
		o.ErrorColor = Color{R: 200, G: 0, B: 0}
	}
	return o
}

// WriteChapterProof writes a proof PDF to outPath, creating parent directories.
func WriteChapterProof(name string, lines []string, outPath string, opt ProofOptions) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := ChapterProof(name, lines, f, opt); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// ChapterProof renders a chapter as a numbered reading script: speakers,
// dialogue with pacing marks, actions, choice blocks, and any diagnostics.
func ChapterProof(name string, lines []string, w io.Writer, opt ProofOptions) error {
	opt = opt.withDefaults()
	entries, diags := script.ParseScript(lines)
	byIndex := make(map[int]script.Entry, len(entries))
	for _, e := range entries {
		byIndex[e.Index] = e
	}
	diagsAt := map[int][]script.Error{}
	for _, d := range diags {
		diagsAt[d.Line-1] = append(diagsAt[d.Line-1], d)
	}

	pdf := gofpdf.New("P", "pt", opt.PageSize, "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(name+" - chapter proof"), false)
	pdf.SetAuthor("gonovel", false)
	pdf.SetMargins(48, 48, 48)
	pdf.SetAutoPageBreak(true, 48)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-36)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("%s  -  page %d/{nb}", name, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 24, tr(name), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	const gutter = 36.0
	bodyW := pageW - left - right - gutter
	lh := opt.FontSize * 1.35

	row := func(idx int, style string, col Color, text string) {
		pdf.SetFont("Courier", "", opt.FontSize-2)
		pdf.SetTextColor(150, 150, 150)
		num := ""
		if idx >= 0 {
			num = fmt.Sprintf("%d", idx+1)
		}
		pdf.CellFormat(gutter, lh, num, "", 0, "R", false, 0, "")
		pdf.SetFont("Helvetica", style, opt.FontSize)
		pdf.SetTextColor(col.R, col.G, col.B)
		pdf.MultiCell(bodyW, lh, tr(text), "", "L", false)
	}
	black := Color{}
	actions := func(acts []script.Action) {
		for _, a := range acts {
			row(-1, "I", opt.ActionColor, "-> "+a.String())
		}
	}
	flagged := func(idx int) {
		for _, d := range diagsAt[idx] {
			row(-1, "B", opt.ErrorColor, fmt.Sprintf("! %s: %s", d.Kind, d.Message))
		}
	}

	for i := 0; i < len(lines); i++ {
		e, ok := byIndex[i]
		if !ok {
			if opt.IncludeComments && script.Classify(lines[i]) == script.KindComment {
				row(i, "I", Color{R: 130, G: 130, B: 130}, strings.TrimSpace(lines[i]))
			}
			continue
		}
		switch e.Kind {
		case script.KindChoice:
			row(i, "B", black, "CHOICE: "+e.Choice.Title)
			for n, c := range e.Choice.Choices {
				row(-1, "", black, fmt.Sprintf("  %d. %s", n+1, c.Label))
				actions(script.ParseLine(c.Action).Actions)
			}
			flagged(i)
			i = e.Choice.End
		case script.KindInput:
			row(i, "B", black, "INPUT: "+e.Input.Title)
			actions(e.Input.Actions)
			flagged(i)
		default:
			text := proofText(*e.Line)
			if e.Line.Quoted {
				speaker := e.Line.Speaker
				if speaker == "" {
					speaker = "(same)"
				}
				row(i, "B", black, strings.ToUpper(speaker))
				row(-1, "", black, text)
			} else {
				row(i, "", black, text)
			}
			actions(e.Line.Actions)
			flagged(i)
		}
		pdf.Ln(lh / 3)
	}

	sum := Summarize(entries, diags)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 20, "Summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", opt.FontSize)
	stat := func(label string, v int) {
		pdf.CellFormat(160, lh, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, lh, fmt.Sprintf("%d", v), "", 1, "L", false, 0, "")
	}
	stat("Entries", sum.Lines)
	stat("Dialogue lines", sum.Dialogue)
	stat("Choice blocks", sum.Choices)
	stat("Input prompts", sum.Inputs)
	stat("Diagnostics", sum.Diagnostics)
	pdf.Ln(lh)
	for _, k := range SortedKeys(sum.Speakers) {
		label := k
		if label == "" {
			label = "(cached speaker)"
		}
		stat("Speaker "+label, sum.Speakers[k])
	}
	for _, k := range SortedKeys(sum.Commands) {
		stat("Command "+k, sum.Commands[k])
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// proofText flattens segments, marking where the player or a timer paces the line.
func proofText(l script.Line) string {
	var b strings.Builder
	for i, seg := range l.Segments {
		if seg.Silent {
			continue
		}
		if i > 0 {
			switch {
			case seg.Trigger.Kind == script.AutoDelay:
				fmt.Fprintf(&b, " [%gs] ", seg.Trigger.Delay.Seconds())
			case seg.Append:
				b.WriteString(" [+] ")
			default:
				b.WriteString(" [/] ")
			}
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}
