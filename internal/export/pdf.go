/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"scriptdialogue/internal/dataset"
	"scriptdialogue/internal/version"
)

// PDFOptions controls the report layout. Units are points (pt).
// Built-in Helvetica keeps text vector without font embedding; UTF-8 text is mapped
// to cp1252, so characters outside it print as '?'.
type PDFOptions struct {
	// IncludeDialogue appends the cleaned dialogue listing after the tables.
	IncludeDialogue bool
	// MaxDialogue caps the listing; 0 lists every record.
	MaxDialogue int
}

const (
	pageW    = 595.0 // A4 in pt
	pageH    = 842.0
	margin   = 40.0
	rowH     = 16.0
	headFill = 230
)

// WritePDFReport renders a run summary with per-film and per-character statistics.
func WritePDFReport(path string, run *dataset.Run, opt PDFOptions) error {
	if run == nil {
		return errors.New("run is nil")
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetTitle("Dialogue report "+run.ID, true)
	pdf.SetAuthor(version.String(), true)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 24, "Dialogue report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 14, "Run "+run.ID, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 14, fmt.Sprintf("Started %s, took %s", run.StartedAt.Format(time.RFC3339),
		run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)), "", 1, "L", false, 0, "")
	pdf.Ln(10)

	section(pdf, "Films")
	table(pdf, tr, []string{"Film", "Lines", "Records", "Dropped"}, []float64{235, 80, 100, 100}, filmRows(run))

	if len(run.Diagnostics) > 0 {
		section(pdf, "Diagnostics")
		pdf.SetFont("Helvetica", "", 10)
		for _, d := range run.Diagnostics {
			pdf.MultiCell(0, 14, tr(fmt.Sprintf("[%s] %s: %s", d.Severity, d.Film, d.Message)), "", "L", false)
		}
		pdf.Ln(6)
	}

	section(pdf, "Characters (words per dialogue)")
	table(pdf, tr, []string{"Film", "Character", "Count", "Mean", "Median", "Std"}, []float64{135, 120, 60, 70, 65, 65}, characterRows(run))

	if opt.IncludeDialogue && len(run.Records) > 0 {
		pdf.AddPage()
		section(pdf, "Dialogue")
		n := len(run.Records)
		if opt.MaxDialogue > 0 && opt.MaxDialogue < n {
			n = opt.MaxDialogue
		}
		for _, r := range run.Records[:n] {
			pdf.SetFont("Helvetica", "B", 9)
			pdf.CellFormat(0, 12, tr(r.Character+" - "+r.Film), "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 13, tr(r.CleanedDialogue), "", "L", false)
			pdf.Ln(4)
		}
		if n < len(run.Records) {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 12, fmt.Sprintf("%d more not shown", len(run.Records)-n), "", 1, "L", false, 0, "")
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := writeFileAtomic(path, func(w io.Writer) error { return pdf.Output(w) }); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 20, title, "", 1, "L", false, 0, "")
}

func table(pdf *gofpdf.Fpdf, tr func(string) string, head []string, widths []float64, rows [][]string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(headFill, headFill, headFill)
	for i, h := range head {
		pdf.CellFormat(widths[i], rowH, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		for i, cell := range row {
			align := "L"
			if i > 0 && !isTextColumn(head[i]) {
				align = "R"
			}
			pdf.CellFormat(widths[i], rowH, tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(10)
}

func isTextColumn(h string) bool { return h == "Film" || h == "Character" }

func filmRows(run *dataset.Run) [][]string {
	rows := make([][]string, 0, len(run.Films))
	for _, f := range run.Films {
		rows = append(rows, []string{f.Film, fmt.Sprint(f.Lines), fmt.Sprint(f.Records), fmt.Sprint(f.Dropped)})
	}
	return rows
}

func characterRows(run *dataset.Run) [][]string {
	stats := dataset.CharacterStats(run.Records)
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{s.Film, s.Character, fmt.Sprint(s.Count),
			fmt.Sprintf("%.2f", s.Mean), fmt.Sprintf("%.1f", s.Median), fmt.Sprintf("%.2f", s.Std)})
	}
	return rows
}
