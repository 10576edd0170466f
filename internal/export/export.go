/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes a script as a printable script sheet or as plain text.
// Panels are listed in order with scene, characters and dialogue; images are
// referenced, not drawn.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"comicstudio/internal/characters"
	"comicstudio/internal/domain"
	"comicstudio/internal/script"
	"comicstudio/internal/storage"

	"github.com/jung-kurt/gofpdf"
)

// Format names an export format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "txt"
)

// ParseFormat accepts "pdf", "txt" or "text", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return FormatPDF, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown export format %q (want pdf or txt)", s)
}

// PDFOptions controls PDF export behavior.
// Units are points (pt).
type PDFOptions struct {
	PageSize      string // "A4" (default) or "Letter"
	IncludeImages bool   // print the image reference of each panel
	Author        string
}

// Export writes s in format f. A relative outPath is placed under the project's exports folder.
// It returns the written path.
func Export(ph *storage.ProjectHandle, coll *characters.Collection, f Format, outPath string, opt PDFOptions) (string, error) {
	if ph == nil {
		return "", fmt.Errorf("project handle is nil")
	}
	if ph.Manifest.Script == nil {
		return "", domain.ErrNoScript
	}
	if outPath == "" {
		outPath = "script." + string(f)
	}
	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(ph.Root, storage.ExportsDirName, outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure out dir: %w", err)
	}
	file, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	switch f {
	case FormatPDF:
		err = WritePDF(file, ph.Manifest.Script, coll, opt)
	case FormatText:
		_, err = io.WriteString(file, script.Format(ph.Manifest.Script))
	default:
		err = fmt.Errorf("unknown export format %q", f)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(outPath)
		return "", err
	}
	return outPath, nil
}

// WritePDF renders a script sheet to w.
// Dialogue uses each panel's dialogue size as font size.
func WritePDF(w io.Writer, s *domain.Script, coll *characters.Collection, opt PDFOptions) error {
	if s == nil {
		return domain.ErrNoScript
	}
	size := opt.PageSize
	if size == "" {
		size = "A4"
	}
	pdf := gofpdf.New("P", "pt", size, "")
	// core fonts are cp1252; translate so accented dialogue survives
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(s.Theme, true)
	author := opt.Author
	if author == "" {
		author = "ComicStudio"
	}
	pdf.SetAuthor(author, true)
	pdf.SetMargins(48, 48, 48)
	pdf.SetAutoPageBreak(true, 48)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-36)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s - page %d", tr(s.Theme), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.MultiCell(0, 24, tr(s.Theme), "", "L", false)
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 14, tr("Tone: "+s.Tone), "", "L", false)
	pdf.MultiCell(0, 14, tr("Key elements: "+s.KeyElements), "", "L", false)
	pdf.MultiCell(0, 14, fmt.Sprintf("%d panels", s.Len()), "", "L", false)
	pdf.Ln(12)

	for i, p := range s.Panels {
		pdf.SetDrawColor(160, 160, 160)
		pdf.SetLineWidth(0.5)
		x, y := pdf.GetXY()
		pw, _ := pdf.GetPageSize()
		pdf.Line(x, y, pw-48, y)
		pdf.Ln(6)

		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 16, fmt.Sprintf("Panel %d", i+1), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 14, tr(p.Scene), "", "L", false)
		if len(p.Characters) > 0 {
			pdf.SetFont("Helvetica", "I", 10)
			pdf.MultiCell(0, 13, tr("Characters: "+names(p.Characters, coll)), "", "L", false)
		}
		if p.Dialogue != "" {
			fs := float64(p.EffectiveDialogueSize())
			pdf.SetFont("Helvetica", "", fs)
			pdf.MultiCell(0, fs*1.25, tr(p.Dialogue), "", "L", false)
		}
		if opt.IncludeImages && p.HasImage() {
			pdf.SetFont("Courier", "", 8)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 10, tr(p.GeneratedImage), "", "L", false)
			pdf.SetTextColor(0, 0, 0)
		}
		pdf.Ln(10)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func names(ids []string, coll *characters.Collection) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id
		if c, ok := coll.Lookup(id); ok && c.Name != "" {
			out[i] = c.Name
		}
	}
	return strings.Join(out, ", ")
}
