/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"hltaskit/internal/hltas"
	"hltaskit/internal/version"
)

// PDFOptions controls the script report.
// Units are millimetres. Built-in Helvetica keeps the file small; text is
// translated to cp1252, so characters outside it print as '?'.
type PDFOptions struct {
	Title        string // defaults to "hltas script"
	PageSize     string // gofpdf size name, default "A4"
	Portrait     bool   // landscape unless set
	SkipComments bool
}

type pdfColumn struct {
	head  string
	width float64
	align string
}

var frameColumns = []pdfColumn{
	{"#", 10, "R"},
	{"kind", 24, "L"},
	{"strafe", 34, "L"},
	{"autofuncs", 34, "L"},
	{"move", 16, "C"},
	{"act", 16, "C"},
	{"frametime", 22, "R"},
	{"target", 26, "R"},
	{"pitch", 14, "R"},
	{"repeats", 16, "R"},
	{"commands", 55, "L"},
}

const rowH = 5.5

// WritePDF renders the report for doc to w.
func WritePDF(doc *hltas.Document, w io.Writer, opt PDFOptions) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	title := opt.Title
	if title == "" {
		title = "hltas script"
	}
	size := opt.PageSize
	if size == "" {
		size = "A4"
	}
	orientation := "L"
	if opt.Portrait {
		orientation = "P"
	}

	pdf := gofpdf.New(orientation, "mm", size, "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetCreator("hltaskit "+version.String(), true)
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 14)
	pdf.AliasNbPages("")

	pageW, _ := pdf.GetPageSize()
	usable := pageW - 20
	cols := scaleColumns(usable)

	inTable := false
	pdf.SetHeaderFunc(func() {
		if inTable {
			tableHeader(pdf, cols)
		}
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, fmt.Sprintf("%s  page %d/{nb}", tr(title), pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")

	frames := doc.Frames()
	var total uint64
	for _, f := range frames {
		if b, ok := f.Bulk(); ok {
			total += uint64(b.Repeats())
		}
	}
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("version %d, %d frames, %d total repeats", doc.Version(), len(frames), total), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	props := doc.Properties()
	if len(props) > 0 {
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(50, rowH, "property", "1", 0, "L", true, 0, "")
		pdf.CellFormat(usable-50, rowH, "value", "1", 1, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, k := range keys {
			pdf.CellFormat(50, rowH, fit(pdf, tr(k), 50), "1", 0, "L", false, 0, "")
			pdf.CellFormat(usable-50, rowH, fit(pdf, tr(props[k]), usable-50), "1", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	inTable = true
	tableHeader(pdf, cols)
	for i, f := range frames {
		if !opt.SkipComments {
			for _, c := range commentLines(f) {
				pdf.SetFont("Helvetica", "I", 8)
				pdf.SetTextColor(90, 110, 90)
				pdf.CellFormat(usable, rowH-1, fit(pdf, tr("//"+c), usable), "LR", 1, "L", false, 0, "")
			}
		}
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFillColor(245, 245, 250)
		fill := i%2 == 1
		for j, cell := range frameRow(i, f) {
			c := cols[j]
			ln := 0
			w := c.width
			if j == len(cols)-1 || (cell.span && j == 2) {
				ln = 1
				if cell.span {
					w = 0
					for _, rest := range cols[j:] {
						w += rest.width
					}
				}
			}
			pdf.CellFormat(w, rowH, fit(pdf, tr(cell.text), w), "1", ln, c.align, fill, 0, "")
			if ln == 1 {
				break
			}
		}
	}
	inTable = false

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

// ExportPDF writes the report for doc to outPath.
func ExportPDF(doc *hltas.Document, outPath string, opt PDFOptions) error {
	if err := ensureDir(outPath); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := WritePDF(doc, f, opt); err != nil {
		_ = f.Close()
		return fmt.Errorf("write pdf: %w", err)
	}
	return f.Close()
}

type pdfCell struct {
	text string
	span bool // fills the rest of the row
}

// frameRow returns the cells of one table row. Directives span from the
// strafe column to the end of the row.
func frameRow(i int, f hltas.Frame) []pdfCell {
	row := []pdfCell{{text: strconv.Itoa(i)}, {text: f.Kind().String()}}
	b, ok := f.Bulk()
	if !ok {
		return append(row, pdfCell{text: f.String(), span: true})
	}
	fields := splitBulkLine(f.String())
	return append(row,
		pdfCell{text: strafeLabel(b.Strafe())},
		pdfCell{text: autofuncLabel(b)},
		pdfCell{text: fields.Movement},
		pdfCell{text: fields.Actions},
		pdfCell{text: b.Frametime},
		pdfCell{text: fields.Target},
		pdfCell{text: fields.Pitch},
		pdfCell{text: strconv.FormatUint(uint64(b.Repeats()), 10)},
		pdfCell{text: b.Commands},
	)
}

func tableHeader(pdf *gofpdf.Fpdf, cols []pdfColumn) {
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFillColor(210, 215, 230)
	for i, c := range cols {
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		pdf.CellFormat(c.width, rowH, c.head, "1", ln, "C", true, 0, "")
	}
}

// scaleColumns stretches or shrinks the column widths to fill usable.
func scaleColumns(usable float64) []pdfColumn {
	var sum float64
	for _, c := range frameColumns {
		sum += c.width
	}
	out := make([]pdfColumn, len(frameColumns))
	for i, c := range frameColumns {
		c.width = c.width * usable / sum
		out[i] = c
	}
	return out
}

// fit truncates s with "..." so it fits in a cell of width w.
func fit(pdf *gofpdf.Fpdf, s string, w float64) string {
	limit := w - 2*pdf.GetCellMargin()
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > limit {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
