package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pdfUsableWidth = 277.0 // A4 landscape minus margins

// PDF renders a landscape A4 table.
type PDF struct{}

func (PDF) ContentType() string { return "application/pdf" }
func (PDF) Extension() string   { return "pdf" }

// Render lays columns out proportionally to their width weights.
func (PDF) Render(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	widths := columnWidths(t.Columns)

	doc := gofpdf.New("L", "mm", "A4", "")
	doc.SetMargins(10, 12, 10)
	doc.SetAutoPageBreak(true, 12)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	if t.Title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, tr(t.Title), "", 1, "L", false, 0, "")
		doc.Ln(2)
	}

	header := func() {
		doc.SetFont("Arial", "B", 9)
		doc.SetFillColor(230, 230, 230)
		for i, label := range t.labels() {
			doc.CellFormat(widths[i], 7, tr(label), "1", 0, "C", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont("Arial", "", 8)
	}
	header()
	_, pageHeight := doc.GetPageSize()
	_, _, _, bottom := doc.GetMargins()
	for _, row := range t.Rows {
		if doc.GetY()+6 > pageHeight-bottom {
			doc.AddPage()
			header()
		}
		for i, value := range t.record(row) {
			doc.CellFormat(widths[i], 6, tr(value), "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}
	if len(t.Rows) == 0 {
		doc.CellFormat(0, 7, "No rows", "", 1, "L", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := doc.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(cols []Column) []float64 {
	total := 0.0
	for _, c := range cols {
		total += weight(c)
	}
	out := make([]float64, len(cols))
	for i, c := range cols {
		out[i] = pdfUsableWidth * weight(c) / total
	}
	return out
}

func weight(c Column) float64 {
	if c.Width <= 0 {
		return 1
	}
	return c.Width
}
