// Package export renders report tables into downloadable files.
package export

import (
	"errors"
	"fmt"
)

// Column is one output column; Key indexes Table rows, Label is printed.
type Column struct {
	Key   string
	Label string
	// Width is a relative weight used by page-based renderers. Zero means 1.
	Width float64
}

// Table is the renderer input.
type Table struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
}

// Renderer turns a table into file bytes.
type Renderer interface {
	Render(Table) ([]byte, error)
	ContentType() string
	Extension() string
}

// ErrNoColumns is returned when a table has nothing to render.
var ErrNoColumns = errors.New("export: table has no columns")

// For returns the renderer registered for a format name (csv, pdf, xlsx).
func For(format string) (Renderer, error) {
	switch format {
	case "csv":
		return CSV{}, nil
	case "pdf":
		return PDF{}, nil
	case "xlsx":
		return XLSX{}, nil
	default:
		return nil, fmt.Errorf("export: unsupported format %q", format)
	}
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return ErrNoColumns
	}
	return nil
}

func (t Table) labels() []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = col.Label
		if out[i] == "" {
			out[i] = col.Key
		}
	}
	return out
}

func (t Table) record(row map[string]string) []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = row[col.Key]
	}
	return out
}
