package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSV renders comma separated values with a header row.
type CSV struct{}

func (CSV) ContentType() string { return "text/csv" }
func (CSV) Extension() string   { return "csv" }

// Render writes the header and one line per row.
func (CSV) Render(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(t.labels()); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range t.Rows {
		if err := w.Write(t.record(row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
