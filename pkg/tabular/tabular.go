// Package tabular reads uploaded student files into header-keyed rows.
package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

// Format identifies a supported upload encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ErrUnsupported is returned for files that are neither CSV, Excel nor JSON.
var ErrUnsupported = errors.New("unsupported file type")

// Row is one data row keyed by normalised header name.
type Row struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value for a column and whether it was present and non-empty.
func (r Row) Get(column string) (string, bool) {
	v, ok := r.Values[column]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Table is a parsed tabular file.
type Table struct {
	Headers []string
	Rows    []Row
}

// HasColumns returns the required columns missing from the header.
func (t *Table) HasColumns(required ...string) []string {
	present := make(map[string]struct{}, len(t.Headers))
	for _, h := range t.Headers {
		present[h] = struct{}{}
	}
	var missing []string
	for _, col := range required {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// Detect resolves the file format from its extension, confirmed against the content.
func Detect(filename string, data []byte) (Format, error) {
	mime := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		if mime.Is("text/csv") || mime.Is("text/plain") || strings.HasPrefix(mime.String(), "text/") {
			return FormatCSV, nil
		}
	case ".xlsx", ".xls":
		for m := mime; m != nil; m = m.Parent() {
			if m.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet") || m.Is("application/zip") {
				return FormatXLSX, nil
			}
		}
	case ".json":
		if mime.Is("application/json") || json.Valid(bytes.TrimSpace(data)) {
			return FormatJSON, nil
		}
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupported, ext, mime.String())
}

// NormalizeHeader lowercases a header and joins words with underscores.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(strings.NewReplacer("-", " ", ".", " ").Replace(h)), "_")
}

// ReadCSV parses comma delimited data with a mandatory header row.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRecords(records)
}

// ReadXLSX parses the first worksheet of an Excel workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrUnsupported, err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRecords(records)
}

// ReadJSON decodes an array of objects. Nested values are kept as raw JSON text.
func ReadJSON(r io.Reader) ([]json.RawMessage, error) {
	var items []json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode json array: %w", err)
	}
	return items, nil
}

// Read parses CSV or XLSX content into a table.
func Read(format Format, data []byte) (*Table, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(bytes.NewReader(data))
	case FormatXLSX:
		return ReadXLSX(bytes.NewReader(data))
	case FormatJSON:
		return TableFromJSON(data)
	default:
		return nil, ErrUnsupported
	}
}

// TableFromJSON flattens an array of flat objects into a table. Nested objects and
// arrays become their JSON text so they can be decoded per column.
func TableFromJSON(data []byte) (*Table, error) {
	items, err := ReadJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	table := &Table{}
	seen := map[string]struct{}{}
	for i, raw := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("item %d is not an object: %w", i+1, err)
		}
		row := Row{Line: i + 1, Values: make(map[string]string, len(obj))}
		for key, value := range obj {
			col := NormalizeHeader(key)
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				table.Headers = append(table.Headers, col)
			}
			row.Values[col] = scalarText(value)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

func fromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("file is empty: header row required")
	}
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = NormalizeHeader(h)
	}
	table := &Table{Headers: headers}
	for i, record := range records[1:] {
		if blank(record) {
			continue
		}
		row := Row{Line: i + 2, Values: make(map[string]string, len(headers))}
		for j, h := range headers {
			if h == "" || j >= len(record) {
				continue
			}
			row.Values[h] = record[j]
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
