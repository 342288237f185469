package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Table is an in-memory CSV artifact: a header and rows of equal width
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable creates an empty table with the given columns
func NewTable(header ...string) *Table {
	return &Table{Header: header}
}

// Append adds a row, padding or truncating it to the header width
func (t *Table) Append(row ...string) {
	out := make([]string, len(t.Header))
	copy(out, row)
	t.Rows = append(t.Rows, out)
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the position of a column or -1
func (t *Table) Column(name string) int {
	if t.index == nil {
		t.index = make(map[string]int, len(t.Header))
		for i, h := range t.Header {
			if _, dup := t.index[h]; !dup {
				t.index[h] = i
			}
		}
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the table carries a column
func (t *Table) HasColumn(name string) bool {
	return t.Column(name) >= 0
}

// Records returns every row keyed by column name
func (t *Table) Records() []Record {
	records := make([]Record, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(Record, len(t.Header))
		for j, h := range t.Header {
			if j < len(row) {
				rec[h] = row[j]
			}
		}
		records[i] = rec
	}
	return records
}

// Record is a single row keyed by column name
type Record map[string]string

// Get returns a trimmed cell value
func (r Record) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Int returns a cell parsed as an integer (floats are truncated), or 0
func (r Record) Int(column string) int {
	s := r.Get(column)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// Float returns a cell parsed as a float and whether it parsed
func (r Record) Float(column string) (float64, bool) {
	f, err := strconv.ParseFloat(r.Get(column), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// WriteCSV writes the header and rows
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// WriteFile writes the table as CSV to path, replacing it atomically
func (t *Table) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := t.WriteCSV(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadCSV parses a CSV artifact
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := NewTable(header...)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t.Append(row...)
	}
	return t, nil
}

// ReadFile parses a CSV artifact from disk
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return t, nil
}
