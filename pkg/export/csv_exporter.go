package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Dataset is a table to export. Rows are keyed by header; Footer lines are
// written after a blank separator, e.g. per student attendance percentages.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	Footer  [][]string
}

var errNoHeaders = errors.New("dataset has no headers")

// CSVExporter writes datasets as RFC 4180 CSV. Cells that a spreadsheet
// would evaluate as a formula are prefixed with a quote.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render returns data encoded as CSV.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams data to w.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("csv: %w", errNoHeaders)
	}
	cw := csv.NewWriter(w)
	records := make([][]string, 0, len(data.Rows)+len(data.Footer)+2)
	records = append(records, data.Headers)
	for _, row := range data.Rows {
		records = append(records, data.record(row))
	}
	if len(data.Footer) > 0 {
		records = append(records, nil)
		for _, line := range data.Footer {
			records = append(records, defuse(line))
		}
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	return nil
}

func (d Dataset) record(row map[string]string) []string {
	record := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		record[i] = defuseCell(row[header])
	}
	return record
}

func defuse(line []string) []string {
	out := make([]string, len(line))
	for i, cell := range line {
		out[i] = defuseCell(cell)
	}
	return out
}

func defuseCell(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
