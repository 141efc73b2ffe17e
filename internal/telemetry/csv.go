package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var nan = math.NaN()

// ReadCSV parses a header-led CSV stream into a Table. Header names are
// trimmed; blank lines and lines starting with '#' are skipped. Cells that do
// not parse as numbers become NaN.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("telemetry csv has no header")
		}
		return nil, fmt.Errorf("failed to read telemetry header: %w", err)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry rows: %w", err)
	}

	names := make([]string, len(headers))
	for i, h := range headers {
		names[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	cols := make([][]float64, len(names))
	for i := range cols {
		cols[i] = make([]float64, len(rows))
	}
	for r, row := range rows {
		for c := range names {
			if c >= len(row) {
				cols[c][r] = nan
				continue
			}
			cols[c][r] = parseCell(row[c])
		}
	}

	t := NewTable(len(rows))
	for i, name := range names {
		if name == "" {
			continue
		}
		t.cols[name] = cols[i]
	}
	return t, nil
}

func parseCell(s string) float64 {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return nan
	case "true":
		return 1
	case "false":
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nan
	}
	return v
}
