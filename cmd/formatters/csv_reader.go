package formatters

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ErrMissingHeader is returned when the CSV input has no header row
var ErrMissingHeader = errors.New("csv input is missing a header row")

// CSVReader parses the pipe-delimited dialect produced by CSVFormatter.
// Values stay opaque strings; no type conversion is attempted.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
}

// NewCSVReader creates a reader over pipe-delimited CSV input
func NewCSVReader(r io.Reader) *CSVReader {
	cr := csv.NewReader(r)
	cr.Comma = csvDelimiter
	return &CSVReader{reader: cr}
}

// ReadAll reads the header and all data rows
func (r *CSVReader) ReadAll() ([]string, [][]string, error) {
	headers, err := r.reader.Read()
	if err == io.EOF {
		return nil, nil, ErrMissingHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	r.headers = headers

	var rows [][]string
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		rows = append(rows, record)
	}

	return headers, rows, nil
}
