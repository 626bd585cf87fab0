package formatters

import (
	"bytes"
	"strings"
)

// Delimiter and quoting rules for the CSV output. Every field is
// quoted regardless of content and fields are separated by a pipe,
// matching what downstream loaders expect.
const (
	csvDelimiter = '|'
	csvQuote     = '"'
)

// CSVFormatter writes pipe-delimited, fully-quoted CSV output
type CSVFormatter struct{}

// NewCSVFormatter creates a new CSV formatter
func NewCSVFormatter() *CSVFormatter {
	return &CSVFormatter{}
}

// Format converts column names and rows to CSV. The header row holds
// the column names; data rows follow in the order supplied. Output is
// byte-for-byte deterministic for identical input.
func (f *CSVFormatter) Format(columns []string, rows [][]string) ([]byte, error) {
	var buffer bytes.Buffer

	writeRecord(&buffer, columns)
	for _, row := range rows {
		writeRecord(&buffer, row)
	}

	return buffer.Bytes(), nil
}

// writeRecord writes one record with every field quoted. Embedded
// quote characters are escaped by doubling.
func writeRecord(buffer *bytes.Buffer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			buffer.WriteByte(csvDelimiter)
		}
		buffer.WriteByte(csvQuote)
		buffer.WriteString(strings.ReplaceAll(field, `"`, `""`))
		buffer.WriteByte(csvQuote)
	}
	buffer.WriteByte('\n')
}

// Extension returns the file extension for CSV files
func (f *CSVFormatter) Extension() string {
	return ".csv"
}

// MIMEType returns the MIME type for CSV
func (f *CSVFormatter) MIMEType() string {
	return "text/csv"
}
