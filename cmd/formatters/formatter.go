package formatters

// Format type constants
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// Formatter defines the interface for output format handlers.
// Columns arrive in the order reported by the warehouse; rows are
// opaque printable values, one slice per row, aligned with columns.
type Formatter interface {
	// Format converts column names and data rows to the target format
	Format(columns []string, rows [][]string) ([]byte, error)

	// Extension returns the file extension for this format (e.g., ".csv", ".jsonl")
	Extension() string

	// MIMEType returns the MIME type for this format
	MIMEType() string
}

// GetFormatter returns the appropriate formatter based on the format string
func GetFormatter(format string) Formatter {
	switch format {
	case FormatJSONL:
		return NewJSONLFormatter()
	default:
		return NewCSVFormatter()
	}
}
