package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// ResultSet holds one interval's query output: column names in the
// order reported by the warehouse and rows as opaque printable values.
// Every row has exactly len(Columns) fields.
type ResultSet struct {
	Columns []string
	Rows    [][]string
}

// FetchError reports a failed query for one interval. It is returned
// as a value and recorded on the unit's outcome; it never aborts
// sibling units.
type FetchError struct {
	Interval DateInterval
	Query    string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s to %s: %v",
		e.Interval.Start.Format(dateLayout),
		e.Interval.End.Format(dateLayout),
		e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// QueryExecutor is the narrow upstream query interface: submit SQL
// text, receive columns plus rows, or an error.
type QueryExecutor interface {
	Execute(ctx context.Context, query string) (*ResultSet, error)
}

// BuildIntervalQuery builds the bounded query for one interval. Table
// and column identifiers are trusted configuration (validated once by
// Config.Validate); date boundaries carry explicit TO_DATE casts so
// the warehouse never has to guess at coercion.
func BuildIntervalQuery(table, dateColumn string, interval DateInterval) string {
	return fmt.Sprintf(
		"SELECT * FROM %s WHERE %s >= TO_DATE('%s') AND %s < TO_DATE('%s')",
		table,
		dateColumn,
		interval.Start.Format(dateLayout),
		dateColumn,
		interval.End.Format(dateLayout),
	)
}

// connExecutor runs queries on a single dedicated connection checked
// out from the driver's pool. All result rows are materialized before
// returning.
type connExecutor struct {
	conn *sql.Conn
}

func (e *connExecutor) Execute(ctx context.Context, query string) (*ResultSet, error) {
	rows, err := e.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultSet := &ResultSet{Columns: columns}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make([]string, len(columns))
		for i, value := range values {
			record[i] = renderValue(value)
		}
		resultSet.Rows = append(resultSet.Rows, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return resultSet, nil
}

// renderValue converts a driver value to its printable form. NULL maps
// to the empty string; everything else passes through untyped.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// lockedExecutor serializes the execute+fetch pair on the shared
// handle. The Snowflake driver is not proven safe for concurrent
// cursors on one connection, so only the remote round-trip is
// serialized; serialization and packaging stay fully parallel.
type lockedExecutor struct {
	mu   sync.Mutex
	next QueryExecutor
}

func newLockedExecutor(next QueryExecutor) *lockedExecutor {
	return &lockedExecutor{next: next}
}

func (e *lockedExecutor) Execute(ctx context.Context, query string) (*ResultSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next.Execute(ctx, query)
}
