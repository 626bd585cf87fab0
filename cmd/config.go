package cmd

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Static errors for configuration validation
var (
	ErrAccountRequired         = errors.New("snowflake account is required")
	ErrUserRequired            = errors.New("snowflake user is required")
	ErrWarehouseRequired       = errors.New("snowflake warehouse is required")
	ErrPasswordRequired        = errors.New("password is required unless external browser authentication is enabled")
	ErrTableNameRequired       = errors.New("table name is required")
	ErrTableNameInvalid        = errors.New("table name is invalid: must be a fully qualified DATABASE.SCHEMA.TABLE identifier")
	ErrDateColumnRequired      = errors.New("date column is required")
	ErrDateColumnInvalid       = errors.New("date column is invalid: must start with a letter or underscore, and contain only letters, numbers, underscores, and dollar signs")
	ErrStartDateRequired       = errors.New("start date is required")
	ErrStartDateFormatInvalid  = errors.New("invalid start date format")
	ErrEndDateFormatInvalid    = errors.New("invalid end date format")
	ErrEndBeforeStart          = errors.New("end date must not be before start date")
	ErrGroupByInvalid          = errors.New("group-by must be one of: none, day, month, year")
	ErrPrefixInvalid           = errors.New("filename prefix is invalid: must contain only letters, numbers, underscores, and dashes")
	ErrOutputFormatInvalid     = errors.New("output format must be one of: csv, jsonl")
	ErrCompressionInvalid      = errors.New("compression must be one of: zstd, lz4, gzip, none")
	ErrCompressionLevelInvalid = errors.New("compression level must be between 1 and 22 (zstd), 1-9 (lz4/gzip), 0 (none)")
	ErrWorkersMinimum          = errors.New("workers must be at least 1")
	ErrWorkersMaximum          = errors.New("workers must not exceed 64")
	ErrS3BucketRequired        = errors.New("S3 bucket is required when S3 upload is enabled")
	ErrS3AccessKeyRequired     = errors.New("S3 access key is required when S3 upload is enabled")
	ErrS3SecretKeyRequired     = errors.New("S3 secret key is required when S3 upload is enabled")
)

// dateLayout is the wire format for start/end dates and query bounds
const dateLayout = "2006-01-02"

type Config struct {
	Debug     bool
	LogFormat string
	DryRun    bool
	Workers   int

	Snowflake SnowflakeConfig
	S3        S3Config

	Table      string // DATABASE.SCHEMA.TABLE
	DateColumn string
	StartDate  string // YYYY-MM-DD, inclusive
	EndDate    string // YYYY-MM-DD, inclusive
	GroupBy    string // none, day, month, year

	Prefix           string
	OutputDir        string
	CleanOutputDir   bool
	OutputFormat     string // csv, jsonl
	Compression      string // zstd, lz4, gzip, none
	CompressionLevel int
	Bundle           bool
}

type SnowflakeConfig struct {
	Account         string
	User            string
	Role            string
	Warehouse       string
	Password        string
	ExternalBrowser bool // browser-delegated SSO instead of password auth
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// Snowflake unquoted identifiers: letters, digits, underscores, dollar
// signs, not starting with a digit. Validated once so query building
// can treat table and column names as trusted.
var (
	validIdentifier     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
	validQualifiedTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*\.[A-Za-z_][A-Za-z0-9_$]*\.[A-Za-z_][A-Za-z0-9_$]*$`)
	validFilenamePrefix = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// isValidOutputFormat validates the output format
func isValidOutputFormat(format string) bool {
	return format == "csv" || format == "jsonl"
}

// isValidCompression validates the compression type
func isValidCompression(compression string) bool {
	switch compression {
	case "zstd", "lz4", "gzip", "none":
		return true
	default:
		return false
	}
}

// isValidCompressionLevel validates compression level based on compression type
func isValidCompressionLevel(compression string, level int) bool {
	switch compression {
	case "zstd":
		return level >= 1 && level <= 22
	case "lz4", "gzip":
		return level >= 1 && level <= 9
	case "none":
		return level == 0
	default:
		return false
	}
}

//nolint:gocognit // straight-line field validation
func (c *Config) Validate() error {
	// Connection settings
	if c.Snowflake.Account == "" {
		return ErrAccountRequired
	}
	if c.Snowflake.User == "" {
		return ErrUserRequired
	}
	if c.Snowflake.Warehouse == "" {
		return ErrWarehouseRequired
	}
	if !c.Snowflake.ExternalBrowser && c.Snowflake.Password == "" {
		return ErrPasswordRequired
	}

	// Table and date column are interpolated into query text, so they
	// must pass identifier validation here, once, before any unit runs.
	if c.Table == "" {
		return ErrTableNameRequired
	}
	if !validQualifiedTable.MatchString(c.Table) {
		return fmt.Errorf("%w: '%s'", ErrTableNameInvalid, c.Table)
	}
	if c.DateColumn == "" {
		return ErrDateColumnRequired
	}
	if !validIdentifier.MatchString(c.DateColumn) {
		return fmt.Errorf("%w: '%s'", ErrDateColumnInvalid, c.DateColumn)
	}

	// Date range
	if c.StartDate == "" {
		return ErrStartDateRequired
	}
	start, err := time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartDateFormatInvalid, err)
	}
	end := start
	if c.EndDate != "" {
		end, err = time.Parse(dateLayout, c.EndDate)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEndDateFormatInvalid, err)
		}
	}
	if end.Before(start) {
		return fmt.Errorf("%w: %s > %s", ErrEndBeforeStart, c.StartDate, c.EndDate)
	}

	if !isValidGranularity(c.GroupBy) {
		return fmt.Errorf("%w: '%s'", ErrGroupByInvalid, c.GroupBy)
	}

	if c.Prefix != "" && !validFilenamePrefix.MatchString(c.Prefix) {
		return fmt.Errorf("%w: '%s'", ErrPrefixInvalid, c.Prefix)
	}

	// Output settings
	if !isValidOutputFormat(c.OutputFormat) {
		return fmt.Errorf("%w: '%s'", ErrOutputFormatInvalid, c.OutputFormat)
	}
	if !isValidCompression(c.Compression) {
		return fmt.Errorf("%w: '%s'", ErrCompressionInvalid, c.Compression)
	}
	if !isValidCompressionLevel(c.Compression, c.CompressionLevel) {
		return fmt.Errorf("%w for compression %s: got %d", ErrCompressionLevelInvalid, c.Compression, c.CompressionLevel)
	}

	if c.Workers < 1 {
		return ErrWorkersMinimum
	}
	if c.Workers > 64 {
		return fmt.Errorf("%w, got %d", ErrWorkersMaximum, c.Workers)
	}

	// S3 upload is optional; validate only when enabled
	if c.UploadEnabled() {
		if c.S3.Bucket == "" {
			return ErrS3BucketRequired
		}
		if c.S3.AccessKey == "" {
			return ErrS3AccessKeyRequired
		}
		if c.S3.SecretKey == "" {
			return ErrS3SecretKeyRequired
		}
	}

	return nil
}

// UploadEnabled reports whether artifacts should be uploaded to S3
// after the export completes.
func (c *Config) UploadEnabled() bool {
	return c.S3.Bucket != "" || c.S3.Endpoint != ""
}

// DateRange returns the parsed start and inclusive end instants.
// Validate must have succeeded first. A missing end date defaults to
// the start date (single-day export).
func (c *Config) DateRange() (time.Time, time.Time) {
	start, _ := time.Parse(dateLayout, c.StartDate)
	end := start
	if c.EndDate != "" {
		end, _ = time.Parse(dateLayout, c.EndDate)
	}
	return start, end
}

// FilenamePrefix returns the configured prefix, falling back to the
// default used by earlier versions of this tool.
func (c *Config) FilenamePrefix() string {
	if c.Prefix == "" {
		return "exported_data"
	}
	return c.Prefix
}
