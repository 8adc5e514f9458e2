// Package formatting renders command output as tables, JSON or YAML.
package formatting

import (
	"io"
	"os"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool // Suppress decorative elements
	Out    io.Writer
}

// Table is a list of records. Headers and Rows feed the table output; Data
// is the raw value written by the JSON and YAML formatters.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]interface{}
	Data    interface{}
}

// Formatter writes command output.
type Formatter interface {
	FormatTable(t Table) error

	// FormatData writes a single value.
	FormatData(data interface{}) error

	SetOptions(options Options)
	GetOptions() Options
}

// Factory creates formatters for different output formats
type Factory interface {
	CreateFormatter(options Options) Formatter
}

// NewFactory creates a new formatter factory
func NewFactory() Factory {
	return &factory{}
}

// factory implements the Factory interface
type factory struct{}

// CreateFormatter creates the appropriate formatter based on options
func (f *factory) CreateFormatter(options Options) Formatter {
	if options.Out == nil {
		options.Out = os.Stdout
	}
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	case FormatTable:
		fallthrough
	default:
		return NewTableFormatter(options)
	}
}

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, bool) {
	switch OutputFormat(s) {
	case FormatTable, FormatJSON, FormatYAML:
		return OutputFormat(s), true
	}
	return "", false
}
