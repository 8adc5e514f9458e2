package formatting

import (
	"fmt"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{
		options: options,
	}
}

// FormatTable writes the raw records; an empty list is written as [].
func (f *JSONFormatter) FormatTable(t Table) error {
	if t.Data == nil {
		_, err := fmt.Fprintln(f.options.Out, "[]")
		return err
	}
	return f.FormatData(t.Data)
}

// FormatData writes data as indented JSON
func (f *JSONFormatter) FormatData(data interface{}) error {
	_, err := fmt.Fprintln(f.options.Out, PrettyJSON(data))
	return err
}

// SetOptions updates the formatter options
func (f *JSONFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *JSONFormatter) GetOptions() Options {
	return f.options
}
