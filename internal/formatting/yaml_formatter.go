package formatting

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{
		options: options,
	}
}

// FormatTable writes the raw records.
func (f *YAMLFormatter) FormatTable(t Table) error {
	if t.Data == nil {
		_, err := fmt.Fprint(f.options.Out, "[]\n")
		return err
	}
	return f.FormatData(t.Data)
}

// FormatData writes data as YAML
func (f *YAMLFormatter) FormatData(data interface{}) error {
	enc := yaml.NewEncoder(f.options.Out)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// SetOptions updates the formatter options
func (f *YAMLFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *YAMLFormatter) GetOptions() Options {
	return f.options
}
