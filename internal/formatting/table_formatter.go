package formatting

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatTable renders the rows with a colored header and a total line.
func (f *TableFormatter) FormatTable(data Table) error {
	if len(data.Rows) == 0 {
		fmt.Fprint(f.options.Out, f.formatEmptyMessage("No "+data.Title+" found"))
		return nil
	}

	t := f.createTable()
	if data.Title != "" && !f.options.Quiet {
		t.SetTitle(data.Title)
	}
	header := make(table.Row, len(data.Headers))
	for i, h := range data.Headers {
		header[i] = text.FgHiCyan.Sprint(h)
	}
	t.AppendHeader(header)
	for _, row := range data.Rows {
		t.AppendRow(row)
	}
	t.Render()

	if !f.options.Quiet {
		fmt.Fprintf(f.options.Out, "\n%s %s %s\n",
			text.FgHiBlue.Sprint("Total:"),
			text.FgHiWhite.Sprint(len(data.Rows)),
			text.FgHiBlue.Sprint(data.Title))
	}
	return nil
}

// FormatData formats generic data using table logic
func (f *TableFormatter) FormatData(data interface{}) error {
	switch d := data.(type) {
	case map[string]interface{}:
		return f.formatObjectData(d)
	case string:
		fmt.Fprintln(f.options.Out, d)
	default:
		fmt.Fprintln(f.options.Out, PrettyJSON(d))
	}
	return nil
}

// SetOptions updates the formatter options
func (f *TableFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *TableFormatter) GetOptions() Options {
	return f.options
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.Out)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) formatEmptyMessage(message string) string {
	return fmt.Sprintf("%s %s\n", text.FgYellow.Sprint("📋"), text.FgYellow.Sprint(message))
}

// formatObjectData formats object data as sorted key-value pairs
func (f *TableFormatter) formatObjectData(data map[string]interface{}) error {
	t := f.createTable()
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("KEY"),
		text.FgHiCyan.Sprint("VALUE"),
	})

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		valueStr := fmt.Sprintf("%v", data[key])
		if len(valueStr) > 100 {
			valueStr = valueStr[:97] + "..."
		}
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(key), valueStr})
	}

	t.Render()
	return nil
}
