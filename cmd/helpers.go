package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"steward/internal/app"
	"steward/internal/formatting"
	"steward/internal/model"
)

// openApplication bootstraps steward for a one-shot command. The caller
// closes it.
func openApplication() (*app.Application, error) {
	application, err := app.NewApplication(app.NewConfig(debug, quiet, configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

// newFormatter returns the formatter selected with --output.
func newFormatter(cmd *cobra.Command) (formatting.Formatter, error) {
	format, ok := formatting.ParseFormat(outputFormat)
	if !ok {
		return nil, fmt.Errorf("unknown output format %q. Available formats: table, json, yaml", outputFormat)
	}
	return formatting.NewFactory().CreateFormatter(formatting.Options{
		Format: format,
		Quiet:  quiet,
		Out:    cmd.OutOrStdout(),
	}), nil
}

// withSpinner runs fn behind a progress spinner on stderr unless quiet mode
// is enabled.
func withSpinner(label string, fn func() error) error {
	if quiet {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + label + "..."
	s.Start()

	err := fn()
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("❌ "+label+" failed") + "\n"
	} else {
		s.FinalMSG = text.FgGreen.Sprint("✅ "+label) + "\n"
	}
	s.Stop()
	return err
}

// parseKind checks an instance kind argument against the kinds a command
// supports.
func parseKind(arg string, allowed []model.Kind) (model.Kind, error) {
	names := make([]string, len(allowed))
	for i, k := range allowed {
		if string(k) == arg {
			return k, nil
		}
		names[i] = string(k)
	}
	return "", fmt.Errorf("unknown resource type '%s'. Available types: %s", arg, strings.Join(names, ", "))
}

func kindNames(kinds []model.Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}
