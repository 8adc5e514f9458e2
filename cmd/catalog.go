package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"steward/internal/catalog"
	"steward/internal/config"
	"steward/internal/formatting"
)

// catalogCmd groups catalog commands.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the application catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Load and validate a catalog directory",
	Long: `Load every YAML file of a catalog directory and validate the result:
applications must name known types and images, and their links and children
must name known applications.

Without an argument the configured catalog directory is validated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := catalogDir(args)
		if err != nil {
			return err
		}
		c, err := catalog.LoadDir(dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Catalog %s is valid: %d applications, %d types, %d images\n",
			dir, len(c.Applications), len(c.Types), len(c.Images))
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List the applications of a catalog directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		dir, err := catalogDir(args)
		if err != nil {
			return err
		}
		c, err := catalog.LoadDir(dir)
		if err != nil {
			return err
		}
		apps := make([]*catalog.Application, 0, len(c.Applications))
		for _, a := range c.Applications {
			apps = append(apps, a)
		}
		return formatter.FormatTable(formatting.ApplicationsTable(apps))
	},
}

// catalogDir is the directory argument, or the configured one.
func catalogDir(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}
	settings, err := config.LoadConfig(path)
	if err != nil {
		return "", err
	}
	return settings.Catalog.Dir, nil
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogListCmd)
}
