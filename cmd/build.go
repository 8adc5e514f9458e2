package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"steward/internal/model"
	"steward/internal/orchestrator"
)

// buildCmd builds a new version archive of an application.
var buildCmd = &cobra.Command{
	Use:   "build <application>",
	Short: "Build a new version of an application",
	Long: `Record a new version of an application, named after its current version
and the build time (e.g. 1.4.20240301.1200), and build its archive on the
application's archive container.

Remove a version with 'steward delete version <id>'. Versions still run by a
container are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApplication()
		if err != nil {
			return err
		}
		defer application.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		var v *model.ApplicationVersion
		err = withSpinner("build "+args[0], func() error {
			var err error
			v, err = application.Services().Orchestrator.BuildVersion(ctx, args[0], orchestrator.Options{NoEnqueue: true})
			return err
		})
		if err != nil {
			return err
		}
		if outputFormat != "table" {
			formatter, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			return formatter.FormatData(v)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Built version %s of %s (%s)\n", v.Name, v.ApplicationCode, v.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
