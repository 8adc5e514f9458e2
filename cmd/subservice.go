package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"steward/internal/orchestrator"
)

var (
	subserviceBases []string
	subserviceLinks map[string]string
)

// subserviceCmd copies a container, and optionally some of its bases,
// under a new name.
var subserviceCmd = &cobra.Command{
	Use:   "subservice <container-id> <name>",
	Short: "Install a copy of a container next to it",
	Long: `Create and deploy a copy of a container named <suffix>-<name>, for example
to try an upgrade. The copy keeps the container's options and link targets
unless --link overrides them. Each --base is reset into the copy as
<base>-<name>.

Examples:
  steward subservice 3f2a... test --base 91bc...`,
	Args: cobra.ExactArgs(2),
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
		req := orchestrator.SubserviceRequest{ContainerID: args[0], Name: args[1], BaseIDs: subserviceBases}
		opts := orchestrator.Options{NoEnqueue: true, LinkOverrides: subserviceLinks}

		return withSpinner("install subservice "+args[1], func() error {
			sub, err := application.Services().Orchestrator.InstallSubservice(ctx, req, opts)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Installed %s (%s)\n", sub.Suffix, sub.ID)
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(subserviceCmd)

	subserviceCmd.Flags().StringSliceVar(&subserviceBases, "base", nil, "Base of the container to reset into the copy (repeatable)")
	subserviceCmd.Flags().StringToStringVar(&subserviceLinks, "link", nil, "Link target override, application full code to container id")
}
