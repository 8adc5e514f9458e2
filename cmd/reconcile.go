package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"steward/internal/formatting"
	"steward/internal/model"
	"steward/internal/orchestrator"
)

var (
	reconcileLinks map[string]string
	reconcilePorts map[string]int
)

// reconcileCmd re-derives the items of an existing container or base from
// the current catalog.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile <container|base> <id>",
	Short: "Bring a container or base in line with the catalog",
	Long: `Reconcile a container or base against the current catalog: options,
ports, volumes, links and child slots the application now defines are added,
and links are resolved again. Existing values are kept. Nothing is deployed.

Examples:
  steward reconcile container 3f2a...
  steward reconcile base 91bc... --link postgres-pg=77de...`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return []string{"container", "base"}, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringToStringVar(&reconcileLinks, "link", nil, "Link target override, application full code to container id")
	reconcileCmd.Flags().StringToIntVar(&reconcilePorts, "port", nil, "Host port override by port name")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0], []model.Kind{model.KindContainer, model.KindBase})
	if err != nil {
		return err
	}
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	application, err := openApplication()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	orch := application.Services().Orchestrator
	opts := orchestrator.Options{NoEnqueue: true, LinkOverrides: reconcileLinks, PortOverrides: reconcilePorts}

	if kind == model.KindContainer {
		c, err := orch.ReconcileContainer(ctx, args[1], opts)
		if err != nil {
			return err
		}
		return formatter.FormatTable(formatting.ContainersTable([]model.Container{*c}))
	}
	b, err := orch.ReconcileBase(ctx, args[1], opts)
	if err != nil {
		return err
	}
	return formatter.FormatTable(formatting.BasesTable([]model.Base{*b}))
}
