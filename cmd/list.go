package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"steward/internal/app"
	"steward/internal/formatting"
	"steward/internal/model"
	"steward/internal/store"
)

var (
	listApplication string
	listServer      string
	listEnvironment string
	listContainer   string
	listBase        string
	listDomain      string
	listParent      string
)

// Available resource types for list operations
var listResourceTypes = []string{"containers", "bases", "saves", "servers", "domains", "versions", "actions"}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list <type>",
	Short: "List resources",
	Long: `List resources from the record store.

Available resource types:
  containers - filter with --app, --server, --env, --parent
  bases      - filter with --app, --container, --domain
  saves      - filter with --container, --base
  servers
  domains
  versions   - versions of --app
  actions    - action log of a resource: list actions <kind> <id>

Examples:
  steward list containers --server 3f2a...
  steward list saves --base 91bc... -o json
  steward list actions container 3f2a...`,
	Args: cobra.MinimumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return listResourceTypes, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listApplication, "app", "", "Filter by application code")
	listCmd.Flags().StringVar(&listServer, "server", "", "Filter by server id")
	listCmd.Flags().StringVar(&listEnvironment, "env", "", "Filter by environment id")
	listCmd.Flags().StringVar(&listContainer, "container", "", "Filter by container id")
	listCmd.Flags().StringVar(&listBase, "base", "", "Filter by base id")
	listCmd.Flags().StringVar(&listDomain, "domain", "", "Filter by domain id")
	listCmd.Flags().StringVar(&listParent, "parent", "", "Filter by parent container id")
}

func runList(cmd *cobra.Command, args []string) error {
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
	table, err := listTable(ctx, application.Services(), args)
	if err != nil {
		return err
	}
	return formatter.FormatTable(table)
}

// listTable queries the store for args[0] with the filter flags.
func listTable(ctx context.Context, s *app.Services, args []string) (formatting.Table, error) {
	switch args[0] {
	case "containers":
		containers, err := s.Store.ListContainers(ctx, store.ContainerFilter{
			Application:   listApplication,
			ServerID:      listServer,
			EnvironmentID: listEnvironment,
			ParentID:      listParent,
		})
		return formatting.ContainersTable(containers), err

	case "bases":
		bases, err := s.Store.ListBases(ctx, store.BaseFilter{
			Application: listApplication,
			ContainerID: listContainer,
			DomainID:    listDomain,
		})
		return formatting.BasesTable(bases), err

	case "saves":
		saves, err := s.Store.ListSaves(ctx, store.SaveFilter{
			ContainerID: listContainer,
			BaseID:      listBase,
		})
		return formatting.SavesTable(saves), err

	case "servers":
		servers, err := s.Store.ListServers(ctx)
		return formatting.ServersTable(servers), err

	case "domains":
		domains, err := s.Store.ListDomains(ctx)
		return formatting.DomainsTable(domains), err

	case "versions":
		if listApplication == "" {
			return formatting.Table{}, fmt.Errorf("listing versions requires --app")
		}
		versions, err := s.Store.ListVersions(ctx, listApplication)
		return formatting.VersionsTable(versions), err

	case "actions":
		if len(args) != 3 {
			return formatting.Table{}, fmt.Errorf("usage: steward list actions <kind> <id>")
		}
		actions, err := s.Store.ListActions(ctx, model.Kind(args[1]), args[2])
		return formatting.ActionsTable(actions), err
	}
	return formatting.Table{}, fmt.Errorf("unknown resource type '%s'. Available types: %v", args[0], listResourceTypes)
}
