package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"steward/internal/app"
	"steward/internal/model"
	"steward/internal/orchestrator"
	"steward/internal/queue"
)

// actionFlags are the options shared by every action command.
type actionFlags struct {
	noSave  bool
	force   bool
	comment string

	links map[string]string
	ports map[string]int

	resetName      string
	resetContainer string
}

func (f *actionFlags) options() orchestrator.Options {
	return orchestrator.Options{
		NoSave:         f.noSave,
		Force:          f.force,
		Comment:        f.comment,
		LinkOverrides:  f.links,
		PortOverrides:  f.ports,
		ResetName:      f.resetName,
		ResetContainer: f.resetContainer,
	}
}

// actionSpec describes one action command.
type actionSpec struct {
	action orchestrator.Action
	short  string
	kinds  []model.Kind

	// overrides adds --link and --port.
	overrides bool
	reset     bool
}

var actionSpecs = []actionSpec{
	{action: orchestrator.ActionDeploy, short: "Deploy a resource", kinds: []model.Kind{model.KindContainer, model.KindBase, model.KindVersion}, overrides: true},
	{action: orchestrator.ActionPurge, short: "Remove a deployed resource, saving it first", kinds: []model.Kind{model.KindContainer, model.KindBase, model.KindVersion}},
	{action: orchestrator.ActionUpdate, short: "Update a resource in place", kinds: []model.Kind{model.KindContainer, model.KindBase}},
	{action: orchestrator.ActionReinstall, short: "Save, purge and redeploy a container", kinds: []model.Kind{model.KindContainer}, overrides: true},
	{action: orchestrator.ActionReset, short: "Reset a base from a fresh save of its reference", kinds: []model.Kind{model.KindBase}, reset: true},
	{action: orchestrator.ActionSave, short: "Save a resource now", kinds: []model.Kind{model.KindContainer, model.KindBase}},
	{action: orchestrator.ActionStart, short: "Start a container or every container of a server", kinds: []model.Kind{model.KindContainer, model.KindServer}},
	{action: orchestrator.ActionStop, short: "Stop a container or every container of a server", kinds: []model.Kind{model.KindContainer, model.KindServer}},
	{action: orchestrator.ActionDelete, short: "Purge a resource and delete its record", kinds: []model.Kind{model.KindContainer, model.KindBase, model.KindVersion}},
	{action: orchestrator.ActionRestore, short: "Restore a save onto the resource it was taken from", kinds: []model.Kind{model.KindSave}},
}

// newActionCmd creates the command running spec.action.
func newActionCmd(spec actionSpec) *cobra.Command {
	var flags actionFlags
	kinds := kindNames(spec.kinds)

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <%s> <id>...", spec.action, strings.Join(kinds, "|")),
		Short: spec.short,
		Long: fmt.Sprintf(`%s.

Available resource types: %s

A single resource is processed in this process and its action is recorded
in the action log. Several resources are queued and processed concurrently,
one action at a time per resource.

Examples:
  steward %s %s 3f2a...
  steward %s %s 3f2a... 91bc...`,
			spec.short, strings.Join(kinds, ", "),
			spec.action, kinds[0], spec.action, kinds[0]),
		Args: cobra.MinimumNArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return kinds, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0], spec.kinds)
			if err != nil {
				return err
			}
			application, err := openApplication()
			if err != nil {
				return err
			}
			defer application.Close()

			return runAction(cmd.Context(), application.Services(), spec.action, kind, args[1:], flags.options())
		},
	}

	cmd.Flags().BoolVar(&flags.noSave, "no-save", false, "Skip the saves taken before destructive steps")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Save even when autosave is disabled")
	cmd.Flags().StringVar(&flags.comment, "comment", "", "Comment recorded on saves taken by this action")
	if spec.overrides {
		cmd.Flags().StringToStringVar(&flags.links, "link", nil, "Link target override, application full code to container id (e.g. postgres-pg=3f2a...)")
		cmd.Flags().StringToIntVar(&flags.ports, "port", nil, "Host port override by port name (e.g. http=8069)")
	}
	if spec.reset {
		cmd.Flags().StringVar(&flags.resetName, "name", "", "Reset into a base with this name instead of in place")
		cmd.Flags().StringVar(&flags.resetContainer, "container", "", "Reset into a base hosted on this container")
	}
	return cmd
}

// runAction runs action on every id. One id runs inline; several go through
// the action queue and are waited for.
func runAction(ctx context.Context, s *app.Services, action orchestrator.Action, kind model.Kind, ids []string, opts orchestrator.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(ids) == 1 {
		opts.NoEnqueue = true
		target := queue.Target{Kind: kind, ID: ids[0]}
		return withSpinner(fmt.Sprintf("%s %s", action, target), func() error {
			_, err := s.Orchestrator.Do(ctx, action, target, opts)
			return err
		})
	}

	s.Queue.Start(ctx)
	defer s.Queue.Shutdown()

	var errs []error
	var tickets []*queue.Ticket
	for _, id := range ids {
		t, err := s.Orchestrator.Do(ctx, action, queue.Target{Kind: kind, ID: id}, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", kind, id, err))
			continue
		}
		tickets = append(tickets, t)
	}

	err := withSpinner(fmt.Sprintf("%s %d %ss", action, len(tickets), kind), func() error {
		var failed []error
		for _, t := range tickets {
			if err := t.Wait(ctx); err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", t.Request.Target, err))
			}
		}
		return errors.Join(failed...)
	})
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func init() {
	for _, spec := range actionSpecs {
		rootCmd.AddCommand(newActionCmd(spec))
	}
}
