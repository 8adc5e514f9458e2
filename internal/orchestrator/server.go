package orchestrator

import (
	"context"
	"errors"
	"sort"

	"steward/internal/model"
	"steward/internal/store"
	"steward/pkg/logging"
)

// StartServer starts every deployed container of a server, parents' children
// in sequence order.
func (o *Orchestrator) StartServer(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		return p.eachDeployed(ctx, id, false, func(t *target) error {
			return o.runtime.Start(ctx, t.session, t.name())
		})
	})
}

// StopServer stops every deployed container of a server in reverse order.
func (o *Orchestrator) StopServer(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		return p.eachDeployed(ctx, id, true, func(t *target) error {
			return o.runtime.Stop(ctx, t.session, t.name())
		})
	})
}

// eachDeployed runs fn on the deployed runtime containers of a server. A
// failing container does not stop the others.
func (p *pass) eachDeployed(ctx context.Context, serverID string, reverse bool, fn func(t *target) error) error {
	srv, err := p.server(ctx, serverID)
	if err != nil {
		return err
	}
	containers, err := p.o.store.ListContainers(ctx, store.ContainerFilter{ServerID: serverID})
	if err != nil {
		return err
	}
	sort.SliceStable(containers, func(i, j int) bool {
		if reverse {
			return serverOrder(containers[j]) < serverOrder(containers[i])
		}
		return serverOrder(containers[i]) < serverOrder(containers[j])
	})

	var errs []error
	count := 0
	for i := range containers {
		c := &containers[i]
		if len(c.Children) > 0 || c.State != model.ContainerDeployed {
			continue
		}
		t, err := p.target(ctx, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := fn(t); err != nil {
			logging.Error(orchestratorSubsystem, err, "Failed on %s", t.fullname())
			errs = append(errs, err)
			continue
		}
		count++
	}
	logging.Info(orchestratorSubsystem, "Processed %d containers on %s", count, srv.FullDomain())
	return errors.Join(errs...)
}

// serverOrder puts independent containers first, then children by suffix,
// which starts with the parent suffix.
func serverOrder(c model.Container) string {
	if c.ParentID == "" {
		return "0" + c.Suffix
	}
	return "1" + c.Suffix
}
