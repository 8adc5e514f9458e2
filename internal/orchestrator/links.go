package orchestrator

import (
	"context"

	"steward/internal/api"
	"steward/internal/catalog"
	"steward/internal/model"
	"steward/internal/store"
	"steward/pkg/logging"
)

// linkOwner is the instance side of a link: its kind, whether it delegates
// to children and the template values describing it.
type linkOwner struct {
	name        string
	hasChildren bool
	context     map[string]interface{}
}

// deployLink runs the deploy_link hook of the target application inside the
// target container. Owners delegating to children, links without target and
// links already deployed are left alone.
func (p *pass) deployLink(ctx context.Context, owner linkOwner, l *model.Link) error {
	if owner.hasChildren || l.Target == "" || l.Deployed {
		return nil
	}
	tc, err := p.o.store.GetContainer(ctx, l.Target)
	if err != nil {
		return err
	}
	if tc.State != model.ContainerDeployed {
		logging.Debug(orchestratorSubsystem, "Link %s of %s waits for its target to be deployed", l.Application, owner.name)
		return nil
	}
	t, err := p.target(ctx, tc)
	if err != nil {
		return err
	}
	extra := map[string]interface{}{
		"link": map[string]interface{}{
			"application": l.Application,
			"owner":       owner.context,
		},
	}
	if err := p.hook(ctx, t, catalog.HookDeployLink, extra); err != nil {
		return err
	}
	l.Deployed = true
	logging.Info(orchestratorSubsystem, "Deployed link %s of %s to %s", l.Application, owner.name, t.fullname())
	return nil
}

// purgeLink runs the purge_link hook of a deployed link.
func (p *pass) purgeLink(ctx context.Context, owner linkOwner, l *model.Link) error {
	if owner.hasChildren || l.Target == "" || !l.Deployed {
		return nil
	}
	tc, err := p.o.store.GetContainer(ctx, l.Target)
	if api.IsNotFound(err) {
		l.Deployed = false
		return nil
	}
	if err != nil {
		return err
	}
	t, err := p.target(ctx, tc)
	if err != nil {
		return err
	}
	extra := map[string]interface{}{
		"link": map[string]interface{}{
			"application": l.Application,
			"owner":       owner.context,
		},
	}
	if err := p.hook(ctx, t, catalog.HookPurgeLink, extra); err != nil {
		return err
	}
	l.Deployed = false
	logging.Info(orchestratorSubsystem, "Purged link %s of %s from %s", l.Application, owner.name, t.fullname())
	return nil
}

func containerLinkOwner(t *target) linkOwner {
	return linkOwner{
		name:        t.fullname(),
		hasChildren: len(t.container.Children) > 0,
		context:     t.context(),
	}
}

func (p *pass) deployContainerLinks(ctx context.Context, t *target) error {
	c := t.container
	owner := containerLinkOwner(t)
	for i := range c.Links {
		if err := p.deployLink(ctx, owner, &c.Links[i]); err != nil {
			return err
		}
	}
	return p.o.store.UpdateContainer(ctx, c)
}

func (p *pass) purgeContainerLinks(ctx context.Context, t *target) error {
	c := t.container
	owner := containerLinkOwner(t)
	for i := range c.Links {
		if err := p.purgeLink(ctx, owner, &c.Links[i]); err != nil {
			return err
		}
	}
	return p.o.store.UpdateContainer(ctx, c)
}

// backfillLinks points the unresolved auto links of every other instance at
// a newly created container of the linked application.
func (p *pass) backfillLinks(ctx context.Context, c *model.Container) error {
	containers, err := p.o.store.ListContainers(ctx, store.ContainerFilter{})
	if err != nil {
		return err
	}
	for i := range containers {
		other := &containers[i]
		if other.ID == c.ID || !backfill(other.Links, c) {
			continue
		}
		logging.Info(orchestratorSubsystem, "Linked container %s to new %s container %s", other.Suffix, c.ApplicationCode, c.Suffix)
		if err := p.o.store.UpdateContainer(ctx, other); err != nil {
			return err
		}
	}

	bases, err := p.o.store.ListBases(ctx, store.BaseFilter{})
	if err != nil {
		return err
	}
	for i := range bases {
		b := &bases[i]
		if !backfill(b.Links, c) {
			continue
		}
		logging.Info(orchestratorSubsystem, "Linked base %s to new %s container %s", b.Name, c.ApplicationCode, c.Suffix)
		if err := p.o.store.UpdateBase(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func backfill(ls []model.Link, c *model.Container) bool {
	changed := false
	for i := range ls {
		if ls[i].Application == c.ApplicationCode && ls[i].Auto && ls[i].Target == "" {
			ls[i].Target = c.ID
			changed = true
		}
	}
	return changed
}

// deployIncomingLinks deploys the pending links of deployed instances that
// target c.
func (p *pass) deployIncomingLinks(ctx context.Context, c *model.Container) error {
	containers, err := p.o.store.ListContainers(ctx, store.ContainerFilter{})
	if err != nil {
		return err
	}
	for i := range containers {
		other := &containers[i]
		if other.ID == c.ID || other.State != model.ContainerDeployed || !pendingTo(other.Links, c.ID) {
			continue
		}
		t, err := p.target(ctx, other)
		if err != nil {
			return err
		}
		if err := p.deployContainerLinks(ctx, t); err != nil {
			return err
		}
	}

	bases, err := p.o.store.ListBases(ctx, store.BaseFilter{})
	if err != nil {
		return err
	}
	for i := range bases {
		b := &bases[i]
		if b.State != model.BaseEnabled || !pendingTo(b.Links, c.ID) {
			continue
		}
		owner, err := p.baseLinkOwner(ctx, b)
		if err != nil {
			return err
		}
		if err := p.deployBaseLinks(ctx, owner, b); err != nil {
			return err
		}
	}
	return nil
}

func pendingTo(ls []model.Link, target string) bool {
	for _, l := range ls {
		if l.Target == target && !l.Deployed {
			return true
		}
	}
	return false
}

func (p *pass) baseLinkOwner(ctx context.Context, b *model.Base) (linkOwner, error) {
	d, err := p.o.store.GetDomain(ctx, b.DomainID)
	if err != nil {
		return linkOwner{}, err
	}
	app, err := p.application(b.ApplicationCode)
	if err != nil {
		return linkOwner{}, err
	}
	return linkOwner{
		name:        model.BaseFullDomain(b.Name, d.Name),
		hasChildren: len(b.Children) > 0,
		context:     baseContext(b, d, p.applicationType(app)),
	}, nil
}

func (p *pass) deployBaseLinks(ctx context.Context, owner linkOwner, b *model.Base) error {
	for i := range b.Links {
		if err := p.deployLink(ctx, owner, &b.Links[i]); err != nil {
			return err
		}
	}
	return p.o.store.UpdateBase(ctx, b)
}

func (p *pass) purgeBaseLinks(ctx context.Context, owner linkOwner, b *model.Base) error {
	for i := range b.Links {
		if err := p.purgeLink(ctx, owner, &b.Links[i]); err != nil {
			return err
		}
	}
	return p.o.store.UpdateBase(ctx, b)
}
