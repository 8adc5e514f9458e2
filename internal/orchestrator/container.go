package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"steward/internal/api"
	"steward/internal/catalog"
	"steward/internal/containerizer"
	"steward/internal/dependency"
	"steward/internal/links"
	"steward/internal/model"
	"steward/internal/ports"
	"steward/internal/reconcile"
	"steward/internal/store"
	"steward/pkg/logging"
)

// ContainerRequest describes a container to create. Empty fields take the
// application defaults.
type ContainerRequest struct {
	EnvironmentID   string
	ServerID        string
	Suffix          string
	ApplicationCode string
	Image           string
	ImageVersion    string

	// Options and Metadata override values by name.
	Options  map[string]string
	Metadata map[string]string

	// LinkTargets sets explicit link targets by application code.
	LinkTargets map[string]string

	BackupIDs       []string
	Autosave        *bool
	TimeBetweenSave int
	SaveExpiration  int
	SaveComment     string

	ParentID     string
	ParentSlotID string
	FromID       string
	Public       bool
}

// CreateContainer validates and stores a new container with its reconciled
// items, resolved links and allocated ports. Nothing is deployed.
func (o *Orchestrator) CreateContainer(ctx context.Context, req ContainerRequest, opts Options) (*model.Container, error) {
	var c *model.Container
	err := o.run(ctx, opts, func(p *pass) error {
		var err error
		c, err = p.createContainer(ctx, req, nil)
		return err
	})
	return c, err
}

func (p *pass) createContainer(ctx context.Context, req ContainerRequest, fallbackBackups []string) (*model.Container, error) {
	app, err := p.application(req.ApplicationCode)
	if err != nil {
		return nil, err
	}
	env, err := p.o.store.GetEnvironment(ctx, req.EnvironmentID)
	if err != nil {
		return nil, err
	}
	if env.Prefix == "" {
		return nil, api.NewValidationError("container", "environment", fmt.Sprintf("environment %s has no prefix", env.Name))
	}

	serverID := req.ServerID
	if serverID == "" {
		serverID = app.NextServer
	}
	if serverID == "" {
		return nil, api.NewValidationError("container", "server", "is required and application "+app.Code+" has no default server")
	}

	imageName := req.Image
	if imageName == "" {
		imageName = app.Image
	}
	img, err := p.cat.Image(imageName)
	if err != nil {
		return nil, err
	}

	c := &model.Container{
		EnvironmentID:   env.ID,
		ServerID:        serverID,
		Suffix:          req.Suffix,
		ApplicationCode: app.Code,
		Image:           img.Name,
		ImageVersion:    selectVersion(req.ImageVersion, app, img),
		Autosave:        app.Autosave,
		TimeBetweenSave: req.TimeBetweenSave,
		SaveExpiration:  req.SaveExpiration,
		SaveComment:     req.SaveComment,
		ParentID:        req.ParentID,
		ParentSlotID:    req.ParentSlotID,
		FromID:          req.FromID,
		Public:          req.Public,
		State:           model.ContainerAbsent,
	}
	if req.Autosave != nil {
		c.Autosave = *req.Autosave
	}

	c.BackupIDs, err = p.backupDestinations(ctx, app, req.BackupIDs, app.ContainerBackup, fallbackBackups)
	if err != nil {
		return nil, err
	}
	if len(c.BackupIDs) == 0 && !app.HasTags(catalog.TagNoBackup) {
		return nil, api.NewValidationError("container", "backups", "at least one backup destination is required")
	}

	desired, err := reconcile.Reconcile(reconcile.ContainerCapabilities(), reconcile.Input{
		Application: app,
		OptionSpecs: p.cat.OptionSpecs(app),
		Image:       img,
		Existing:    reconcile.State{Links: explicitLinks(app, req.LinkTargets)},
		Overrides:   reconcile.Overrides{Options: req.Options, Metadata: req.Metadata},
	})
	if err != nil {
		return nil, err
	}
	desired.ApplyToContainer(c)

	if err := p.resolveContainer(ctx, c, app); err != nil {
		return nil, err
	}
	c.VolumesFrom, err = p.volumesFrom(ctx, c, img)
	if err != nil {
		return nil, err
	}

	if err := p.o.store.CreateContainer(ctx, c); err != nil {
		return nil, err
	}
	logging.Info(orchestratorSubsystem, "Created container %s (%s) on server %s", model.ContainerName(env.Prefix, c.Suffix), app.Code, serverID)

	if err := p.backfillLinks(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// resolveContainer resolves links and allocates ports. It runs before any
// command that changes a server.
func (p *pass) resolveContainer(ctx context.Context, c *model.Container, app *catalog.Application) error {
	resolved, err := p.o.resolver.ResolveAll(ctx, links.ContainerOwner(c), app, c.Links, p.opts.LinkOverrides)
	if err != nil {
		return err
	}
	c.Links = resolved

	if len(c.Children) > 0 {
		// Delegating containers carry no runtime and publish nothing.
		c.Ports = nil
		return nil
	}
	sess, srv, err := p.session(ctx, c.ServerID)
	if err != nil {
		return err
	}
	bindings, err := p.o.allocator.Allocate(ctx, ports.Request{
		Owner:     c.Suffix,
		OwnerID:   c.ID,
		Server:    srv,
		Bindings:  c.Ports,
		Overrides: p.opts.PortOverrides,
		Prober:    p.o.prober(sess),
	})
	if err != nil {
		return err
	}
	c.Ports = bindings
	return nil
}

func selectVersion(requested string, app *catalog.Application, img *catalog.Image) string {
	if requested != "" {
		return requested
	}
	if app.CurrentVersion != "" {
		if _, ok := img.Version(app.CurrentVersion); ok {
			return app.CurrentVersion
		}
	}
	if v, ok := img.LatestVersion(); ok {
		return v.Name
	}
	return ""
}

// explicitLinks turns requested targets into pending links the reconciler
// keeps.
func explicitLinks(app *catalog.Application, targets map[string]string) []model.Link {
	var out []model.Link
	for _, spec := range app.Links {
		if target, ok := targets[spec.Target]; ok && target != "" {
			out = append(out, model.Link{SpecID: spec.ID, Application: spec.Target, Target: target})
		}
	}
	return out
}

// backupDestinations picks the requested destinations, then the application
// policy, then fallback, then the first container of an application tagged
// backup.
func (p *pass) backupDestinations(ctx context.Context, app *catalog.Application, requested []string, policy catalog.BackupPolicy, fallback []string) ([]string, error) {
	switch {
	case len(requested) > 0:
		return requested, nil
	case len(policy.Destinations) > 0:
		return append([]string(nil), policy.Destinations...), nil
	case len(fallback) > 0:
		return append([]string(nil), fallback...), nil
	case app.HasTags(catalog.TagNoBackup):
		return nil, nil
	}
	for _, code := range p.cat.ApplicationCodes() {
		candidate, _ := p.cat.Application(code)
		if candidate == nil || !candidate.HasTags(catalog.TagBackup) {
			continue
		}
		found, err := p.o.store.ListContainers(ctx, store.ContainerFilter{Application: code})
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return []string{found[0].ID}, nil
		}
	}
	return nil, nil
}

// volumesFrom mounts the volumes of the container's siblings whose
// application carries one of the image's volumes_from tags.
func (p *pass) volumesFrom(ctx context.Context, c *model.Container, img *catalog.Image) ([]string, error) {
	if c.ParentID == "" || len(img.VolumesFrom) == 0 {
		return nil, nil
	}
	parent, err := p.o.store.GetContainer(ctx, c.ParentID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, slot := range parent.SortedChildren() {
		if slot.ID == c.ParentSlotID || slot.ChildID == "" {
			continue
		}
		app, err := p.application(slot.Application)
		if err != nil {
			continue
		}
		for _, tag := range img.VolumesFrom {
			if app.HasTags(tag) {
				out = append(out, slot.ChildID)
				break
			}
		}
	}
	return out, nil
}

// ReconcileContainer merges the current catalog into an existing container
// and resolves links and ports again.
func (o *Orchestrator) ReconcileContainer(ctx context.Context, id string, opts Options) (*model.Container, error) {
	var c *model.Container
	err := o.run(ctx, opts, func(p *pass) error {
		var err error
		c, err = o.store.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		app, err := p.application(c.ApplicationCode)
		if err != nil {
			return err
		}
		img, err := p.cat.Image(c.Image)
		if err != nil {
			return err
		}
		desired, err := reconcile.Reconcile(reconcile.ContainerCapabilities(), reconcile.Input{
			Application: app,
			OptionSpecs: p.cat.OptionSpecs(app),
			Image:       img,
			Existing:    reconcile.ContainerState(c),
		})
		if err != nil {
			return err
		}
		desired.ApplyToContainer(c)
		if err := p.resolveContainer(ctx, c, app); err != nil {
			return err
		}
		return o.store.UpdateContainer(ctx, c)
	})
	return c, err
}

// DeployContainer deploys a container, or creates and deploys its children.
func (o *Orchestrator) DeployContainer(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		c, err := o.store.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		return p.deployContainer(ctx, c)
	})
}

func (p *pass) deployContainer(ctx context.Context, c *model.Container) error {
	if len(c.Children) > 0 {
		return p.deployChildren(ctx, c)
	}

	app, err := p.application(c.ApplicationCode)
	if err != nil {
		return err
	}
	if err := p.resolveContainer(ctx, c, app); err != nil {
		return err
	}

	t, err := p.target(ctx, c)
	if err != nil {
		return err
	}
	logging.Info(orchestratorSubsystem, "Deploying container %s", t.fullname())

	c.State = model.ContainerDeploying
	if err := p.o.store.UpdateContainer(ctx, c); err != nil {
		return err
	}

	if err := p.hook(ctx, t, catalog.HookPreDeploy, nil); err != nil {
		return err
	}
	cfg, err := p.runtimeConfig(ctx, t)
	if err != nil {
		return err
	}
	if err := p.o.runtime.Run(ctx, t.session, cfg); err != nil {
		return err
	}
	if err := p.hook(ctx, t, catalog.HookPostDeploy, nil); err != nil {
		return err
	}
	if err := p.o.runtime.Start(ctx, t.session, t.name()); err != nil {
		return err
	}

	c.State = model.ContainerDeployed
	if err := p.o.store.UpdateContainer(ctx, c); err != nil {
		return err
	}
	if err := p.deployContainerLinks(ctx, t); err != nil {
		return err
	}
	if err := p.deployIncomingLinks(ctx, c); err != nil {
		return err
	}

	if _, err := p.saveContainer(ctx, t, true, "First save"); err != nil {
		return err
	}
	logging.Info(orchestratorSubsystem, "Container %s deployed", t.fullname())
	return nil
}

// runtimeConfig builds the run configuration of a container.
func (p *pass) runtimeConfig(ctx context.Context, t *target) (containerizer.ContainerConfig, error) {
	c := t.container
	cfg := containerizer.ContainerConfig{
		Name:  t.name(),
		Image: containerizer.ImageRef(c.Image, c.ImageVersion),
		Env:   make(map[string]string),
	}
	for _, o := range c.Options {
		if o.Value != "" {
			cfg.Env[o.Name] = o.Value
		}
	}

	ip := ""
	if t.server.PublicIP {
		ip = t.server.IP
	}
	for _, b := range c.Ports {
		cfg.Ports = append(cfg.Ports, containerizer.PortMapping(ip, b))
	}
	for _, v := range c.Volumes {
		if m, ok := containerizer.VolumeMount(v); ok {
			cfg.Volumes = append(cfg.Volumes, m)
		}
	}

	for _, id := range c.VolumesFrom {
		name, _, err := p.containerName(ctx, id)
		if err != nil {
			return cfg, err
		}
		cfg.VolumesFrom = append(cfg.VolumesFrom, name)
	}

	for _, l := range c.Links {
		if !l.MakeLink || l.Target == "" {
			continue
		}
		name, serverID, err := p.containerName(ctx, l.Target)
		if err != nil {
			return cfg, err
		}
		if serverID != c.ServerID {
			continue
		}
		cfg.Links = append(cfg.Links, name+":"+l.Application)
	}
	return cfg, nil
}

func (p *pass) containerName(ctx context.Context, id string) (string, string, error) {
	c, err := p.o.store.GetContainer(ctx, id)
	if err != nil {
		return "", "", err
	}
	env, err := p.o.store.GetEnvironment(ctx, c.EnvironmentID)
	if err != nil {
		return "", "", err
	}
	return model.ContainerName(env.Prefix, c.Suffix), c.ServerID, nil
}

// PurgeContainer removes the runtime of a container, or purges and deletes
// its children.
func (o *Orchestrator) PurgeContainer(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		c, err := o.store.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		_, err = p.purgeContainer(ctx, c)
		return err
	})
}

// purgeContainer returns the save taken before removal, if any.
func (p *pass) purgeContainer(ctx context.Context, c *model.Container) (*model.Save, error) {
	if len(c.Children) > 0 {
		return nil, p.purgeChildren(ctx, c)
	}

	t, err := p.target(ctx, c)
	if err != nil {
		return nil, err
	}
	logging.Info(orchestratorSubsystem, "Purging container %s", t.fullname())

	res, err := p.saveContainer(ctx, t, true, "Before purge")
	if err != nil {
		return nil, err
	}

	deployed := c.State == model.ContainerDeployed
	c.State = model.ContainerRemoving
	if err := p.o.store.UpdateContainer(ctx, c); err != nil {
		return nil, err
	}
	if err := p.purgeContainerLinks(ctx, t); err != nil {
		return nil, err
	}

	// Nothing runs before the first deploy.
	if deployed {
		if err := p.o.runtime.Stop(ctx, t.session, t.name()); err != nil {
			return nil, err
		}
	}
	if err := p.hook(ctx, t, catalog.HookPrePurge, nil); err != nil {
		return nil, err
	}
	if err := p.o.runtime.Remove(ctx, t.session, t.name()); err != nil {
		return nil, err
	}

	c.State = model.ContainerAbsent
	if err := p.o.store.UpdateContainer(ctx, c); err != nil {
		return nil, err
	}
	logging.Info(orchestratorSubsystem, "Container %s purged", t.fullname())

	if len(res.Saves) == 0 {
		return nil, nil
	}
	return &res.Saves[0], nil
}

// DeleteContainer purges a container and deletes its record. Containers
// hosting bases cannot be deleted.
func (o *Orchestrator) DeleteContainer(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		c, err := o.store.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		return p.deleteContainer(ctx, c)
	})
}

func (p *pass) deleteContainer(ctx context.Context, c *model.Container) error {
	hosted, err := p.o.store.ListBases(ctx, store.BaseFilter{ContainerID: c.ID})
	if err != nil {
		return err
	}
	if len(hosted) > 0 {
		return api.NewValidationError("container", "bases", fmt.Sprintf("container %s still hosts %d bases", c.Suffix, len(hosted)))
	}
	if _, err := p.purgeContainer(ctx, c); err != nil {
		return err
	}

	if c.InChildSlot() {
		parent, err := p.o.store.GetContainer(ctx, c.ParentID)
		if err == nil {
			if _, idx, ok := model.FindSlot(parent.Children, c.ParentSlotID); ok && parent.Children[idx].ChildID == c.ID {
				parent.Children[idx].ChildID = ""
				if err := p.o.store.UpdateContainer(ctx, parent); err != nil {
					return err
				}
			}
		} else if !api.IsNotFound(err) {
			return err
		}
	}
	return p.o.store.DeleteContainer(ctx, c.ID)
}

// StartContainer starts the runtime of a container.
func (o *Orchestrator) StartContainer(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		c, err := o.store.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		t, err := p.target(ctx, c)
		if err != nil {
			return err
		}
		return o.runtime.Start(ctx, t.session, t.name())
	})
}

// StopContainer stops the runtime of a container.
func (o *Orchestrator) StopContainer(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		c, err := o.store.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		t, err := p.target(ctx, c)
		if err != nil {
			return err
		}
		return o.runtime.Stop(ctx, t.session, t.name())
	})
}

// ReinstallContainer saves a container, then recreates its runtime.
func (o *Orchestrator) ReinstallContainer(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		c, err := o.store.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		if _, err := p.checkPriority(ctx, c); err != nil {
			return err
		}
		return p.reinstallContainer(ctx, c, "Before reinstall")
	})
}

func (p *pass) reinstallContainer(ctx context.Context, c *model.Container, comment string) error {
	if len(c.Children) > 0 {
		for _, slot := range c.SortedChildren() {
			if slot.ChildID == "" {
				continue
			}
			child, err := p.o.store.GetContainer(ctx, slot.ChildID)
			if err != nil {
				return err
			}
			if err := p.reinstallContainer(ctx, child, comment); err != nil {
				return err
			}
		}
		return nil
	}

	t, err := p.target(ctx, c)
	if err != nil {
		return err
	}
	if _, err := p.saveContainer(ctx, t, true, comment); err != nil {
		return err
	}

	logging.Info(orchestratorSubsystem, "Reinstalling container %s", t.fullname())
	if err := p.o.runtime.Remove(ctx, t.session, t.name()); err != nil {
		return err
	}
	cfg, err := p.runtimeConfig(ctx, t)
	if err != nil {
		return err
	}
	if err := p.o.runtime.Run(ctx, t.session, cfg); err != nil {
		return err
	}
	if err := p.hook(ctx, t, catalog.HookPostDeploy, nil); err != nil {
		return err
	}
	if err := p.o.runtime.Start(ctx, t.session, t.name()); err != nil {
		return err
	}
	c.State = model.ContainerDeployed
	if err := p.o.store.UpdateContainer(ctx, c); err != nil {
		return err
	}
	return p.restartLaterSiblings(ctx, c)
}

// restartLaterSiblings restarts the siblings declared after c, which may
// depend on it.
func (p *pass) restartLaterSiblings(ctx context.Context, c *model.Container) error {
	if !c.InChildSlot() {
		return nil
	}
	parent, err := p.o.store.GetContainer(ctx, c.ParentID)
	if err != nil {
		return err
	}
	own, _, ok := model.FindSlot(parent.Children, c.ParentSlotID)
	if !ok {
		return nil
	}
	for _, slot := range parent.SortedChildren() {
		if slot.Sequence <= own.Sequence || slot.ChildID == "" {
			continue
		}
		sibling, err := p.o.store.GetContainer(ctx, slot.ChildID)
		if err != nil {
			return err
		}
		if sibling.State != model.ContainerDeployed {
			continue
		}
		t, err := p.target(ctx, sibling)
		if err != nil {
			return err
		}
		if err := p.o.runtime.Stop(ctx, t.session, t.name()); err != nil {
			return err
		}
		if err := p.o.runtime.Start(ctx, t.session, t.name()); err != nil {
			return err
		}
	}
	return nil
}

// UpdateContainer saves a container, applies its pending version and
// reinstalls it, children first for delegating containers. When the
// application of the container or of one of its updated children sets
// updateBases, the bases hosted on the container and on its parent are
// updated afterwards.
func (o *Orchestrator) UpdateContainer(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		c, err := o.store.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		return p.updateContainer(ctx, c)
	})
}

func (p *pass) updateContainer(ctx context.Context, c *model.Container) error {
	updateBases, err := p.upgradeContainer(ctx, c)
	if err != nil || !updateBases {
		return err
	}
	hosts := []string{c.ID}
	if c.InChildSlot() {
		hosts = append(hosts, c.ParentID)
	}
	return p.updateHostedBases(ctx, hosts...)
}

// upgradeContainer reinstalls c on its pending version, or upgrades its
// children in descending priority order. It reports whether c or an upgraded
// child belongs to an application that sets updateBases.
func (p *pass) upgradeContainer(ctx context.Context, c *model.Container) (bool, error) {
	app, err := p.application(c.ApplicationCode)
	if err != nil {
		return false, err
	}
	if app.UpdateStrategy == catalog.UpdateNever {
		logging.Info(orchestratorSubsystem, "Skipping update of %s: application %s is never updated", c.Suffix, app.Code)
		return false, nil
	}
	g, err := p.checkPriority(ctx, c)
	if err != nil {
		return false, err
	}

	updateBases := app.UpdateBases
	if len(c.Children) > 0 {
		children, err := p.childrenByPriority(ctx, c, g)
		if err != nil {
			return false, err
		}
		for _, child := range children {
			flagged, err := p.upgradeContainer(ctx, child)
			if err != nil {
				return false, err
			}
			updateBases = updateBases || flagged
		}
		return updateBases, nil
	}

	if c.PendingVersion != "" {
		logging.Info(orchestratorSubsystem, "Upgrading %s from %s to %s", c.Suffix, c.ImageVersion, c.PendingVersion)
		c.ImageVersion = c.PendingVersion
		c.PendingVersion = ""
		if err := p.o.store.UpdateContainer(ctx, c); err != nil {
			return false, err
		}
	}
	if err := p.reinstallContainer(ctx, c, "Before update"); err != nil {
		return false, err
	}
	return updateBases, nil
}

// childrenByPriority loads the resolved children of c, highest pending
// priority in their subtree first, then by sequence.
func (p *pass) childrenByPriority(ctx context.Context, c *model.Container, g *dependency.Graph) ([]*model.Container, error) {
	var children []*model.Container
	for _, slot := range c.SortedChildren() {
		if slot.ChildID == "" {
			continue
		}
		child, err := p.o.store.GetContainer(ctx, slot.ChildID)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	sort.SliceStable(children, func(i, j int) bool {
		return g.MaxPriorityWithin(dependency.NodeID(children[i].ID)) > g.MaxPriorityWithin(dependency.NodeID(children[j].ID))
	})
	return children, nil
}

// updateHostedBases updates every base hosted on the given containers once.
func (p *pass) updateHostedBases(ctx context.Context, containerIDs ...string) error {
	seen := make(map[string]bool)
	for _, id := range containerIDs {
		hosted, err := p.o.store.ListBases(ctx, store.BaseFilter{ContainerID: id})
		if err != nil {
			return err
		}
		for i := range hosted {
			if seen[hosted[i].ID] {
				continue
			}
			seen[hosted[i].ID] = true
			if err := p.updateBase(ctx, &hosted[i], true); err != nil {
				return err
			}
		}
	}
	return nil
}
