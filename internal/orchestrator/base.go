package orchestrator

import (
	"context"
	"fmt"

	"steward/internal/api"
	"steward/internal/catalog"
	"steward/internal/links"
	"steward/internal/model"
	"steward/internal/reconcile"
	"steward/internal/store"
	"steward/pkg/logging"
)

// BaseRequest describes a base to create. Empty fields take the application
// defaults.
type BaseRequest struct {
	Name            string
	DomainID        string
	EnvironmentID   string
	Title           string
	ApplicationCode string
	ContainerID     string

	AdminName         string
	AdminPassword     string
	AdminEmail        string
	PoweruserName     string
	PoweruserPassword string
	PoweruserEmail    string

	Build   model.BuildMode
	SSLOnly bool
	Test    bool
	Lang    string

	Options     map[string]string
	Metadata    map[string]string
	LinkTargets map[string]string

	BackupIDs       []string
	Autosave        *bool
	TimeBetweenSave int
	SaveExpiration  int
	SaveComment     string

	ParentID      string
	ParentSlotID  string
	RestoreSaveID string
}

// CreateBase validates and stores a new base. With AutoCreate set and no
// container given, a container is created and deployed for it first.
func (o *Orchestrator) CreateBase(ctx context.Context, req BaseRequest, opts Options) (*model.Base, error) {
	var b *model.Base
	err := o.run(ctx, opts, func(p *pass) error {
		var err error
		b, err = p.createBase(ctx, req, nil)
		return err
	})
	return b, err
}

func (p *pass) createBase(ctx context.Context, req BaseRequest, fallbackBackups []string) (*model.Base, error) {
	app, err := p.application(req.ApplicationCode)
	if err != nil {
		return nil, err
	}
	if _, err := p.o.store.GetDomain(ctx, req.DomainID); err != nil {
		return nil, err
	}

	containerID := req.ContainerID
	if containerID == "" && p.opts.AutoCreate {
		c, err := p.autoCreateContainer(ctx, req, app)
		if err != nil {
			return nil, err
		}
		containerID = c.ID
	}
	if containerID == "" {
		containerID = app.NextContainer
	}
	if containerID == "" {
		return nil, api.NewValidationError("base", "container", "is required and application "+app.Code+" has no default container")
	}
	c, err := p.o.store.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if c.ApplicationCode != app.Code {
		return nil, api.NewValidationError("base", "application", fmt.Sprintf("must match the application %s of container %s", c.ApplicationCode, c.Suffix))
	}

	b := &model.Base{
		Name:              req.Name,
		DomainID:          req.DomainID,
		EnvironmentID:     req.EnvironmentID,
		Title:             req.Title,
		ApplicationCode:   app.Code,
		ContainerID:       c.ID,
		AdminName:         req.AdminName,
		AdminPassword:     req.AdminPassword,
		AdminEmail:        req.AdminEmail,
		PoweruserName:     req.PoweruserName,
		PoweruserPassword: req.PoweruserPassword,
		PoweruserEmail:    req.PoweruserEmail,
		Build:             req.Build,
		SSLOnly:           req.SSLOnly,
		Test:              req.Test,
		Lang:              req.Lang,
		State:             model.BaseInstalling,
		Autosave:          app.Autosave,
		TimeBetweenSave:   req.TimeBetweenSave,
		SaveExpiration:    req.SaveExpiration,
		SaveComment:       req.SaveComment,
		ParentID:          req.ParentID,
		ParentSlotID:      req.ParentSlotID,
		RestoreSaveID:     req.RestoreSaveID,
	}
	if b.EnvironmentID == "" {
		b.EnvironmentID = c.EnvironmentID
	}
	if b.Title == "" {
		b.Title = b.Name
	}
	if b.AdminName == "" {
		b.AdminName = app.AdminName
	}
	if b.AdminEmail == "" {
		b.AdminEmail = app.AdminEmail
	}
	if b.Build == "" {
		b.Build = model.BuildBuild
	}
	if b.Lang == "" {
		b.Lang = "en_US"
	}
	if req.Autosave != nil {
		b.Autosave = *req.Autosave
	}

	b.BackupIDs, err = p.backupDestinations(ctx, app, req.BackupIDs, app.BaseBackup, fallbackBackups)
	if err != nil {
		return nil, err
	}
	if len(b.BackupIDs) == 0 && !app.HasTags(catalog.TagNoBackup) {
		return nil, api.NewValidationError("base", "backups", "at least one backup destination is required")
	}

	desired, err := reconcile.Reconcile(reconcile.BaseCapabilities(), reconcile.Input{
		Application: app,
		OptionSpecs: p.cat.OptionSpecs(app),
		Existing:    reconcile.State{Links: explicitLinks(app, req.LinkTargets)},
		Overrides:   reconcile.Overrides{Options: req.Options, Metadata: req.Metadata},
	})
	if err != nil {
		return nil, err
	}
	desired.ApplyToBase(b)

	b.Links, err = p.o.resolver.ResolveAll(ctx, links.BaseOwner(b), app, b.Links, p.opts.LinkOverrides)
	if err != nil {
		return nil, err
	}

	if err := p.o.store.CreateBase(ctx, b); err != nil {
		return nil, err
	}
	logging.Info(orchestratorSubsystem, "Created base %s (%s) on container %s", b.Name, app.Code, c.Suffix)
	return b, nil
}

// ReconcileBase merges the current catalog into an existing base and
// resolves its links again.
func (o *Orchestrator) ReconcileBase(ctx context.Context, id string, opts Options) (*model.Base, error) {
	var b *model.Base
	err := o.run(ctx, opts, func(p *pass) error {
		var err error
		b, err = o.store.GetBase(ctx, id)
		if err != nil {
			return err
		}
		app, err := p.application(b.ApplicationCode)
		if err != nil {
			return err
		}
		desired, err := reconcile.Reconcile(reconcile.BaseCapabilities(), reconcile.Input{
			Application: app,
			OptionSpecs: p.cat.OptionSpecs(app),
			Existing:    reconcile.BaseState(b),
		})
		if err != nil {
			return err
		}
		desired.ApplyToBase(b)
		b.Links, err = o.resolver.ResolveAll(ctx, links.BaseOwner(b), app, b.Links, opts.LinkOverrides)
		if err != nil {
			return err
		}
		return o.store.UpdateBase(ctx, b)
	})
	return b, err
}

// autoCreateContainer creates and deploys the container of a new base on the
// application's default server.
func (p *pass) autoCreateContainer(ctx context.Context, req BaseRequest, app *catalog.Application) (*model.Container, error) {
	if app.NextServer == "" {
		return nil, api.NewValidationError("base", "container", "cannot be created: application "+app.Code+" has no default server")
	}
	img, err := p.cat.Image(app.Image)
	if err != nil {
		return nil, err
	}
	if selectVersion("", app, img) == "" {
		return nil, api.NewValidationError("base", "container", "cannot be created: image "+img.Name+" has no version")
	}
	env := req.EnvironmentID
	if env == "" {
		return nil, api.NewValidationError("base", "environment", "is required to create its container")
	}
	c, err := p.createContainer(ctx, ContainerRequest{
		EnvironmentID:   env,
		ServerID:        app.NextServer,
		Suffix:          req.Name,
		ApplicationCode: app.Code,
		BackupIDs:       req.BackupIDs,
	}, nil)
	if err != nil {
		return nil, err
	}
	if err := p.deployContainer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// baseTarget loads a base's host container target and template values.
func (p *pass) baseTarget(ctx context.Context, b *model.Base) (*target, map[string]interface{}, error) {
	c, err := p.o.store.GetContainer(ctx, b.ContainerID)
	if err != nil {
		return nil, nil, err
	}
	t, err := p.target(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	d, err := p.o.store.GetDomain(ctx, b.DomainID)
	if err != nil {
		return nil, nil, err
	}
	return t, baseContext(b, d, t.appType), nil
}

// DeployBase installs a base in its container, or creates and deploys its
// children.
func (o *Orchestrator) DeployBase(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		b, err := o.store.GetBase(ctx, id)
		if err != nil {
			return err
		}
		return p.deployBase(ctx, b)
	})
}

func (p *pass) deployBase(ctx context.Context, b *model.Base) error {
	if len(b.Children) > 0 {
		return p.deployBaseChildren(ctx, b)
	}

	app, err := p.application(b.ApplicationCode)
	if err != nil {
		return err
	}
	resolved, err := p.o.resolver.ResolveAll(ctx, links.BaseOwner(b), app, b.Links, p.opts.LinkOverrides)
	if err != nil {
		return err
	}
	b.Links = resolved

	t, bc, err := p.baseTarget(ctx, b)
	if err != nil {
		return err
	}
	logging.Info(orchestratorSubsystem, "Deploying base %s on %s", bc["fulldomain"], t.fullname())

	b.State = model.BaseInstalling
	if err := p.o.store.UpdateBase(ctx, b); err != nil {
		return err
	}
	extra := map[string]interface{}{"base": bc}

	if b.Build == model.BuildRestore && b.RestoreSaveID != "" {
		save, err := p.o.store.GetSave(ctx, b.RestoreSaveID)
		if err != nil {
			return err
		}
		if err := p.restoreBaseData(ctx, t, bc, save); err != nil {
			return err
		}
	} else {
		if err := p.hook(ctx, t, catalog.HookDeployDatabase, extra); err != nil {
			return err
		}
		if b.Build == model.BuildBuild {
			if err := p.hook(ctx, t, catalog.HookDeployBuild, extra); err != nil {
				return err
			}
		}
	}

	if b.Build != model.BuildNone && b.PoweruserName != "" && b.PoweruserEmail != "" && b.PoweruserName != b.AdminName {
		if err := p.hook(ctx, t, catalog.HookCreatePoweruser, extra); err != nil {
			return err
		}
	}
	if b.Build != model.BuildNone && b.Test {
		if err := p.hook(ctx, t, catalog.HookDeployTest, extra); err != nil {
			return err
		}
	}

	owner, err := p.baseLinkOwner(ctx, b)
	if err != nil {
		return err
	}
	if err := p.deployBaseLinks(ctx, owner, b); err != nil {
		return err
	}
	if err := p.hook(ctx, t, catalog.HookPostDeploy, extra); err != nil {
		return err
	}

	b.State = model.BaseEnabled
	if err := p.o.store.UpdateBase(ctx, b); err != nil {
		return err
	}
	if _, err := p.saveBase(ctx, b, true, "First save"); err != nil {
		return err
	}

	if t.app.UpdateBases {
		if err := p.hook(ctx, t, catalog.HookRefresh, nil); err != nil {
			return err
		}
	}
	logging.Info(orchestratorSubsystem, "Base %s deployed", bc["fulldomain"])
	return nil
}

// PurgeBase saves a base and drops its database, or purges its children.
func (o *Orchestrator) PurgeBase(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		b, err := o.store.GetBase(ctx, id)
		if err != nil {
			return err
		}
		_, err = p.purgeBase(ctx, b)
		return err
	})
}

func (p *pass) purgeBase(ctx context.Context, b *model.Base) (*model.Save, error) {
	if len(b.Children) > 0 {
		return nil, p.purgeBaseChildren(ctx, b)
	}

	res, err := p.saveBase(ctx, b, true, "Before purge")
	if err != nil {
		return nil, err
	}

	t, bc, err := p.baseTarget(ctx, b)
	if err != nil {
		return nil, err
	}
	logging.Info(orchestratorSubsystem, "Purging base %s", bc["fulldomain"])

	b.State = model.BaseRemoving
	if err := p.o.store.UpdateBase(ctx, b); err != nil {
		return nil, err
	}
	owner, err := p.baseLinkOwner(ctx, b)
	if err != nil {
		return nil, err
	}
	if err := p.purgeBaseLinks(ctx, owner, b); err != nil {
		return nil, err
	}
	if err := p.hook(ctx, t, catalog.HookPurgeDatabase, map[string]interface{}{"base": bc}); err != nil {
		return nil, err
	}

	if len(res.Saves) == 0 {
		return nil, nil
	}
	return &res.Saves[0], nil
}

// DeleteBase purges a base and deletes its record.
func (o *Orchestrator) DeleteBase(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		b, err := o.store.GetBase(ctx, id)
		if err != nil {
			return err
		}
		if _, err := p.purgeBase(ctx, b); err != nil {
			return err
		}
		if b.InChildSlot() {
			parent, err := o.store.GetBase(ctx, b.ParentID)
			if err == nil {
				if _, idx, ok := model.FindSlot(parent.Children, b.ParentSlotID); ok && parent.Children[idx].ChildID == b.ID {
					parent.Children[idx].ChildID = ""
					if err := o.store.UpdateBase(ctx, parent); err != nil {
						return err
					}
				}
			} else if !api.IsNotFound(err) {
				return err
			}
		}
		return o.store.DeleteBase(ctx, b.ID)
	})
}

// UpdateBase saves a base and runs its update_base hook.
func (o *Orchestrator) UpdateBase(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		b, err := o.store.GetBase(ctx, id)
		if err != nil {
			return err
		}
		return p.updateBase(ctx, b, true)
	})
}

func (p *pass) updateBase(ctx context.Context, b *model.Base, save bool) error {
	if len(b.Children) > 0 {
		for _, slot := range b.SortedChildren() {
			if slot.ChildID == "" {
				continue
			}
			child, err := p.o.store.GetBase(ctx, slot.ChildID)
			if err != nil {
				return err
			}
			if err := p.updateBase(ctx, child, save); err != nil {
				return err
			}
		}
		return nil
	}

	if save {
		if _, err := p.saveBase(ctx, b, true, "Before update"); err != nil {
			return err
		}
	}
	t, bc, err := p.baseTarget(ctx, b)
	if err != nil {
		return err
	}
	logging.Info(orchestratorSubsystem, "Updating base %s", bc["fulldomain"])
	if err := p.hook(ctx, t, catalog.HookUpdateBase, map[string]interface{}{"base": bc}); err != nil {
		return err
	}
	b.State = model.BaseEnabled
	return p.o.store.UpdateBase(ctx, b)
}

// ResetBase restores a fresh save of the base, or of its reset source, into
// the base itself or into the destination named by opts.ResetName and
// opts.ResetContainer.
func (o *Orchestrator) ResetBase(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		b, err := o.store.GetBase(ctx, id)
		if err != nil {
			return err
		}
		_, err = p.resetBase(ctx, b, opts.ResetName, opts.ResetContainer)
		return err
	})
}

func (p *pass) resetBase(ctx context.Context, b *model.Base, name, containerID string) (*model.Base, error) {
	reference := b
	if b.ResetID != "" && b.ResetID != b.ID {
		src, err := p.o.store.GetBase(ctx, b.ResetID)
		switch {
		case err == nil:
			reference = src
		case api.IsNotFound(err):
			logging.Warn(orchestratorSubsystem, "Reset source %s of %s is gone, resetting from itself", b.ResetID, b.Name)
		default:
			return nil, err
		}
	}

	res, err := p.saveBase(ctx, reference, true, "Before reset")
	if err != nil {
		return nil, err
	}
	if len(res.Saves) == 0 {
		return nil, api.NewValidationError("base", "backups", fmt.Sprintf("base %s cannot be saved, nothing to reset from", reference.Name))
	}
	save := &res.Saves[0]

	dest, created, err := p.resetDestination(ctx, b, name, containerID, save)
	if err != nil {
		return nil, err
	}
	save.RestoreToName = dest.Name
	save.RestoreToDomainID = dest.DomainID
	save.RestoreToContainerID = dest.ContainerID
	if err := p.o.store.UpdateSave(ctx, save); err != nil {
		return nil, err
	}

	if created {
		// The new base restores the save while deploying.
		if err := p.deployBase(ctx, dest); err != nil {
			return nil, err
		}
	} else {
		t, bc, err := p.baseTarget(ctx, dest)
		if err != nil {
			return nil, err
		}
		if err := p.restoreBaseData(ctx, t, bc, save); err != nil {
			return nil, err
		}
	}

	dest.ResetID = reference.ID
	if err := p.o.store.UpdateBase(ctx, dest); err != nil {
		return nil, err
	}

	t, bc, err := p.baseTarget(ctx, dest)
	if err != nil {
		return nil, err
	}
	extra := map[string]interface{}{"base": bc, "save": saveContext(save, p.o.saveDir)}
	if err := p.hook(ctx, t, catalog.HookPostReset, extra); err != nil {
		return nil, err
	}

	owner, err := p.baseLinkOwner(ctx, dest)
	if err != nil {
		return nil, err
	}
	if err := p.purgeBaseLinks(ctx, owner, dest); err != nil {
		return nil, err
	}
	if err := p.deployBaseLinks(ctx, owner, dest); err != nil {
		return nil, err
	}

	if err := p.updateBase(ctx, dest, false); err != nil {
		return nil, err
	}
	if err := p.hook(ctx, t, catalog.HookPostDeploy, map[string]interface{}{"base": bc}); err != nil {
		return nil, err
	}
	logging.Info(orchestratorSubsystem, "Base %s reset from %s (generation %s)", dest.Name, reference.Name, save.Generation)
	return dest, nil
}

// resetDestination returns the base a reset restores into, creating it when
// a new name or container is requested and no such base exists.
func (p *pass) resetDestination(ctx context.Context, b *model.Base, name, containerID string, save *model.Save) (*model.Base, bool, error) {
	if name == "" && containerID == "" {
		return b, false, nil
	}
	if name == "" {
		name = b.Name
	}
	if containerID == "" {
		containerID = b.ContainerID
	}

	existing, err := p.o.store.ListBases(ctx, store.BaseFilter{Name: name, DomainID: b.DomainID})
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		dest := &existing[0]
		if dest.ContainerID != containerID {
			return nil, false, api.NewValidationError("base", "name", fmt.Sprintf("%s already exists on another container", name))
		}
		return dest, false, nil
	}

	dest, err := p.createBase(ctx, BaseRequest{
		Name:              name,
		DomainID:          b.DomainID,
		EnvironmentID:     b.EnvironmentID,
		Title:             b.Title,
		ApplicationCode:   b.ApplicationCode,
		ContainerID:       containerID,
		AdminName:         b.AdminName,
		AdminPassword:     b.AdminPassword,
		AdminEmail:        b.AdminEmail,
		PoweruserName:     b.PoweruserName,
		PoweruserPassword: b.PoweruserPassword,
		PoweruserEmail:    b.PoweruserEmail,
		Build:             model.BuildRestore,
		SSLOnly:           b.SSLOnly,
		Lang:              b.Lang,
		BackupIDs:         b.BackupIDs,
		RestoreSaveID:     save.ID,
		LinkTargets:       linkTargets(b.Links),
	}, nil)
	if err != nil {
		return nil, false, err
	}
	return dest, true, nil
}

func linkTargets(ls []model.Link) map[string]string {
	out := make(map[string]string, len(ls))
	for _, l := range ls {
		if l.Target != "" {
			out[l.Application] = l.Target
		}
	}
	return out
}
