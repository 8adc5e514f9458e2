package orchestrator

import (
	"context"

	"steward/internal/api"
	"steward/internal/model"
)

// SubserviceRequest duplicates a container under a new name.
type SubserviceRequest struct {
	ContainerID string
	Name        string

	// Bases are reset into the new container as <base>-<name>.
	BaseIDs []string
}

// InstallSubservice creates and deploys a copy of a container named
// <suffix>-<name>. Its links keep the source's targets unless
// opts.LinkOverrides names another one for the application.
func (o *Orchestrator) InstallSubservice(ctx context.Context, req SubserviceRequest, opts Options) (*model.Container, error) {
	if req.Name == "" {
		return nil, api.NewValidationError("subservice", "name", "is required")
	}
	var sub *model.Container
	err := o.run(ctx, opts, func(p *pass) error {
		src, err := o.store.GetContainer(ctx, req.ContainerID)
		if err != nil {
			return err
		}
		app, err := p.application(src.ApplicationCode)
		if err != nil {
			return err
		}

		targets := make(map[string]string)
		for _, l := range src.Links {
			if l.Target != "" {
				targets[l.Application] = l.Target
			}
		}
		for _, spec := range app.Links {
			target, err := p.application(spec.Target)
			if err != nil {
				continue
			}
			if id, ok := opts.LinkOverrides[target.FullCode()]; ok {
				targets[spec.Target] = id
			}
		}

		autosave := src.Autosave
		sub, err = p.createContainer(ctx, ContainerRequest{
			EnvironmentID:   src.EnvironmentID,
			ServerID:        src.ServerID,
			Suffix:          src.Suffix + "-" + req.Name,
			ApplicationCode: src.ApplicationCode,
			Image:           src.Image,
			ImageVersion:    src.ImageVersion,
			Options:         model.OptionValues(src.Options),
			LinkTargets:     targets,
			BackupIDs:       src.BackupIDs,
			Autosave:        &autosave,
			TimeBetweenSave: src.TimeBetweenSave,
			SaveExpiration:  src.SaveExpiration,
			SaveComment:     src.SaveComment,
			FromID:          src.ID,
		}, nil)
		if err != nil {
			return err
		}
		if err := p.deployContainer(ctx, sub); err != nil {
			return err
		}

		for _, id := range req.BaseIDs {
			b, err := o.store.GetBase(ctx, id)
			if err != nil {
				return err
			}
			if b.ContainerID != src.ID {
				return api.NewValidationError("subservice", "bases", "base "+b.Name+" is not hosted on "+src.Suffix)
			}
			if _, err := p.resetBase(ctx, b, b.Name+"-"+req.Name, sub.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return sub, err
}
