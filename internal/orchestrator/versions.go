package orchestrator

import (
	"context"
	"fmt"
	"path"

	"al.essio.dev/pkg/shellescape"

	"steward/internal/api"
	"steward/internal/catalog"
	"steward/internal/model"
	"steward/internal/store"
	"steward/pkg/logging"
)

// VersionTimeFormat is appended to the application's current version to name
// a build.
const VersionTimeFormat = "20060102.1504"

// BuildVersion records a new version of an application and builds its
// archive on the application's archive container.
func (o *Orchestrator) BuildVersion(ctx context.Context, applicationCode string, opts Options) (*model.ApplicationVersion, error) {
	var v *model.ApplicationVersion
	err := o.run(ctx, opts, func(p *pass) error {
		app, err := p.application(applicationCode)
		if err != nil {
			return err
		}
		if app.Archive == "" {
			return api.NewValidationError("version", "archive", "application "+app.Code+" has no archive container")
		}
		if _, err := o.store.GetContainer(ctx, app.Archive); err != nil {
			return err
		}
		if app.CurrentVersion == "" {
			return api.NewValidationError("version", "name", "application "+app.Code+" has no current version")
		}

		v = &model.ApplicationVersion{
			ApplicationCode: app.Code,
			Name:            app.CurrentVersion + "." + o.now().Format(VersionTimeFormat),
			ArchiveID:       app.Archive,
		}
		if err := model.Validate("version", v); err != nil {
			return err
		}
		if err := o.store.CreateVersion(ctx, v); err != nil {
			return err
		}
		logging.Info(orchestratorSubsystem, "Created version %s of %s", v.Name, app.Code)
		return p.deployVersion(ctx, v)
	})
	return v, err
}

// DeployVersion builds the archive of an existing version.
func (o *Orchestrator) DeployVersion(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		v, err := o.store.GetVersion(ctx, id)
		if err != nil {
			return err
		}
		return p.deployVersion(ctx, v)
	})
}

func (p *pass) archiveTarget(ctx context.Context, v *model.ApplicationVersion) (*target, *catalog.Application, string, error) {
	app, err := p.application(v.ApplicationCode)
	if err != nil {
		return nil, nil, "", err
	}
	archive, err := p.o.store.GetContainer(ctx, v.ArchiveID)
	if err != nil {
		return nil, nil, "", err
	}
	t, err := p.target(ctx, archive)
	if err != nil {
		return nil, nil, "", err
	}
	return t, app, path.Join(app.ArchivePath(), v.Name), nil
}

func (p *pass) deployVersion(ctx context.Context, v *model.ApplicationVersion) error {
	t, app, dir, err := p.archiveTarget(ctx, v)
	if err != nil {
		return err
	}
	logging.Info(orchestratorSubsystem, "Building version %s of %s on %s", v.Name, app.Code, t.fullname())

	if _, err := p.o.runtime.Exec(ctx, t.session, t.name(), t.appType.SystemUser, "mkdir -p "+dir); err != nil {
		return err
	}
	build := map[string]interface{}{
		"application": app.Code,
		"name":        v.Name,
		"path":        dir,
		"buildFile":   app.BuildFile,
	}
	if err := p.hookOf(ctx, t, app, catalog.HookBuildVersion, map[string]interface{}{"build": build}); err != nil {
		return err
	}

	staged := path.Join("/tmp", fmt.Sprintf("%s-%s-VERSION.txt", app.Code, v.Name))
	if err := t.session.SendFile(ctx, []byte(v.Name+"\n"), staged); err != nil {
		return err
	}
	if err := p.o.runtime.Copy(ctx, t.session, staged, t.name()+":"+path.Join(dir, "VERSION.txt")); err != nil {
		return err
	}
	if _, err := t.session.Execute(ctx, []string{"rm", "-f", staged}); err != nil {
		logging.Warn(orchestratorSubsystem, "Failed to remove %s on %s: %v", staged, t.server.FullDomain(), err)
	}

	pack := fmt.Sprintf("tar czf %s.tar.gz -C %s . && rm -rf %s", dir, dir, dir)
	if _, err := p.o.runtime.Exec(ctx, t.session, t.name(), t.appType.SystemUser, pack); err != nil {
		return err
	}
	logging.Info(orchestratorSubsystem, "Version %s of %s archived", v.Name, app.Code)
	return nil
}

// PurgeVersion removes the archive of a version.
func (o *Orchestrator) PurgeVersion(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		v, err := o.store.GetVersion(ctx, id)
		if err != nil {
			return err
		}
		return p.purgeVersion(ctx, v)
	})
}

func (p *pass) purgeVersion(ctx context.Context, v *model.ApplicationVersion) error {
	t, _, dir, err := p.archiveTarget(ctx, v)
	if err != nil {
		return err
	}
	_, err = p.o.runtime.Exec(ctx, t.session, t.name(), t.appType.SystemUser, shellescape.QuoteCommand([]string{"rm", "-rf", dir + ".tar.gz", dir}))
	return err
}

// DeleteVersion purges a version and deletes its record. Versions still
// run by a container cannot be deleted.
func (o *Orchestrator) DeleteVersion(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		v, err := o.store.GetVersion(ctx, id)
		if err != nil {
			return err
		}
		users, err := o.store.ListContainers(ctx, store.ContainerFilter{Application: v.ApplicationCode})
		if err != nil {
			return err
		}
		for _, c := range users {
			if c.ImageVersion == v.Name {
				return api.NewValidationError("version", "name", fmt.Sprintf("%s is still used by container %s", v.Name, c.Suffix))
			}
		}
		if err := p.purgeVersion(ctx, v); err != nil {
			return err
		}
		return o.store.DeleteVersion(ctx, v.ID)
	})
}
