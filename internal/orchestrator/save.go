package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"

	"steward/internal/api"
	"steward/internal/backup"
	"steward/internal/catalog"
	"steward/internal/model"
	"steward/internal/queue"
	"steward/internal/remote"
	"steward/internal/store"
	"steward/pkg/logging"
)

// volumeKey names the directory a volume is copied to inside a save.
func volumeKey(p string) string {
	return strings.ReplaceAll(strings.Trim(p, "/"), "/", "_")
}

func (p *pass) saveOptions(force bool, comment string) backup.Options {
	if p.opts.Comment != "" {
		comment = p.opts.Comment
	}
	return backup.Options{
		Force:   force || p.opts.Force,
		NoSave:  p.opts.NoSave,
		Comment: comment,
	}
}

// saveContainer records a save of every saved volume of t. Delegating
// containers are never saved themselves. The copy is skipped when nothing
// runs yet, the record is kept.
func (p *pass) saveContainer(ctx context.Context, t *target, force bool, comment string) (backup.Result, error) {
	c := t.container
	if len(c.Children) > 0 {
		return backup.Result{Generation: p.backup.Generation(), Skipped: true}, nil
	}
	subject := backup.Subject{
		Kind:            model.KindContainer,
		ID:              c.ID,
		Fullname:        t.fullname(),
		ApplicationCode: c.ApplicationCode,
		ContainerID:     c.ID,
		Autosave:        c.Autosave,
		NoBackup:        t.app.HasTags(catalog.TagNoBackup),
		TimeBetweenSave: c.TimeBetweenSave,
		SaveExpiration:  c.SaveExpiration,
		BackupIDs:       c.BackupIDs,
		Comment:         c.SaveComment,
		Policy:          t.app.ContainerBackup,
	}
	ship := p.newShipment(t, func(ctx context.Context, dir string) error {
		if _, err := t.session.Execute(ctx, remote.Shell("mkdir -p "+shellescape.Quote(dir))); err != nil {
			return err
		}
		for _, v := range c.Volumes {
			if v.NoSave {
				continue
			}
			if err := p.o.runtime.Copy(ctx, t.session, t.name()+":"+v.Path, path.Join(dir, volumeKey(v.Path))); err != nil {
				return err
			}
		}
		return nil
	})
	dump := func(ctx context.Context, save *model.Save) error {
		if c.State != model.ContainerDeployed {
			logging.Debug(orchestratorSubsystem, "Container %s is not deployed, recording save %s without data", t.fullname(), save.Name)
			return nil
		}
		return ship.send(ctx, save)
	}

	res, err := p.backup.Save(ctx, subject, p.saveOptions(force, comment), dump)
	ship.cleanup(ctx)
	if err != nil {
		return res, err
	}
	if !res.Skipped {
		next := res.NextSave
		c.DateNextSave = &next
		c.SaveComment = ""
		if err := p.o.store.UpdateContainer(ctx, c); err != nil {
			return res, err
		}
	}
	return res, nil
}

// saveBase records a save of a base through the save_database hook of its
// application.
func (p *pass) saveBase(ctx context.Context, b *model.Base, force bool, comment string) (backup.Result, error) {
	if len(b.Children) > 0 {
		return backup.Result{Generation: p.backup.Generation(), Skipped: true}, nil
	}
	t, bc, err := p.baseTarget(ctx, b)
	if err != nil {
		return backup.Result{}, err
	}
	app, err := p.application(b.ApplicationCode)
	if err != nil {
		return backup.Result{}, err
	}
	fullname, _ := bc["fullname"].(string)
	subject := backup.Subject{
		Kind:            model.KindBase,
		ID:              b.ID,
		Fullname:        fullname,
		ApplicationCode: b.ApplicationCode,
		ContainerID:     b.ContainerID,
		BaseID:          b.ID,
		Autosave:        b.Autosave,
		NoBackup:        app.HasTags(catalog.TagNoBackup),
		TimeBetweenSave: b.TimeBetweenSave,
		SaveExpiration:  b.SaveExpiration,
		BackupIDs:       b.BackupIDs,
		Comment:         b.SaveComment,
		Policy:          app.BaseBackup,
	}
	var current *model.Save
	ship := p.newShipment(t, func(ctx context.Context, dir string) error {
		if _, err := t.session.Execute(ctx, remote.Shell("mkdir -p "+shellescape.Quote(dir))); err != nil {
			return err
		}
		return p.hookOf(ctx, t, app, catalog.HookSaveDatabase, map[string]interface{}{"base": bc, "save": saveContext(current, p.o.saveDir)})
	})
	dump := func(ctx context.Context, save *model.Save) error {
		if t.container.State != model.ContainerDeployed {
			logging.Debug(orchestratorSubsystem, "Host of %s is not deployed, recording save %s without data", fullname, save.Name)
			return nil
		}
		current = save
		return ship.send(ctx, save)
	}

	res, err := p.backup.Save(ctx, subject, p.saveOptions(force, comment), dump)
	ship.cleanup(ctx)
	if err != nil {
		return res, err
	}
	if !res.Skipped {
		next := res.NextSave
		b.DateNextSave = &next
		b.SaveComment = ""
		if err := p.o.store.UpdateBase(ctx, b); err != nil {
			return res, err
		}
	}
	return res, nil
}

// SaveContainer saves a container now, whatever its autosave setting.
func (o *Orchestrator) SaveContainer(ctx context.Context, id string, opts Options) (backup.Result, error) {
	var res backup.Result
	err := o.run(ctx, opts, func(p *pass) error {
		c, err := o.store.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		t, err := p.target(ctx, c)
		if err != nil {
			return err
		}
		res, err = p.saveContainer(ctx, t, true, "Manual save")
		return err
	})
	return res, err
}

// SaveBase saves a base now, whatever its autosave setting.
func (o *Orchestrator) SaveBase(ctx context.Context, id string, opts Options) (backup.Result, error) {
	var res backup.Result
	err := o.run(ctx, opts, func(p *pass) error {
		b, err := o.store.GetBase(ctx, id)
		if err != nil {
			return err
		}
		res, err = p.saveBase(ctx, b, true, "Manual save")
		return err
	})
	return res, err
}

func (o *Orchestrator) saveContainerAction(ctx context.Context, id string, opts Options) error {
	_, err := o.SaveContainer(ctx, id, opts)
	return err
}

func (o *Orchestrator) saveBaseAction(ctx context.Context, id string, opts Options) error {
	_, err := o.SaveBase(ctx, id, opts)
	return err
}

// restoreContainer copies the volumes of save back into c and runs its
// post_restore hook.
func (p *pass) restoreContainer(ctx context.Context, c *model.Container, save *model.Save) error {
	t, err := p.target(ctx, c)
	if err != nil {
		return err
	}
	logging.Info(orchestratorSubsystem, "Restoring %s into %s", save.Name, t.fullname())
	dir := path.Join(p.o.saveDir, save.Name)
	fetched, err := p.fetchSave(ctx, t, save)
	if err != nil {
		return err
	}
	defer fetched.cleanup(ctx)

	if err := p.o.runtime.Stop(ctx, t.session, t.name()); err != nil {
		return err
	}
	for _, v := range c.Volumes {
		if v.NoSave {
			continue
		}
		if err := p.o.runtime.Copy(ctx, t.session, path.Join(dir, volumeKey(v.Path))+"/.", t.name()+":"+v.Path); err != nil {
			return err
		}
	}
	if err := p.o.runtime.Start(ctx, t.session, t.name()); err != nil {
		return err
	}
	return p.hook(ctx, t, catalog.HookPostRestore, map[string]interface{}{"save": saveContext(save, p.o.saveDir)})
}

// restoreBaseData loads a save into the base described by bc.
func (p *pass) restoreBaseData(ctx context.Context, t *target, bc map[string]interface{}, save *model.Save) error {
	logging.Info(orchestratorSubsystem, "Restoring %s into %s", save.Name, bc["fulldomain"])
	fetched, err := p.fetchSave(ctx, t, save)
	if err != nil {
		return err
	}
	defer fetched.cleanup(ctx)

	extra := map[string]interface{}{"base": bc, "save": saveContext(save, p.o.saveDir)}
	if err := p.hook(ctx, t, catalog.HookRestore, extra); err != nil {
		return err
	}
	return p.hook(ctx, t, catalog.HookPostRestore, extra)
}

// RestoreSave restores a save into the instance it was taken from. The
// instance is saved first unless the save says otherwise.
func (o *Orchestrator) RestoreSave(ctx context.Context, id string, opts Options) error {
	return o.run(ctx, opts, func(p *pass) error {
		save, err := o.store.GetSave(ctx, id)
		if err != nil {
			return err
		}
		if save.BaseID != "" {
			b, err := o.store.GetBase(ctx, save.BaseID)
			if err != nil {
				return err
			}
			if !save.RestoreNoSave {
				if _, err := p.saveBase(ctx, b, true, "Before restore"); err != nil {
					return err
				}
			}
			t, bc, err := p.baseTarget(ctx, b)
			if err != nil {
				return err
			}
			return p.restoreBaseData(ctx, t, bc, save)
		}

		c, err := o.store.GetContainer(ctx, save.ContainerID)
		if err != nil {
			return err
		}
		if len(c.Children) > 0 {
			return api.NewValidationError("save", "container", fmt.Sprintf("%s delegates to its children and holds no data", c.Suffix))
		}
		if !save.RestoreNoSave {
			t, err := p.target(ctx, c)
			if err != nil {
				return err
			}
			if _, err := p.saveContainer(ctx, t, true, "Before restore"); err != nil {
				return err
			}
		}
		return p.restoreContainer(ctx, c, save)
	})
}

// SaveDue saves every autosaved container and base whose next save is due.
// All saves share one generation. Each save is dispatched on its own
// instance; errors are joined.
func (o *Orchestrator) SaveDue(ctx context.Context, now time.Time, opts Options) ([]*queue.Ticket, error) {
	bp := o.backup.Begin()

	containers, err := o.store.ListContainers(ctx, store.ContainerFilter{DueBefore: &now})
	if err != nil {
		return nil, err
	}
	bases, err := o.store.ListBases(ctx, store.BaseFilter{DueBefore: &now})
	if err != nil {
		return nil, err
	}

	var (
		tickets []*queue.Ticket
		errs    []error
	)
	dispatch := func(target queue.Target, fn func(p *pass) error) {
		t, err := o.queue.Do(ctx, queue.Request{
			Label:  fmt.Sprintf("save %s %s", target.Kind, target.ID),
			Action: string(ActionSave),
			Target: target,
			Run: func(ctx context.Context) error {
				p := o.begin(opts)
				p.backup = bp
				defer p.close()
				return fn(p)
			},
		}, queue.Options{NoEnqueue: opts.NoEnqueue})
		if t != nil {
			tickets = append(tickets, t)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	for i := range containers {
		id := containers[i].ID
		if len(containers[i].Children) > 0 {
			continue
		}
		dispatch(queue.Target{Kind: model.KindContainer, ID: id}, func(p *pass) error {
			c, err := o.store.GetContainer(ctx, id)
			if err != nil {
				return err
			}
			t, err := p.target(ctx, c)
			if err != nil {
				return err
			}
			_, err = p.saveContainer(ctx, t, false, "")
			return err
		})
	}
	for i := range bases {
		id := bases[i].ID
		if len(bases[i].Children) > 0 {
			continue
		}
		dispatch(queue.Target{Kind: model.KindBase, ID: id}, func(p *pass) error {
			b, err := o.store.GetBase(ctx, id)
			if err != nil {
				return err
			}
			_, err = p.saveBase(ctx, b, false, "")
			return err
		})
	}

	if len(tickets) > 0 {
		logging.Info(orchestratorSubsystem, "Dispatched %d due saves (generation %s)", len(tickets), bp.Generation())
	}
	return tickets, errors.Join(errs...)
}

// PurgeExpiredSaves removes the data and records of saves expired at now.
func (o *Orchestrator) PurgeExpiredSaves(ctx context.Context, now time.Time) (int, error) {
	expired, err := o.backup.ExpiredSaves(ctx, now)
	if err != nil {
		return 0, err
	}
	purged := 0
	err = o.run(ctx, Options{}, func(p *pass) error {
		var errs []error
		removed := make(map[string]bool)
		for i := range expired {
			save := &expired[i]
			if err := p.removeSaveData(ctx, save, removed); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := o.store.DeleteSave(ctx, save.ID); err != nil {
				errs = append(errs, err)
				continue
			}
			purged++
		}
		return errors.Join(errs...)
	})
	if purged > 0 {
		logging.Info(orchestratorSubsystem, "Purged %d expired saves", purged)
	}
	return purged, err
}

// removeSaveData deletes the data of save on the server of its backup
// destination. removed tracks the directories already deleted in this pass,
// shared by the saves of one generation sent to the same server.
func (p *pass) removeSaveData(ctx context.Context, save *model.Save, removed map[string]bool) error {
	sess, srv, err := p.destination(ctx, save.BackupID)
	if api.IsNotFound(err) {
		// The data went with its backup container.
		return nil
	}
	if err != nil {
		return err
	}
	dir := path.Join(p.o.saveDir, save.Name)
	if removed[srv.ID+":"+dir] {
		return nil
	}
	if _, err := sess.Execute(ctx, remote.Shell("rm -rf "+shellescape.Quote(dir))); err != nil {
		return err
	}
	removed[srv.ID+":"+dir] = true
	return nil
}
