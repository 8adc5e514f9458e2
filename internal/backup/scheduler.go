package backup

import (
	"context"
	"fmt"
	"time"

	"steward/internal/catalog"
	"steward/internal/model"
	"steward/internal/store"
	"steward/pkg/logging"
)

const backupSubsystem = "Backup"

// GenerationFormat is the layout of generation tags. Every save of one pass
// carries the same tag.
const GenerationFormat = "2006-01-02-150405"

// DefaultComment is used when neither the call nor the entity gives one.
const DefaultComment = "Manual"

// Store is the part of the record store the scheduler uses.
type Store interface {
	CreateSave(ctx context.Context, s *model.Save) error
	ListSaves(ctx context.Context, f store.SaveFilter) ([]model.Save, error)
}

// Subject describes the entity being saved.
type Subject struct {
	Kind            model.Kind
	ID              string
	Fullname        string
	ApplicationCode string

	// ContainerID holds the data: the container itself or the base's host.
	ContainerID string
	BaseID      string

	Autosave bool

	// NoBackup is set when the application is tagged no-backup.
	NoBackup bool

	// Entity level overrides; zero falls back to Policy.
	TimeBetweenSave int
	SaveExpiration  int
	BackupIDs       []string
	Comment         string

	Policy catalog.BackupPolicy
}

// Options control one save call.
type Options struct {
	// Force saves even when autosave is disabled.
	Force bool
	// NoSave skips the save whatever the other flags.
	NoSave  bool
	Comment string
}

// Result describes what a save call did.
type Result struct {
	Generation string
	Saves      []model.Save

	// NextSave is the rescheduled due date. It is zero when skipped.
	NextSave time.Time
	Skipped  bool
}

// DumpFunc performs the data copy of one save on the backup destination.
type DumpFunc func(ctx context.Context, save *model.Save) error

// Scheduler computes save schedules and records saves.
type Scheduler struct {
	store Store
	now   func() time.Time

	defaultExpirationDays int
	defaultMinutes        int
}

// Config holds scheduler defaults used when neither entity nor application
// sets a value.
type Config struct {
	Now                   func() time.Time
	DefaultExpirationDays int
	DefaultMinutes        int
}

// NewScheduler creates a scheduler.
func NewScheduler(s Store, cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultExpirationDays == 0 {
		cfg.DefaultExpirationDays = 5
	}
	if cfg.DefaultMinutes == 0 {
		cfg.DefaultMinutes = 24 * 60
	}
	return &Scheduler{
		store:                 s,
		now:                   cfg.Now,
		defaultExpirationDays: cfg.DefaultExpirationDays,
		defaultMinutes:        cfg.DefaultMinutes,
	}
}

// Pass is one orchestration pass. Its generation tag is fixed when the pass
// begins and shared by every save made through it.
type Pass struct {
	scheduler  *Scheduler
	generation string
}

// Begin starts a pass.
func (s *Scheduler) Begin() *Pass {
	return &Pass{scheduler: s, generation: s.now().Format(GenerationFormat)}
}

// Generation returns the tag of the pass.
func (p *Pass) Generation() string {
	return p.generation
}

// Save records one save per backup destination of subject and runs dump for
// each of them. Saving is skipped when the pass is flagged no-save, when the
// application opts out of backups, or when autosave is off and the call is
// not forced.
func (p *Pass) Save(ctx context.Context, subject Subject, opts Options, dump DumpFunc) (Result, error) {
	s := p.scheduler
	res := Result{Generation: p.generation}

	switch {
	case opts.NoSave:
		logging.Debug(backupSubsystem, "Skipping save of %s: no-save pass", subject.Fullname)
		res.Skipped = true
		return res, nil
	case subject.NoBackup:
		logging.Debug(backupSubsystem, "Skipping save of %s: application opts out", subject.Fullname)
		res.Skipped = true
		return res, nil
	case !subject.Autosave && !opts.Force:
		logging.Debug(backupSubsystem, "Skipping save of %s: autosave disabled", subject.Fullname)
		res.Skipped = true
		return res, nil
	}

	destinations := subject.BackupIDs
	if len(destinations) == 0 {
		destinations = subject.Policy.Destinations
	}
	if len(destinations) == 0 {
		logging.Warn(backupSubsystem, "No backup destination for %s, nothing saved", subject.Fullname)
		res.Skipped = true
		return res, nil
	}

	now := s.now()
	expiration := now.AddDate(0, 0, s.expirationDays(subject))
	comment := opts.Comment
	if comment == "" {
		comment = subject.Comment
	}
	if comment == "" {
		comment = DefaultComment
	}

	for _, dest := range destinations {
		save := model.Save{
			Name:            p.generation + "_" + subject.Fullname,
			Generation:      p.generation,
			ContainerID:     subject.ContainerID,
			BaseID:          subject.BaseID,
			BackupID:        dest,
			Expiration:      expiration,
			Comment:         comment,
			ApplicationCode: subject.ApplicationCode,
			Fullname:        subject.Fullname,
			CreatedAt:       now,
		}
		if dump != nil {
			if err := dump(ctx, &save); err != nil {
				return res, fmt.Errorf("failed to save %s to %s: %w", subject.Fullname, dest, err)
			}
		}
		if err := s.store.CreateSave(ctx, &save); err != nil {
			return res, fmt.Errorf("failed to record save of %s: %w", subject.Fullname, err)
		}
		res.Saves = append(res.Saves, save)
		logging.Info(backupSubsystem, "Saved %s to %s (generation %s, expires %s)",
			subject.Fullname, dest, p.generation, expiration.Format(time.RFC3339))
	}

	res.NextSave = now.Add(time.Duration(s.minutes(subject)) * time.Minute)
	return res, nil
}

// NextSave computes the due date of the next periodic save from now.
func (s *Scheduler) NextSave(subject Subject) time.Time {
	return s.now().Add(time.Duration(s.minutes(subject)) * time.Minute)
}

// ExpiredSaves lists saves whose expiration is before now. Deleting them is
// left to the retention job.
func (s *Scheduler) ExpiredSaves(ctx context.Context, now time.Time) ([]model.Save, error) {
	return s.store.ListSaves(ctx, store.SaveFilter{ExpiredBefore: &now})
}

func (s *Scheduler) expirationDays(subject Subject) int {
	if subject.SaveExpiration > 0 {
		return subject.SaveExpiration
	}
	if subject.Policy.ExpirationDays > 0 {
		return subject.Policy.ExpirationDays
	}
	return s.defaultExpirationDays
}

func (s *Scheduler) minutes(subject Subject) int {
	if subject.TimeBetweenSave > 0 {
		return subject.TimeBetweenSave
	}
	if subject.Policy.MinutesBetweenSave > 0 {
		return subject.Policy.MinutesBetweenSave
	}
	return s.defaultMinutes
}
