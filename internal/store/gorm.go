package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"steward/internal/api"
	"steward/internal/model"
	"steward/pkg/logging"
)

const storeSubsystem = "Store"

// Options configures the SQL store.
type Options struct {
	// DSN is a sqlite data source, e.g. "file:/var/lib/steward/steward.db"
	// or ":memory:".
	DSN string

	// SlowThreshold logs queries slower than this at warn level.
	SlowThreshold time.Duration
}

// SQLStore implements Store on gorm with the pure-Go sqlite driver.
type SQLStore struct {
	db *gorm.DB
}

type gormWriter struct{}

func (gormWriter) Printf(format string, args ...interface{}) {
	logging.Debug(storeSubsystem, format, args...)
}

// Open connects to the database and migrates the schema.
func Open(opts Options) (*SQLStore, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("store DSN must not be empty")
	}
	if opts.SlowThreshold == 0 {
		opts.SlowThreshold = 500 * time.Millisecond
	}

	db, err := gorm.Open(sqlite.Open(opts.DSN), &gorm.Config{
		Logger: logger.New(gormWriter{}, logger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", opts.DSN, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer, and an in-memory database only lives
	// on its own connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&model.Domain{},
		&model.Environment{},
		&model.Server{},
		&model.Container{},
		&model.Base{},
		&model.Save{},
		&model.ApplicationVersion{},
		&model.ActionLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	logging.Info(storeSubsystem, "Opened store %s", opts.DSN)
	return &SQLStore{db: db}, nil
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func get[T any](ctx context.Context, db *gorm.DB, kind, id string) (*T, error) {
	var obj T
	err := db.WithContext(ctx).First(&obj, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, api.NewNotFoundError(kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", kind, id, err)
	}
	return &obj, nil
}

func create[T any](ctx context.Context, db *gorm.DB, kind string, id *string, obj *T) error {
	if *id == "" {
		*id = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(obj).Error; err != nil {
		if isUniqueViolation(err) {
			return api.NewValidationError(kind, "", "an identical record already exists")
		}
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	return nil
}

func update[T any](ctx context.Context, db *gorm.DB, kind, id string, obj *T) error {
	if id == "" {
		return fmt.Errorf("cannot update %s without id", kind)
	}
	res := db.WithContext(ctx).Model(obj).Where("id = ?", id).Select("*").Updates(obj)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return api.NewValidationError(kind, "", "an identical record already exists")
		}
		return fmt.Errorf("failed to update %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return api.NewNotFoundError(kind, id)
	}
	return nil
}

func remove[T any](ctx context.Context, db *gorm.DB, kind, id string) error {
	var obj T
	res := db.WithContext(ctx).Delete(&obj, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return api.NewNotFoundError(kind, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLStore) CreateDomain(ctx context.Context, d *model.Domain) error {
	if err := model.Validate("domain", d); err != nil {
		return err
	}
	return create(ctx, s.db, "domain", &d.ID, d)
}

func (s *SQLStore) GetDomain(ctx context.Context, id string) (*model.Domain, error) {
	return get[model.Domain](ctx, s.db, "domain", id)
}

func (s *SQLStore) ListDomains(ctx context.Context) ([]model.Domain, error) {
	var out []model.Domain
	err := s.db.WithContext(ctx).Order("name").Find(&out).Error
	return out, err
}

func (s *SQLStore) CreateEnvironment(ctx context.Context, e *model.Environment) error {
	if err := model.Validate("environment", e); err != nil {
		return err
	}
	return create(ctx, s.db, "environment", &e.ID, e)
}

func (s *SQLStore) GetEnvironment(ctx context.Context, id string) (*model.Environment, error) {
	return get[model.Environment](ctx, s.db, "environment", id)
}

// UpdateEnvironment refuses to change the prefix of an environment that
// already owns containers, since runtime names derive from it.
func (s *SQLStore) UpdateEnvironment(ctx context.Context, e *model.Environment) error {
	if err := model.Validate("environment", e); err != nil {
		return err
	}
	current, err := s.GetEnvironment(ctx, e.ID)
	if err != nil {
		return err
	}
	if current.Prefix != e.Prefix {
		var n int64
		if err := s.db.WithContext(ctx).Model(&model.Container{}).Where("environment_id = ?", e.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return api.NewValidationError("environment", "prefix", "cannot change while containers are linked to the environment")
		}
	}
	return update(ctx, s.db, "environment", e.ID, e)
}

func (s *SQLStore) CreateServer(ctx context.Context, srv *model.Server) error {
	if err := model.ValidateServer(srv); err != nil {
		return err
	}
	return create(ctx, s.db, "server", &srv.ID, srv)
}

func (s *SQLStore) GetServer(ctx context.Context, id string) (*model.Server, error) {
	return get[model.Server](ctx, s.db, "server", id)
}

func (s *SQLStore) UpdateServer(ctx context.Context, srv *model.Server) error {
	if err := model.ValidateServer(srv); err != nil {
		return err
	}
	return update(ctx, s.db, "server", srv.ID, srv)
}

func (s *SQLStore) ListServers(ctx context.Context) ([]model.Server, error) {
	var out []model.Server
	err := s.db.WithContext(ctx).Order("name").Find(&out).Error
	return out, err
}

func (s *SQLStore) CreateContainer(ctx context.Context, c *model.Container) error {
	if err := model.Validate("container", c); err != nil {
		return err
	}
	return create(ctx, s.db, "container", &c.ID, c)
}

func (s *SQLStore) GetContainer(ctx context.Context, id string) (*model.Container, error) {
	return get[model.Container](ctx, s.db, "container", id)
}

func (s *SQLStore) UpdateContainer(ctx context.Context, c *model.Container) error {
	current, err := s.GetContainer(ctx, c.ID)
	if err != nil {
		return err
	}
	if current.Suffix != c.Suffix {
		return api.NewValidationError("container", "suffix", "cannot be modified after the container was created")
	}
	if err := model.Validate("container", c); err != nil {
		return err
	}
	return update(ctx, s.db, "container", c.ID, c)
}

func (s *SQLStore) DeleteContainer(ctx context.Context, id string) error {
	return remove[model.Container](ctx, s.db, "container", id)
}

func (s *SQLStore) ListContainers(ctx context.Context, f ContainerFilter) ([]model.Container, error) {
	q := s.db.WithContext(ctx).Model(&model.Container{})
	if f.Application != "" {
		q = q.Where("application_code = ?", f.Application)
	}
	if f.ServerID != "" {
		q = q.Where("server_id = ?", f.ServerID)
	}
	if f.EnvironmentID != "" {
		q = q.Where("environment_id = ?", f.EnvironmentID)
	}
	if f.Suffix != "" {
		q = q.Where("suffix = ?", f.Suffix)
	}
	if f.ParentID != "" {
		q = q.Where("parent_id = ?", f.ParentID)
	}
	if f.Ownerless {
		q = q.Where("parent_slot_id = ''")
	}
	if f.DueBefore != nil {
		q = q.Where("autosave = ? AND (date_next_save IS NULL OR date_next_save <= ?)", true, *f.DueBefore)
	}
	var out []model.Container
	err := q.Order("created_at, id").Find(&out).Error
	return out, err
}

func (s *SQLStore) HostPortsInUse(ctx context.Context, serverID string) (map[int]string, error) {
	containers, err := s.ListContainers(ctx, ContainerFilter{ServerID: serverID})
	if err != nil {
		return nil, err
	}
	used := make(map[int]string)
	for _, c := range containers {
		for _, p := range c.Ports {
			if p.HostPort != 0 {
				used[p.HostPort] = c.ID
			}
		}
	}
	return used, nil
}

func (s *SQLStore) CreateBase(ctx context.Context, b *model.Base) error {
	if err := model.Validate("base", b); err != nil {
		return err
	}
	return create(ctx, s.db, "base", &b.ID, b)
}

func (s *SQLStore) GetBase(ctx context.Context, id string) (*model.Base, error) {
	return get[model.Base](ctx, s.db, "base", id)
}

func (s *SQLStore) UpdateBase(ctx context.Context, b *model.Base) error {
	if err := model.Validate("base", b); err != nil {
		return err
	}
	return update(ctx, s.db, "base", b.ID, b)
}

func (s *SQLStore) DeleteBase(ctx context.Context, id string) error {
	return remove[model.Base](ctx, s.db, "base", id)
}

func (s *SQLStore) ListBases(ctx context.Context, f BaseFilter) ([]model.Base, error) {
	q := s.db.WithContext(ctx).Model(&model.Base{})
	if f.Application != "" {
		q = q.Where("application_code = ?", f.Application)
	}
	if f.ContainerID != "" {
		q = q.Where("container_id = ?", f.ContainerID)
	}
	if f.DomainID != "" {
		q = q.Where("domain_id = ?", f.DomainID)
	}
	if f.Name != "" {
		q = q.Where("name = ?", f.Name)
	}
	if f.DueBefore != nil {
		q = q.Where("autosave = ? AND (date_next_save IS NULL OR date_next_save <= ?)", true, *f.DueBefore)
	}
	var out []model.Base
	err := q.Order("created_at, id").Find(&out).Error
	return out, err
}

func (s *SQLStore) CreateSave(ctx context.Context, sv *model.Save) error {
	return create(ctx, s.db, "save", &sv.ID, sv)
}

func (s *SQLStore) GetSave(ctx context.Context, id string) (*model.Save, error) {
	return get[model.Save](ctx, s.db, "save", id)
}

func (s *SQLStore) UpdateSave(ctx context.Context, sv *model.Save) error {
	return update(ctx, s.db, "save", sv.ID, sv)
}

func (s *SQLStore) DeleteSave(ctx context.Context, id string) error {
	return remove[model.Save](ctx, s.db, "save", id)
}

func (s *SQLStore) ListSaves(ctx context.Context, f SaveFilter) ([]model.Save, error) {
	q := s.db.WithContext(ctx).Model(&model.Save{})
	if f.ContainerID != "" {
		q = q.Where("container_id = ?", f.ContainerID)
	}
	if f.BaseID != "" {
		q = q.Where("base_id = ?", f.BaseID)
	}
	if f.BackupID != "" {
		q = q.Where("backup_id = ?", f.BackupID)
	}
	if f.Generation != "" {
		q = q.Where("generation = ?", f.Generation)
	}
	if f.ExpiredBefore != nil {
		q = q.Where("expiration < ?", *f.ExpiredBefore)
	}
	var out []model.Save
	err := q.Order("created_at, id").Find(&out).Error
	return out, err
}

func (s *SQLStore) CreateVersion(ctx context.Context, v *model.ApplicationVersion) error {
	if err := model.Validate("version", v); err != nil {
		return err
	}
	return create(ctx, s.db, "version", &v.ID, v)
}

func (s *SQLStore) GetVersion(ctx context.Context, id string) (*model.ApplicationVersion, error) {
	return get[model.ApplicationVersion](ctx, s.db, "version", id)
}

func (s *SQLStore) DeleteVersion(ctx context.Context, id string) error {
	return remove[model.ApplicationVersion](ctx, s.db, "version", id)
}

func (s *SQLStore) ListVersions(ctx context.Context, application string) ([]model.ApplicationVersion, error) {
	var out []model.ApplicationVersion
	err := s.db.WithContext(ctx).Where("application_code = ?", application).Order("created_at DESC").Find(&out).Error
	return out, err
}

// RecordAction inserts or updates an action log entry.
func (s *SQLStore) RecordAction(ctx context.Context, a *model.ActionLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("failed to record action %s: %w", a.Label, err)
	}
	return nil
}

func (s *SQLStore) ListActions(ctx context.Context, kind model.Kind, id string) ([]model.ActionLog, error) {
	var out []model.ActionLog
	err := s.db.WithContext(ctx).Where("target_kind = ? AND target_id = ?", kind, id).Order("created_at").Find(&out).Error
	return out, err
}
