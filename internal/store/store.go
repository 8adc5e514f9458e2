package store

import (
	"context"
	"time"

	"steward/internal/model"
)

// ContainerFilter narrows ListContainers. Zero fields match everything.
type ContainerFilter struct {
	Application   string
	ServerID      string
	EnvironmentID string
	Suffix        string
	ParentID      string

	// Ownerless keeps only containers that occupy no child slot.
	Ownerless bool

	// DueBefore keeps autosaved containers whose next save is due.
	DueBefore *time.Time
}

// BaseFilter narrows ListBases.
type BaseFilter struct {
	Application string
	ContainerID string
	DomainID    string
	Name        string
	DueBefore   *time.Time
}

// SaveFilter narrows ListSaves.
type SaveFilter struct {
	ContainerID   string
	BaseID        string
	BackupID      string
	Generation    string
	ExpiredBefore *time.Time
}

// Store is the record store the orchestration core works against. It is
// synchronous and consistent within a call; nothing is transactional across
// calls.
type Store interface {
	CreateDomain(ctx context.Context, d *model.Domain) error
	GetDomain(ctx context.Context, id string) (*model.Domain, error)
	ListDomains(ctx context.Context) ([]model.Domain, error)

	CreateEnvironment(ctx context.Context, e *model.Environment) error
	GetEnvironment(ctx context.Context, id string) (*model.Environment, error)
	UpdateEnvironment(ctx context.Context, e *model.Environment) error

	CreateServer(ctx context.Context, s *model.Server) error
	GetServer(ctx context.Context, id string) (*model.Server, error)
	UpdateServer(ctx context.Context, s *model.Server) error
	ListServers(ctx context.Context) ([]model.Server, error)

	CreateContainer(ctx context.Context, c *model.Container) error
	GetContainer(ctx context.Context, id string) (*model.Container, error)
	UpdateContainer(ctx context.Context, c *model.Container) error
	DeleteContainer(ctx context.Context, id string) error
	ListContainers(ctx context.Context, f ContainerFilter) ([]model.Container, error)

	// HostPortsInUse maps every host port bound on a server to the
	// container claiming it.
	HostPortsInUse(ctx context.Context, serverID string) (map[int]string, error)

	CreateBase(ctx context.Context, b *model.Base) error
	GetBase(ctx context.Context, id string) (*model.Base, error)
	UpdateBase(ctx context.Context, b *model.Base) error
	DeleteBase(ctx context.Context, id string) error
	ListBases(ctx context.Context, f BaseFilter) ([]model.Base, error)

	CreateSave(ctx context.Context, s *model.Save) error
	GetSave(ctx context.Context, id string) (*model.Save, error)
	UpdateSave(ctx context.Context, s *model.Save) error
	DeleteSave(ctx context.Context, id string) error
	ListSaves(ctx context.Context, f SaveFilter) ([]model.Save, error)

	CreateVersion(ctx context.Context, v *model.ApplicationVersion) error
	GetVersion(ctx context.Context, id string) (*model.ApplicationVersion, error)
	DeleteVersion(ctx context.Context, id string) error
	ListVersions(ctx context.Context, application string) ([]model.ApplicationVersion, error)

	RecordAction(ctx context.Context, a *model.ActionLog) error
	ListActions(ctx context.Context, kind model.Kind, id string) ([]model.ActionLog, error)

	Close() error
}
