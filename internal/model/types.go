package model

import (
	"strings"
	"time"
)

// Kind names an instance kind addressed by the queue, the store and saves.
type Kind string

const (
	KindContainer Kind = "container"
	KindBase      Kind = "base"
	KindServer    Kind = "server"
	KindVersion   Kind = "version"
	KindSave      Kind = "save"
)

// ContainerState is the lifecycle state of a container.
type ContainerState string

const (
	ContainerAbsent    ContainerState = ""
	ContainerDeploying ContainerState = "deploying"
	ContainerDeployed  ContainerState = "deployed"
	ContainerRemoving  ContainerState = "removing"
)

// BaseState is the visible state of a base.
type BaseState string

const (
	BaseInstalling BaseState = "installing"
	BaseEnabled    BaseState = "enabled"
	BaseBlocked    BaseState = "blocked"
	BaseRemoving   BaseState = "removing"
)

// BuildMode controls how the database of a base is initialised.
type BuildMode string

const (
	BuildNone    BuildMode = "none"
	BuildBuild   BuildMode = "build"
	BuildRestore BuildMode = "restore"
)

// Domain is a DNS domain bases are published under.
type Domain struct {
	ID             string `gorm:"primaryKey"`
	Name           string `gorm:"uniqueIndex" validate:"required,domainname"`
	Organisation   string
	DNSContainerID string
	CertKey        string
	Cert           string
	Public         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Environment groups containers under a common name prefix.
type Environment struct {
	ID        string   `gorm:"primaryKey"`
	Name      string   `validate:"required"`
	Prefix    string   `gorm:"uniqueIndex" validate:"required,prefix"`
	Partner   string
	Users     []string `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Server is an SSH reachable docker host.
type Server struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"uniqueIndex:idx_server_name_domain" validate:"required,slug"`
	Domain     string `gorm:"uniqueIndex:idx_server_name_domain" validate:"required,domainname"`
	IP         string `gorm:"uniqueIndex:idx_server_ip_port" validate:"required,ipchars"`
	SSHPort    int    `gorm:"uniqueIndex:idx_server_ip_port" validate:"gte=0,lte=65535"`
	Login      string
	PrivateKey string `gorm:"type:text"`
	PublicKey  string `gorm:"type:text"`
	StartPort  int    `validate:"gte=0,lte=65535"`
	EndPort    int    `validate:"gte=0,lte=65535"`
	PublicIP   bool
	ControlDNS bool

	SupervisionID string
	RunnerID      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullDomain is the DNS name of the server.
func (s *Server) FullDomain() string {
	return s.Name + "." + s.Domain
}

// Container is an instance of an application on a server.
type Container struct {
	ID              string `gorm:"primaryKey"`
	EnvironmentID   string `gorm:"uniqueIndex:idx_container_identity" validate:"required"`
	ServerID        string `gorm:"uniqueIndex:idx_container_identity" validate:"required"`
	Suffix          string `gorm:"uniqueIndex:idx_container_identity" validate:"required,slug"`
	ApplicationCode string `gorm:"index" validate:"required"`
	Image           string
	ImageVersion    string

	// PendingVersion is the image version an upgrade has been requested to.
	PendingVersion string

	Autosave        bool
	TimeBetweenSave int
	SaveExpiration  int
	DateNextSave    *time.Time
	SaveComment     string

	Ports       []PortBinding   `gorm:"serializer:json"`
	Volumes     []VolumeBinding `gorm:"serializer:json"`
	Options     []Option        `gorm:"serializer:json"`
	Links       []Link          `gorm:"serializer:json"`
	Children    []ChildSlot     `gorm:"serializer:json"`
	Metadata    []Metadata      `gorm:"serializer:json"`
	BackupIDs   []string        `gorm:"serializer:json"`
	VolumesFrom []string        `gorm:"serializer:json"`

	// ParentID is the container declaring ParentSlotID.
	ParentID     string `gorm:"index"`
	ParentSlotID string

	FromID string
	Public bool
	State  ContainerState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InChildSlot reports whether the container is owned by a parent slot.
func (c *Container) InChildSlot() bool {
	return c.ParentSlotID != ""
}

// SortedChildren returns child slots by ascending sequence.
func (c *Container) SortedChildren() []ChildSlot {
	return sortSlots(c.Children)
}

// ContainerName is the runtime name of a container.
func ContainerName(prefix, suffix string) string {
	return prefix + "-" + suffix
}

// ContainerFullname is unique across servers.
func ContainerFullname(prefix, suffix string, server *Server) string {
	return ContainerName(prefix, suffix) + "_" + server.FullDomain()
}

// Base is a site hosted by a container under a domain.
type Base struct {
	ID              string `gorm:"primaryKey"`
	Name            string `gorm:"uniqueIndex:idx_base_identity" validate:"required,slug"`
	DomainID        string `gorm:"uniqueIndex:idx_base_identity" validate:"required"`
	EnvironmentID   string `validate:"required"`
	Title           string
	ApplicationCode string `gorm:"index" validate:"required"`
	ContainerID     string `gorm:"index" validate:"required"`

	AdminName         string `validate:"credential"`
	AdminPassword     string
	AdminEmail        string `validate:"credential"`
	PoweruserName     string
	PoweruserPassword string
	PoweruserEmail    string `validate:"credential"`

	Build   BuildMode `validate:"omitempty,oneof=none build restore"`
	SSLOnly bool
	Test    bool
	Lang    string `validate:"omitempty,oneof=en_US fr_FR"`
	State   BaseState

	Options  []Option    `gorm:"serializer:json"`
	Links    []Link      `gorm:"serializer:json"`
	Children []ChildSlot `gorm:"serializer:json"`
	Metadata []Metadata  `gorm:"serializer:json"`

	Autosave        bool
	TimeBetweenSave int
	SaveExpiration  int
	DateNextSave    *time.Time
	SaveComment     string
	BackupIDs       []string `gorm:"serializer:json"`

	// ResetID is the base this one was last reset from.
	ResetID string
	// RestoreSaveID is restored on deploy when Build is restore.
	RestoreSaveID string

	ParentID     string `gorm:"index"`
	ParentSlotID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InChildSlot reports whether the base is owned by a parent slot.
func (b *Base) InChildSlot() bool {
	return b.ParentSlotID != ""
}

// SortedChildren returns child slots by ascending sequence.
func (b *Base) SortedChildren() []ChildSlot {
	return sortSlots(b.Children)
}

// BaseFullDomain is the site hostname; the "www" base answers on the bare domain.
func BaseFullDomain(name, domain string) string {
	if name == "www" {
		return domain
	}
	return name + "." + domain
}

// BaseFullname identifies the base in saves and database names.
func BaseFullname(applicationCode, fullDomain string) string {
	return applicationCode + "-" + strings.ReplaceAll(fullDomain, ".", "-")
}

// BaseDatabases lists the databases of a base. With a multi-database marker
// every listed suffix yields one database.
func BaseDatabases(fullname, marker string) []string {
	db := strings.ReplaceAll(fullname, "-", "_")
	if strings.TrimSpace(marker) == "" {
		return []string{db}
	}
	var dbs []string
	for _, part := range strings.Split(marker, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dbs = append(dbs, db+"_"+part)
	}
	return dbs
}

// Save is a backup record of a container or base.
type Save struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Generation  string `gorm:"index"`
	ContainerID string `gorm:"index"`
	BaseID      string `gorm:"index"`
	BackupID    string `gorm:"index"`
	Expiration  time.Time
	Comment     string

	ApplicationCode string
	Fullname        string

	// Restore destination, filled in by reset.
	RestoreToName        string
	RestoreToDomainID    string
	RestoreToContainerID string
	RestoreNoSave        bool

	CreatedAt time.Time
}

// ApplicationVersion is an archived build of an application.
type ApplicationVersion struct {
	ID              string `gorm:"primaryKey"`
	ApplicationCode string `gorm:"uniqueIndex:idx_version_identity" validate:"required"`
	Name            string `gorm:"uniqueIndex:idx_version_identity" validate:"required"`
	ArchiveID       string `validate:"required"`
	CreatedAt       time.Time
}

// ActionState tracks a dispatched action.
type ActionState string

const (
	ActionQueued  ActionState = "queued"
	ActionRunning ActionState = "running"
	ActionDone    ActionState = "done"
	ActionFailed  ActionState = "failed"
)

// ActionLog records a dispatched action.
type ActionLog struct {
	ID         string `gorm:"primaryKey"`
	Label      string
	Action     string
	TargetKind Kind   `gorm:"index:idx_action_target"`
	TargetID   string `gorm:"index:idx_action_target"`
	State      ActionState
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}
