package catalog

import (
	"strconv"
	"strings"
)

// Scope names the kind of instance a catalog spec applies to.
type Scope string

const (
	ScopeApplication Scope = "application"
	ScopeContainer   Scope = "container"
	ScopeService     Scope = "service"
	ScopeBase        Scope = "base"
)

// ValueType is the declared type of a metadata value.
type ValueType string

const (
	ValueChar  ValueType = "char"
	ValueInt   ValueType = "int"
	ValueFloat ValueType = "float"
)

// Expose controls where a container port is published.
type Expose string

const (
	ExposeInternet Expose = "internet"
	ExposeLocal    Expose = "local"
	ExposeNone     Expose = "none"
)

// UpdateStrategy tells whether containers of an application are reinstalled
// by an update.
type UpdateStrategy string

const (
	UpdateAlways UpdateStrategy = "always"
	UpdateNever  UpdateStrategy = "never"
)

// Well known application tags.
const (
	TagNoBackup = "no-backup"
	TagBackup   = "backup"
)

// OptionSpec declares a configurable option owned by an ApplicationType.
type OptionSpec struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Scope    Scope    `yaml:"scope"`
	Default  string   `yaml:"default,omitempty"`
	Auto     bool     `yaml:"auto,omitempty"`
	Required bool     `yaml:"required,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

// ApplicationType groups applications sharing system conventions.
type ApplicationType struct {
	Name              string       `yaml:"name"`
	SystemUser        string       `yaml:"systemUser,omitempty"`
	LocalPath         string       `yaml:"localPath,omitempty"`
	LocalPathServices string       `yaml:"localPathServices,omitempty"`
	MultipleDatabases string       `yaml:"multipleDatabases,omitempty"`
	Symlink           bool         `yaml:"symlink,omitempty"`
	Options           []OptionSpec `yaml:"options,omitempty"`
}

// LinkSpec declares that instances of an application depend on an instance
// of Target.
type LinkSpec struct {
	ID       string `yaml:"id"`
	Target   string `yaml:"target"`
	Required bool   `yaml:"required,omitempty"`
	Auto     bool   `yaml:"auto,omitempty"`
	MakeLink bool   `yaml:"makeLink,omitempty"`

	Container bool `yaml:"container,omitempty"`
	Service   bool `yaml:"service,omitempty"`
	Base      bool `yaml:"base,omitempty"`

	// Next is a static fallback target container id.
	Next string `yaml:"next,omitempty"`
}

// InScope reports whether the spec applies to instances of the given scope.
func (l LinkSpec) InScope(s Scope) bool {
	switch s {
	case ScopeContainer:
		return l.Container
	case ScopeService:
		return l.Service
	case ScopeBase:
		return l.Base
	}
	return false
}

// ChildSpec declares a sub-instance every instance of an application owns.
type ChildSpec struct {
	ID          string `yaml:"id"`
	Application string `yaml:"application"`
	Sequence    int    `yaml:"sequence"`
	Required    bool   `yaml:"required,omitempty"`
	Container   bool   `yaml:"container,omitempty"`
	Base        bool   `yaml:"base,omitempty"`
	Server      string `yaml:"server,omitempty"`
}

// MetadataSpec declares a typed value attached to instances.
type MetadataSpec struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Scope     Scope     `yaml:"scope"`
	Default   string    `yaml:"default,omitempty"`
	ValueType ValueType `yaml:"valueType,omitempty"`
	Function  string    `yaml:"function,omitempty"`
}

// Parse converts a raw metadata value according to the declared type.
func (m MetadataSpec) Parse(raw string) (interface{}, error) {
	switch m.ValueType {
	case ValueInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case ValueFloat:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	default:
		return raw, nil
	}
}

// BackupPolicy is the per-scope save schedule of an application.
type BackupPolicy struct {
	MinutesBetweenSave int      `yaml:"minutesBetweenSave,omitempty"`
	ExpirationDays     int      `yaml:"expirationDays,omitempty"`
	Destinations       []string `yaml:"destinations,omitempty"`
}

// Hook is a command template run at a lifecycle step. When Host is false
// the command is executed inside the container.
type Hook struct {
	Run  string `yaml:"run"`
	Host bool   `yaml:"host,omitempty"`
}

// Hook names understood by the orchestrator.
const (
	HookPreDeploy       = "pre_deploy"
	HookPostDeploy      = "post_deploy"
	HookPrePurge        = "pre_purge"
	HookDeployDatabase  = "deploy_database"
	HookDeployBuild     = "deploy_build"
	HookRestore         = "restore"
	HookPostRestore     = "post_restore"
	HookCreatePoweruser = "create_poweruser"
	HookDeployTest      = "deploy_test"
	HookPurgeDatabase   = "purge_database"
	HookPostReset       = "post_reset"
	HookDeployLink      = "deploy_link"
	HookPurgeLink       = "purge_link"
	HookBuildVersion    = "build_version"
	HookRefresh         = "refresh"
	HookSaveDatabase    = "save_database"
	HookUpdateBase      = "update_base"
)

// Application is a deployable kind.
type Application struct {
	Code           string         `yaml:"code"`
	Name           string         `yaml:"name"`
	Type           string         `yaml:"type"`
	CurrentVersion string         `yaml:"currentVersion,omitempty"`
	Image          string         `yaml:"image,omitempty"`
	AdminName      string         `yaml:"adminName,omitempty"`
	AdminEmail     string         `yaml:"adminEmail,omitempty"`
	Tags           []string       `yaml:"tags,omitempty"`
	Autosave       bool           `yaml:"autosave,omitempty"`
	UpdateBases    bool           `yaml:"updateBases,omitempty"`
	UpdateStrategy UpdateStrategy `yaml:"updateStrategy,omitempty"`
	NextServer     string         `yaml:"nextServer,omitempty"`
	NextContainer  string         `yaml:"nextContainer,omitempty"`
	Links          []LinkSpec     `yaml:"links,omitempty"`
	Children       []ChildSpec    `yaml:"children,omitempty"`
	Metadata       []MetadataSpec `yaml:"metadata,omitempty"`

	// Options holds application-level values of type options.
	Options map[string]string `yaml:"options,omitempty"`

	ContainerBackup BackupPolicy `yaml:"containerBackup,omitempty"`
	BaseBackup      BackupPolicy `yaml:"baseBackup,omitempty"`

	Archive   string          `yaml:"archive,omitempty"`
	BuildFile string          `yaml:"buildFile,omitempty"`
	Hooks     map[string]Hook `yaml:"hooks,omitempty"`
}

// FullCode identifies the application across types. It keys link override
// maps.
func (a *Application) FullCode() string {
	return a.Type + "-" + a.Code
}

// HasTags reports whether the application carries every given tag.
func (a *Application) HasTags(tags ...string) bool {
	for _, want := range tags {
		found := false
		for _, t := range a.Tags {
			if t == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Hook returns the hook registered under name.
func (a *Application) Hook(name string) (Hook, bool) {
	h, ok := a.Hooks[name]
	if !ok || strings.TrimSpace(h.Run) == "" {
		return Hook{}, false
	}
	return h, true
}

// ArchivePath is the directory holding built versions on the archive container.
func (a *Application) ArchivePath() string {
	return "/opt/archives/" + a.Type + "/" + a.Code
}

// ImageVersion is a tagged build of an image with its upgrade priority.
type ImageVersion struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority,omitempty"`
}

// PortSpec declares a port published by an image.
type PortSpec struct {
	Name        string `yaml:"name"`
	LocalPort   string `yaml:"localPort"`
	HostPort    int    `yaml:"hostPort,omitempty"`
	Expose      Expose `yaml:"expose,omitempty"`
	UDP         bool   `yaml:"udp,omitempty"`
	UseHostPort bool   `yaml:"useHostPort,omitempty"`
}

// VolumeSpec declares a volume mounted by an image.
type VolumeSpec struct {
	Path     string `yaml:"path"`
	HostPath string `yaml:"hostPath,omitempty"`
	User     string `yaml:"user,omitempty"`
	ReadOnly bool   `yaml:"readOnly,omitempty"`
	NoSave   bool   `yaml:"noSave,omitempty"`
}

// Image describes the runtime template of containers.
type Image struct {
	Name        string         `yaml:"name"`
	Versions    []ImageVersion `yaml:"versions,omitempty"`
	Ports       []PortSpec     `yaml:"ports,omitempty"`
	Volumes     []VolumeSpec   `yaml:"volumes,omitempty"`
	VolumesFrom []string       `yaml:"volumesFrom,omitempty"`
}

// Version looks up a version by name.
func (i *Image) Version(name string) (ImageVersion, bool) {
	for _, v := range i.Versions {
		if v.Name == name {
			return v, true
		}
	}
	return ImageVersion{}, false
}

// LatestVersion returns the first declared version, which is the newest.
func (i *Image) LatestVersion() (ImageVersion, bool) {
	if len(i.Versions) == 0 {
		return ImageVersion{}, false
	}
	return i.Versions[0], true
}
