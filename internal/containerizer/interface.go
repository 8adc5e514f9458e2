package containerizer

import (
	"context"

	"steward/internal/remote"
)

// ContainerRuntime drives a container engine on a remote server. Every
// operation runs over the given session.
type ContainerRuntime interface {
	// Run creates and starts a container from config
	Run(ctx context.Context, s remote.Session, config ContainerConfig) error

	// Start starts an existing container
	Start(ctx context.Context, s remote.Session, name string) error

	// Stop stops a running container
	Stop(ctx context.Context, s remote.Session, name string) error

	// Remove force-removes a container and its anonymous volumes
	Remove(ctx context.Context, s remote.Session, name string) error

	// IsRunning checks if a container is running
	IsRunning(ctx context.Context, s remote.Session, name string) (bool, error)

	// Exec runs a shell command inside a container
	Exec(ctx context.Context, s remote.Session, name, user, command string) (string, error)

	// Copy copies files between a container and the server. Container
	// paths are written name:path.
	Copy(ctx context.Context, s remote.Session, src, dst string) error
}

// ContainerConfig holds configuration for running a container
type ContainerConfig struct {
	Name        string            // Container name
	Image       string            // Image reference including the tag
	Env         map[string]string // Environment variables
	Ports       []string          // Port mappings ([ip:]host:container[/udp])
	Volumes     []string          // Volume mounts (host:container[:ro])
	VolumesFrom []string          // Containers to mount volumes from
	Links       []string          // Legacy links (name:alias)
	User        string            // User to run as
	Entrypoint  []string          // Entrypoint override
}
