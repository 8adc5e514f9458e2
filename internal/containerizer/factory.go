package containerizer

import (
	"fmt"
	"strings"
)

// Engine names a container engine CLI installed on managed servers.
type Engine string

const (
	EngineDocker Engine = "docker"
	EnginePodman Engine = "podman"
)

// NewContainerRuntime returns the runtime for the named engine. An empty name
// selects docker. Podman is driven through its docker compatible CLI, so both
// share DockerRuntime and differ only in the binary invoked.
func NewContainerRuntime(engine string) (ContainerRuntime, error) {
	switch e := Engine(strings.ToLower(engine)); e {
	case "":
		return NewDockerRuntime(string(EngineDocker)), nil
	case EngineDocker, EnginePodman:
		return NewDockerRuntime(string(e)), nil
	default:
		return nil, fmt.Errorf("unsupported container engine: %s", engine)
	}
}
