package containerizer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"steward/internal/model"
	"steward/internal/remote"
	"steward/pkg/logging"
)

const dockerSubsystem = "Docker"

// DockerRuntime implements ContainerRuntime using the Docker CLI of the
// remote server.
type DockerRuntime struct {
	binary string
}

// NewDockerRuntime creates a runtime invoking binary on the server.
func NewDockerRuntime(binary string) *DockerRuntime {
	if binary == "" {
		binary = "docker"
	}
	return &DockerRuntime{binary: binary}
}

// RunArgs builds the argv of a run command.
func (d *DockerRuntime) RunArgs(config ContainerConfig) []string {
	args := []string{d.binary, "run", "-d", "--restart=always", "--name", config.Name}

	// Sorted for stable command lines
	keys := make([]string, 0, len(config.Env))
	for k := range config.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, config.Env[k]))
	}

	for _, port := range config.Ports {
		args = append(args, "-p", port)
	}

	for _, vol := range config.Volumes {
		args = append(args, "-v", vol)
	}

	for _, from := range config.VolumesFrom {
		args = append(args, "--volumes-from", from)
	}

	for _, link := range config.Links {
		args = append(args, "--link", link)
	}

	if config.User != "" {
		args = append(args, "--user", config.User)
	}

	if len(config.Entrypoint) > 0 {
		args = append(args, "--entrypoint", config.Entrypoint[0])
	}

	args = append(args, config.Image)

	if len(config.Entrypoint) > 1 {
		args = append(args, config.Entrypoint[1:]...)
	}
	return args
}

// Run creates and starts a container
func (d *DockerRuntime) Run(ctx context.Context, s remote.Session, config ContainerConfig) error {
	args := d.RunArgs(config)
	logging.Debug(dockerSubsystem, "Starting container with command: %s", strings.Join(args, " "))

	output, err := s.Execute(ctx, args)
	if err != nil {
		return fmt.Errorf("failed to run container %s: %w", config.Name, err)
	}

	containerID := strings.TrimSpace(output)
	shortID := containerID
	if len(containerID) > 12 {
		shortID = containerID[:12]
	}
	logging.Info(dockerSubsystem, "Started container %s with ID %s", config.Name, shortID)
	return nil
}

// Start starts an existing container
func (d *DockerRuntime) Start(ctx context.Context, s remote.Session, name string) error {
	logging.Info(dockerSubsystem, "Starting container %s", name)
	if _, err := s.Execute(ctx, []string{d.binary, "start", name}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", name, err)
	}
	return nil
}

// Stop stops a running container
func (d *DockerRuntime) Stop(ctx context.Context, s remote.Session, name string) error {
	logging.Info(dockerSubsystem, "Stopping container %s", name)
	if _, err := s.Execute(ctx, []string{d.binary, "stop", name}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", name, err)
	}
	return nil
}

// Remove removes a container
func (d *DockerRuntime) Remove(ctx context.Context, s remote.Session, name string) error {
	logging.Info(dockerSubsystem, "Removing container %s", name)
	if _, err := s.Execute(ctx, []string{d.binary, "rm", "-f", "-v", name}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// IsRunning checks if a container is running
func (d *DockerRuntime) IsRunning(ctx context.Context, s remote.Session, name string) (bool, error) {
	output, err := s.Execute(ctx, []string{d.binary, "inspect", "-f", "{{.State.Running}}", name})
	if err != nil {
		return false, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	return strings.TrimSpace(output) == "true", nil
}

// Exec runs a shell command inside a container
func (d *DockerRuntime) Exec(ctx context.Context, s remote.Session, name, user, command string) (string, error) {
	args := []string{d.binary, "exec"}
	if user != "" {
		args = append(args, "-u", user)
	}
	args = append(args, name, "sh", "-c", command)
	return s.Execute(ctx, args)
}

// Copy copies files between a container and the server
func (d *DockerRuntime) Copy(ctx context.Context, s remote.Session, src, dst string) error {
	logging.Debug(dockerSubsystem, "Copying %s to %s", src, dst)
	if _, err := s.Execute(ctx, []string{d.binary, "cp", src, dst}); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// PortMapping renders a binding as a -p value. The host ip is only bound
// when given.
func PortMapping(ip string, b model.PortBinding) string {
	m := strconv.Itoa(b.HostPort) + ":" + b.LocalPort
	if ip != "" {
		m = ip + ":" + m
	}
	if b.UDP {
		m += "/udp"
	}
	return m
}

// VolumeMount renders a binding as a -v value. Volumes without host path are
// left to the image and yield false.
func VolumeMount(v model.VolumeBinding) (string, bool) {
	if v.HostPath == "" {
		return "", false
	}
	m := v.HostPath + ":" + v.Path
	if v.ReadOnly {
		m += ":ro"
	}
	return m, true
}

// ImageRef joins an image name and version tag.
func ImageRef(image, version string) string {
	if version == "" {
		return image
	}
	return image + ":" + version
}
