package remote

import (
	"context"
	"strconv"

	"steward/internal/model"
)

const remoteSubsystem = "Remote"

// Host is everything needed to open a session on a server.
type Host struct {
	// Name is the alias used in logs and ssh config lookups.
	Name    string
	Address string
	Port    int
	User    string

	// PrivateKey is a PEM encoded key. When empty the dialer falls back to
	// the ssh agent or the identity file of the ssh config.
	PrivateKey string
}

// Addr returns host:port.
func (h Host) Addr() string {
	port := h.Port
	if port == 0 {
		port = 22
	}
	return h.Address + ":" + strconv.Itoa(port)
}

// HostFor describes how to reach a server.
func HostFor(s *model.Server) Host {
	return Host{
		Name:       s.FullDomain(),
		Address:    s.IP,
		Port:       s.SSHPort,
		User:       s.Login,
		PrivateKey: s.PrivateKey,
	}
}

// Session runs commands on one host. Implementations own timeout and retry
// policy.
type Session interface {
	// Execute runs argv and returns its combined output. A non-zero exit
	// status yields an *api.ExecutionError.
	Execute(ctx context.Context, argv []string) (string, error)

	// SendFile writes content to remotePath.
	SendFile(ctx context.Context, content []byte, remotePath string) error

	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Connect(ctx context.Context, host Host) (Session, error)
}

// Shell wraps a shell pipeline so it can be passed to Execute.
func Shell(command string) []string {
	return []string{"sh", "-c", command}
}
