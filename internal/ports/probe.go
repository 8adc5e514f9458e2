package ports

import (
	"context"
	"fmt"
	"strings"

	"steward/internal/model"
	"steward/internal/remote"
)

// SessionProber looks for listening sockets with netstat over an open
// session to the server.
type SessionProber struct {
	Session remote.Session
}

// InUse reports whether netstat lists the port. A server without netstat
// is an error, not a busy port.
func (p SessionProber) InUse(ctx context.Context, server *model.Server, port int) (bool, error) {
	out, err := p.Session.Execute(ctx, remote.Shell(ProbeCommand(server, port)))
	if err != nil {
		return false, fmt.Errorf("failed to list sockets for port %d: %w", port, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// ProbeCommand is the shell pipeline listing sockets bound to port. Servers
// with a public ip only match sockets on that address.
func ProbeCommand(server *model.Server, port int) string {
	pattern := fmt.Sprintf(":%d", port)
	if server.PublicIP {
		pattern = fmt.Sprintf("%s:%d", server.IP, port)
	}
	return fmt.Sprintf("command -v netstat >/dev/null 2>&1 || exit 127; netstat -an 2>/dev/null | grep '%s ' || true", pattern)
}
