package ports

import (
	"context"
	"fmt"
	"strconv"

	"steward/internal/api"
	"steward/internal/catalog"
	"steward/internal/model"
	"steward/pkg/logging"
)

const portsSubsystem = "Ports"

// Store is the part of the record store the allocator reads.
type Store interface {
	HostPortsInUse(ctx context.Context, serverID string) (map[int]string, error)
}

// Prober checks whether a port is already listening on a server.
type Prober interface {
	InUse(ctx context.Context, server *model.Server, port int) (bool, error)
}

// Request is one allocation pass for a container.
type Request struct {
	// Owner names the container in errors; OwnerID excludes its own stored
	// bindings from the collision check.
	Owner   string
	OwnerID string

	Server *model.Server

	// Bindings are the reconciled port bindings. A non-zero HostPort is an
	// explicit assignment.
	Bindings []model.PortBinding

	// Overrides assigns host ports by binding name.
	Overrides map[string]int

	Prober Prober
}

// Allocator assigns host ports within a server's range.
type Allocator struct {
	store Store
}

// NewAllocator creates an allocator reading claimed ports from s.
func NewAllocator(s Store) *Allocator {
	return &Allocator{store: s}
}

// Allocate returns the bindings with every host port assigned. Bindings
// exposed nowhere are dropped. Free ports are searched in [StartPort,
// EndPort) with a cursor that only moves forward during the pass, so two
// bindings of the same pass never get the same port.
func (a *Allocator) Allocate(ctx context.Context, req Request) ([]model.PortBinding, error) {
	if req.Server == nil {
		return nil, fmt.Errorf("allocate ports for %s: server is required", req.Owner)
	}

	claimed, err := a.store.HostPortsInUse(ctx, req.Server.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load host ports of %s: %w", req.Server.FullDomain(), err)
	}
	taken := make(map[int]bool, len(claimed))
	for port, owner := range claimed {
		if owner != req.OwnerID || req.OwnerID == "" {
			taken[port] = true
		}
	}

	var out []model.PortBinding
	var pending []int
	for _, b := range req.Bindings {
		if b.Expose == catalog.ExposeNone {
			continue
		}
		if hp, ok := req.Overrides[b.Name]; ok && hp != 0 {
			b.HostPort = hp
		}
		if b.HostPort != 0 {
			taken[b.HostPort] = true
		} else {
			pending = append(pending, len(out))
		}
		out = append(out, b)
	}

	cursor := req.Server.StartPort
	for _, idx := range pending {
		b := &out[idx]
		port, next, err := a.next(ctx, req, cursor, taken)
		if err != nil {
			return nil, err
		}
		if port == 0 {
			return nil, api.NewPortExhaustedError(req.Owner, b.LocalPort, req.Server.StartPort, req.Server.EndPort)
		}
		cursor = next
		taken[port] = true
		b.HostPort = port
		logging.Debug(portsSubsystem, "Assigned host port %d to %s/%s of %s", port, b.Name, b.LocalPort, req.Owner)
	}

	for i := range out {
		if out[i].UseHostPort {
			out[i].LocalPort = strconv.Itoa(out[i].HostPort)
		}
	}
	return out, nil
}

// next returns the first free port at or after cursor and the cursor
// position following it. A zero port means the range is exhausted.
func (a *Allocator) next(ctx context.Context, req Request, cursor int, taken map[int]bool) (int, int, error) {
	for port := cursor; port < req.Server.EndPort; port++ {
		if taken[port] {
			continue
		}
		if req.Prober != nil {
			busy, err := req.Prober.InUse(ctx, req.Server, port)
			if err != nil {
				return 0, 0, fmt.Errorf("failed to probe port %d on %s: %w", port, req.Server.FullDomain(), err)
			}
			if busy {
				logging.Debug(portsSubsystem, "Port %d is listening on %s, skipping", port, req.Server.FullDomain())
				continue
			}
		}
		return port, port + 1, nil
	}
	return 0, req.Server.EndPort, nil
}
