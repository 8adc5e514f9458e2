package model

import "steward/internal/catalog"

// Option is an option value held by a container or base.
type Option struct {
	SpecID string `json:"specId"`
	Name   string `json:"name"`
	Value  string `json:"value,omitempty"`
}

// Link is a dependency of an instance on a target container.
type Link struct {
	SpecID      string `json:"specId"`
	Application string `json:"application"`
	Target      string `json:"target,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Auto        bool   `json:"auto,omitempty"`
	MakeLink    bool   `json:"makeLink,omitempty"`
	Deployed    bool   `json:"deployed,omitempty"`
}

// ChildSlot declares a sub-instance owned by a container or base.
type ChildSlot struct {
	ID          string `json:"id"`
	SpecID      string `json:"specId"`
	Application string `json:"application"`
	Sequence    int    `json:"sequence"`
	ServerID    string `json:"serverId,omitempty"`
	ChildID     string `json:"childId,omitempty"`

	// SaveID is restored into the child the next time it is created.
	SaveID string `json:"saveId,omitempty"`
}

// Metadata is a typed value held by a container or base.
type Metadata struct {
	SpecID string `json:"specId"`
	Name   string `json:"name"`
	Value  string `json:"value,omitempty"`
}

// PortBinding maps a container port to a host port.
type PortBinding struct {
	Name        string         `json:"name"`
	LocalPort   string         `json:"localPort"`
	HostPort    int            `json:"hostPort,omitempty"`
	Expose      catalog.Expose `json:"expose"`
	UDP         bool           `json:"udp,omitempty"`
	UseHostPort bool           `json:"useHostPort,omitempty"`
}

// VolumeBinding mounts a path of the container.
type VolumeBinding struct {
	Path     string `json:"path"`
	HostPath string `json:"hostPath,omitempty"`
	User     string `json:"user,omitempty"`
	ReadOnly bool   `json:"readOnly,omitempty"`
	NoSave   bool   `json:"noSave,omitempty"`
}

// OptionValues indexes options by name.
func OptionValues(opts []Option) map[string]string {
	m := make(map[string]string, len(opts))
	for _, o := range opts {
		m[o.Name] = o.Value
	}
	return m
}

// FindLink returns the link towards the given application code.
func FindLink(links []Link, application string) (Link, bool) {
	for _, l := range links {
		if l.Application == application {
			return l, true
		}
	}
	return Link{}, false
}

// FindSlot returns the child slot with the given id.
func FindSlot(slots []ChildSlot, id string) (ChildSlot, int, bool) {
	for i, s := range slots {
		if s.ID == id {
			return s, i, true
		}
	}
	return ChildSlot{}, -1, false
}
