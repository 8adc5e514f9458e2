package reconcile

import "steward/internal/model"

// State is a full set of instance items, one slice per category.
type State struct {
	Options  []model.Option
	Links    []model.Link
	Children []model.ChildSlot
	Metadata []model.Metadata
	Ports    []model.PortBinding
	Volumes  []model.VolumeBinding
}

// Overrides are explicit values applied on top of the merged items, keyed by
// option or metadata name.
type Overrides struct {
	Options  map[string]string
	Metadata map[string]string
}

// Desired is the result of a reconciliation pass. It cannot be modified once
// built; every accessor hands out a copy.
type Desired struct {
	state State
}

func (d Desired) Options() []model.Option {
	return append([]model.Option(nil), d.state.Options...)
}

func (d Desired) Links() []model.Link {
	return append([]model.Link(nil), d.state.Links...)
}

func (d Desired) Children() []model.ChildSlot {
	return append([]model.ChildSlot(nil), d.state.Children...)
}

func (d Desired) Metadata() []model.Metadata {
	return append([]model.Metadata(nil), d.state.Metadata...)
}

func (d Desired) Ports() []model.PortBinding {
	return append([]model.PortBinding(nil), d.state.Ports...)
}

func (d Desired) Volumes() []model.VolumeBinding {
	return append([]model.VolumeBinding(nil), d.state.Volumes...)
}

// State returns a copy of every category.
func (d Desired) State() State {
	return State{
		Options:  d.Options(),
		Links:    d.Links(),
		Children: d.Children(),
		Metadata: d.Metadata(),
		Ports:    d.Ports(),
		Volumes:  d.Volumes(),
	}
}

// ApplyToContainer replaces the item sets of a container wholesale.
func (d Desired) ApplyToContainer(c *model.Container) {
	c.Options = d.Options()
	c.Links = d.Links()
	c.Children = d.Children()
	c.Metadata = d.Metadata()
	c.Ports = d.Ports()
	c.Volumes = d.Volumes()
}

// ApplyToBase replaces the item sets of a base wholesale.
func (d Desired) ApplyToBase(b *model.Base) {
	b.Options = d.Options()
	b.Links = d.Links()
	b.Children = d.Children()
	b.Metadata = d.Metadata()
}

// ContainerState extracts the current items of a container.
func ContainerState(c *model.Container) State {
	return State{
		Options:  c.Options,
		Links:    c.Links,
		Children: c.Children,
		Metadata: c.Metadata,
		Ports:    c.Ports,
		Volumes:  c.Volumes,
	}
}

// BaseState extracts the current items of a base.
func BaseState(b *model.Base) State {
	return State{
		Options:  b.Options,
		Links:    b.Links,
		Children: b.Children,
		Metadata: b.Metadata,
	}
}
