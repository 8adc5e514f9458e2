package reconcile

import (
	"errors"

	"github.com/google/uuid"

	"steward/internal/catalog"
	"steward/internal/model"
)

// newSlotID is replaced in tests that need stable ids.
var newSlotID = uuid.NewString

// Input gathers everything a pass merges for one instance.
type Input struct {
	Application *catalog.Application

	// OptionSpecs are the options of the application type.
	OptionSpecs []catalog.OptionSpec

	// Image provides port and volume specs. It may be nil for kinds without
	// a runtime.
	Image *catalog.Image

	// Existing holds the current or pending items of the instance.
	Existing State

	Overrides Overrides
}

// rule is the per-category part of the merge: how specs and items are keyed,
// how a matching item is kept, how a missing one is synthesized and which
// specs survive the eligibility filter.
type rule[S, I any] struct {
	specKey  func(S) string
	itemKey  func(I) string
	keep     func(S, I) I
	synth    func(S) I
	eligible func(S) bool
}

// merge keeps every existing item that references a known spec, synthesizes
// one item per spec that nothing referenced, and drops items of ineligible
// specs. The output follows spec declaration order.
func merge[S, I any](r rule[S, I], specs []S, existing []I) []I {
	sources := make(map[string]S, len(specs))
	order := make([]string, 0, len(specs))
	for _, s := range specs {
		k := r.specKey(s)
		if _, dup := sources[k]; dup {
			continue
		}
		sources[k] = s
		order = append(order, k)
	}

	kept := make(map[string]I, len(existing))
	for _, item := range existing {
		k := r.itemKey(item)
		s, ok := sources[k]
		if !ok {
			continue
		}
		if _, seen := kept[k]; seen {
			continue
		}
		kept[k] = r.keep(s, item)
	}

	var out []I
	for _, k := range order {
		s := sources[k]
		if r.eligible != nil && !r.eligible(s) {
			continue
		}
		if item, ok := kept[k]; ok {
			out = append(out, item)
			continue
		}
		out = append(out, r.synth(s))
	}
	return out
}

// Reconcile merges the catalog specs of an application with the existing items
// of an instance. The result replaces the instance items wholesale and running
// it again on its own output yields the same items.
func Reconcile(caps Capabilities, in Input) (Desired, error) {
	app := in.Application
	if app == nil {
		return Desired{}, errors.New("reconcile: application is required")
	}

	var d Desired
	if caps.Option != nil {
		d.state.Options = applyOptionOverrides(merge(optionRule(app, caps), in.OptionSpecs, in.Existing.Options), in.Overrides.Options)
	}
	if caps.Link != nil {
		d.state.Links = merge(linkRule(caps), app.Links, in.Existing.Links)
	}
	if caps.Child != nil {
		d.state.Children = merge(childRule(caps), app.Children, in.Existing.Children)
	}
	if caps.Metadata != nil {
		d.state.Metadata = applyMetadataOverrides(merge(metadataRule(caps), app.Metadata, in.Existing.Metadata), in.Overrides.Metadata)
	}
	if in.Image != nil {
		if caps.Ports {
			d.state.Ports = merge(portRule(), in.Image.Ports, in.Existing.Ports)
		}
		if caps.Volumes {
			d.state.Volumes = merge(volumeRule(), in.Image.Volumes, in.Existing.Volumes)
		}
	}
	return d, nil
}

func optionRule(app *catalog.Application, caps Capabilities) rule[catalog.OptionSpec, model.Option] {
	return rule[catalog.OptionSpec, model.Option]{
		specKey: func(s catalog.OptionSpec) string { return s.ID },
		itemKey: func(o model.Option) string { return o.SpecID },
		keep: func(s catalog.OptionSpec, o model.Option) model.Option {
			value := o.Value
			if value == "" {
				value = s.Default
			}
			return model.Option{SpecID: s.ID, Name: s.Name, Value: value}
		},
		synth: func(s catalog.OptionSpec) model.Option {
			return model.Option{SpecID: s.ID, Name: s.Name, Value: s.Default}
		},
		eligible: func(s catalog.OptionSpec) bool { return caps.Option(app, s) },
	}
}

func linkRule(caps Capabilities) rule[catalog.LinkSpec, model.Link] {
	fromSpec := func(s catalog.LinkSpec) model.Link {
		return model.Link{
			SpecID:      s.ID,
			Application: s.Target,
			Required:    s.Required,
			Auto:        s.Auto,
			MakeLink:    s.MakeLink,
		}
	}
	return rule[catalog.LinkSpec, model.Link]{
		specKey: func(s catalog.LinkSpec) string { return s.ID },
		itemKey: func(l model.Link) string { return l.SpecID },
		keep: func(s catalog.LinkSpec, l model.Link) model.Link {
			out := fromSpec(s)
			out.Target = l.Target
			out.Deployed = l.Deployed
			return out
		},
		// The static fallback is applied by the link resolver, not here, so
		// that an inherited parent target can still win over it.
		synth:    fromSpec,
		eligible: caps.Link,
	}
}

func childRule(caps Capabilities) rule[catalog.ChildSpec, model.ChildSlot] {
	return rule[catalog.ChildSpec, model.ChildSlot]{
		specKey: func(s catalog.ChildSpec) string { return s.ID },
		itemKey: func(c model.ChildSlot) string { return c.SpecID },
		keep: func(s catalog.ChildSpec, c model.ChildSlot) model.ChildSlot {
			out := c
			if out.ID == "" {
				out.ID = newSlotID()
			}
			out.SpecID = s.ID
			out.Application = s.Application
			if out.Sequence == 0 {
				out.Sequence = s.Sequence
			}
			if out.ServerID == "" {
				out.ServerID = s.Server
			}
			return out
		},
		synth: func(s catalog.ChildSpec) model.ChildSlot {
			return model.ChildSlot{
				ID:          newSlotID(),
				SpecID:      s.ID,
				Application: s.Application,
				Sequence:    s.Sequence,
				ServerID:    s.Server,
			}
		},
		eligible: caps.Child,
	}
}

func metadataRule(caps Capabilities) rule[catalog.MetadataSpec, model.Metadata] {
	return rule[catalog.MetadataSpec, model.Metadata]{
		specKey: func(s catalog.MetadataSpec) string { return s.ID },
		itemKey: func(m model.Metadata) string { return m.SpecID },
		keep: func(s catalog.MetadataSpec, m model.Metadata) model.Metadata {
			value := m.Value
			if value == "" {
				value = s.Default
			}
			return model.Metadata{SpecID: s.ID, Name: s.Name, Value: value}
		},
		synth: func(s catalog.MetadataSpec) model.Metadata {
			return model.Metadata{SpecID: s.ID, Name: s.Name, Value: s.Default}
		},
		eligible: caps.Metadata,
	}
}

func portRule() rule[catalog.PortSpec, model.PortBinding] {
	fromSpec := func(s catalog.PortSpec) model.PortBinding {
		return model.PortBinding{
			Name:        s.Name,
			LocalPort:   s.LocalPort,
			HostPort:    s.HostPort,
			Expose:      s.Expose,
			UDP:         s.UDP,
			UseHostPort: s.UseHostPort,
		}
	}
	return rule[catalog.PortSpec, model.PortBinding]{
		specKey: func(s catalog.PortSpec) string { return s.Name },
		itemKey: func(p model.PortBinding) string { return p.Name },
		keep: func(s catalog.PortSpec, p model.PortBinding) model.PortBinding {
			out := fromSpec(s)
			if p.HostPort != 0 {
				out.HostPort = p.HostPort
			}
			return out
		},
		synth: fromSpec,
	}
}

func volumeRule() rule[catalog.VolumeSpec, model.VolumeBinding] {
	fromSpec := func(s catalog.VolumeSpec) model.VolumeBinding {
		return model.VolumeBinding{
			Path:     s.Path,
			HostPath: s.HostPath,
			User:     s.User,
			ReadOnly: s.ReadOnly,
			NoSave:   s.NoSave,
		}
	}
	return rule[catalog.VolumeSpec, model.VolumeBinding]{
		specKey: func(s catalog.VolumeSpec) string { return s.Path },
		itemKey: func(v model.VolumeBinding) string { return v.Path },
		keep: func(s catalog.VolumeSpec, v model.VolumeBinding) model.VolumeBinding {
			out := fromSpec(s)
			if v.HostPath != "" {
				out.HostPath = v.HostPath
			}
			return out
		},
		synth: fromSpec,
	}
}

func applyOptionOverrides(opts []model.Option, overrides map[string]string) []model.Option {
	if len(overrides) == 0 {
		return opts
	}
	for i := range opts {
		if v, ok := overrides[opts[i].Name]; ok {
			opts[i].Value = v
		}
	}
	return opts
}

func applyMetadataOverrides(md []model.Metadata, overrides map[string]string) []model.Metadata {
	if len(overrides) == 0 {
		return md
	}
	for i := range md {
		if v, ok := overrides[md[i].Name]; ok {
			md[i].Value = v
		}
	}
	return md
}
