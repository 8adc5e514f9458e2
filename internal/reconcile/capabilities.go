package reconcile

import (
	"fmt"

	"steward/internal/catalog"
)

// Capabilities describes how the merge behaves for one instance kind: which
// item categories apply and which catalog specs are eligible to produce items.
// Nil predicates make the category not apply to the kind.
type Capabilities struct {
	Kind catalog.Scope

	// Ports and Volumes are derived from the image and only exist on
	// containers.
	Ports   bool
	Volumes bool

	Option   func(app *catalog.Application, spec catalog.OptionSpec) bool
	Link     func(spec catalog.LinkSpec) bool
	Child    func(spec catalog.ChildSpec) bool
	Metadata func(spec catalog.MetadataSpec) bool
}

// ContainerCapabilities returns the descriptor for containers.
func ContainerCapabilities() Capabilities {
	return Capabilities{
		Kind:    catalog.ScopeContainer,
		Ports:   true,
		Volumes: true,
		Option: func(app *catalog.Application, spec catalog.OptionSpec) bool {
			return spec.Scope == catalog.ScopeContainer && spec.Auto && app.HasTags(spec.Tags...)
		},
		Link: func(spec catalog.LinkSpec) bool {
			return spec.InScope(catalog.ScopeContainer) && (spec.Auto || spec.MakeLink)
		},
		Child: func(spec catalog.ChildSpec) bool {
			return spec.Required && spec.Container
		},
		Metadata: func(spec catalog.MetadataSpec) bool {
			return spec.Scope == catalog.ScopeContainer
		},
	}
}

// BaseCapabilities returns the descriptor for bases. Option tags are not
// checked for bases.
func BaseCapabilities() Capabilities {
	return Capabilities{
		Kind: catalog.ScopeBase,
		Option: func(_ *catalog.Application, spec catalog.OptionSpec) bool {
			return spec.Scope == catalog.ScopeBase && spec.Auto
		},
		Link: func(spec catalog.LinkSpec) bool {
			return spec.InScope(catalog.ScopeBase) && (spec.Auto || spec.MakeLink)
		},
		Child: func(spec catalog.ChildSpec) bool {
			return spec.Required && spec.Base
		},
		Metadata: func(spec catalog.MetadataSpec) bool {
			return spec.Scope == catalog.ScopeBase
		},
	}
}

// CapabilitiesFor returns the descriptor registered for a kind.
func CapabilitiesFor(kind catalog.Scope) (Capabilities, error) {
	switch kind {
	case catalog.ScopeContainer:
		return ContainerCapabilities(), nil
	case catalog.ScopeBase:
		return BaseCapabilities(), nil
	}
	return Capabilities{}, fmt.Errorf("no reconcile capabilities for kind %q", kind)
}
