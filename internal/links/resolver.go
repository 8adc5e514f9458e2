package links

import (
	"context"
	"fmt"

	"steward/internal/api"
	"steward/internal/catalog"
	"steward/internal/model"
	"steward/internal/store"
	"steward/pkg/logging"
)

const linksSubsystem = "Links"

// Store is the part of the record store the resolver reads.
type Store interface {
	GetContainer(ctx context.Context, id string) (*model.Container, error)
	GetBase(ctx context.Context, id string) (*model.Base, error)
	ListContainers(ctx context.Context, f store.ContainerFilter) ([]model.Container, error)
}

// Applications looks up catalog applications.
type Applications interface {
	Application(code string) (*catalog.Application, error)
}

// Source tells which rule of the fallback chain produced a target.
type Source int

const (
	SourceNone Source = iota
	SourceExplicit
	SourceParent
	SourceOverride
	SourceFallback
	SourceSingleton
)

func (s Source) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceParent:
		return "parent"
	case SourceOverride:
		return "override"
	case SourceFallback:
		return "fallback"
	case SourceSingleton:
		return "singleton"
	default:
		return "none"
	}
}

// Owner identifies the instance holding the links being resolved.
type Owner struct {
	Kind model.Kind
	ID   string
	Name string

	// ParentID and ParentSlotID are set when the owner sits in a child slot
	// of another instance of the same kind.
	ParentID     string
	ParentSlotID string

	// HasChildren is true when the owner delegates to child slots.
	HasChildren bool
}

// ContainerOwner describes a container as a link owner.
func ContainerOwner(c *model.Container) Owner {
	return Owner{
		Kind:         model.KindContainer,
		ID:           c.ID,
		Name:         c.Suffix,
		ParentID:     c.ParentID,
		ParentSlotID: c.ParentSlotID,
		HasChildren:  len(c.Children) > 0,
	}
}

// BaseOwner describes a base as a link owner.
func BaseOwner(b *model.Base) Owner {
	return Owner{
		Kind:         model.KindBase,
		ID:           b.ID,
		Name:         b.Name,
		ParentID:     b.ParentID,
		ParentSlotID: b.ParentSlotID,
		HasChildren:  len(b.Children) > 0,
	}
}

// Resolution is the outcome of resolving one link.
type Resolution struct {
	Target string
	Source Source
}

// Resolved reports whether a target was found.
func (r Resolution) Resolved() bool {
	return r.Target != ""
}

// Resolver picks link target containers.
type Resolver struct {
	store Store
	apps  Applications
}

// NewResolver creates a resolver reading from the given store and catalog.
func NewResolver(s Store, apps Applications) *Resolver {
	return &Resolver{store: s, apps: apps}
}

// Resolve finds the target of one link. The first rule that yields a target
// wins:
//
//  1. the target already set on the link
//  2. when the owner is in a child slot, the parent's link to the same
//     application, or the parent's child of that application
//  3. overrides keyed by the full code of the linked application
//  4. the static fallback declared on the link spec
//  5. the first container of the application that is not in a child slot
//
// An unresolved link is not an error here; see ResolveAll.
func (r *Resolver) Resolve(ctx context.Context, link model.Link, spec catalog.LinkSpec, owner Owner, overrides map[string]string) (Resolution, error) {
	if link.Target != "" {
		return Resolution{Target: link.Target, Source: SourceExplicit}, nil
	}

	if owner.ParentSlotID != "" && owner.ParentID != "" {
		target, err := r.fromParent(ctx, owner, link.Application)
		if err != nil {
			return Resolution{}, err
		}
		if target != "" {
			return Resolution{Target: target, Source: SourceParent}, nil
		}
	}

	if len(overrides) > 0 {
		if target, ok := overrides[r.fullCode(link.Application)]; ok && target != "" {
			return Resolution{Target: target, Source: SourceOverride}, nil
		}
	}

	if spec.Next != "" {
		return Resolution{Target: spec.Next, Source: SourceFallback}, nil
	}

	candidates, err := r.store.ListContainers(ctx, store.ContainerFilter{Application: link.Application, Ownerless: true})
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to search %s containers: %w", link.Application, err)
	}
	for _, c := range candidates {
		if owner.Kind == model.KindContainer && c.ID == owner.ID {
			continue
		}
		return Resolution{Target: c.ID, Source: SourceSingleton}, nil
	}
	return Resolution{}, nil
}

// ResolveAll resolves every link of an owner and returns the links with their
// targets filled in. A required link left without target fails the whole set
// with a ResolutionError, unless the owner delegates to child slots.
func (r *Resolver) ResolveAll(ctx context.Context, owner Owner, app *catalog.Application, links []model.Link, overrides map[string]string) ([]model.Link, error) {
	specs := make(map[string]catalog.LinkSpec, len(app.Links))
	for _, s := range app.Links {
		specs[s.ID] = s
	}

	out := make([]model.Link, len(links))
	for i, link := range links {
		res, err := r.Resolve(ctx, link, specs[link.SpecID], owner, overrides)
		if err != nil {
			return nil, err
		}
		if !res.Resolved() {
			if link.Required && !owner.HasChildren {
				return nil, api.NewLinkResolutionError(owner.Name, link.Application)
			}
			logging.Debug(linksSubsystem, "Link %s of %s %s left unresolved", link.Application, owner.Kind, owner.Name)
		} else if res.Source != SourceExplicit {
			logging.Debug(linksSubsystem, "Link %s of %s %s resolved to %s (%s)", link.Application, owner.Kind, owner.Name, res.Target, res.Source)
		}
		link.Target = res.Target
		out[i] = link
	}
	return out, nil
}

func (r *Resolver) fromParent(ctx context.Context, owner Owner, application string) (string, error) {
	var parentLinks []model.Link
	var parentChildren []model.ChildSlot
	switch owner.Kind {
	case model.KindContainer:
		parent, err := r.store.GetContainer(ctx, owner.ParentID)
		if err != nil {
			return "", fmt.Errorf("failed to load parent of %s: %w", owner.Name, err)
		}
		parentLinks = parent.Links
		parentChildren = parent.Children
	case model.KindBase:
		parent, err := r.store.GetBase(ctx, owner.ParentID)
		if err != nil {
			return "", fmt.Errorf("failed to load parent of %s: %w", owner.Name, err)
		}
		// Base children are bases and never link targets.
		parentLinks = parent.Links
	}

	if l, ok := model.FindLink(parentLinks, application); ok && l.Target != "" {
		return l.Target, nil
	}
	for _, slot := range parentChildren {
		if slot.Application == application && slot.ChildID != "" && slot.ID != owner.ParentSlotID {
			return slot.ChildID, nil
		}
	}
	return "", nil
}

func (r *Resolver) fullCode(code string) string {
	if r.apps == nil {
		return code
	}
	app, err := r.apps.Application(code)
	if err != nil {
		return code
	}
	return app.FullCode()
}
