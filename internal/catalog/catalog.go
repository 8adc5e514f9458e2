package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"sync/atomic"

	"steward/internal/api"
)

var (
	applicationCodePattern = regexp.MustCompile(`^[\w\d-]*$`)
	nameCodeMaxLength      = 10
)

// Catalog is the read-only set of templates instances are reconciled against.
type Catalog struct {
	Types        map[string]*ApplicationType
	Applications map[string]*Application
	Images       map[string]*Image
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		Types:        make(map[string]*ApplicationType),
		Applications: make(map[string]*Application),
		Images:       make(map[string]*Image),
	}
}

// Application looks up an application by code.
func (c *Catalog) Application(code string) (*Application, error) {
	if a, ok := c.Applications[code]; ok {
		return a, nil
	}
	return nil, api.NewNotFoundError("application", code)
}

// Type looks up an application type by name.
func (c *Catalog) Type(name string) (*ApplicationType, error) {
	if t, ok := c.Types[name]; ok {
		return t, nil
	}
	return nil, api.NewNotFoundError("application type", name)
}

// Image looks up an image by name.
func (c *Catalog) Image(name string) (*Image, error) {
	if i, ok := c.Images[name]; ok {
		return i, nil
	}
	return nil, api.NewNotFoundError("image", name)
}

// OptionSpecs returns the option specs of an application's type.
func (c *Catalog) OptionSpecs(app *Application) []OptionSpec {
	t, ok := c.Types[app.Type]
	if !ok {
		return nil
	}
	return t.Options
}

// ApplicationCodes returns all application codes, sorted.
func (c *Catalog) ApplicationCodes() []string {
	codes := make([]string, 0, len(c.Applications))
	for code := range c.Applications {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Validate checks codes and cross references. All violations are returned
// as a ValidationError describing the first one.
func (c *Catalog) Validate() error {
	for _, code := range c.ApplicationCodes() {
		app := c.Applications[code]
		if code == "" || len(code) > nameCodeMaxLength {
			return api.NewValidationError("application", "code", fmt.Sprintf("%q must have between 1 and %d characters", code, nameCodeMaxLength))
		}
		if !applicationCodePattern.MatchString(code) {
			return api.NewValidationError("application", "code", fmt.Sprintf("%q may only contain letters, digits and dashes", code))
		}
		if _, ok := c.Types[app.Type]; !ok {
			return api.NewValidationError("application", "type", fmt.Sprintf("application %s references unknown type %q", code, app.Type))
		}
		if app.Image != "" {
			if _, ok := c.Images[app.Image]; !ok {
				return api.NewValidationError("application", "image", fmt.Sprintf("application %s references unknown image %q", code, app.Image))
			}
		}
		seen := make(map[string]bool)
		for _, l := range app.Links {
			if l.ID == "" || seen["link/"+l.ID] {
				return api.NewValidationError("application", "links", fmt.Sprintf("application %s has a link with a missing or duplicate id %q", code, l.ID))
			}
			seen["link/"+l.ID] = true
			if _, ok := c.Applications[l.Target]; !ok {
				return api.NewValidationError("application", "links", fmt.Sprintf("application %s links to unknown application %q", code, l.Target))
			}
		}
		for _, ch := range app.Children {
			if ch.ID == "" || seen["child/"+ch.ID] {
				return api.NewValidationError("application", "children", fmt.Sprintf("application %s has a child with a missing or duplicate id %q", code, ch.ID))
			}
			seen["child/"+ch.ID] = true
			if ch.Application == code {
				return api.NewValidationError("application", "children", fmt.Sprintf("application %s cannot be its own child", code))
			}
			if _, ok := c.Applications[ch.Application]; !ok {
				return api.NewValidationError("application", "children", fmt.Sprintf("application %s has unknown child application %q", code, ch.Application))
			}
		}
		for _, m := range app.Metadata {
			if m.ID == "" || seen["metadata/"+m.ID] {
				return api.NewValidationError("application", "metadata", fmt.Sprintf("application %s has metadata with a missing or duplicate id %q", code, m.ID))
			}
			seen["metadata/"+m.ID] = true
			if m.Scope != ScopeContainer && m.Scope != ScopeBase {
				return api.NewValidationError("application", "metadata", fmt.Sprintf("metadata %s of %s must be scoped to container or base", m.Name, code))
			}
		}
	}
	for name, t := range c.Types {
		seen := make(map[string]bool)
		for _, o := range t.Options {
			if o.ID == "" || seen[o.ID] {
				return api.NewValidationError("application type", "options", fmt.Sprintf("type %s has an option with a missing or duplicate id %q", name, o.ID))
			}
			seen[o.ID] = true
		}
	}
	for name, img := range c.Images {
		seen := make(map[string]bool)
		for _, p := range img.Ports {
			if seen[p.Name] {
				return api.NewValidationError("image", "ports", fmt.Sprintf("image %s declares port %q twice", name, p.Name))
			}
			seen[p.Name] = true
		}
	}
	return nil
}

// Holder gives concurrent readers the most recently loaded catalog.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder returns a holder serving c.
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Current returns the active catalog.
func (h *Holder) Current() *Catalog {
	return h.current.Load()
}

// Replace swaps in a newly loaded catalog.
func (h *Holder) Replace(c *Catalog) {
	h.current.Store(c)
}
