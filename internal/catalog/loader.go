package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"steward/internal/api"
	"steward/pkg/logging"

	"gopkg.in/yaml.v3"
)

const catalogSubsystem = "Catalog"

// Document is the layout of one catalog file. A directory may split the
// catalog across any number of documents.
type Document struct {
	Types        []ApplicationType `yaml:"types,omitempty"`
	Applications []Application     `yaml:"applications,omitempty"`
	Images       []Image           `yaml:"images,omitempty"`
}

// Parse decodes a single document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Merge adds the entities of doc, rejecting duplicates.
func (c *Catalog) Merge(doc Document) error {
	for i := range doc.Types {
		t := doc.Types[i]
		if _, dup := c.Types[t.Name]; dup {
			return api.NewValidationError("application type", "name", fmt.Sprintf("%q is declared twice", t.Name))
		}
		c.Types[t.Name] = &t
	}
	for i := range doc.Images {
		img := doc.Images[i]
		if _, dup := c.Images[img.Name]; dup {
			return api.NewValidationError("image", "name", fmt.Sprintf("%q is declared twice", img.Name))
		}
		c.Images[img.Name] = &img
	}
	for i := range doc.Applications {
		app := doc.Applications[i]
		if _, dup := c.Applications[app.Code]; dup {
			return api.NewValidationError("application", "code", fmt.Sprintf("%q must be unique", app.Code))
		}
		if app.UpdateStrategy == "" {
			app.UpdateStrategy = UpdateAlways
		}
		c.Applications[app.Code] = &app
	}
	return nil
}

// LoadDir reads every YAML file of dir into a validated catalog.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !isYAMLFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	c := New()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := c.Merge(doc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logging.Info(catalogSubsystem, "Loaded %d applications, %d types and %d images from %s",
		len(c.Applications), len(c.Types), len(c.Images), dir)
	return c, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
