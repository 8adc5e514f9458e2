package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"steward/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const typesYAML = `
types:
  - name: odoo
    systemUser: odoo
    multipleDatabases: "main,log"
    options:
      - id: workers
        name: workers
        scope: container
        default: "2"
        auto: true
      - id: admin_passwd
        name: admin_passwd
        scope: base
        auto: true
  - name: postgres
    systemUser: postgres
`

const applicationsYAML = `
images:
  - name: img-odoo
    versions:
      - name: "9.0.1"
        priority: 10
    ports:
      - name: http
        localPort: "8069"
        expose: internet
    volumes:
      - path: /opt/odoo/data
applications:
  - code: odoo
    name: Odoo
    type: odoo
    image: img-odoo
    autosave: true
    links:
      - id: odoo-pg
        target: pg
        required: true
        auto: true
        container: true
    hooks:
      post_deploy:
        run: "echo {{ .Container.Name }}"
  - code: pg
    name: PostgreSQL
    type: postgres
    updateStrategy: never
`

func writeCatalog(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadDir(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"types.yaml":       typesYAML,
		"applications.yml": applicationsYAML,
		"README.md":        "not a catalog file",
	})

	c, err := LoadDir(dir)
	require.NoError(t, err)

	odoo, err := c.Application("odoo")
	require.NoError(t, err)
	assert.Equal(t, "odoo-odoo", odoo.FullCode())
	assert.Equal(t, UpdateAlways, odoo.UpdateStrategy)
	assert.Len(t, c.OptionSpecs(odoo), 2)

	pg, err := c.Application("pg")
	require.NoError(t, err)
	assert.Equal(t, UpdateNever, pg.UpdateStrategy)

	hook, ok := odoo.Hook(HookPostDeploy)
	require.True(t, ok)
	assert.Equal(t, "echo {{ .Container.Name }}", hook.Run)
	_, ok = odoo.Hook(HookPreDeploy)
	assert.False(t, ok)

	img, err := c.Image("img-odoo")
	require.NoError(t, err)
	v, ok := img.LatestVersion()
	require.True(t, ok)
	assert.Equal(t, 10, v.Priority)

	_, err = c.Application("missing")
	assert.True(t, api.IsNotFound(err))
}

func TestLoadDir_DuplicateApplication(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"a.yaml": typesYAML + "\napplications:\n  - code: pg\n    type: postgres\n",
		"b.yaml": "applications:\n  - code: pg\n    type: postgres\n",
	})

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.True(t, api.IsValidation(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Catalog)
		field  string
	}{
		{
			name: "code too long",
			mutate: func(c *Catalog) {
				c.Applications["averylongcode"] = &Application{Code: "averylongcode", Type: "postgres"}
			},
			field: "code",
		},
		{
			name: "forbidden character",
			mutate: func(c *Catalog) {
				c.Applications["a.b"] = &Application{Code: "a.b", Type: "postgres"}
			},
			field: "code",
		},
		{
			name: "unknown link target",
			mutate: func(c *Catalog) {
				c.Applications["pg"].Links = []LinkSpec{{ID: "x", Target: "nope"}}
			},
			field: "links",
		},
		{
			name: "self child",
			mutate: func(c *Catalog) {
				c.Applications["pg"].Children = []ChildSpec{{ID: "c", Application: "pg"}}
			},
			field: "children",
		},
		{
			name: "metadata without scope",
			mutate: func(c *Catalog) {
				c.Applications["pg"].Metadata = []MetadataSpec{{ID: "m", Name: "m"}}
			},
			field: "metadata",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.Types["postgres"] = &ApplicationType{Name: "postgres"}
			c.Applications["pg"] = &Application{Code: "pg", Type: "postgres"}
			require.NoError(t, c.Validate())

			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			var verr *api.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestMetadataSpecParse(t *testing.T) {
	v, err := MetadataSpec{ValueType: ValueInt}.Parse(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	f, err := MetadataSpec{ValueType: ValueFloat}.Parse("1.5")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	s, err := MetadataSpec{}.Parse("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", s)

	_, err = MetadataSpec{ValueType: ValueInt}.Parse("abc")
	assert.Error(t, err)
}

func TestHasTags(t *testing.T) {
	app := &Application{Tags: []string{"database", TagNoBackup}}
	assert.True(t, app.HasTags())
	assert.True(t, app.HasTags(TagNoBackup))
	assert.True(t, app.HasTags("database", TagNoBackup))
	assert.False(t, app.HasTags("database", "web"))
}

func TestHolder(t *testing.T) {
	first := New()
	h := NewHolder(first)
	assert.Same(t, first, h.Current())

	second := New()
	h.Replace(second)
	assert.Same(t, second, h.Current())
}
