package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{
		"container": map[string]interface{}{"name": "dev-odoo"},
		"options":   map[string]string{"workers": "4"},
	}

	tests := []struct {
		name     string
		text     string
		expected string
		wantErr  bool
	}{
		{name: "plain", text: "echo ok", expected: "echo ok"},
		{name: "variable", text: "restart {{ .container.name }}", expected: "restart dev-odoo"},
		{name: "sprig function", text: "{{ .container.name | upper }}", expected: "DEV-ODOO"},
		{name: "missing option", text: `{{ .options.missing | default "2" }}`, wantErr: true},
		{name: "index with default", text: `{{ index .options "missing" | default "2" }}`, expected: "2"},
		{name: "option", text: "--workers={{ .options.workers }}", expected: "--workers=4"},
		{name: "missing key", text: "{{ .base.name }}", wantErr: true},
		{name: "parse error", text: "{{ .container.name ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Render(tt.text, ctx)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRender_Cached(t *testing.T) {
	e := New()
	_, err := e.Render("{{ .a }}", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	out, err := e.Render("{{ .a }}", map[string]interface{}{"a": 2})
	require.NoError(t, err)
	assert.Equal(t, "2", out)
	assert.Len(t, e.cache, 1)
}

func TestMergeContexts(t *testing.T) {
	merged := MergeContexts(
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2},
	)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, merged)
}

func TestMergeContexts_NestedMaps(t *testing.T) {
	defaults := map[string]interface{}{
		"options": map[string]interface{}{"db_user": "postgres", "workers": "2"},
	}
	container := map[string]interface{}{
		"options": map[string]interface{}{"workers": "4"},
		"name":    "dev-odoo",
	}
	merged := MergeContexts(defaults, nil, container)

	assert.Equal(t, map[string]interface{}{
		"options": map[string]interface{}{"db_user": "postgres", "workers": "4"},
		"name":    "dev-odoo",
	}, merged)
	assert.Equal(t, "2", defaults["options"].(map[string]interface{})["workers"])
}

func TestMergeContexts_ScalarReplacesMap(t *testing.T) {
	merged := MergeContexts(
		map[string]interface{}{"base": map[string]interface{}{"name": "prod"}},
		map[string]interface{}{"base": "none"},
	)
	assert.Equal(t, "none", merged["base"])
}
