package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/internal/catalog"
	"steward/internal/model"
)

func testApplication() *catalog.Application {
	return &catalog.Application{
		Code: "odoo",
		Type: "odoo",
		Tags: []string{"web"},
		Links: []catalog.LinkSpec{
			{ID: "l-pg", Target: "pg", Required: true, Auto: true, Container: true, Base: true},
			{ID: "l-proxy", Target: "proxy", MakeLink: true, Base: true},
			{ID: "l-mail", Target: "mail", Container: true},
		},
		Children: []catalog.ChildSpec{
			{ID: "c-pg", Application: "pg", Sequence: 1, Required: true, Container: true},
			{ID: "c-redis", Application: "redis", Sequence: 2, Container: true},
			{ID: "c-site", Application: "site", Sequence: 1, Required: true, Base: true},
		},
		Metadata: []catalog.MetadataSpec{
			{ID: "m-workers", Name: "workers", Scope: catalog.ScopeContainer, Default: "2", ValueType: catalog.ValueInt},
			{ID: "m-theme", Name: "theme", Scope: catalog.ScopeBase, Default: "light"},
		},
	}
}

func optionSpecs() []catalog.OptionSpec {
	return []catalog.OptionSpec{
		{ID: "A", Name: "a", Scope: catalog.ScopeContainer, Default: "a-default", Auto: true},
		{ID: "B", Name: "b", Scope: catalog.ScopeContainer, Default: "b-default", Auto: true},
		{ID: "C", Name: "c", Scope: catalog.ScopeContainer, Default: "c-default", Auto: true},
	}
}

func TestReconcile_KeepsExistingAndSynthesizesDefaults(t *testing.T) {
	in := Input{
		Application: testApplication(),
		OptionSpecs: optionSpecs(),
		Existing: State{Options: []model.Option{
			{SpecID: "B", Name: "b", Value: "b-existing"},
			{SpecID: "gone", Name: "gone", Value: "x"},
		}},
	}

	d, err := Reconcile(ContainerCapabilities(), in)
	require.NoError(t, err)
	assert.Equal(t, []model.Option{
		{SpecID: "A", Name: "a", Value: "a-default"},
		{SpecID: "B", Name: "b", Value: "b-existing"},
		{SpecID: "C", Name: "c", Value: "c-default"},
	}, d.Options())
}

func TestReconcile_Idempotent(t *testing.T) {
	img := &catalog.Image{
		Name:    "img-odoo",
		Ports:   []catalog.PortSpec{{Name: "http", LocalPort: "8069", Expose: catalog.ExposeInternet}},
		Volumes: []catalog.VolumeSpec{{Path: "/opt/odoo/data", User: "odoo"}},
	}
	in := Input{
		Application: testApplication(),
		OptionSpecs: optionSpecs(),
		Image:       img,
		Existing: State{
			Options: []model.Option{{SpecID: "B", Name: "b", Value: "b-existing"}},
			Links:   []model.Link{{SpecID: "l-pg", Application: "pg", Target: "c-42"}},
		},
	}
	caps := ContainerCapabilities()

	first, err := Reconcile(caps, in)
	require.NoError(t, err)

	in.Existing = first.State()
	second, err := Reconcile(caps, in)
	require.NoError(t, err)

	assert.Equal(t, first.State(), second.State())
	require.Len(t, second.Children(), 1)
	assert.Equal(t, first.Children()[0].ID, second.Children()[0].ID)
}

func TestReconcile_ContainerEligibility(t *testing.T) {
	specs := append(optionSpecs(),
		catalog.OptionSpec{ID: "D", Name: "d", Scope: catalog.ScopeContainer, Auto: true, Tags: []string{"missing"}},
		catalog.OptionSpec{ID: "E", Name: "e", Scope: catalog.ScopeContainer, Auto: false},
		catalog.OptionSpec{ID: "F", Name: "f", Scope: catalog.ScopeBase, Auto: true},
		catalog.OptionSpec{ID: "G", Name: "g", Scope: catalog.ScopeContainer, Auto: true, Tags: []string{"web"}},
	)
	d, err := Reconcile(ContainerCapabilities(), Input{Application: testApplication(), OptionSpecs: specs})
	require.NoError(t, err)

	var names []string
	for _, o := range d.Options() {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "g"}, names)

	require.Len(t, d.Links(), 1)
	assert.Equal(t, "pg", d.Links()[0].Application)
	assert.True(t, d.Links()[0].Required)

	require.Len(t, d.Children(), 1)
	assert.Equal(t, "pg", d.Children()[0].Application)

	require.Len(t, d.Metadata(), 1)
	assert.Equal(t, model.Metadata{SpecID: "m-workers", Name: "workers", Value: "2"}, d.Metadata()[0])

	assert.Nil(t, d.Ports())
}

func TestReconcile_BaseEligibility(t *testing.T) {
	specs := append(optionSpecs(),
		catalog.OptionSpec{ID: "F", Name: "f", Scope: catalog.ScopeBase, Auto: true, Default: "f", Tags: []string{"missing"}},
	)
	img := &catalog.Image{Ports: []catalog.PortSpec{{Name: "http", LocalPort: "80"}}}
	d, err := Reconcile(BaseCapabilities(), Input{Application: testApplication(), OptionSpecs: specs, Image: img})
	require.NoError(t, err)

	require.Len(t, d.Options(), 1)
	assert.Equal(t, "f", d.Options()[0].Name)

	var apps []string
	for _, l := range d.Links() {
		apps = append(apps, l.Application)
	}
	assert.Equal(t, []string{"pg", "proxy"}, apps)

	require.Len(t, d.Children(), 1)
	assert.Equal(t, "site", d.Children()[0].Application)
	assert.Equal(t, "theme", d.Metadata()[0].Name)
	assert.Empty(t, d.Ports())
	assert.Empty(t, d.Volumes())
}

func TestReconcile_KeptItems(t *testing.T) {
	img := &catalog.Image{
		Ports: []catalog.PortSpec{
			{Name: "http", LocalPort: "8069", Expose: catalog.ExposeInternet},
			{Name: "longpolling", LocalPort: "8072", Expose: catalog.ExposeLocal},
		},
		Volumes: []catalog.VolumeSpec{{Path: "/data", HostPath: "/srv/data"}},
	}
	in := Input{
		Application: testApplication(),
		Image:       img,
		Existing: State{
			Options:  []model.Option{{SpecID: "A", Value: ""}},
			Links:    []model.Link{{SpecID: "l-pg", Target: "c-1", Deployed: true}},
			Children: []model.ChildSlot{{ID: "slot-1", SpecID: "c-pg", ServerID: "srv-2", SaveID: "save-1"}},
			Metadata: []model.Metadata{{SpecID: "m-workers", Value: "8"}},
			Ports:    []model.PortBinding{{Name: "http", HostPort: 10080}, {Name: "stale", HostPort: 10081}},
			Volumes:  []model.VolumeBinding{{Path: "/data", HostPath: "/mnt/data"}},
		},
		OptionSpecs: optionSpecs(),
	}
	d, err := Reconcile(ContainerCapabilities(), in)
	require.NoError(t, err)

	assert.Equal(t, "a-default", d.Options()[0].Value)
	assert.Equal(t, model.Link{SpecID: "l-pg", Application: "pg", Target: "c-1", Required: true, Auto: true, Deployed: true}, d.Links()[0])
	assert.Equal(t, model.ChildSlot{ID: "slot-1", SpecID: "c-pg", Application: "pg", Sequence: 1, ServerID: "srv-2", SaveID: "save-1"}, d.Children()[0])
	assert.Equal(t, "8", d.Metadata()[0].Value)

	require.Len(t, d.Ports(), 2)
	assert.Equal(t, 10080, d.Ports()[0].HostPort)
	assert.Equal(t, "8069", d.Ports()[0].LocalPort)
	assert.Equal(t, 0, d.Ports()[1].HostPort)
	assert.Equal(t, "/mnt/data", d.Volumes()[0].HostPath)
}

func TestReconcile_Overrides(t *testing.T) {
	in := Input{
		Application: testApplication(),
		OptionSpecs: optionSpecs(),
		Existing:    State{Options: []model.Option{{SpecID: "B", Value: "b-existing"}}},
		Overrides: Overrides{
			Options:  map[string]string{"b": "b-override", "unknown": "x"},
			Metadata: map[string]string{"workers": "16"},
		},
	}
	d, err := Reconcile(ContainerCapabilities(), in)
	require.NoError(t, err)
	assert.Equal(t, "b-override", d.Options()[1].Value)
	assert.Len(t, d.Options(), 3)
	assert.Equal(t, "16", d.Metadata()[0].Value)
}

func TestDesired_AccessorsReturnCopies(t *testing.T) {
	d, err := Reconcile(ContainerCapabilities(), Input{Application: testApplication(), OptionSpecs: optionSpecs()})
	require.NoError(t, err)

	opts := d.Options()
	opts[0].Value = "mutated"
	assert.Equal(t, "a-default", d.Options()[0].Value)

	c := &model.Container{}
	d.ApplyToContainer(c)
	c.Options[0].Value = "mutated"
	assert.Equal(t, "a-default", d.Options()[0].Value)
}

func TestReconcile_Errors(t *testing.T) {
	_, err := Reconcile(ContainerCapabilities(), Input{})
	assert.Error(t, err)

	_, err = CapabilitiesFor(catalog.ScopeService)
	assert.Error(t, err)

	caps, err := CapabilitiesFor(catalog.ScopeBase)
	require.NoError(t, err)
	assert.Equal(t, catalog.ScopeBase, caps.Kind)
}
