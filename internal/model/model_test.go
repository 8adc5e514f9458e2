package model

import (
	"testing"

	"steward/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	srv := &Server{Name: "srv1", Domain: "example.com"}
	assert.Equal(t, "srv1.example.com", srv.FullDomain())
	assert.Equal(t, "dev-odoo", ContainerName("dev", "odoo"))
	assert.Equal(t, "dev-odoo_srv1.example.com", ContainerFullname("dev", "odoo", srv))

	assert.Equal(t, "example.com", BaseFullDomain("www", "example.com"))
	assert.Equal(t, "shop.example.com", BaseFullDomain("shop", "example.com"))
	assert.Equal(t, "odoo-shop-example-com", BaseFullname("odoo", "shop.example.com"))
}

func TestBaseDatabases(t *testing.T) {
	assert.Equal(t, []string{"odoo_shop_example_com"}, BaseDatabases("odoo-shop-example-com", ""))
	assert.Equal(t, []string{"wp_x_main", "wp_x_log"}, BaseDatabases("wp-x", "main, log,"))
}

func TestSortedChildren(t *testing.T) {
	c := &Container{Children: []ChildSlot{
		{ID: "b", Sequence: 2},
		{ID: "a", Sequence: 1},
		{ID: "c", Sequence: 3},
	}}
	sorted := c.SortedChildren()
	require.Len(t, sorted, 3)
	assert.Equal(t, "a", sorted[0].ID)
	assert.Equal(t, "b", sorted[1].ID)
	assert.Equal(t, "c", sorted[2].ID)
	// original order untouched
	assert.Equal(t, "b", c.Children[0].ID)
}

func TestValidateContainer(t *testing.T) {
	tests := []struct {
		name  string
		c     Container
		field string
	}{
		{name: "valid", c: Container{EnvironmentID: "e", ServerID: "s", Suffix: "odoo-1", ApplicationCode: "odoo"}},
		{name: "bad suffix", c: Container{EnvironmentID: "e", ServerID: "s", Suffix: "odoo.1", ApplicationCode: "odoo"}, field: "suffix"},
		{name: "missing server", c: Container{EnvironmentID: "e", Suffix: "odoo", ApplicationCode: "odoo"}, field: "serverid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate("container", &tt.c)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *api.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "container", verr.Entity)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateEnvironmentAndDomain(t *testing.T) {
	assert.NoError(t, Validate("environment", &Environment{Name: "Dev", Prefix: "dev"}))
	assert.True(t, api.IsValidation(Validate("environment", &Environment{Name: "Dev", Prefix: "dev-1"})))
	assert.True(t, api.IsValidation(Validate("environment", &Environment{Name: "Dev"})))

	assert.NoError(t, Validate("domain", &Domain{Name: "example.com"}))
	assert.True(t, api.IsValidation(Validate("domain", &Domain{Name: "exa mple.com"})))
}

func TestValidateBase(t *testing.T) {
	b := Base{Name: "shop", DomainID: "d", EnvironmentID: "e", ApplicationCode: "odoo", ContainerID: "c",
		AdminName: "admin", AdminEmail: "admin@example.com", Build: BuildBuild, Lang: "en_US"}
	assert.NoError(t, Validate("base", &b))

	b.Lang = "de_DE"
	assert.True(t, api.IsValidation(Validate("base", &b)))

	b.Lang = ""
	b.AdminEmail = "admin example"
	err := Validate("base", &b)
	var verr *api.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "adminemail", verr.Field)
}

func TestValidateServer(t *testing.T) {
	s := &Server{Name: "srv1", Domain: "example.com", IP: "10.0.0.1", SSHPort: 22, StartPort: 10000, EndPort: 10010}
	assert.NoError(t, ValidateServer(s))

	s.IP = "ten.0.0.1"
	assert.True(t, api.IsValidation(ValidateServer(s)))

	s.IP = "10.0.0.1"
	s.EndPort = 9000
	assert.True(t, api.IsValidation(ValidateServer(s)))
}

func TestValidateChildLink(t *testing.T) {
	slot := ChildSlot{ID: "slot1", Application: "pg"}
	assert.NoError(t, ValidateChildLink("parent", slot, "parent", "slot1"))
	assert.True(t, api.IsValidation(ValidateChildLink("parent", slot, "parent", "slot2")))
	assert.True(t, api.IsValidation(ValidateChildLink("parent", slot, "other", "slot1")))
}

func TestItemHelpers(t *testing.T) {
	opts := []Option{{Name: "workers", Value: "4"}, {Name: "proxy", Value: ""}}
	assert.Equal(t, map[string]string{"workers": "4", "proxy": ""}, OptionValues(opts))

	links := []Link{{Application: "pg", Target: "c1"}}
	l, ok := FindLink(links, "pg")
	require.True(t, ok)
	assert.Equal(t, "c1", l.Target)
	_, ok = FindLink(links, "redis")
	assert.False(t, ok)

	slots := []ChildSlot{{ID: "a"}, {ID: "b"}}
	s, idx, ok := FindSlot(slots, "b")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "b", s.ID)
}
