package store

import (
	"context"
	"testing"
	"time"

	"steward/internal/api"
	"steward/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(Options{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *SQLStore) (*model.Environment, *model.Server) {
	t.Helper()
	ctx := context.Background()
	env := &model.Environment{Name: "Dev", Prefix: "dev"}
	require.NoError(t, s.CreateEnvironment(ctx, env))
	srv := &model.Server{Name: "srv1", Domain: "example.com", IP: "10.0.0.1", SSHPort: 22, StartPort: 10000, EndPort: 10010}
	require.NoError(t, s.CreateServer(ctx, srv))
	return env, srv
}

func TestContainerCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	env, srv := seed(t, s)

	c := &model.Container{
		EnvironmentID:   env.ID,
		ServerID:        srv.ID,
		Suffix:          "odoo",
		ApplicationCode: "odoo",
		Ports:           []model.PortBinding{{Name: "http", LocalPort: "8069", HostPort: 10000}},
		Links:           []model.Link{{SpecID: "l1", Application: "pg"}},
	}
	require.NoError(t, s.CreateContainer(ctx, c))
	require.NotEmpty(t, c.ID)

	got, err := s.GetContainer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "odoo", got.Suffix)
	require.Len(t, got.Ports, 1)
	assert.Equal(t, 10000, got.Ports[0].HostPort)
	assert.Equal(t, "pg", got.Links[0].Application)

	got.Links[0].Target = "target-id"
	got.State = model.ContainerDeployed
	require.NoError(t, s.UpdateContainer(ctx, got))

	again, err := s.GetContainer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "target-id", again.Links[0].Target)
	assert.Equal(t, model.ContainerDeployed, again.State)

	again.Suffix = "renamed"
	err = s.UpdateContainer(ctx, again)
	assert.True(t, api.IsValidation(err))

	require.NoError(t, s.DeleteContainer(ctx, c.ID))
	_, err = s.GetContainer(ctx, c.ID)
	assert.True(t, api.IsNotFound(err))
}

func TestContainerUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	env, srv := seed(t, s)

	first := &model.Container{EnvironmentID: env.ID, ServerID: srv.ID, Suffix: "odoo", ApplicationCode: "odoo"}
	require.NoError(t, s.CreateContainer(ctx, first))

	dup := &model.Container{EnvironmentID: env.ID, ServerID: srv.ID, Suffix: "odoo", ApplicationCode: "odoo"}
	err := s.CreateContainer(ctx, dup)
	assert.True(t, api.IsValidation(err))
}

func TestListContainersAndPorts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	env, srv := seed(t, s)

	parent := &model.Container{EnvironmentID: env.ID, ServerID: srv.ID, Suffix: "stack", ApplicationCode: "stack"}
	require.NoError(t, s.CreateContainer(ctx, parent))
	child := &model.Container{EnvironmentID: env.ID, ServerID: srv.ID, Suffix: "stack-pg", ApplicationCode: "pg",
		ParentID: parent.ID, ParentSlotID: "slot1",
		Ports: []model.PortBinding{{Name: "pg", LocalPort: "5432", HostPort: 10001}}}
	require.NoError(t, s.CreateContainer(ctx, child))
	single := &model.Container{EnvironmentID: env.ID, ServerID: srv.ID, Suffix: "pg", ApplicationCode: "pg",
		Ports: []model.PortBinding{{Name: "pg", LocalPort: "5432", HostPort: 10000}}}
	require.NoError(t, s.CreateContainer(ctx, single))

	pgs, err := s.ListContainers(ctx, ContainerFilter{Application: "pg"})
	require.NoError(t, err)
	assert.Len(t, pgs, 2)

	ownerless, err := s.ListContainers(ctx, ContainerFilter{Application: "pg", Ownerless: true})
	require.NoError(t, err)
	require.Len(t, ownerless, 1)
	assert.Equal(t, single.ID, ownerless[0].ID)

	children, err := s.ListContainers(ctx, ContainerFilter{ParentID: parent.ID})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	used, err := s.HostPortsInUse(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{10000: single.ID, 10001: child.ID}, used)
}

func TestEnvironmentPrefixLocked(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	env, srv := seed(t, s)

	env.Name = "Development"
	require.NoError(t, s.UpdateEnvironment(ctx, env))

	require.NoError(t, s.CreateContainer(ctx, &model.Container{EnvironmentID: env.ID, ServerID: srv.ID, Suffix: "odoo", ApplicationCode: "odoo"}))
	env.Prefix = "prod"
	err := s.UpdateEnvironment(ctx, env)
	var verr *api.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "prefix", verr.Field)
}

func TestSavesAndVersions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	old := &model.Save{Name: "a", Generation: "g1", ContainerID: "c1", BackupID: "b1", Expiration: now.Add(-24 * time.Hour)}
	fresh := &model.Save{Name: "b", Generation: "g2", ContainerID: "c1", BackupID: "b1", Expiration: now.Add(24 * time.Hour)}
	require.NoError(t, s.CreateSave(ctx, old))
	require.NoError(t, s.CreateSave(ctx, fresh))

	byGen, err := s.ListSaves(ctx, SaveFilter{Generation: "g2"})
	require.NoError(t, err)
	require.Len(t, byGen, 1)
	assert.Equal(t, fresh.ID, byGen[0].ID)

	expired, err := s.ListSaves(ctx, SaveFilter{ExpiredBefore: &now})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)

	v := &model.ApplicationVersion{ApplicationCode: "odoo", Name: "9.0.20260110.1200", ArchiveID: "arch"}
	require.NoError(t, s.CreateVersion(ctx, v))
	dup := &model.ApplicationVersion{ApplicationCode: "odoo", Name: "9.0.20260110.1200", ArchiveID: "arch"}
	assert.True(t, api.IsValidation(s.CreateVersion(ctx, dup)))

	versions, err := s.ListVersions(ctx, "odoo")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestRecordAction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := &model.ActionLog{Label: "deploy", Action: "deploy", TargetKind: model.KindContainer, TargetID: "c1", State: model.ActionQueued, CreatedAt: time.Now()}
	require.NoError(t, s.RecordAction(ctx, a))
	a.State = model.ActionDone
	require.NoError(t, s.RecordAction(ctx, a))

	actions, err := s.ListActions(ctx, model.KindContainer, "c1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionDone, actions[0].State)
}
