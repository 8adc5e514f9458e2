package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/internal/api"
	"steward/internal/catalog"
	"steward/internal/model"
	"steward/internal/remote"
	"steward/internal/testing/mock"
)

type claimedPorts map[int]string

func (c claimedPorts) HostPortsInUse(context.Context, string) (map[int]string, error) {
	out := make(map[int]string, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out, nil
}

func testServer() *model.Server {
	return &model.Server{ID: "s1", Name: "srv1", Domain: "example.com", IP: "10.0.0.1", StartPort: 10000, EndPort: 10010}
}

func TestAllocate_SkipsClaimedPorts(t *testing.T) {
	a := NewAllocator(claimedPorts{10000: "c1", 10001: "c2"})
	prober := &mock.Prober{}

	out, err := a.Allocate(context.Background(), Request{
		Owner:    "dev-odoo",
		Server:   testServer(),
		Bindings: []model.PortBinding{{Name: "http", LocalPort: "8069", Expose: catalog.ExposeInternet}},
		Prober:   prober,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 10002, out[0].HostPort)
	assert.Equal(t, []int{10002}, prober.Probed())
}

func TestAllocate_CursorAdvancesWithinPass(t *testing.T) {
	a := NewAllocator(claimedPorts{10001: "c2"})
	prober := &mock.Prober{Busy: map[int]bool{10003: true}}

	out, err := a.Allocate(context.Background(), Request{
		Owner:  "dev-odoo",
		Server: testServer(),
		Bindings: []model.PortBinding{
			{Name: "http", LocalPort: "8069", Expose: catalog.ExposeInternet},
			{Name: "fixed", LocalPort: "22", HostPort: 10002, Expose: catalog.ExposeLocal},
			{Name: "longpolling", LocalPort: "8072", Expose: catalog.ExposeLocal},
			{Name: "debug", LocalPort: "5678", Expose: catalog.ExposeNone},
			{Name: "mail", LocalPort: "25", Expose: catalog.ExposeLocal},
		},
		Prober: prober,
	})
	require.NoError(t, err)

	got := map[string]int{}
	for _, b := range out {
		got[b.Name] = b.HostPort
	}
	assert.Equal(t, map[string]int{"http": 10000, "fixed": 10002, "longpolling": 10004, "mail": 10005}, got)
	assert.Equal(t, []int{10000, 10003, 10004, 10005}, prober.Probed())
}

func TestAllocate_OverridesAndUseHostPort(t *testing.T) {
	a := NewAllocator(claimedPorts{10000: "self"})

	out, err := a.Allocate(context.Background(), Request{
		Owner:   "dev-ftp",
		OwnerID: "self",
		Server:  testServer(),
		Bindings: []model.PortBinding{
			{Name: "ftp", LocalPort: "21", Expose: catalog.ExposeInternet},
			{Name: "passive", LocalPort: "30000", Expose: catalog.ExposeInternet, UseHostPort: true},
		},
		Overrides: map[string]int{"ftp": 2121},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2121, out[0].HostPort)
	assert.Equal(t, "21", out[0].LocalPort)
	// the container's own stored binding does not block it
	assert.Equal(t, 10000, out[1].HostPort)
	assert.Equal(t, "10000", out[1].LocalPort)
}

func TestAllocate_Exhausted(t *testing.T) {
	srv := testServer()
	srv.EndPort = 10002
	a := NewAllocator(claimedPorts{10000: "c1"})

	_, err := a.Allocate(context.Background(), Request{
		Owner:  "dev-odoo",
		Server: srv,
		Bindings: []model.PortBinding{
			{Name: "http", LocalPort: "8069", Expose: catalog.ExposeInternet},
			{Name: "longpolling", LocalPort: "8072", Expose: catalog.ExposeInternet},
		},
		Prober: &mock.Prober{},
	})
	var rerr *api.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, api.ResolutionPort, rerr.Kind)
	assert.Equal(t, "8072", rerr.Subject)
	assert.Equal(t, "dev-odoo", rerr.Owner)
}

func TestSessionProber(t *testing.T) {
	dialer := mock.NewDialer()
	dialer.Respond("10000 ", "tcp  0  0 0.0.0.0:10000  0.0.0.0:*  LISTEN\n", 0)
	session, err := dialer.Connect(context.Background(), remote.Host{Name: "srv1.example.com"})
	require.NoError(t, err)

	srv := testServer()
	prober := SessionProber{Session: session}

	busy, err := prober.InUse(context.Background(), srv, 10000)
	require.NoError(t, err)
	assert.True(t, busy)

	busy, err = prober.InUse(context.Background(), srv, 10001)
	require.NoError(t, err)
	assert.False(t, busy)

	assert.Equal(t, "sh -c command -v netstat >/dev/null 2>&1 || exit 127; netstat -an 2>/dev/null | grep ':10000 ' || true", dialer.Lines()[0])

	srv.PublicIP = true
	assert.Contains(t, ProbeCommand(srv, 10005), "grep '10.0.0.1:10005 '")
}

func TestSessionInUse_MissingNetstat(t *testing.T) {
	dialer := mock.NewDialer()
	dialer.Respond("command -v netstat", "", 127)
	session, err := dialer.Connect(context.Background(), remote.Host{Name: "srv1.example.com"})
	require.NoError(t, err)

	busy, err := SessionProber{Session: session}.InUse(context.Background(), testServer(), 10000)
	require.Error(t, err, "a server without netstat must not report every port busy")
	assert.False(t, busy)
	assert.Contains(t, err.Error(), "port 10000")
}
