package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"steward/internal/api"
	"steward/internal/backup"
	"steward/internal/catalog"
	"steward/internal/containerizer"
	"steward/internal/links"
	"steward/internal/model"
	"steward/internal/ports"
	"steward/internal/queue"
	"steward/internal/remote"
	"steward/internal/store"
	"steward/internal/template"
	"steward/pkg/logging"
)

const orchestratorSubsystem = "Orchestrator"

// DefaultSaveDir is where saves are copied to on the servers.
const DefaultSaveDir = "/opt/steward/saves"

// ErrPriorityBlocked is returned when an upgrade with a higher priority is
// pending elsewhere in the instance tree.
var ErrPriorityBlocked = errors.New("a higher priority upgrade is pending in the same tree")

// Catalog gives the current catalog.
type Catalog interface {
	Current() *catalog.Catalog
}

// Options are the per-call flags of an orchestration entry point.
type Options struct {
	// NoEnqueue runs dispatched actions in the calling goroutine.
	NoEnqueue bool

	// Force saves even when autosave is disabled.
	Force bool

	// NoSave skips every save of the pass.
	NoSave  bool
	Comment string

	// AutoCreate creates the container of a new base when none is given.
	AutoCreate bool

	// LinkOverrides maps application full codes to target container ids.
	LinkOverrides map[string]string

	// PortOverrides maps port binding names to host ports.
	PortOverrides map[string]int

	// ResetName and ResetContainer select the destination of a reset. Both
	// empty resets the base in place.
	ResetName      string
	ResetContainer string
}

// Config holds the collaborators of the orchestrator.
type Config struct {
	Store   store.Store
	Catalog Catalog
	Dialer  remote.Dialer
	Runtime containerizer.ContainerRuntime

	// Keys materializes server key pairs before connecting. Optional.
	Keys *remote.Keys

	// Queue serializes dispatched actions per instance. Without one, only
	// NoEnqueue dispatch is possible.
	Queue     *queue.Dispatcher
	Templates *template.Engine
	Backup    backup.Config

	// Prober overrides the netstat probe used during port allocation.
	Prober func(remote.Session) ports.Prober

	SaveDir string
	Now     func() time.Time
}

// Orchestrator runs lifecycle operations against containers and bases.
type Orchestrator struct {
	store     store.Store
	catalog   Catalog
	dialer    remote.Dialer
	runtime   containerizer.ContainerRuntime
	keys      *remote.Keys
	queue     *queue.Dispatcher
	templates *template.Engine
	backup    *backup.Scheduler
	resolver  *links.Resolver
	allocator *ports.Allocator
	prober    func(remote.Session) ports.Prober
	saveDir   string
	now       func() time.Time
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Backup.Now == nil {
		cfg.Backup.Now = cfg.Now
	}
	if cfg.Templates == nil {
		cfg.Templates = template.New()
	}
	if cfg.Runtime == nil {
		cfg.Runtime = containerizer.NewDockerRuntime("")
	}
	if cfg.Prober == nil {
		cfg.Prober = func(s remote.Session) ports.Prober { return ports.SessionProber{Session: s} }
	}
	if cfg.SaveDir == "" {
		cfg.SaveDir = DefaultSaveDir
	}
	if cfg.Queue == nil {
		// Not started: only NoEnqueue dispatch works.
		cfg.Queue = queue.NewDispatcher(queue.Config{Recorder: cfg.Store, Now: cfg.Now})
	}
	o := &Orchestrator{
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		dialer:    cfg.Dialer,
		runtime:   cfg.Runtime,
		keys:      cfg.Keys,
		queue:     cfg.Queue,
		templates: cfg.Templates,
		backup:    backup.NewScheduler(cfg.Store, cfg.Backup),
		allocator: ports.NewAllocator(cfg.Store),
		prober:    cfg.Prober,
		saveDir:   cfg.SaveDir,
		now:       cfg.Now,
	}
	o.resolver = links.NewResolver(cfg.Store, applications{o})
	return o
}

// applications resolves codes against the catalog current at call time.
type applications struct {
	o *Orchestrator
}

func (a applications) Application(code string) (*catalog.Application, error) {
	return a.o.catalog.Current().Application(code)
}

// pass is one orchestration call. Sessions are opened lazily per server and
// closed when the pass ends.
type pass struct {
	o        *Orchestrator
	opts     Options
	cat      *catalog.Catalog
	backup   *backup.Pass
	sessions map[string]remote.Session
	servers  map[string]*model.Server
}

func (o *Orchestrator) begin(opts Options) *pass {
	return &pass{
		o:        o,
		opts:     opts,
		cat:      o.catalog.Current(),
		backup:   o.backup.Begin(),
		sessions: make(map[string]remote.Session),
		servers:  make(map[string]*model.Server),
	}
}

func (p *pass) close() {
	for id, s := range p.sessions {
		if err := s.Close(); err != nil {
			logging.Debug(orchestratorSubsystem, "Failed to close session to %s: %v", id, err)
		}
	}
}

// run executes fn as a new pass.
func (o *Orchestrator) run(ctx context.Context, opts Options, fn func(p *pass) error) error {
	p := o.begin(opts)
	defer p.close()
	return fn(p)
}

func (p *pass) server(ctx context.Context, id string) (*model.Server, error) {
	if s, ok := p.servers[id]; ok {
		return s, nil
	}
	var (
		srv *model.Server
		err error
	)
	if p.o.keys != nil {
		srv, err = p.o.keys.Ensure(ctx, id)
	} else {
		srv, err = p.o.store.GetServer(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	p.servers[id] = srv
	return srv, nil
}

// session returns the session to a server, connecting on first use.
func (p *pass) session(ctx context.Context, serverID string) (remote.Session, *model.Server, error) {
	srv, err := p.server(ctx, serverID)
	if err != nil {
		return nil, nil, err
	}
	if s, ok := p.sessions[serverID]; ok {
		return s, srv, nil
	}
	s, err := p.o.dialer.Connect(ctx, remote.HostFor(srv))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", srv.FullDomain(), err)
	}
	p.sessions[serverID] = s
	return s, srv, nil
}

func (p *pass) application(code string) (*catalog.Application, error) {
	return p.cat.Application(code)
}

func (p *pass) applicationType(app *catalog.Application) *catalog.ApplicationType {
	t, err := p.cat.Type(app.Type)
	if err != nil {
		return &catalog.ApplicationType{Name: app.Type}
	}
	return t
}

// Action names an operation that can be dispatched through the queue.
type Action string

const (
	ActionDeploy    Action = "deploy"
	ActionPurge     Action = "purge"
	ActionUpdate    Action = "update"
	ActionReinstall Action = "reinstall"
	ActionReset     Action = "reset"
	ActionSave      Action = "save"
	ActionStart     Action = "start"
	ActionStop      Action = "stop"
	ActionDelete    Action = "delete"
	ActionRestore   Action = "restore"
)

type handler func(ctx context.Context, id string, opts Options) error

func (o *Orchestrator) handler(kind model.Kind, action Action) (handler, bool) {
	handlers := map[model.Kind]map[Action]handler{
		model.KindContainer: {
			ActionDeploy:    o.DeployContainer,
			ActionPurge:     o.PurgeContainer,
			ActionUpdate:    o.UpdateContainer,
			ActionReinstall: o.ReinstallContainer,
			ActionSave:      o.saveContainerAction,
			ActionStart:     o.StartContainer,
			ActionStop:      o.StopContainer,
			ActionDelete:    o.DeleteContainer,
		},
		model.KindBase: {
			ActionDeploy: o.DeployBase,
			ActionPurge:  o.PurgeBase,
			ActionUpdate: o.UpdateBase,
			ActionReset:  o.ResetBase,
			ActionSave:   o.saveBaseAction,
			ActionDelete: o.DeleteBase,
		},
		model.KindServer: {
			ActionStart: o.StartServer,
			ActionStop:  o.StopServer,
		},
		model.KindSave: {
			ActionRestore: o.RestoreSave,
		},
		model.KindVersion: {
			ActionDeploy: o.DeployVersion,
			ActionPurge:  o.PurgeVersion,
			ActionDelete: o.DeleteVersion,
		},
	}
	h, ok := handlers[kind][action]
	return h, ok
}

// Do dispatches action against an instance through the queue, or runs it in
// the calling goroutine when opts.NoEnqueue is set. An action log entry is
// recorded either way.
func (o *Orchestrator) Do(ctx context.Context, action Action, target queue.Target, opts Options) (*queue.Ticket, error) {
	h, ok := o.handler(target.Kind, action)
	if !ok {
		return nil, api.NewValidationError("action", "name", fmt.Sprintf("%s is not supported on %s", action, target.Kind))
	}
	req := queue.Request{
		Label:  fmt.Sprintf("%s %s %s", action, target.Kind, target.ID),
		Action: string(action),
		Target: target,
		Run: func(ctx context.Context) error {
			return h(ctx, target.ID, opts)
		},
	}
	return o.queue.Do(ctx, req, queue.Options{NoEnqueue: opts.NoEnqueue})
}
