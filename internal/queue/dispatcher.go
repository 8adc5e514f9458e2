package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"steward/internal/model"
	"steward/pkg/logging"
)

const queueSubsystem = "Queue"

// ErrShutdown is returned for actions that could not run because the
// dispatcher stopped.
var ErrShutdown = errors.New("action queue is shut down")

// Target is the entity an action runs against. Actions with the same target
// never run concurrently.
type Target struct {
	Kind model.Kind
	ID   string
}

func (t Target) String() string {
	return string(t.Kind) + "/" + t.ID
}

// Request describes an action to dispatch.
type Request struct {
	// Label is a human readable description recorded in the action log.
	Label  string
	Action string
	Target Target
	Run    func(ctx context.Context) error
}

// Options control dispatch.
type Options struct {
	// NoEnqueue runs the action in the calling goroutine. Serialization
	// against queued actions of the same target is then up to the caller.
	NoEnqueue bool
}

// Recorder persists action log entries.
type Recorder interface {
	RecordAction(ctx context.Context, a *model.ActionLog) error
}

// Ticket tracks one dispatched action.
type Ticket struct {
	ID      string
	Request Request

	log  model.ActionLog
	done chan struct{}
	err  error
}

func (t *Ticket) key() string {
	return t.Request.Target.String()
}

// Done is closed when the action finished.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Err returns the action error once Done is closed.
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the action finished or ctx is done. Cancelling ctx does
// not cancel the action.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config configures a Dispatcher.
type Config struct {
	// Workers is the pool width. Defaults to 4.
	Workers  int
	Recorder Recorder
	Now      func() time.Time
}

// Dispatcher runs actions on a bounded worker pool with at most one action
// in flight per target.
type Dispatcher struct {
	queue    *workQueue
	recorder Recorder
	workers  int
	now      func() time.Time
	metrics  *Metrics

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before enqueuing.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		queue:    newWorkQueue(),
		recorder: cfg.Recorder,
		workers:  cfg.Workers,
		now:      cfg.Now,
		metrics:  NewMetrics(),
	}
}

// Metrics returns the dispatcher counters.
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// Start launches the workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	// Running actions are not cancelled by ctx; it only stops the workers
	// from picking up new ones.
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.running = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logging.Info(queueSubsystem, "Started with %d workers", d.workers)
}

// Do dispatches an action. The returned ticket completes when the action
// finished; with NoEnqueue it is already complete and its error is returned
// as well.
func (d *Dispatcher) Do(ctx context.Context, req Request, opts Options) (*Ticket, error) {
	if req.Run == nil {
		return nil, fmt.Errorf("action %s on %s has nothing to run", req.Action, req.Target)
	}
	t := &Ticket{
		ID:      uuid.NewString(),
		Request: req,
		done:    make(chan struct{}),
	}
	t.log = model.ActionLog{
		ID:         t.ID,
		Label:      req.Label,
		Action:     req.Action,
		TargetKind: req.Target.Kind,
		TargetID:   req.Target.ID,
		State:      model.ActionQueued,
		CreatedAt:  d.now(),
	}
	d.record(ctx, t)

	if opts.NoEnqueue {
		d.run(ctx, t)
		return t, t.err
	}

	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running || !d.queue.Add(t) {
		d.finish(ctx, t, ErrShutdown)
		return t, ErrShutdown
	}
	logging.Debug(queueSubsystem, "Queued %s on %s (%d waiting)", req.Action, req.Target, d.queue.Len())
	return t, nil
}

// Len returns the number of actions waiting for a worker.
func (d *Dispatcher) Len() int {
	return d.queue.Len()
}

// Shutdown stops accepting actions, waits for running ones and fails the
// ones still waiting.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	logging.Info(queueSubsystem, "Stopping action queue...")
	d.queue.Shutdown()
	d.wg.Wait()
	d.cancel()

	for _, t := range d.queue.Drain() {
		d.finish(context.Background(), t, ErrShutdown)
	}
	logging.Info(queueSubsystem, "Action queue stopped")
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	logging.Debug(queueSubsystem, "Worker %d started", id)

	for {
		t, ok := d.queue.Get(d.ctx)
		if !ok {
			logging.Debug(queueSubsystem, "Worker %d shutting down", id)
			return
		}
		d.run(context.WithoutCancel(d.ctx), t)
		d.queue.Done(t)
	}
}

func (d *Dispatcher) run(ctx context.Context, t *Ticket) {
	started := d.now()
	t.log.State = model.ActionRunning
	t.log.StartedAt = &started
	d.record(ctx, t)
	d.metrics.recordStart(t.Request.Action)

	logging.Info(queueSubsystem, "Running %s on %s: %s", t.Request.Action, t.Request.Target, t.Request.Label)
	err := runSafely(ctx, t.Request.Run)
	d.finish(ctx, t, err)
}

func (d *Dispatcher) finish(ctx context.Context, t *Ticket, err error) {
	finished := d.now()
	t.log.FinishedAt = &finished
	if err != nil {
		t.log.State = model.ActionFailed
		t.log.Error = err.Error()
		if !errors.Is(err, ErrShutdown) {
			d.metrics.recordFailure(t.Request.Action)
			logging.Error(queueSubsystem, err, "Action %s on %s failed", t.Request.Action, t.Request.Target)
		}
	} else {
		t.log.State = model.ActionDone
		d.metrics.recordSuccess(t.Request.Action)
		logging.Info(queueSubsystem, "Action %s on %s done", t.Request.Action, t.Request.Target)
	}
	d.record(ctx, t)
	t.err = err
	close(t.done)
}

func (d *Dispatcher) record(ctx context.Context, t *Ticket) {
	if d.recorder == nil {
		return
	}
	entry := t.log
	if err := d.recorder.RecordAction(ctx, &entry); err != nil {
		logging.Warn(queueSubsystem, "Failed to record action %s: %v", t.ID, err)
	}
}

func runSafely(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return fn(ctx)
}
