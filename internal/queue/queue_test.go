package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/internal/model"
)

type recorder struct {
	mu      sync.Mutex
	entries []model.ActionLog
}

func (r *recorder) RecordAction(_ context.Context, a *model.ActionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *a)
	return nil
}

func (r *recorder) states(id string) []model.ActionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ActionState
	for _, e := range r.entries {
		if e.ID == id {
			out = append(out, e.State)
		}
	}
	return out
}

func containerTarget(id string) Target {
	return Target{Kind: model.KindContainer, ID: id}
}

func newTicket(target Target) *Ticket {
	return &Ticket{Request: Request{Target: target}, done: make(chan struct{})}
}

func TestWorkQueue_OneTicketPerKey(t *testing.T) {
	q := newWorkQueue()
	a1 := newTicket(containerTarget("a"))
	a2 := newTicket(containerTarget("a"))
	b1 := newTicket(containerTarget("b"))

	require.True(t, q.Add(a1))
	require.True(t, q.Add(a2))
	require.True(t, q.Add(b1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Get(ctx)
	require.True(t, ok)
	assert.Same(t, a1, got)

	// a2 waits behind a1, so b1 is handed out next.
	got, ok = q.Get(ctx)
	require.True(t, ok)
	assert.Same(t, b1, got)

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, ok = q.Get(short)
	assert.False(t, ok, "a2 must not be handed out while a1 is processing")

	q.Done(a1)
	got, ok = q.Get(ctx)
	require.True(t, ok)
	assert.Same(t, a2, got)
}

func TestWorkQueue_ShutdownRejectsAdd(t *testing.T) {
	q := newWorkQueue()
	q.Shutdown()
	assert.False(t, q.Add(newTicket(containerTarget("a"))))

	_, ok := q.Get(context.Background())
	assert.False(t, ok)
}

func TestWorkQueue_Drain(t *testing.T) {
	q := newWorkQueue()
	q.Add(newTicket(containerTarget("a")))
	q.Add(newTicket(containerTarget("b")))

	assert.Len(t, q.Drain(), 2)
	assert.Equal(t, 0, q.Len())
}

func TestDispatcher_SerializesPerTarget(t *testing.T) {
	d := NewDispatcher(Config{Workers: 4})
	d.Start(context.Background())
	defer d.Shutdown()

	var (
		mu       sync.Mutex
		order    []int
		inFlight int32
		overlap  atomic.Bool
	)

	var tickets []*Ticket
	for i := 0; i < 5; i++ {
		i := i
		tk, err := d.Do(context.Background(), Request{
			Action: "update",
			Target: containerTarget("c1"),
			Run: func(ctx context.Context) error {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&inFlight, -1)
				return nil
			},
		}, Options{})
		require.NoError(t, err)
		tickets = append(tickets, tk)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, tk := range tickets {
		require.NoError(t, tk.Wait(ctx))
	}

	assert.False(t, overlap.Load(), "two actions ran on the same container at once")
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDispatcher_DifferentTargetsRunConcurrently(t *testing.T) {
	d := NewDispatcher(Config{Workers: 2})
	d.Start(context.Background())
	defer d.Shutdown()

	release := make(chan struct{})
	started := make(chan string, 2)
	run := func(id string) func(context.Context) error {
		return func(context.Context) error {
			started <- id
			<-release
			return nil
		}
	}

	t1, err := d.Do(context.Background(), Request{Action: "deploy", Target: containerTarget("a"), Run: run("a")}, Options{})
	require.NoError(t, err)
	t2, err := d.Do(context.Background(), Request{Action: "deploy", Target: containerTarget("b"), Run: run("b")}, Options{})
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("actions on different containers did not run concurrently")
		}
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, t1.Wait(ctx))
	require.NoError(t, t2.Wait(ctx))
	assert.True(t, seen["a"] && seen["b"])
}

func TestDispatcher_NoEnqueueRunsInline(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(Config{Recorder: rec})

	boom := errors.New("boom")
	ran := false
	tk, err := d.Do(context.Background(), Request{
		Label:  "purge c1",
		Action: "purge",
		Target: containerTarget("c1"),
		Run: func(context.Context) error {
			ran = true
			return boom
		},
	}, Options{NoEnqueue: true})

	require.ErrorIs(t, err, boom)
	assert.True(t, ran)
	require.NotNil(t, tk)
	assert.ErrorIs(t, tk.Err(), boom)
	assert.Equal(t, []model.ActionState{model.ActionQueued, model.ActionRunning, model.ActionFailed}, rec.states(tk.ID))

	m, ok := d.Metrics().Get("purge")
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Attempts)
	assert.Equal(t, int64(1), m.Failures)
}

func TestDispatcher_RecordsLifecycle(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(Config{Workers: 1, Recorder: rec})
	d.Start(context.Background())
	defer d.Shutdown()

	tk, err := d.Do(context.Background(), Request{
		Action: "save",
		Target: Target{Kind: model.KindBase, ID: "b1"},
		Run:    func(context.Context) error { return nil },
	}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tk.Wait(ctx))

	assert.Equal(t, []model.ActionState{model.ActionQueued, model.ActionRunning, model.ActionDone}, rec.states(tk.ID))
}

func TestDispatcher_PanicBecomesError(t *testing.T) {
	d := NewDispatcher(Config{})
	_, err := d.Do(context.Background(), Request{
		Action: "deploy",
		Target: containerTarget("c1"),
		Run:    func(context.Context) error { panic("bad hook") },
	}, Options{NoEnqueue: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad hook")
}

func TestDispatcher_NotStarted(t *testing.T) {
	d := NewDispatcher(Config{})
	tk, err := d.Do(context.Background(), Request{
		Action: "deploy",
		Target: containerTarget("c1"),
		Run:    func(context.Context) error { return nil },
	}, Options{})
	assert.ErrorIs(t, err, ErrShutdown)
	assert.ErrorIs(t, tk.Err(), ErrShutdown)
}

func TestDispatcher_ShutdownFailsWaiting(t *testing.T) {
	d := NewDispatcher(Config{Workers: 1})
	d.Start(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	first, err := d.Do(context.Background(), Request{
		Action: "deploy",
		Target: containerTarget("c1"),
		Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}, Options{})
	require.NoError(t, err)
	<-started

	second, err := d.Do(context.Background(), Request{
		Action: "deploy",
		Target: containerTarget("c1"),
		Run:    func(context.Context) error { return nil },
	}, Options{})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	d.Shutdown()

	assert.NoError(t, first.Err())
	assert.ErrorIs(t, second.Err(), ErrShutdown)
}

func TestDispatcher_RequiresRun(t *testing.T) {
	d := NewDispatcher(Config{})
	_, err := d.Do(context.Background(), Request{Action: "deploy", Target: containerTarget("c1")}, Options{})
	assert.Error(t, err)
}
