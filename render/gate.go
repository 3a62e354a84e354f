package render

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Task is one backend invocation. It receives the context of the caller that submitted it.
type Task func(ctx context.Context) ([]byte, error)

// Gate runs tasks on a bounded pool of workers, holding its Locker for the duration of each task.
// Callers block until their task finished, or until their context is done.
//
// A task whose caller gave up before a worker picked it up is skipped without taking the lock.
// A running task is never interrupted by the Gate: it gets the caller's context and the lock is
// released only when the task returns.
//
// Every Execute yields exactly one Event, reported before Execute returns. For a caller that gave
// up it carries the time waited and the context error; the outcome of the task is then not reported.
type Gate struct {
	lock    Locker
	hooks   multiHooks
	timeout time.Duration
	logger  *log.Logger

	jobs      chan *job
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type job struct {
	ctx   context.Context
	id    string
	label string
	task  Task
	done  chan outcome

	submitted time.Time
	// recorded is set by whoever reports the job to the hooks first: the worker or the
	// caller that gave up waiting
	recorded atomic.Bool
}

type outcome struct {
	data []byte
	err  error
}

type GateOption func(*Gate)

// WithLock serializes all tasks of the Gate with l.
func WithLock(l Locker) GateOption {
	return func(g *Gate) {
		g.lock = l
	}
}

// WithTimeout limits how long a caller waits for its task, including time spent queued.
// Zero means no limit other than the caller's own context.
func WithTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		g.timeout = d
	}
}

// WithHooks adds hooks that receive an Event per task.
func WithHooks(h ...Hooks) GateOption {
	return func(g *Gate) {
		g.hooks = append(g.hooks, h...)
	}
}

func WithGateLogger(l *log.Logger) GateOption {
	return func(g *Gate) {
		g.logger = l
	}
}

// NewGate starts a Gate with the given number of workers, defaulting to the number of CPUs.
func NewGate(workers int, opts ...GateOption) *Gate {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g := &Gate{
		lock:   NoLock{},
		logger: log.Default(),
		jobs:   make(chan *job),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go g.work()
	}
	return g
}

// Execute runs task on one of the workers and returns its output.
// Any failure, including a panic in the task, is returned as a *RenderError.
func (g *Gate) Execute(ctx context.Context, label string, task Task) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	j := &job{
		ctx:   ctx,
		id:    uuid.NewString(),
		label: label,
		task:  task,
		done:  make(chan outcome, 1),

		submitted: time.Now(),
	}

	select {
	case <-g.closed:
		return nil, ErrGateClosed
	default:
	}
	select {
	case g.jobs <- j:
	case <-ctx.Done():
		return nil, g.abandon(j, ctx.Err())
	case <-g.closed:
		return nil, ErrGateClosed
	}

	select {
	case o := <-j.done:
		return o.data, o.err
	case <-ctx.Done():
		return nil, g.abandon(j, ctx.Err())
	}
}

func (g *Gate) abandon(j *job, cause error) error {
	g.logger.Debug("caller stopped waiting for render", "id", j.id, "err", cause)
	err := &RenderError{Message: fmt.Sprintf("render %s: %v", j.id, cause), Cause: cause}
	g.record(j, Event{
		ID:       j.id,
		Label:    j.label,
		Duration: time.Since(j.submitted),
		Err:      err,
	})
	return err
}

// record passes e to the hooks, once per job.
func (g *Gate) record(j *job, e Event) {
	if !j.recorded.CompareAndSwap(false, true) {
		return
	}
	g.hooks.OnRender(j.ctx, e)
}

// Close stops the workers after their current task. Tasks submitted afterwards fail with ErrGateClosed.
func (g *Gate) Close() {
	g.closeOnce.Do(func() {
		close(g.closed)
	})
	g.wg.Wait()
}

func (g *Gate) work() {
	defer g.wg.Done()
	for {
		select {
		case <-g.closed:
			return
		case j := <-g.jobs:
			j.done <- g.run(j)
		}
	}
}

func (g *Gate) run(j *job) (o outcome) {
	start := time.Now()
	defer func() {
		g.record(j, Event{
			ID:       j.id,
			Label:    j.label,
			Duration: time.Since(start),
			Size:     len(o.data),
			Err:      o.err,
		})
	}()

	if err := j.ctx.Err(); err != nil {
		return outcome{err: asRenderError(err)}
	}
	if err := g.lock.Lock(j.ctx); err != nil {
		return outcome{err: asRenderError(err)}
	}
	defer g.lock.Unlock()
	return invoke(j)
}

func invoke(j *job) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: &RenderError{Message: fmt.Sprint(r)}}
		}
	}()
	data, err := j.task(j.ctx)
	if err != nil {
		return outcome{err: asRenderError(err)}
	}
	return outcome{data: data}
}
