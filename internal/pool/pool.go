// Package pool provides a fixed-size worker pool fed by a single unbounded
// FIFO job queue.
//
// Jobs are dispatched in submission order; completion order across workers is
// not guaranteed. Shutdown follows a sentinel protocol: [Pool.Join] enqueues
// one terminate message per live worker behind any pending jobs, then waits
// for every worker in id order. A job that panics is recovered and logged,
// and its worker exits without being replaced. The pool tracks how many
// workers are still alive so that Join never waits on a sentinel nobody will
// consume.
package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrInvalidSize is returned by [New] when the requested worker count is not
// positive.
var ErrInvalidSize = errors.New("pool size must be positive")

// ErrClosed is returned by [Pool.Execute] once shutdown has begun.
var ErrClosed = errors.New("pool is shut down")

// ErrNilJob is returned by [Pool.Execute] when given a nil job.
var ErrNilJob = errors.New("nil job")

// ///////////////////////////////////////////////
// Job
// ///////////////////////////////////////////////

// Job is a unit of deferred work. Run is called exactly once, on one worker.
type Job interface {
	Run()
}

// JobFunc adapts an ordinary function to the [Job] interface.
type JobFunc func()

// Run calls f.
func (f JobFunc) Run() { f() }

// ///////////////////////////////////////////////
// Pool
// ///////////////////////////////////////////////

// Pool owns a fixed set of workers and the producer side of their queue.
type Pool struct {
	// workers is ordered by id; Join waits on them in this order.
	workers []*worker
	// queue carries jobs and terminate sentinels to the workers.
	queue *queue
	// logger receives worker lifecycle and panic records.
	logger *slog.Logger

	// live counts workers whose goroutine has not returned.
	live atomic.Int32

	// mu serializes Execute against the start of shutdown so no job can be
	// enqueued behind the terminate sentinels.
	mu sync.Mutex
	// closed is set once shutdown has started.
	closed bool
	// joined is closed after every worker has exited.
	joined chan struct{}
}

// Option configures a [Pool].
type Option func(*Pool)

// WithLogger sets the logger used for worker lifecycle and panic records.
// Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New starts size workers sharing one queue. It returns [ErrInvalidSize] if
// size is zero or negative.
func New(size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}

	p := &Pool{
		queue:  newQueue(),
		logger: slog.Default(),
		joined: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.workers = make([]*worker, 0, size)
	p.live.Store(int32(size))
	for id := 0; id < size; id++ {
		w := &worker{id: id, done: make(chan struct{})}
		p.workers = append(p.workers, w)
		go w.loop(p)
	}
	return p, nil
}

// MustNew is like [New] but panics when size is not positive. Use it where a
// zero-size pool is a programming error rather than bad input.
func MustNew(size int, opts ...Option) *Pool {
	p, err := New(size, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Execute enqueues job for the next idle worker. It never blocks; results, if
// any, travel through channels captured by the job itself.
func (p *Pool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.queue.push(message{job: job})
	return nil
}

// Join sends one terminate sentinel per live worker and blocks until every
// worker has exited. Jobs queued before Join still run. Calling Join again,
// or after [Pool.TryJoin], waits for the same shutdown without sending more
// sentinels.
func (p *Pool) Join() {
	if !p.begin() {
		<-p.joined
		return
	}
	p.wait()
}

// TryJoin starts shutdown and waits like [Pool.Join], unless shutdown was
// already started on another path, in which case it returns false at once.
func (p *Pool) TryJoin() bool {
	if !p.begin() {
		return false
	}
	p.wait()
	return true
}

// Close is [Pool.Join] in [io.Closer] form so owners can defer it.
func (p *Pool) Close() error {
	p.Join()
	return nil
}

// Size returns the configured worker count.
func (p *Pool) Size() int { return len(p.workers) }

// Live returns the number of workers that have not exited. It drops below
// [Pool.Size] when a job panics or after shutdown.
func (p *Pool) Live() int { return int(p.live.Load()) }

// begin marks the pool closed and enqueues the sentinels. It reports false if
// shutdown had already begun.
func (p *Pool) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	n := p.Live()
	for i := 0; i < n; i++ {
		p.queue.push(terminate)
	}
	p.logger.Debug("worker pool shutting down", "workers", len(p.workers), "live", n)
	return true
}

// wait blocks on each worker in id order, then releases other joiners.
func (p *Pool) wait() {
	for _, w := range p.workers {
		<-w.done
		p.logger.Debug("worker shut down", "worker", w.id)
	}
	close(p.joined)
}

// ///////////////////////////////////////////////
// Worker
// ///////////////////////////////////////////////

// worker is one goroutine bound to a stable id.
type worker struct {
	id int
	// done is closed when the goroutine returns, so waiting on it more than
	// once is safe.
	done chan struct{}
}

// loop dequeues messages until it receives a sentinel or a job panics.
func (w *worker) loop(p *Pool) {
	defer close(w.done)
	defer p.live.Add(-1)

	for {
		m := p.queue.pop()
		if m.job == nil {
			return
		}
		if !w.run(p.logger, m.job) {
			return
		}
	}
}

// run executes job and reports whether it returned normally.
func (w *worker) run(logger *slog.Logger, job Job) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked, worker exiting",
				"worker", w.id,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()
	job.Run()
	return true
}
