// Package workerpool bounds concurrent CRDT merges to a fixed set of
// worker goroutines, adapted from the teacher's worker_pool.go (originally
// built to bound Kafka-broadcast fanout). Here it isolates the blocking
// automerge merge call from the CollectionActor's mailbox loop and
// enforces the 500ms merge timeout from spec.md §4.2.2 step 3.
package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned by Submit when the task queue has no room.
var ErrQueueFull = errors.New("workerpool: task queue full")

// ErrTimeout is returned by Run when a submitted task does not complete
// within the given context's deadline.
var ErrTimeout = errors.New("workerpool: task timed out")

// Task is a unit of work executed by a pool worker.
type Task func()

// Pool runs tasks on a fixed number of worker goroutines with a bounded
// queue, trading unbounded goroutine growth for dropped/rejected work
// under overload.
type Pool struct {
	workerCount  int
	taskQueue    chan Task
	ctx          context.Context
	wg           sync.WaitGroup
	droppedTasks int64
	logger       zerolog.Logger
}

func New(workerCount, queueSize int, logger zerolog.Logger) *Pool {
	return &Pool{
		workerCount: workerCount,
		taskQueue:   make(chan Task, queueSize),
		logger:      logger,
	}
}

// Start launches the worker goroutines. ctx governs shutdown: workers
// drain in-flight tasks and exit once it is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.ctx = ctx
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.runWithRecover(task)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) runWithRecover(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("worker pool task panicked")
		}
	}()
	task()
}

// Submit enqueues task for asynchronous execution. If the queue is full
// the task is dropped and the dropped-task counter incremented — this is
// the backpressure valve that keeps a burst of merges from exploding into
// unbounded goroutines.
func (p *Pool) Submit(task Task) error {
	select {
	case p.taskQueue <- task:
		return nil
	default:
		atomic.AddInt64(&p.droppedTasks, 1)
		return ErrQueueFull
	}
}

// Run submits fn to the pool and blocks until it completes or ctx is
// done, whichever comes first; it does not watch for the pool shutting
// down. This
// is what the CollectionActor's mutation pipeline calls to run a CRDT
// merge off its own mailbox goroutine with the spec's 500ms budget.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	err := p.Submit(func() {
		done <- fn()
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrTimeout
	}
}

func (p *Pool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

func (p *Pool) DroppedTasks() int64 {
	return atomic.LoadInt64(&p.droppedTasks)
}

func (p *Pool) QueueDepth() int {
	return len(p.taskQueue)
}

func (p *Pool) QueueCapacity() int {
	return cap(p.taskQueue)
}
