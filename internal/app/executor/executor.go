// Package executor runs blocking native calls on a bounded worker pool.
//
// Each model kind gets its own Executor so a long generation never starves
// transcription work. The pool:
//  1. Accepts jobs without blocking the caller
//  2. Queues them FIFO (optionally bounded)
//  3. Runs them on N long-lived workers
//  4. Recovers panics so a bad job never kills a worker
//  5. Drains queued work on Close
package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"

	"github.com/saira-network/saira/internal/domain"
)

// ErrClosed is returned by Submit and Force after Close.
var ErrClosed = errors.New("executor closed")

// Job is one unit of work. A non-nil error only feeds the failure counter;
// jobs report their results through their own channels.
type Job func() error

// Config controls executor behavior.
type Config struct {
	Name       string // pool name for logs (usually the model kind)
	Workers    int    // Number of worker goroutines (default: 1)
	QueueLimit int    // Maximum queued jobs, 0 = unbounded (default: 0)
	Logger     zerolog.Logger
}

// DefaultConfig returns safe executor defaults.
func DefaultConfig() Config {
	return Config{
		Name:       "default",
		Workers:    1,
		QueueLimit: 0,
		Logger:     zerolog.Nop(),
	}
}

// Executor is a FIFO worker pool.
type Executor struct {
	mu        sync.Mutex
	cond      *sync.Cond
	config    Config
	log       zerolog.Logger
	queue     deque.Deque[Job]
	active    int
	completed int64
	failed    int64
	closed    bool
	wg        sync.WaitGroup
}

// New creates an executor and starts its workers.
func New(cfg Config) *Executor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueLimit < 0 {
		cfg.QueueLimit = 0
	}
	e := &Executor{
		config: cfg,
		log:    cfg.Logger.With().Str("component", "executor").Str("pool", cfg.Name).Logger(),
	}
	e.cond = sync.NewCond(&e.mu)

	e.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go e.worker(i)
	}
	return e
}

// Submit queues a job. It never blocks: a full queue returns
// domain.ErrQueueFull and a closed pool returns ErrClosed.
func (e *Executor) Submit(job Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.config.QueueLimit > 0 && e.queue.Len() >= e.config.QueueLimit {
		return fmt.Errorf("%s pool: %d jobs queued: %w", e.config.Name, e.queue.Len(), domain.ErrQueueFull)
	}
	e.queue.PushBack(job)
	e.cond.Signal()
	return nil
}

// Force queues a job regardless of the queue limit. Used for lifecycle
// work (load, unload) that must never be refused for backpressure.
func (e *Executor) Force(job Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.queue.PushBack(job)
	e.cond.Signal()
	return nil
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.queue.Len() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.queue.Len() == 0 {
			e.mu.Unlock()
			return
		}
		job := e.queue.PopFront()
		e.active++
		e.mu.Unlock()

		err := e.run(job)

		e.mu.Lock()
		e.active--
		if err != nil {
			e.failed++
		} else {
			e.completed++
		}
		e.mu.Unlock()

		if err != nil {
			e.log.Debug().Int("worker", id).Err(err).Msg("job failed")
		}
	}
}

// run executes one job, converting a panic into an error.
func (e *Executor) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("job panicked")
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job()
}

// Close stops accepting jobs, lets the workers drain the queue, and waits
// for them to exit. Safe to call more than once.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns executor statistics.
type Stats struct {
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Workers   int   `json:"workers"`
}

// Stats returns current executor statistics.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		Active:    e.active,
		Queued:    e.queue.Len(),
		Completed: e.completed,
		Failed:    e.failed,
		Workers:   e.config.Workers,
	}
}

// ActiveCount returns the number of currently executing jobs.
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}
