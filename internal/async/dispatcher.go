package async

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketplace/internal/logging"
)

// Job is a unit of fire-and-forget work. Its error is logged, never returned.
type Job func(ctx context.Context) error

// Options size a Dispatcher.
type Options struct {
	Workers int
	Buffer  int
	Timeout time.Duration // per job; zero means no deadline
}

// Dispatcher runs submitted jobs on a fixed set of workers. Submit never
// blocks: when the buffer is full the job is dropped.
type Dispatcher struct {
	jobs    chan namedJob
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type namedJob struct {
	name string
	run  Job
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options, logger *zap.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer < 0 {
		opts.Buffer = 0
	}
	d := &Dispatcher{
		jobs:    make(chan namedJob, opts.Buffer),
		timeout: opts.Timeout,
		logger:  logging.OrNop(logger).Named("dispatch"),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.work()
	}
	return d
}

// Submit queues job under name. It reports false when the job was dropped.
func (d *Dispatcher) Submit(name string, job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("job dropped after close", zap.String("job", name))
		return false
	}
	select {
	case d.jobs <- namedJob{name: name, run: job}:
		return true
	default:
		d.logger.Warn("job dropped, buffer full", zap.String("job", name))
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job namedJob) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked", zap.String("job", job.name), zap.Any("panic", r))
		}
	}()
	if err := job.run(ctx); err != nil {
		d.logger.Warn("job failed", zap.String("job", job.name), zap.Error(err))
	}
}
