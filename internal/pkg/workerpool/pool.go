package workerpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Config defines the worker pool configuration
type Config struct {
	Workers   int // number of concurrent workers
	QueueSize int // pending task buffer handed to ants
}

// DefaultConfig returns a small pool suitable for background probing work
func DefaultConfig() *Config {
	return &Config{
		Workers:   8,
		QueueSize: 64,
	}
}

// Pool is a bounded worker pool over ants. Tasks submitted beyond the worker
// cap queue inside ants rather than spawning goroutines.
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a worker pool with the given size
func New(cfg *Config, logger *zap.Logger) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}

	antsPool, err := ants.NewPool(cfg.Workers,
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("worker panic", zap.Any("error", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	return &Pool{
		pool:   antsPool,
		logger: logger,
	}, nil
}

// Submit schedules a task; blocks when the queue is full
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}
	return p.pool.Submit(task)
}

// Run executes one task per item with bounded concurrency and waits for all
// of them to finish. Tasks are responsible for their own timeouts.
func (p *Pool) Run(tasks []func()) error {
	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			task()
		}); err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

// Running returns the number of workers currently executing tasks
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Shutdown releases the pool; queued tasks are discarded
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.pool.Release()
}
