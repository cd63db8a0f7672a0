package dispatch

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/group-notifier/internal/groups"
	"github.com/eternisai/group-notifier/internal/logger"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("dispatch pool is shut down")

// Processor handles a single change event.
type Processor interface {
	Process(ctx context.Context, ev groups.ChangeEvent) Result
}

// Pool runs change events on a fixed set of workers. Events are sharded by group ID,
// so changes to one group are processed in feed order while different groups run
// concurrently.
type Pool struct {
	processor Processor
	logger    *logger.Logger
	timeout   time.Duration
	queues    []chan groups.ChangeEvent

	workers  sync.WaitGroup
	inflight sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines, each with a queue of queueSize events.
// timeout bounds the processing of one event; zero means no limit.
func NewPool(processor Processor, workers, queueSize int, timeout time.Duration, logger *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		processor: processor,
		logger:    logger.WithComponent("dispatch-pool"),
		timeout:   timeout,
		queues:    make([]chan groups.ChangeEvent, workers),
	}

	for i := range p.queues {
		p.queues[i] = make(chan groups.ChangeEvent, queueSize)
		p.workers.Add(1)
		go p.worker(p.queues[i])
	}

	p.logger.Info("dispatch pool started",
		slog.Int("workers", workers),
		slog.Int("queue_size", queueSize),
		slog.Duration("timeout", timeout))

	return p
}

// Submit queues ev, blocking while its shard's queue is full.
func (p *Pool) Submit(ctx context.Context, ev groups.ChangeEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.inflight.Add(1)
	select {
	case p.queues[p.shard(ev.Group.ID)] <- ev:
		return nil
	case <-ctx.Done():
		p.inflight.Done()
		return ctx.Err()
	}
}

// Wait blocks until every submitted event has been processed.
// It must not race with Submit.
func (p *Pool) Wait() {
	p.inflight.Wait()
}

// Shutdown stops accepting events, drains the queues and waits for the workers.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.logger.Info("shutting down dispatch pool")
	p.workers.Wait()
	p.logger.Info("dispatch pool shutdown complete")
}

func (p *Pool) shard(groupID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(groupID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *Pool) worker(queue <-chan groups.ChangeEvent) {
	defer p.workers.Done()

	for ev := range queue {
		p.run(ev)
	}
}

func (p *Pool) run(ev groups.ChangeEvent) {
	defer p.inflight.Done()

	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("change event processing panicked",
				slog.String("event_id", ev.ID),
				slog.String("group_id", ev.Group.ID),
				slog.Any("panic", r))
		}
	}()

	p.processor.Process(ctx, ev)
}
