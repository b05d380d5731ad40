// Package processing runs background tasks in-process when no Redis queue is
// configured. A fixed set of goroutines drains a buffered channel.
package processing

import (
	"context"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/queue"
)

// Handler executes tasks. worker.Processor implements it.
type Handler interface {
	Notify(ctx context.Context, p queue.NotifyPayload) error
	Inspect(ctx context.Context, p queue.InspectPayload) error
}

type job struct {
	kind string
	run  func(ctx context.Context) error
}

// Pool is a queue.Enqueuer backed by goroutines.
type Pool struct {
	handler Handler
	queue   chan job
	workers int
	logger  *zap.Logger
}

var _ queue.Enqueuer = (*Pool)(nil)

// New builds a Pool with queue capacity tied to worker count.
func New(handler Handler, workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		handler: handler,
		queue:   make(chan job, workers*4),
		workers: workers,
		logger:  logger.Named("processing"),
	}
}

// Start launches worker goroutines that exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

// EnqueueNotify queues a notification fan-out.
func (p *Pool) EnqueueNotify(_ context.Context, payload queue.NotifyPayload) error {
	p.submit(job{kind: queue.NotifyTask, run: func(ctx context.Context) error {
		return p.handler.Notify(ctx, payload)
	}})
	return nil
}

// EnqueueInspect queues PDF inspection.
func (p *Pool) EnqueueInspect(_ context.Context, payload queue.InspectPayload) error {
	p.submit(job{kind: queue.InspectTask, run: func(ctx context.Context) error {
		return p.handler.Inspect(ctx, payload)
	}})
	return nil
}

func (p *Pool) submit(j job) {
	select {
	case p.queue <- j:
	default:
		// Tasks are best effort; a full buffer drops work instead of blocking
		// the request.
		p.logger.Warn("queue full, dropping task", zap.String("task", j.kind))
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			if err := j.run(ctx); err != nil {
				p.logger.Error("task failed", zap.String("task", j.kind), zap.Error(err))
			}
		}
	}
}
