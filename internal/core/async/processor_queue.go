package async

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/async"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

// Handler processes one job.
type Handler interface {
	Handle(ctx context.Context, job async.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job async.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job async.Job) error { return f(ctx, job) }

// ProcessorQueue runs jobs on a fixed pool of workers.
type ProcessorQueue struct {
	handler Handler
	logger  *zap.Logger
	workers int
	timeout time.Duration

	ch   chan async.Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

var _ async.Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan async.Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(handler Handler, logger *zap.Logger, opts ...Option) *ProcessorQueue {
	q := &ProcessorQueue{
		handler: handler,
		logger:  common.LoggerOrGlobal(logger),
		workers: 4,
		timeout: 2 * time.Minute,
		ch:      make(chan async.Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", zap.Int("worker_id", workerID))

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					if job.TraceID != "" {
						ctx = common.WithRequestID(ctx, job.TraceID)
					}
					err := q.handler.Handle(ctx, job)
					cancel()

					if err != nil {
						q.logger.Error("queue.job.failed", zap.Int("worker_id", workerID), zap.String("path", job.Path), zap.Error(err))
					} else {
						q.logger.Info("queue.job.ok", zap.Int("worker_id", workerID), zap.String("path", job.Path),
							zap.Duration("waited", time.Since(job.SubmittedAt)))
					}
				}

				q.logger.Debug("queue.worker.stopped", zap.Int("worker_id", workerID))
			}(i + 1)
		}
	})
}

// Enqueue blocks when the buffer is full. It returns an error once the queue
// is shutting down.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", zap.String("path", job.Path))
		return common.NewAppError("QUEUE_CLOSED", "queue is shutting down", common.ErrInternal)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueued", zap.String("path", job.Path), zap.Bool("force", job.Force))
		return nil
	default:
	}
	q.logger.Warn("queue.full", zap.String("path", job.Path))
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
