package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-service/internal/core/domain"
	"github.com/rl1809/inventory-service/internal/metrics"
	"github.com/rl1809/inventory-service/internal/port"
)

const publishTimeout = 5 * time.Second

// AsyncPublisher queues events for a slower sink and returns immediately.
// When the queue is full the event is dropped and counted.
type AsyncPublisher struct {
	next   port.EventPublisher
	name   string
	queue  chan domain.Event
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncPublisher(next port.EventPublisher, name string, queueSize, workers int, logger *zap.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}

	p := &AsyncPublisher{
		next:   next,
		name:   name,
		queue:  make(chan domain.Event, queueSize),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workerLoop(id)
		}(i)
	}
	return p
}

func (p *AsyncPublisher) Publish(ctx context.Context, e domain.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(e, "closed")
		return
	}
	select {
	case p.queue <- e:
	default:
		p.drop(e, "queue full")
	}
}

func (p *AsyncPublisher) drop(e domain.Event, why string) {
	metrics.EventsPublished.WithLabelValues(p.name, "dropped").Inc()
	p.logger.Warn("event dropped",
		zap.String("sink", p.name),
		zap.String("reason", why),
		zap.String("event_id", e.ID),
		zap.Int64("product_id", e.ProductID))
}

func (p *AsyncPublisher) workerLoop(id int) {
	for e := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		p.next.Publish(ctx, e)
		cancel()
	}
	p.logger.Debug("event worker stopped", zap.String("sink", p.name), zap.Int("worker", id))
}

// Close stops accepting events and waits until the queue has drained.
func (p *AsyncPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}
