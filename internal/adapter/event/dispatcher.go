package event

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-ledger/internal/port"
	"github.com/rl1809/stock-ledger/pkg/logger"
)

const publishTimeout = 5 * time.Second

var eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Name:      "events_published_total",
	Help:      "Committed transaction events handed to the publisher, by outcome.",
}, []string{"outcome"})

// Dispatcher drains the ledger's event queue with a fixed worker pool.
type Dispatcher struct {
	publisher port.EventPublisher
	workers   int
	wg        sync.WaitGroup
}

func NewDispatcher(publisher port.EventPublisher, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{publisher: publisher, workers: workers}
}

// Start runs the workers until queue is closed.
func (d *Dispatcher) Start(queue <-chan port.CommittedEvent) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id, queue)
		}(i)
	}
	logger.Logger.Info().Int("workers", d.workers).Msg("Event workers started")
}

// Wait blocks until every worker has drained the closed queue.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int, queue <-chan port.CommittedEvent) {
	for ev := range queue {
		// The committing request is gone; publish under its trace, not its deadline.
		ctx := trace.ContextWithSpanContext(context.Background(), ev.SpanContext)
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)

		txn := ev.Transaction
		if err := d.publisher.PublishTransactionCommitted(ctx, txn); err != nil {
			eventsPublished.WithLabelValues("error").Inc()
			logger.Logger.Error().
				Err(err).
				Int("worker", id).
				Str("transaction_id", txn.ID).
				Msg("Failed to publish committed event")
		} else {
			eventsPublished.WithLabelValues("ok").Inc()
		}

		cancel()
	}
}
