package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_dropped_total",
		Help: "Events dropped because the dispatch queue was full or closed",
	}, []string{"kind"})

	eventDeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_event_delivery_failures_total",
		Help: "Event deliveries that returned an error or panicked, by sink",
	}, []string{"sink"})
)

const deliveryTimeout = 5 * time.Second

// Dispatcher fans events out to sinks from a bounded queue. When the queue
// is full, new events are dropped and counted.
type Dispatcher struct {
	sinks  []Sink
	logger *logrus.Logger
	queue  chan Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(logger *logrus.Logger, bufferSize, workers int, sinks ...Sink) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		sinks:  sinks,
		logger: logger,
		queue:  make(chan Event, bufferSize),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

func (d *Dispatcher) Notify(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		eventsDropped.WithLabelValues(string(e.Kind)).Inc()
		return
	}
	select {
	case d.queue <- e:
	default:
		eventsDropped.WithLabelValues(string(e.Kind)).Inc()
		d.logger.WithField("kind", e.Kind).Warn("event queue full, dropping event")
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for e := range d.queue {
		for _, s := range d.sinks {
			if err := d.deliver(s, e); err != nil {
				eventDeliveryFailures.WithLabelValues(s.Name()).Inc()
				d.logger.WithError(err).WithFields(logrus.Fields{
					"sink": s.Name(),
					"kind": e.Kind,
				}).Warn("event delivery failed")
			}
		}
	}
}

func (d *Dispatcher) deliver(s Sink, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	return s.Deliver(ctx, e)
}
