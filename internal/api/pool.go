package api

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"taskcal/internal/domain"
	"taskcal/internal/storage"
)

var taskEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taskcal",
	Name:      "task_events_total",
	Help:      "Task change events by type and delivery outcome.",
}, []string{"type", "outcome"})

// DispatcherConfig sizes the event worker pool.
type DispatcherConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// Dispatcher publishes task change events off the request path. When the
// buffer is saturated past the handoff timeout the event is published
// inline instead of being dropped.
type Dispatcher struct {
	publisher storage.Publisher
	logger    *log.Logger
	timeout   time.Duration
	handoff   time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan domain.TaskEvent
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers goroutines publishing to pub.
func NewDispatcher(pub storage.Publisher, logger *log.Logger, cfg DispatcherConfig) *Dispatcher {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	d := &Dispatcher{
		publisher: pub,
		logger:    logger,
		timeout:   cfg.Timeout,
		handoff:   cfg.HandoffTimeout,
		jobs:      make(chan domain.TaskEvent, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("event dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for ev := range d.jobs {
		if err := d.publish(ev); err != nil {
			d.logger.WithError(err).WithFields(log.Fields{"worker": id, "event": ev.Type, "user": ev.UserID}).Error("publish task event failed")
		}
	}
}

func (d *Dispatcher) publish(ev domain.TaskEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	err := d.publisher.Publish(ctx, ev)
	if err != nil {
		taskEventsTotal.WithLabelValues(ev.Type, "failed").Inc()
		return err
	}
	taskEventsTotal.WithLabelValues(ev.Type, "published").Inc()
	return nil
}

// Dispatch hands ev to the pool, falling back to an inline publish when
// the pool is saturated or closed.
func (d *Dispatcher) Dispatch(ev domain.TaskEvent) {
	if d.tryEnqueue(ev) {
		return
	}
	d.logger.Warn("event buffer saturated; publishing inline")
	taskEventsTotal.WithLabelValues(ev.Type, "inline").Inc()
	if err := d.publish(ev); err != nil {
		d.logger.WithError(err).WithField("event", ev.Type).Error("inline publish failed")
	}
}

func (d *Dispatcher) tryEnqueue(ev domain.TaskEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.jobs <- ev:
		return true
	default:
	}

	if d.handoff <= 0 {
		return false
	}
	timer := time.NewTimer(d.handoff)
	defer timer.Stop()
	select {
	case d.jobs <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}
