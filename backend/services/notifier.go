package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/system"
)

// AlertNotifier delivers a persisted alert to an outside channel.
type AlertNotifier interface {
	Name() string
	Notify(ctx context.Context, alert *models.Alert) error
}

// AlertDispatcher hands alerts to notifiers on a background worker so the
// ingestion loop never waits on the network. When the queue is full the
// alert is dropped from notification; it is already stored.
type AlertDispatcher struct {
	notifiers []AlertNotifier
	queue     chan models.Alert
	timeout   time.Duration
	dropped   atomic.Int64
	sent      atomic.Int64
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewAlertDispatcher creates a dispatcher with the given queue size.
func NewAlertDispatcher(queueSize int, notifiers ...AlertNotifier) *AlertDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &AlertDispatcher{
		notifiers: notifiers,
		queue:     make(chan models.Alert, queueSize),
		timeout:   10 * time.Second,
	}
}

// Start launches the worker goroutine.
func (d *AlertDispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for alert := range d.queue {
			d.deliver(alert)
		}
	}()

	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	system.Info("Alert dispatcher started (notifiers: %v)", names)
}

func (d *AlertDispatcher) deliver(alert models.Alert) {
	for _, n := range d.notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := n.Notify(ctx, &alert); err != nil {
			system.Warn("Alert %d notification via %s failed: %v", alert.ID, n.Name(), err)
		} else {
			d.sent.Add(1)
		}
		cancel()
	}
}

// Dispatch queues an alert without blocking. After Close it only counts
// the alert as dropped.
func (d *AlertDispatcher) Dispatch(alert *models.Alert) {
	if len(d.notifiers) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		system.Warn("Alert dispatcher closed, dropping alert %d", alert.ID)
		return
	}
	select {
	case d.queue <- *alert:
	default:
		d.dropped.Add(1)
		system.Warn("Alert notification queue full, dropping alert %d", alert.ID)
	}
}

// Dropped returns how many alerts were not queued for notification.
func (d *AlertDispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Sent returns how many notifier deliveries succeeded.
func (d *AlertDispatcher) Sent() int64 {
	return d.sent.Load()
}

// Close drains the queue and stops the worker.
func (d *AlertDispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
	})
}
