// Package notification delivers trading alerts (entries, exits, square-off,
// risk-limit hits) to external channels: Telegram, generic webhooks, or the
// process log.
package notification

import (
	"context"
	"fmt"
	"log"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts to the process log. It is the default backend
// when no external channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans one alert out to several backends. Send returns the first
// delivery error but still attempts every backend.
type Multi struct {
	backends []Notifier
}

func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var first error
	for _, n := range m.backends {
		if err := n.Send(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Dispatcher queues alerts and delivers them off the trading hot path.
// A full queue drops the alert; trading never blocks on delivery.
type Dispatcher struct {
	notifier Notifier
	queue    chan Alert
	done     chan struct{}
}

const (
	dispatchQueueSize = 64
	dispatchTimeout   = 10 * time.Second
)

// NewDispatcher starts the delivery goroutine.
func NewDispatcher(n Notifier) *Dispatcher {
	d := &Dispatcher{
		notifier: n,
		queue:    make(chan Alert, dispatchQueueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for alert := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		if err := d.notifier.Send(ctx, alert); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
		}
		cancel()
	}
}

// Notify enqueues an alert. Never blocks.
func (d *Dispatcher) Notify(level AlertLevel, title, format string, args ...interface{}) {
	alert := Alert{Level: level, Title: title, Message: fmt.Sprintf(format, args...)}
	select {
	case d.queue <- alert:
	default:
		log.Printf("[notify] queue full, dropping alert %q", title)
	}
}

// Close drains pending alerts and stops the dispatcher.
func (d *Dispatcher) Close() {
	close(d.queue)
	<-d.done
}
