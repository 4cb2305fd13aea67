package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/system"

	"github.com/nats-io/nats.go"
)

// NATSNotifier publishes alerts as JSON on a NATS subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	closed  chan struct{}
}

const natsDrainTimeout = 10 * time.Second

// NewNATSNotifier connects to the NATS server at url.
func NewNATSNotifier(url, subject string) (*NATSNotifier, error) {
	closed := make(chan struct{})
	nc, err := nats.Connect(url,
		nats.Name("traffic-monitor"),
		nats.MaxReconnects(-1),
		nats.DrainTimeout(natsDrainTimeout),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(closed)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				system.Warn("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			system.Info("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	system.Info("Connected to NATS server at %s", url)
	return &NATSNotifier{nc: nc, subject: subject, closed: closed}, nil
}

func (n *NATSNotifier) Name() string {
	return "nats:" + n.subject
}

// Notify publishes the alert. Publishing is buffered by the client, so ctx
// only bounds the flush.
func (n *NATSNotifier) Notify(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return n.nc.FlushWithContext(ctx)
}

// Close drains the connection and waits until the client reports it closed.
func (n *NATSNotifier) Close() {
	if n.nc == nil {
		return
	}
	if err := n.nc.Drain(); err != nil {
		system.Warn("NATS drain failed: %v", err)
		n.nc.Close()
		return
	}
	select {
	case <-n.closed:
		system.Info("NATS connection drained and closed")
	case <-time.After(natsDrainTimeout + time.Second):
		system.Warn("NATS drain did not finish in %s", natsDrainTimeout)
		n.nc.Close()
	}
}
