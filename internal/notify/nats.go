package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// publisher is the subset of *nats.Conn the notifier needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events as JSON on "<prefix>.<event type>".
type NATSNotifier struct {
	pub    publisher
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// ConnectNATS dials the NATS server at url and returns a notifier publishing
// under the subject prefix.
func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("keysweep"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	n := newNATSNotifier(nc, prefix, logger)
	n.nc = nc
	n.logger.Info("connected to nats", "url", nc.ConnectedUrl(), "subject_prefix", n.prefix)
	return n, nil
}

func newNATSNotifier(pub publisher, prefix string, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger.With("component", "nats-notifier"),
	}
}

// Subject returns the subject an event type is published on.
func (n *NATSNotifier) Subject(t EventType) string {
	if n.prefix == "" {
		return string(t)
	}
	return n.prefix + "." + string(t)
}

func (n *NATSNotifier) Notify(_ context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	subject := n.Subject(ev.Type)
	if err := n.pub.Publish(subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	n.logger.Debug("event published", "subject", subject)
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATSNotifier) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}
