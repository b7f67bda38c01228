package alertsink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/upswyng/alert-worker/internal/domain/model"
)

// msgIDHeader lets JetStream streams drop duplicate publishes of one alert.
const msgIDHeader = "Nats-Msg-Id"

// Publisher is the slice of *nats.Conn the notifier needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSNotifierOptions configures a NATSNotifier.
type NATSNotifierOptions struct {
	Publisher Publisher // Required
	Subject   string    // Required
	Projector *Projector
}

// NATSNotifier publishes one message per alert.
type NATSNotifier struct {
	pub       Publisher
	subject   string
	projector *Projector
	now       func() time.Time
}

// NewNATSNotifier constructs a NATSNotifier.
func NewNATSNotifier(opts NATSNotifierOptions) (*NATSNotifier, error) {
	if opts.Publisher == nil {
		return nil, errors.New("nats publisher is required")
	}
	subject := strings.TrimSpace(opts.Subject)
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}
	return &NATSNotifier{
		pub:       opts.Publisher,
		subject:   subject,
		projector: opts.Projector,
		now:       time.Now,
	}, nil
}

// Notify publishes alert on the configured subject.
func (n *NATSNotifier) Notify(ctx context.Context, alert *model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := n.projector.Encode(NewEvent(alert, n.now()))
	if err != nil {
		return err
	}

	msg := nats.NewMsg(n.subject)
	msg.Data = data
	msg.Header.Set(msgIDHeader, alert.ID)
	msg.Header.Set("Content-Type", "application/json")

	if err := n.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish alert %s to %s: %w", alert.ID, n.subject, err)
	}
	return nil
}
