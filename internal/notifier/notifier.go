// Package notifier delivers alert messages to operators.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pairwatch/internal/model"
)

// ErrNotificationDelivery wraps every delivery failure.
var ErrNotificationDelivery = errors.New("notification delivery failed")

// DefaultSubject is used for alerts when no subject is configured.
const DefaultSubject = "Pairs Trading Alert"

// Message is a plain text notification.
type Message struct {
	ID      string
	Subject string
	Body    string
	Created time.Time
}

// NewMessage stamps a message with a fresh id.
func NewMessage(subject, body string) Message {
	return Message{
		ID:      uuid.NewString(),
		Subject: subject,
		Body:    body,
		Created: time.Now().UTC(),
	}
}

// TestMessage is sent by the test-alert command to verify delivery.
func TestMessage() Message {
	return NewMessage("Test Alert", "Email alert system is working!")
}

// Notifier attempts delivery of a message. Implementations wrap failures with
// ErrNotificationDelivery.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// FormatAlert renders the alert body.
func FormatAlert(a model.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Z-score alert for %s/%s: %s\n", a.LegA, a.LegB, a.Signal.Upper())
	fmt.Fprintf(&b, "Z-score: %.2f\n", a.ZScore)
	fmt.Fprintf(&b, "%s Price: $%.2f\n", a.LegA, a.PriceA)
	fmt.Fprintf(&b, "%s Price: $%.2f\n", a.LegB, a.PriceB)
	fmt.Fprintf(&b, "Price Divergence: $%.2f", a.Spread)
	return b.String()
}

// Alerter turns pair alerts into messages for a Notifier.
type Alerter struct {
	subject  string
	notifier Notifier
}

func NewAlerter(subject string, n Notifier) *Alerter {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Alerter{subject: subject, notifier: n}
}

// NotifyAlert formats and sends the alert, reusing the alert id as message id.
func (a *Alerter) NotifyAlert(ctx context.Context, alert model.Alert) error {
	msg := NewMessage(a.subject, FormatAlert(alert))
	if alert.ID != "" {
		msg.ID = alert.ID
	}
	if !alert.Timestamp.IsZero() {
		msg.Created = alert.Timestamp
	}
	return a.notifier.Send(ctx, msg)
}

func deliveryError(name string, err error) error {
	if errors.Is(err, ErrNotificationDelivery) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrNotificationDelivery, name, err)
}
