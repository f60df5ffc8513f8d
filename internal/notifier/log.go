package notifier

import (
	"context"

	"pairwatch/logger"
)

// LogNotifier writes messages to the application log. It is the fallback
// when no mail relay is configured.
type LogNotifier struct {
	log *logger.Log
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.GetLogger()}
}

func (l *LogNotifier) Name() string { return "log" }

func (l *LogNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return deliveryError(l.Name(), err)
	}
	l.log.WithComponent("log_notifier").WithFields(logger.Fields{
		"message_id": msg.ID,
		"subject":    msg.Subject,
		"body":       msg.Body,
	}).Warn("alert")
	return nil
}
