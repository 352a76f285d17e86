// Package mail delivers activation and password-reset links.
package mail

import (
	"context"
	"log/slog"
)

// Notifier sends a link to an address out of band.
type Notifier interface {
	Send(ctx context.Context, to, link, subject string) error
}

// LogNotifier writes the message to the log instead of sending it. It is the
// default notifier until an outbound mail transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, to, link, subject string) error {
	n.logger.InfoContext(ctx, "mail delivery disabled, logging message",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("url", link),
	)
	return nil
}
