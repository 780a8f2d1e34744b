package notification

import (
	"context"
	"log/slog"
)

// Notifier receives operational events worth surfacing outside the log
// stream (peer sessions binding, links going down). Replace LogNotifier
// with an email/webhook implementation to page on them.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// LogNotifier is a simple implementation that just logs events.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Send logs the event details.
func (n *LogNotifier) Send(ctx context.Context, subject, body string) error {
	slog.InfoContext(ctx, "notification", slog.String("subject", subject), slog.String("body", body))
	return nil
}

// Compile-time check to ensure LogNotifier implements Notifier
var _ Notifier = (*LogNotifier)(nil)
