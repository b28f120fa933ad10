package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers outbound account notifications. Callers treat every
// send as fire-and-forget: a delivery failure must never fail the
// operation that triggered it.
type Notifier interface {
	SendWelcome(ctx context.Context, email, username string) error
}

// LogNotifier records the notification instead of delivering it. Stands in
// for the mail collaborator in development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendWelcome(ctx context.Context, email, username string) error {
	n.logger.InfoContext(ctx, "welcome notification", "email", email, "username", username)
	return nil
}
