package tagging

import (
	"context"
	"log/slog"
	"time"
)

// Severity levels for propagation status messages.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Notifier surfaces propagation progress to the user. Implementations must
// not block; a slow sink should drop messages rather than stall a run.
type Notifier interface {
	// ShowStatus displays a transient status message. durationHint suggests
	// how long the message should stay visible; zero lets the sink decide.
	ShowStatus(ctx context.Context, message, severity string, durationHint time.Duration)
}

// LogNotifier writes status messages to a structured logger. It is the
// default sink when no UI is attached.
type LogNotifier struct {
	Logger *slog.Logger
}

// ShowStatus implements Notifier.
func (n LogNotifier) ShowStatus(ctx context.Context, message, severity string, durationHint time.Duration) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch severity {
	case SeverityError:
		logger.ErrorContext(ctx, message)
	case SeverityWarning:
		logger.WarnContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}
}
