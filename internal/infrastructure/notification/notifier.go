package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier delivers platform owner alerts to the structured log. It stands
// in for a mail or chat integration; alerts are operational signals, not part
// of the billing data path, so a log sink is an acceptable delivery channel.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new log-backed owner notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("owner-alerts")}
}

// NotifyOwner records an owner alert. Never blocks and never fails.
func (n *LogNotifier) NotifyOwner(_ context.Context, subject, message string) {
	n.logger.Warn("Platform owner alert",
		zap.String("subject", subject),
		zap.String("message", message),
	)
}
