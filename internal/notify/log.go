package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, recipient, kind string, payload any) error {
	n.logger.Info("notification",
		zap.String("recipient", recipient),
		zap.String("kind", kind),
		zap.Any("payload", payload))
	return nil
}
