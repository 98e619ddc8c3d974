package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier is the out-of-band push notification contract. The relay
// invokes it only when the receiver has no live handle, fire-and-forget:
// a failed notification never fails the send.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// LogNotifier records notification decisions without delivering them.
// The production gateway (FCM/APNs bridge) is deployed separately and
// plugs in behind the same interface.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	n.logger.Info("push notification queued",
		zap.String("user_id", userID),
		zap.String("title", title),
		zap.Any("data", data),
	)
}
