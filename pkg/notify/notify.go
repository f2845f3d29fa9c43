// Package notify delivers user-visible notifications about delivery
// outcomes. Notifications are persisted as documents and, when a bus is
// configured, published for online consumers.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marketops/delivery-engine/pkg/types"
)

// Notifier is the notification sink used by the delivery coordinator.
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
}

// New builds a notification addressed to username.
func New(username string, severity types.NotificationSeverity, message, audienceID, destinationID string) types.Notification {
	return types.Notification{
		ID:            uuid.New().String(),
		Username:      username,
		Severity:      severity,
		Message:       message,
		AudienceID:    audienceID,
		DestinationID: destinationID,
		CreatedAt:     time.Now().UTC(),
	}
}

// LogNotifier writes notifications to the process log only. Used when no bus
// is configured and in tests.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(_ context.Context, n types.Notification) error {
	l.Logger.Info().
		Str("username", n.Username).
		Str("severity", string(n.Severity)).
		Str("audience_id", n.AudienceID).
		Str("destination_id", n.DestinationID).
		Msg(n.Message)
	return nil
}
