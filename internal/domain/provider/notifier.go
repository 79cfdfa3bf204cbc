package provider

import (
	"context"

	"qualtrack/internal/domain/entity"
)

// QueueNotifier announces queue transitions to an external subscriber.
// Delivery is best-effort; callers log and ignore the error.
type QueueNotifier interface {
	Notify(ctx context.Context, event *entity.QueueEvent) error
}
