package dispatcher

import (
	"context"

	"github.com/garyjia/restaurant-receipts/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// AuditLogHandler writes every receipt event to the logger
func AuditLogHandler(logger Logger) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		keysAndValues := []interface{}{
			"event_type", evt.Type,
			"event_id", evt.ID,
			"receipt_id", evt.ReceiptID,
			"reference", evt.Reference,
			"correlation_id", evt.CorrelationID,
		}
		for k, v := range evt.Payload {
			keysAndValues = append(keysAndValues, k, v)
		}
		logger.Info("Receipt event", keysAndValues...)
		return nil
	}
}
