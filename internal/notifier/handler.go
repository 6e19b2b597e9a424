// Package notifier turns order events into user notifications.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/bookstore-api/internal/domain"
)

type NotificationWriter interface {
	CreateNotification(ctx context.Context, notification *domain.Notification) error
}

type Handler struct {
	notifications NotificationWriter
	logger        *slog.Logger
}

func NewHandler(notifications NotificationWriter, logger *slog.Logger) *Handler {
	return &Handler{
		notifications: notifications,
		logger:        logger,
	}
}

// Handle consumes one order.completed payload.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCompletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order completed event: %w", err)
	}
	if event.OrderID <= 0 || event.UserID <= 0 {
		return errors.New("order completed event without order or user id")
	}

	h.logger.Info("processing order completed event", "order_id", event.OrderID, "user_id", event.UserID)

	notification := &domain.Notification{
		UserID:    event.UserID,
		Kind:      domain.NotificationOrderCompleted,
		Message:   completedMessage(event),
		OrderID:   event.OrderID,
		CreatedAt: event.Timestamp,
	}
	if err := h.notifications.CreateNotification(ctx, notification); err != nil {
		h.logger.Error("failed to store notification", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("store notification: %w", err)
	}

	h.logger.Info("order notification stored", "order_id", event.OrderID, "notification_id", notification.ID.Hex())
	return nil
}

func completedMessage(event domain.OrderCompletedEvent) string {
	msg := fmt.Sprintf("Your order #%d has been completed", event.OrderID)
	if event.InvoiceNumber != "" {
		msg += fmt.Sprintf(". Invoice %s, total %s", event.InvoiceNumber, event.Total.StringFixed(2))
	}
	return msg + "."
}
