package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderCompletedEvent is published once a checkout has committed.
type OrderCompletedEvent struct {
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"item_count"`
	Timestamp     time.Time       `json:"timestamp"`
}
