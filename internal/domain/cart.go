package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartStatusOpen      CartStatus = "open"
	CartStatusCompleted CartStatus = "completed"
	CartStatusCancelled CartStatus = "cancelled"
)

type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Status    CartStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID        int64           `json:"itemId"`
	CartID    int64           `json:"cartId"`
	BookID    int64           `json:"bookId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// CartLine is a cart item joined with the book it refers to, for display.
type CartLine struct {
	CartItem
	Title    string          `json:"title"`
	ImageURL string          `json:"imageUrl"`
	Price    decimal.Decimal `json:"price"`
}
