package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// OrderItem is the frozen copy of a cart line taken when the order is placed.
type OrderItem struct {
	BookID    int64           `json:"book_id"`
	Title     string          `json:"title,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	CartID            int64           `json:"cart_id"`
	Total             decimal.Decimal `json:"total"`
	Status            OrderStatus     `json:"status"`
	CouponID          *int64          `json:"coupon_id,omitempty"`
	ShippingAddressID int64           `json:"shipping_address_id"`
	PaymentMethodID   int64           `json:"payment_method_id"`
	Items             []OrderItem     `json:"items,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// OrderSummary is one row of a user's order history.
type OrderSummary struct {
	OrderID int64           `json:"orderId"`
	Date    time.Time       `json:"date"`
	Total   decimal.Decimal `json:"total"`
}

type OrderStatusEvent struct {
	OrderID   int64       `json:"order_id"`
	Status    OrderStatus `json:"status"`
	ChangedAt time.Time   `json:"changed_at"`
}

type Invoice struct {
	ID       int64           `json:"id"`
	OrderID  int64           `json:"order_id"`
	Number   string          `json:"number"`
	IssuedAt time.Time       `json:"issued_at"`
	Total    decimal.Decimal `json:"total"`
}

type Payment struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"order_id"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentMethodID  int64           `json:"payment_method_id"`
	Status           PaymentStatus   `json:"status"`
	GatewayReference string          `json:"gateway_reference"`
	PaidAt           time.Time       `json:"paid_at"`
}

// Total sums quantity × unit price over items.
func Total(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
