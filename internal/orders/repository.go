package orders

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
)

var ErrOrderNotFound = apierr.NotFound("order not found")

// InvoiceData is everything printed on an invoice.
type InvoiceData struct {
	OrderID int64
	Number  string
	Date    time.Time
	Items   []domain.OrderItem
	Total   decimal.Decimal
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ListByUser returns the user's order history, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.OrderSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, total
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.OrderSummary{}
	for rows.Next() {
		var order domain.OrderSummary
		if err := rows.Scan(&order.OrderID, &order.Date, &order.Total); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// GetInvoiceData loads an order owned by userID together with its item
// titles. Orders of other users are reported as not found.
func (r *OrderRepository) GetInvoiceData(ctx context.Context, orderID, userID int64) (*InvoiceData, error) {
	data := &InvoiceData{OrderID: orderID}

	err := r.db.QueryRowContext(ctx, `
		SELECT o.created_at, o.total, COALESCE(i.number, '')
		FROM orders o
		LEFT JOIN invoices i ON i.order_id = o.id
		WHERE o.id = $1 AND o.user_id = $2
	`, orderID, userID).Scan(&data.Date, &data.Total, &data.Number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.book_id, b.title, oi.quantity, oi.unit_price
		FROM order_items oi
		JOIN books b ON b.id = oi.book_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.BookID, &item.Title, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		data.Items = append(data.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return data, nil
}
