package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
	"github.com/joao-fontenele/bookstore-api/internal/store"
)

var (
	checkoutTracer = otel.Tracer("orders/checkout")
	checkoutMeter  = otel.Meter("orders/checkout")
)

var (
	ErrCartEmpty               = apierr.InvalidArgument("cart is empty")
	ErrShippingAddressRequired = apierr.InvalidArgument("shippingAddressId is required")
	ErrPaymentMethodRequired   = apierr.InvalidArgument("paymentMethodId is required")
	ErrShippingAddressNotFound = apierr.NotFound("shipping address not found")
	ErrPaymentMethodNotFound   = apierr.NotFound("payment method not found")
	ErrCouponNotFound          = apierr.NotFound("coupon not found")
)

// EventPublisher receives the completed order once the checkout transaction
// has committed.
type EventPublisher interface {
	PublishOrderCompleted(ctx context.Context, event domain.OrderCompletedEvent) error
}

type CheckoutRequest struct {
	ShippingAddressID int64  `json:"shippingAddressId"`
	PaymentMethodID   int64  `json:"paymentMethodId"`
	CouponID          *int64 `json:"couponId,omitempty"`
}

type CheckoutResult struct {
	OrderID    int64  `json:"orderId"`
	InvoiceURL string `json:"invoiceUrl"`
}

// Checkout turns a user's open cart into a paid order. Every record of a
// checkout is written in a single transaction: either all of them exist
// afterwards or none do.
type Checkout struct {
	db        *sql.DB
	publisher EventPublisher
	logger    *slog.Logger
	attempts  metric.Int64Counter

	now          func() time.Time
	newReference func() string
}

// NewCheckout builds the orchestrator. publisher may be nil, in which case no
// event is emitted after commit.
func NewCheckout(db *sql.DB, publisher EventPublisher, logger *slog.Logger) (*Checkout, error) {
	attempts, err := checkoutMeter.Int64Counter("checkout.attempts",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout counter: %w", err)
	}

	return &Checkout{
		db:           db,
		publisher:    publisher,
		logger:       logger,
		attempts:     attempts,
		now:          func() time.Time { return time.Now().UTC() },
		newReference: func() string { return uuid.NewString() },
	}, nil
}

type checkoutRecord struct {
	orderID       int64
	cartID        int64
	invoiceNumber string
	items         []domain.OrderItem
	total         string
}

func (c *Checkout) Checkout(ctx context.Context, userID int64, req CheckoutRequest) (CheckoutResult, error) {
	ctx, span := checkoutTracer.Start(ctx, "checkout",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	result, err := c.checkout(ctx, userID, req)
	if err != nil {
		outcome := "failed"
		if apierr.Is(err, apierr.KindInvalidArgument) || apierr.Is(err, apierr.KindNotFound) {
			outcome = "rejected"
		}
		c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return CheckoutResult{}, err
	}

	c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
	span.SetAttributes(attribute.Int64("order.id", result.OrderID))
	return result, nil
}

func (c *Checkout) checkout(ctx context.Context, userID int64, req CheckoutRequest) (CheckoutResult, error) {
	if req.ShippingAddressID <= 0 {
		return CheckoutResult{}, ErrShippingAddressRequired
	}
	if req.PaymentMethodID <= 0 {
		return CheckoutResult{}, ErrPaymentMethodRequired
	}

	now := c.now()
	var rec checkoutRecord

	err := store.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		cartID, items, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := checkReferences(ctx, tx, userID, req); err != nil {
			return err
		}
		rec.cartID = cartID
		rec.items = items
		total := domain.Total(items)
		rec.total = total.StringFixed(2)

		err = tx.QueryRowContext(ctx, `
			INSERT INTO orders (user_id, cart_id, total, status, coupon_id, shipping_address_id, payment_method_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			RETURNING id
		`, userID, cartID, total, domain.OrderStatusPending, req.CouponID, req.ShippingAddressID, req.PaymentMethodID, now).Scan(&rec.orderID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, book_id, quantity, unit_price)
				VALUES ($1, $2, $3, $4)
			`, rec.orderID, item.BookID, item.Quantity, item.UnitPrice)
			if err != nil {
				return fmt.Errorf("insert order item for book %d: %w", item.BookID, err)
			}
		}

		if err := appendStatus(ctx, tx, rec.orderID, domain.OrderStatusPending, now); err != nil {
			return err
		}

		rec.invoiceNumber = invoiceNumber(now, c.newReference())
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoices (order_id, number, issued_at, total)
			VALUES ($1, $2, $3, $4)
		`, rec.orderID, rec.invoiceNumber, now, total)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (order_id, amount, payment_method_id, status, gateway_reference, paid_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6, $6)
		`, rec.orderID, total, req.PaymentMethodID, domain.PaymentStatusCompleted, c.newReference(), now)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $2, updated_at = $3
			WHERE id = $1
		`, rec.orderID, domain.OrderStatusCompleted, now)
		if err != nil {
			return fmt.Errorf("complete order: %w", err)
		}

		if err := appendStatus(ctx, tx, rec.orderID, domain.OrderStatusCompleted, now); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE carts SET status = $2, updated_at = $3
			WHERE id = $1
		`, cartID, domain.CartStatusCompleted, now)
		if err != nil {
			return fmt.Errorf("complete cart: %w", err)
		}

		return nil
	})
	if err != nil {
		if apierr.KindOf(err) != apierr.KindUnknown {
			return CheckoutResult{}, err
		}
		return CheckoutResult{}, apierr.TransactionFailed(err)
	}

	c.logger.Info("order completed", "order_id", rec.orderID, "user_id", userID, "cart_id", rec.cartID, "invoice", rec.invoiceNumber, "total", rec.total)
	c.publish(ctx, userID, now, rec)

	return CheckoutResult{
		OrderID:    rec.orderID,
		InvoiceURL: InvoiceURL(rec.orderID),
	}, nil
}

// publish runs after commit. The order is already durable, so a broker
// failure is only logged.
func (c *Checkout) publish(ctx context.Context, userID int64, now time.Time, rec checkoutRecord) {
	if c.publisher == nil {
		return
	}

	event := domain.OrderCompletedEvent{
		OrderID:       rec.orderID,
		UserID:        userID,
		InvoiceNumber: rec.invoiceNumber,
		Total:         domain.Total(rec.items),
		ItemCount:     len(rec.items),
		Timestamp:     now,
	}
	if err := c.publisher.PublishOrderCompleted(ctx, event); err != nil {
		c.logger.Error("failed to publish order completed event", "error", err, "order_id", rec.orderID)
	}
}

// lockCart locks the user's open cart row for the rest of the transaction so
// concurrent checkouts of the same cart serialize, then reads its items.
func lockCart(ctx context.Context, tx *sql.Tx, userID int64) (int64, []domain.OrderItem, error) {
	var cartID int64
	err := tx.QueryRowContext(ctx, `
		SELECT id
		FROM carts
		WHERE user_id = $1 AND status = $2
		FOR UPDATE
	`, userID, domain.CartStatusOpen).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrCartEmpty
		}
		return 0, nil, fmt.Errorf("lock cart: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT book_id, quantity, unit_price
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id
	`, cartID)
	if err != nil {
		return 0, nil, fmt.Errorf("read cart items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.BookID, &item.Quantity, &item.UnitPrice); err != nil {
			return 0, nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("read cart items: %w", err)
	}

	if len(items) == 0 {
		return 0, nil, ErrCartEmpty
	}

	return cartID, items, nil
}

// checkReferences makes sure the shipping address belongs to the user and the
// payment method and coupon exist.
func checkReferences(ctx context.Context, tx *sql.Tx, userID int64, req CheckoutRequest) error {
	ok, err := exists(ctx, tx, `
		SELECT 1
		FROM addresses
		WHERE id = $1 AND user_id = $2
	`, req.ShippingAddressID, userID)
	if err != nil {
		return fmt.Errorf("check shipping address: %w", err)
	}
	if !ok {
		return ErrShippingAddressNotFound
	}

	ok, err = exists(ctx, tx, `
		SELECT 1
		FROM payment_methods
		WHERE id = $1
	`, req.PaymentMethodID)
	if err != nil {
		return fmt.Errorf("check payment method: %w", err)
	}
	if !ok {
		return ErrPaymentMethodNotFound
	}

	if req.CouponID == nil {
		return nil
	}
	ok, err = exists(ctx, tx, `
		SELECT 1
		FROM coupons
		WHERE id = $1
	`, *req.CouponID)
	if err != nil {
		return fmt.Errorf("check coupon: %w", err)
	}
	if !ok {
		return ErrCouponNotFound
	}
	return nil
}

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func appendStatus(ctx context.Context, tx *sql.Tx, orderID int64, status domain.OrderStatus, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_events (order_id, status, changed_at)
		VALUES ($1, $2, $3)
	`, orderID, status, at)
	if err != nil {
		return fmt.Errorf("append %s status event: %w", status, err)
	}
	return nil
}

// invoiceNumber is F-<yyyymmddhhmmss>-<8 hex>. The unique index on
// invoices.number rejects the unlikely collision.
func invoiceNumber(at time.Time, reference string) string {
	suffix := strings.ReplaceAll(reference, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return "F-" + at.UTC().Format("20060102150405") + "-" + suffix
}

func InvoiceURL(orderID int64) string {
	return fmt.Sprintf("/orders/%d/invoice", orderID)
}
