package cart

import (
	"context"
	"database/sql"
	"errors"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
	"github.com/joao-fontenele/bookstore-api/internal/store"
)

var (
	ErrCartNotFound     = apierr.NotFound("no open cart")
	ErrItemNotFound     = apierr.NotFound("cart item not found")
	ErrBookNotFound     = apierr.NotFound("book not found")
	ErrInvalidQuantity  = apierr.InvalidArgument("quantity must be at least 1")
	ErrQuantityTooLarge = apierr.InvalidArgument("quantity must be at most 999")
)

// MaxQuantity bounds a single cart line.
const MaxQuantity = 999

const quantityLimitConstraint = "cart_items_quantity_max"

// openCartIndex is the partial unique index that allows a single open cart
// per user.
const openCartIndex = "carts_one_open_per_user"

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) FindOpenCart(ctx context.Context, userID int64) (int64, error) {
	var cartID int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id
		FROM carts
		WHERE user_id = $1 AND status = $2
	`, userID, domain.CartStatusOpen).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrCartNotFound
		}
		return 0, err
	}
	return cartID, nil
}

// GetOrCreateOpenCart returns the user's open cart, creating it if needed.
// A concurrent creation for the same user loses on the unique index; the
// loser re-reads the winner's cart instead of failing.
func (r *CartRepository) GetOrCreateOpenCart(ctx context.Context, userID int64) (int64, error) {
	cartID, err := r.FindOpenCart(ctx, userID)
	if err == nil {
		return cartID, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		return 0, err
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO carts (user_id, status, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id
	`, userID, domain.CartStatusOpen).Scan(&cartID)
	if err != nil {
		if store.IsUniqueViolation(err, openCartIndex) {
			return r.FindOpenCart(ctx, userID)
		}
		return 0, err
	}

	return cartID, nil
}

// lockMode is the row lock taken on the cart before its items change.
// Checkout holds FOR UPDATE on the same row, so item writes either finish
// before checkout reads the lines or find the cart no longer open.
type lockMode string

const (
	lockShared    lockMode = "FOR SHARE"
	lockExclusive lockMode = "FOR UPDATE"
)

func lockOpenCart(ctx context.Context, tx *sql.Tx, cartID int64, mode lockMode) error {
	var id int64
	err := tx.QueryRowContext(ctx, `
		SELECT id
		FROM carts
		WHERE id = $1 AND status = $2
		`+string(mode), cartID, domain.CartStatusOpen).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCartNotFound
	}
	return err
}

func validQuantity(quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if quantity > MaxQuantity {
		return ErrQuantityTooLarge
	}
	return nil
}

// quantityError maps a line that grew past its bounds in the database.
func quantityError(err error) error {
	if store.IsCheckViolation(err, quantityLimitConstraint) || store.IsOutOfRange(err) {
		return ErrQuantityTooLarge
	}
	return err
}

// AddItem increments the quantity of an existing line for the book, or
// inserts a new line priced at the book's current price. The reported bool
// is true when a new line was created. ErrCartNotFound means the cart was
// closed before the line could be written.
func (r *CartRepository) AddItem(ctx context.Context, cartID, bookID int64, quantity int) (domain.CartItem, bool, error) {
	if err := validQuantity(quantity); err != nil {
		return domain.CartItem{}, false, err
	}

	item := domain.CartItem{CartID: cartID, BookID: bookID}
	var created bool

	err := store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockOpenCart(ctx, tx, cartID, lockShared); err != nil {
			return err
		}

		err := tx.QueryRowContext(ctx, `
			UPDATE cart_items
			SET quantity = quantity + $3, updated_at = NOW()
			WHERE cart_id = $1 AND book_id = $2
			RETURNING id, quantity, unit_price
		`, cartID, bookID, quantity).Scan(&item.ID, &item.Quantity, &item.UnitPrice)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return quantityError(err)
		}

		err = tx.QueryRowContext(ctx, `
			SELECT price
			FROM books
			WHERE id = $1
		`, bookID).Scan(&item.UnitPrice)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBookNotFound
			}
			return err
		}

		// The conflict branch only fires when a concurrent add inserted the
		// same book first; the existing frozen price is kept.
		err = tx.QueryRowContext(ctx, `
			INSERT INTO cart_items (cart_id, book_id, quantity, unit_price, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			ON CONFLICT (cart_id, book_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
			RETURNING id, quantity, unit_price
		`, cartID, bookID, quantity, item.UnitPrice).Scan(&item.ID, &item.Quantity, &item.UnitPrice)
		if err != nil {
			return quantityError(err)
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.CartItem{}, false, err
	}

	return item, created, nil
}

func (r *CartRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) error {
	if err := validQuantity(quantity); err != nil {
		return err
	}

	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockOpenCart(ctx, tx, cartID, lockShared); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE cart_items
			SET quantity = $3, updated_at = NOW()
			WHERE cart_id = $1 AND id = $2
		`, cartID, itemID, quantity)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return ErrItemNotFound
		}
		return nil
	})
}

// RemoveItem deletes a line and cancels the cart when it was the last one.
// It reports whether the cart was cancelled.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID, itemID int64) (bool, error) {
	var cancelled bool

	err := store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockOpenCart(ctx, tx, cartID, lockExclusive); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE cart_id = $1 AND id = $2
		`, cartID, itemID)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return ErrItemNotFound
		}

		var remaining int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM cart_items
			WHERE cart_id = $1
		`, cartID).Scan(&remaining); err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE carts
			SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3
		`, cartID, domain.CartStatusCancelled, domain.CartStatusOpen); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return cancelled, nil
}

// ListItems returns the lines of the user's open cart joined with the books'
// current title, image and price. A user without an open cart has no lines.
func (r *CartRepository) ListItems(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.id, ci.cart_id, ci.book_id, ci.quantity, ci.unit_price, b.title, b.image_url, b.price
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN books b ON b.id = ci.book_id
		WHERE c.user_id = $1 AND c.status = $2
		ORDER BY ci.id
	`, userID, domain.CartStatusOpen)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.CartID, &line.BookID, &line.Quantity, &line.UnitPrice,
			&line.Title, &line.ImageURL, &line.Price); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}
