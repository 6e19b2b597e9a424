package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
)

var ErrBookNotFound = apierr.NotFound("book not found")

type BookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	book := &domain.Book{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, image_url, price, average_rating, total_reviews, total_favorites, total_shares, updated_at
		FROM books
		WHERE id = $1
	`, id).Scan(&book.ID, &book.Title, &book.ImageURL, &book.Price,
		&book.Stats.AverageRating, &book.Stats.TotalReviews, &book.Stats.TotalFavorites, &book.Stats.TotalShares,
		&book.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	return book, nil
}

// UpdateStats overwrites the whole stats tuple of a book. No other column is
// touched.
func (r *BookRepository) UpdateStats(ctx context.Context, bookID int64, stats domain.BookStats) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE books
		SET average_rating = $2, total_reviews = $3, total_favorites = $4, total_shares = $5, updated_at = NOW()
		WHERE id = $1
	`, bookID, stats.AverageRating, stats.TotalReviews, stats.TotalFavorites, stats.TotalShares)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrBookNotFound
	}

	return nil
}

func (r *BookRepository) UsernamesByID(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username
		FROM users
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return names, nil
}
