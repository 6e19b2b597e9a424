package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookStats is derived from social events and is only ever written as a whole.
type BookStats struct {
	AverageRating  decimal.Decimal `json:"average_rating"`
	TotalReviews   int64           `json:"total_reviews"`
	TotalFavorites int64           `json:"total_favorites"`
	TotalShares    int64           `json:"total_shares"`
}

type Book struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	ImageURL  string          `json:"image_url"`
	Price     decimal.Decimal `json:"price"`
	Stats     BookStats       `json:"stats"`
	UpdatedAt time.Time       `json:"updated_at"`
}
