// Package stats keeps the relational BookStats columns in line with the
// social events stored in the document store.
package stats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/bookstore-api/internal/domain"
)

var meter = otel.Meter("stats")

// EventSource aggregates the social events of a book.
type EventSource interface {
	ReviewSummary(ctx context.Context, bookID int64) (average float64, count int64, err error)
	CountFavorites(ctx context.Context, bookID int64) (int64, error)
	CountShares(ctx context.Context, bookID int64) (int64, error)
}

type StatsWriter interface {
	UpdateStats(ctx context.Context, bookID int64, stats domain.BookStats) error
}

type Synchronizer struct {
	events   EventSource
	books    StatsWriter
	logger   *slog.Logger
	failures metric.Int64Counter
}

func NewSynchronizer(events EventSource, books StatsWriter, logger *slog.Logger) (*Synchronizer, error) {
	failures, err := meter.Int64Counter("stats.sync.failures",
		metric.WithDescription("Book stats synchronizations that did not reach the relational store"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stats failure counter: %w", err)
	}

	return &Synchronizer{
		events:   events,
		books:    books,
		logger:   logger,
		failures: failures,
	}, nil
}

// SyncBookStats recomputes every stat of the book from its events and writes
// the tuple in one update. Running it twice without new events is a no-op.
func (s *Synchronizer) SyncBookStats(ctx context.Context, bookID int64) (domain.BookStats, error) {
	var (
		average float64
		stats   domain.BookStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		average, stats.TotalReviews, err = s.events.ReviewSummary(gctx, bookID)
		if err != nil {
			return fmt.Errorf("summarize reviews: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stats.TotalFavorites, err = s.events.CountFavorites(gctx, bookID)
		if err != nil {
			return fmt.Errorf("count favorites: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stats.TotalShares, err = s.events.CountShares(gctx, bookID)
		if err != nil {
			return fmt.Errorf("count shares: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.BookStats{}, err
	}

	stats.AverageRating = decimal.Zero
	if stats.TotalReviews > 0 {
		stats.AverageRating = decimal.NewFromFloat(average).Round(2)
	}

	if err := s.books.UpdateStats(ctx, bookID, stats); err != nil {
		return domain.BookStats{}, fmt.Errorf("write book stats: %w", err)
	}

	return stats, nil
}

// Refresh is called after a social write has been persisted. A failed sync
// leaves the stats stale until the next event for the book; it never fails
// the write that triggered it.
func (s *Synchronizer) Refresh(ctx context.Context, bookID int64) {
	stats, err := s.SyncBookStats(ctx, bookID)
	if err != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.Int64("book.id", bookID)))
		s.logger.Error("failed to sync book stats", "error", err, "book_id", bookID)
		return
	}

	s.logger.Debug("book stats synced", "book_id", bookID,
		"average_rating", stats.AverageRating.StringFixed(2),
		"total_reviews", stats.TotalReviews,
		"total_favorites", stats.TotalFavorites,
		"total_shares", stats.TotalShares,
	)
}
