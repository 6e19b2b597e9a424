package stats

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/bookstore-api/internal/domain"
)

// memEvents stores raw social events and aggregates them on demand.
type memEvents struct {
	mu        sync.Mutex
	ratings   map[int64][]int
	favorites map[int64]int64
	shares    map[int64]int64
}

func newMemEvents() *memEvents {
	return &memEvents{
		ratings:   map[int64][]int{},
		favorites: map[int64]int64{},
		shares:    map[int64]int64{},
	}
}

func (m *memEvents) ReviewSummary(_ context.Context, bookID int64) (float64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ratings := m.ratings[bookID]
	if len(ratings) == 0 {
		return 0, 0, nil
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings)), int64(len(ratings)), nil
}

func (m *memEvents) CountFavorites(_ context.Context, bookID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.favorites[bookID], nil
}

func (m *memEvents) CountShares(_ context.Context, bookID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shares[bookID], nil
}

type memBooks struct {
	stats  map[int64]domain.BookStats
	writes int
}

func (b *memBooks) UpdateStats(_ context.Context, bookID int64, stats domain.BookStats) error {
	b.writes++
	b.stats[bookID] = stats
	return nil
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) UpdateStats(ctx context.Context, bookID int64, stats domain.BookStats) error {
	args := m.Called(ctx, bookID, stats)
	return args.Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) ReviewSummary(ctx context.Context, bookID int64) (float64, int64, error) {
	args := m.Called(ctx, bookID)
	return args.Get(0).(float64), args.Get(1).(int64), args.Error(2)
}

func (m *mockEvents) CountFavorites(ctx context.Context, bookID int64) (int64, error) {
	args := m.Called(ctx, bookID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockEvents) CountShares(ctx context.Context, bookID int64) (int64, error) {
	args := m.Called(ctx, bookID)
	return args.Get(0).(int64), args.Error(1)
}

func newTestSynchronizer(t *testing.T, events EventSource, books StatsWriter, out io.Writer) *Synchronizer {
	t.Helper()
	s, err := NewSynchronizer(events, books, slog.New(slog.NewJSONHandler(out, nil)))
	require.NoError(t, err)
	return s
}

func TestSyncBookStats_AverageAndCount(t *testing.T) {
	events := newMemEvents()
	books := &memBooks{stats: map[int64]domain.BookStats{}}
	s := newTestSynchronizer(t, events, books, io.Discard)
	ctx := context.Background()

	events.ratings[7] = []int{4, 5, 3}
	stats, err := s.SyncBookStats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "4.00", stats.AverageRating.StringFixed(2))
	assert.Equal(t, int64(3), stats.TotalReviews)

	events.ratings[7] = append(events.ratings[7], 2)
	stats, err = s.SyncBookStats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "3.50", stats.AverageRating.StringFixed(2))
	assert.Equal(t, int64(4), stats.TotalReviews)
	assert.Equal(t, stats, books.stats[7])
}

func TestSyncBookStats_RoundsToTwoDecimals(t *testing.T) {
	events := newMemEvents()
	books := &memBooks{stats: map[int64]domain.BookStats{}}
	s := newTestSynchronizer(t, events, books, io.Discard)

	events.ratings[1] = []int{5, 4, 4}
	stats, err := s.SyncBookStats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "4.33", stats.AverageRating.StringFixed(2))
}

func TestSyncBookStats_NoEvents(t *testing.T) {
	books := &memBooks{stats: map[int64]domain.BookStats{}}
	s := newTestSynchronizer(t, newMemEvents(), books, io.Discard)

	stats, err := s.SyncBookStats(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, stats.AverageRating.IsZero())
	assert.Zero(t, stats.TotalReviews)
	assert.Zero(t, stats.TotalFavorites)
	assert.Zero(t, stats.TotalShares)
	assert.Equal(t, 1, books.writes)
}

func TestSyncBookStats_Idempotent(t *testing.T) {
	events := newMemEvents()
	events.ratings[2] = []int{5, 1}
	events.favorites[2] = 4
	events.shares[2] = 9
	books := &memBooks{stats: map[int64]domain.BookStats{}}
	s := newTestSynchronizer(t, events, books, io.Discard)

	first, err := s.SyncBookStats(context.Background(), 2)
	require.NoError(t, err)
	second, err := s.SyncBookStats(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.BookStats{
		AverageRating:  first.AverageRating,
		TotalReviews:   2,
		TotalFavorites: 4,
		TotalShares:    9,
	}, books.stats[2])
	assert.Equal(t, "3.00", books.stats[2].AverageRating.StringFixed(2))
}

func TestSyncBookStats_WritesWholeTuple(t *testing.T) {
	events := &mockEvents{}
	events.On("ReviewSummary", mock.Anything, int64(5)).Return(4.5, int64(2), nil)
	events.On("CountFavorites", mock.Anything, int64(5)).Return(int64(3), nil)
	events.On("CountShares", mock.Anything, int64(5)).Return(int64(1), nil)

	writer := &mockWriter{}
	writer.On("UpdateStats", mock.Anything, int64(5), mock.MatchedBy(func(s domain.BookStats) bool {
		return s.AverageRating.StringFixed(2) == "4.50" &&
			s.TotalReviews == 2 && s.TotalFavorites == 3 && s.TotalShares == 1
	})).Return(nil).Once()

	s := newTestSynchronizer(t, events, writer, io.Discard)
	_, err := s.SyncBookStats(context.Background(), 5)
	require.NoError(t, err)

	events.AssertExpectations(t)
	writer.AssertExpectations(t)
}

func TestSyncBookStats_SourceFailureSkipsWrite(t *testing.T) {
	events := &mockEvents{}
	events.On("ReviewSummary", mock.Anything, int64(5)).Return(0.0, int64(0), errors.New("mongo down"))
	events.On("CountFavorites", mock.Anything, int64(5)).Return(int64(0), nil).Maybe()
	events.On("CountShares", mock.Anything, int64(5)).Return(int64(0), nil).Maybe()

	writer := &mockWriter{}
	s := newTestSynchronizer(t, events, writer, io.Discard)

	_, err := s.SyncBookStats(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize reviews")
	writer.AssertNotCalled(t, "UpdateStats", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresh_LogsWriteFailure(t *testing.T) {
	events := newMemEvents()
	events.ratings[7] = []int{5}

	writer := &mockWriter{}
	writer.On("UpdateStats", mock.Anything, int64(7), mock.Anything).Return(errors.New("connection refused"))

	var logs bytes.Buffer
	s := newTestSynchronizer(t, events, writer, &logs)

	assert.NotPanics(t, func() { s.Refresh(context.Background(), 7) })
	assert.Contains(t, logs.String(), "failed to sync book stats")
	assert.Contains(t, logs.String(), "connection refused")
	assert.Contains(t, logs.String(), `"book_id":7`)
	writer.AssertExpectations(t)
}
