package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"linkshort/internal/domain"
)

type MockReader struct {
	mock.Mock
}

func (m *MockReader) Stats(ctx context.Context, linkID string) (*domain.ClickStats, error) {
	args := m.Called(ctx, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClickStats), args.Error(1)
}

func (m *MockReader) CountWindow(ctx context.Context, linkID string, from, to time.Time) (int64, error) {
	args := m.Called(ctx, linkID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReader) DailySeries(ctx context.Context, linkID string, from, to time.Time) ([]domain.DailyClicks, error) {
	args := m.Called(ctx, linkID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DailyClicks), args.Error(1)
}

type MockLinks struct {
	mock.Mock
}

func (m *MockLinks) Get(ctx context.Context, ownerID, linkID string) (*domain.Link, error) {
	args := m.Called(ctx, ownerID, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func TestAggregate(t *testing.T) {
	links := new(MockLinks)
	links.On("Get", mock.Anything, "owner-1", "id-1").Return(&domain.Link{ID: "id-1", OwnerID: "owner-1"}, nil)

	last := time.Now().Add(-time.Minute)
	repo := new(MockReader)
	repo.On("Stats", mock.Anything, "id-1").Return(&domain.ClickStats{TotalClicks: 42, UniqueVisitors: 7, LastClickedAt: &last}, nil)
	repo.On("CountWindow", mock.Anything, "id-1", mock.Anything, mock.Anything).Return(int64(5), nil)
	repo.On("DailySeries", mock.Anything, "id-1", mock.Anything, mock.Anything).Return(
		[]domain.DailyClicks{{Date: "2026-08-31", Clicks: 5}}, nil)

	svc := NewService(repo, links)

	stats, err := svc.Aggregate(context.Background(), "owner-1", "id-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.TotalClicks)
	assert.Equal(t, int64(5), stats.WindowClicks)
	assert.Len(t, stats.Daily, 1)

	// Окно [now-window, now) передано в хранилище корректно
	call := repo.Calls[1]
	from := call.Arguments.Get(2).(time.Time)
	to := call.Arguments.Get(3).(time.Time)
	assert.WithinDuration(t, to.Add(-time.Hour), from, time.Second)
}

func TestAggregateForbidden(t *testing.T) {
	links := new(MockLinks)
	links.On("Get", mock.Anything, "intruder", "id-1").Return(nil, domain.ErrForbidden)

	repo := new(MockReader)
	svc := NewService(repo, links)

	_, err := svc.Aggregate(context.Background(), "intruder", "id-1", time.Hour)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	repo.AssertNotCalled(t, "Stats", mock.Anything, mock.Anything)
}

func TestAggregateNoClicksYet(t *testing.T) {
	links := new(MockLinks)
	links.On("Get", mock.Anything, "owner-1", "id-2").Return(&domain.Link{ID: "id-2", OwnerID: "owner-1"}, nil)

	repo := new(MockReader)
	repo.On("Stats", mock.Anything, "id-2").Return(&domain.ClickStats{}, nil)
	repo.On("CountWindow", mock.Anything, "id-2", mock.Anything, mock.Anything).Return(int64(0), nil)
	repo.On("DailySeries", mock.Anything, "id-2", mock.Anything, mock.Anything).Return(nil, nil)

	svc := NewService(repo, links)

	stats, err := svc.Aggregate(context.Background(), "owner-1", "id-2", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalClicks)
	assert.Empty(t, stats.Daily)
}
