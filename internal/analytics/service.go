package analytics

import (
	"context"
	"time"

	"linkshort/internal/domain"
)

// ClicksReader — запросная сторона аналитики: роллап плюс сырые события.
type ClicksReader interface {
	Stats(ctx context.Context, linkID string) (*domain.ClickStats, error)
	CountWindow(ctx context.Context, linkID string, from, to time.Time) (int64, error)
	DailySeries(ctx context.Context, linkID string, from, to time.Time) ([]domain.DailyClicks, error)
}

// LinkGetter отдаёт ссылку только её владельцу; проверка владения
// происходит там, а не здесь.
type LinkGetter interface {
	Get(ctx context.Context, ownerID, linkID string) (*domain.Link, error)
}

type Service struct {
	repo  ClicksReader
	links LinkGetter
}

func NewService(repo ClicksReader, links LinkGetter) *Service {
	return &Service{repo: repo, links: links}
}

// Aggregate — статистика кликов за окно [now-window, now). Тоталы идут
// из роллапа и могут отставать от сырых событий не больше чем на один
// интервал сброса батча; счёт по окну и дневные ряды — по сырым кликам.
func (s *Service) Aggregate(ctx context.Context, ownerID, linkID string, window time.Duration) (*domain.ClickStats, error) {
	if _, err := s.links.Get(ctx, ownerID, linkID); err != nil {
		return nil, err
	}

	stats, err := s.repo.Stats(ctx, linkID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	from := now.Add(-window)

	stats.WindowClicks, err = s.repo.CountWindow(ctx, linkID, from, now)
	if err != nil {
		return nil, err
	}

	stats.Daily, err = s.repo.DailySeries(ctx, linkID, from, now)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
