package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"linkshort/internal/domain"
)

type ClicksRepo struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

func NewClicks(db *sql.DB) *ClicksRepo {
	return &ClicksRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *ClicksRepo) BatchInsert(ctx context.Context, events []domain.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := r.qb.Insert("clicks").
		Columns("link_id", "clicked_at", "referrer", "ua_class", "country", "visitor_hash")

	for _, ev := range events {
		query = query.Values(
			ev.LinkID,
			ev.ClickedAt,
			ev.Referrer,
			ev.UAClass,
			ev.Country,
			ev.VisitorHash,
		)
	}

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("postgres: batch insert clicks: %w", err)
	}
	return nil
}

// UpsertStats двигает роллап link_stats на размер батча. Уникальные
// посетители пересчитываются по сырым кликам: дешевле держать это здесь,
// чем гонять HLL ради таблицы такого размера.
func (r *ClicksRepo) UpsertStats(ctx context.Context, linkID string, clicks int64, lastClickedAt time.Time) error {
	const query = `
		INSERT INTO link_stats (link_id, total_clicks, unique_visitors, last_clicked_at, updated_at)
		VALUES ($1, $2,
			(SELECT COUNT(DISTINCT visitor_hash) FROM clicks WHERE link_id = $1),
			$3, NOW())
		ON CONFLICT (link_id)
		DO UPDATE SET
			total_clicks    = link_stats.total_clicks + EXCLUDED.total_clicks,
			unique_visitors = EXCLUDED.unique_visitors,
			last_clicked_at = GREATEST(link_stats.last_clicked_at, EXCLUDED.last_clicked_at),
			updated_at      = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, linkID, clicks, lastClickedAt); err != nil {
		return fmt.Errorf("postgres: upsert link stats: %w", err)
	}
	return nil
}

func (r *ClicksRepo) Stats(ctx context.Context, linkID string) (*domain.ClickStats, error) {
	query := r.qb.Select("total_clicks", "unique_visitors", "last_clicked_at").
		From("link_stats").
		Where(sq.Eq{"link_id": linkID})

	var stats domain.ClickStats
	err := query.RunWith(r.db).QueryRowContext(ctx).Scan(
		&stats.TotalClicks,
		&stats.UniqueVisitors,
		&stats.LastClickedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Ссылка без кликов — пустая статистика, не ошибка
			return &domain.ClickStats{}, nil
		}
		return nil, fmt.Errorf("postgres: get link stats: %w", err)
	}
	return &stats, nil
}

// CountWindow считает клики по сырым событиям в полуоткрытом окне [from, to).
func (r *ClicksRepo) CountWindow(ctx context.Context, linkID string, from, to time.Time) (int64, error) {
	query := r.qb.Select("COUNT(*)").
		From("clicks").
		Where(sq.Eq{"link_id": linkID}).
		Where(sq.GtOrEq{"clicked_at": from}).
		Where(sq.Lt{"clicked_at": to})

	var count int64
	if err := query.RunWith(r.db).QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count clicks window: %w", err)
	}
	return count, nil
}

func (r *ClicksRepo) DailySeries(ctx context.Context, linkID string, from, to time.Time) ([]domain.DailyClicks, error) {
	query := r.qb.Select("TO_CHAR(DATE_TRUNC('day', clicked_at), 'YYYY-MM-DD') AS day", "COUNT(*)").
		From("clicks").
		Where(sq.Eq{"link_id": linkID}).
		Where(sq.GtOrEq{"clicked_at": from}).
		Where(sq.Lt{"clicked_at": to}).
		GroupBy("day").
		OrderBy("day")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: daily click series: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyClicks
	for rows.Next() {
		var d domain.DailyClicks
		if err := rows.Scan(&d.Date, &d.Clicks); err != nil {
			return nil, fmt.Errorf("postgres: daily click series: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: daily click series: %w", err)
	}
	return out, nil
}

// PruneOlderThan — единственный путь удаления событий: явная политика
// ретенции, никаких неявных чисток.
func (r *ClicksRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.qb.Delete("clicks").Where(sq.Lt{"clicked_at": cutoff})

	res, err := query.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune clicks: %w", err)
	}
	return res.RowsAffected()
}
