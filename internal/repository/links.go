package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"linkshort/internal/domain"
)

// SQLSTATE unique_violation.
// https://www.postgresql.org/docs/current/errcodes-appendix.html
const sqlStateUniqueViolation = "23505"

var linkCols = []string{
	"id", "owner_id", "short_code", "target_url",
	"is_active", "expires_at", "created_at", "updated_at",
}

type LinksRepo struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

func NewLinks(db *sql.DB) *LinksRepo {
	return &LinksRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create — единственная точка сериализации для коротких кодов: гонка
// конкурентных вставок с одинаковым кодом разрешается уникальным индексом
// в базе, а не проверкой перед записью.
func (r *LinksRepo) Create(ctx context.Context, link *domain.Link) error {
	query := r.qb.Insert("links").
		Columns("id", "owner_id", "short_code", "target_url", "is_active", "expires_at").
		Values(link.ID, link.OwnerID, link.ShortCode, link.TargetURL, link.IsActive, link.ExpiresAt).
		Suffix("RETURNING created_at, updated_at")

	err := query.RunWith(r.db).QueryRowContext(ctx).Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateCode
		}
		return fmt.Errorf("postgres: create link: %w", err)
	}
	return nil
}

// Resolve — самый горячий запрос системы, строго по индексу short_code.
func (r *LinksRepo) Resolve(ctx context.Context, code string) (*domain.Link, error) {
	query := r.qb.Select(linkCols...).
		From("links").
		Where(sq.Eq{"short_code": code, "is_active": true})

	link, err := scanLink(query.RunWith(r.db).QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: resolve %q: %w", code, err)
	}
	return link, nil
}

func (r *LinksRepo) GetByID(ctx context.Context, id string) (*domain.Link, error) {
	query := r.qb.Select(linkCols...).
		From("links").
		Where(sq.Eq{"id": id, "is_active": true})

	link, err := scanLink(query.RunWith(r.db).QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get link by id: %w", err)
	}
	return link, nil
}

// UpdateTarget меняет целевой URL. Владелец участвует в WHERE: чужая
// ссылка не будет затронута независимо от логики выше.
func (r *LinksRepo) UpdateTarget(ctx context.Context, ownerID, linkID, targetURL string) (*domain.Link, error) {
	query := r.qb.Update("links").
		Set("target_url", targetURL).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": linkID, "owner_id": ownerID, "is_active": true}).
		Suffix("RETURNING " + joinCols(linkCols))

	link, err := scanLink(query.RunWith(r.db).QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.mutationMiss(ctx, linkID)
		}
		return nil, fmt.Errorf("postgres: update link target: %w", err)
	}
	return link, nil
}

// Rotate выдаёт ссылке новый код одним UPDATE; старый код перестаёт
// резолвиться в тот же момент. Занятый новый код ловится тем же
// уникальным индексом, что и при создании.
func (r *LinksRepo) Rotate(ctx context.Context, ownerID, linkID, newCode string) (*domain.Link, error) {
	query := r.qb.Update("links").
		Set("short_code", newCode).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": linkID, "owner_id": ownerID, "is_active": true}).
		Suffix("RETURNING " + joinCols(linkCols))

	link, err := scanLink(query.RunWith(r.db).QueryRowContext(ctx))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateCode
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.mutationMiss(ctx, linkID)
		}
		return nil, fmt.Errorf("postgres: rotate link code: %w", err)
	}
	return link, nil
}

// SoftDelete снимает флаг is_active. Клики остаются как история.
func (r *LinksRepo) SoftDelete(ctx context.Context, ownerID, linkID string) error {
	query := r.qb.Update("links").
		Set("is_active", false).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": linkID, "owner_id": ownerID, "is_active": true})

	res, err := query.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("postgres: delete link: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: delete link: %w", err)
	}
	if n == 0 {
		return r.mutationMiss(ctx, linkID)
	}
	return nil
}

func (r *LinksRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error) {
	query := r.qb.Select(linkCols...).
		From("links").
		Where(sq.Eq{"owner_id": ownerID, "is_active": true}).
		OrderBy("created_at DESC")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: list links: %w", err)
	}
	defer rows.Close()

	var out []domain.Link
	for rows.Next() {
		var link domain.Link
		if err := rows.Scan(
			&link.ID, &link.OwnerID, &link.ShortCode, &link.TargetURL,
			&link.IsActive, &link.ExpiresAt, &link.CreatedAt, &link.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: list links: %w", err)
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list links: %w", err)
	}
	return out, nil
}

// mutationMiss различает "ссылки нет" и "ссылка чужая" после мутации,
// не задевшей ни одной строки.
func (r *LinksRepo) mutationMiss(ctx context.Context, linkID string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM links WHERE id = $1 AND is_active)", linkID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check link existence: %w", err)
	}
	if exists {
		return domain.ErrForbidden
	}
	return domain.ErrNotFound
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*domain.Link, error) {
	var link domain.Link
	err := row.Scan(
		&link.ID, &link.OwnerID, &link.ShortCode, &link.TargetURL,
		&link.IsActive, &link.ExpiresAt, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUniqueViolation
	}
	return false
}

func joinCols(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}
