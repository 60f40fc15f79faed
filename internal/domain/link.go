package domain

import "time"

// Link — короткая ссылка и её владелец.
type Link struct {
	ID        string
	OwnerID   string
	ShortCode string
	TargetURL string
	IsActive  bool
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Resolvable — ссылка активна и не истекла, по ней можно редиректить.
func (l *Link) Resolvable(now time.Time) bool {
	return l.IsActive && !l.Expired(now)
}
