package domain

import "time"

// ClickEvent — один переход по короткой ссылке. Привязан к link_id,
// а не к short_code: история переживает ротацию кода и удаление ссылки.
// Сырой IP не хранится, только усечённый хэш для подсчёта уникальных
// посетителей.
type ClickEvent struct {
	LinkID      string
	Referrer    string
	UAClass     string
	Country     string
	VisitorHash string
	ClickedAt   time.Time
}

type ClickStats struct {
	TotalClicks    int64
	UniqueVisitors int64
	WindowClicks   int64
	LastClickedAt  *time.Time
	Daily          []DailyClicks
}

type DailyClicks struct {
	Date   string
	Clicks int64
}
