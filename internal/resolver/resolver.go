package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"linkshort/internal/cache"
	"linkshort/internal/domain"
	"linkshort/internal/metrics"
	"linkshort/pkg/shortcode"
)

type Store interface {
	Resolve(ctx context.Context, code string) (*domain.Link, error)
}

type Cache interface {
	Get(ctx context.Context, code string) (cache.Entry, bool, error)
	Set(ctx context.Context, code string, entry cache.Entry, ttl time.Duration) error
}

// Sink принимает событие клика без блокировки.
type Sink interface {
	Submit(event domain.ClickEvent) bool
}

// ClickMeta — то, что редирект знает о посетителе. Сырой IP живёт только
// до вычисления visitor hash и никуда не пишется.
type ClickMeta struct {
	IP        string
	UserAgent string
	Referrer  string
	Country   string
}

const maxReferrerLen = 500

// Resolver отвечает на горячий путь: код → target URL. Запись клика
// полностью отцеплена от ответа — переполненная очередь стоит события,
// но не миллисекунд редиректа.
type Resolver struct {
	store    Store
	cache    Cache
	sink     Sink
	gen      *shortcode.Generator
	cacheTTL time.Duration
	log      zerolog.Logger
}

func New(store Store, c Cache, sink Sink, gen *shortcode.Generator, cacheTTL time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		store:    store,
		cache:    c,
		sink:     sink,
		gen:      gen,
		cacheTTL: cacheTTL,
		log:      log.With().Str("component", "resolver").Logger(),
	}
}

// Redirect возвращает target URL для кода. Любой промах — ErrNotFound:
// посетитель не должен отличать "не было" от "удалили" или "истекло".
func (r *Resolver) Redirect(ctx context.Context, code string, meta ClickMeta) (string, error) {
	if !r.gen.Valid(code) {
		metrics.Redirects.WithLabelValues("not_found").Inc()
		return "", domain.ErrNotFound
	}

	if entry, found, err := r.cache.Get(ctx, code); err == nil && found {
		// TTL записи не обязан совпадать со сроком ссылки — истечение
		// перепроверяется на каждом хите
		if entry.Expired(time.Now()) {
			metrics.Redirects.WithLabelValues("not_found").Inc()
			return "", domain.ErrNotFound
		}
		metrics.CacheHits.Inc()
		metrics.Redirects.WithLabelValues("hit").Inc()
		r.record(entry.LinkID, meta)
		return entry.TargetURL, nil
	} else if err != nil {
		// Кэш лёг — идём в хранилище, редирект важнее
		r.log.Warn().Err(err).Msg("cache lookup failed")
	} else {
		metrics.CacheMisses.Inc()
	}

	link, err := r.store.Resolve(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.Redirects.WithLabelValues("not_found").Inc()
			return "", domain.ErrNotFound
		}
		metrics.Redirects.WithLabelValues("error").Inc()
		return "", domain.ErrUnavailable
	}

	if !link.Resolvable(time.Now()) {
		metrics.Redirects.WithLabelValues("not_found").Inc()
		return "", domain.ErrNotFound
	}

	entry := cache.Entry{LinkID: link.ID, TargetURL: link.TargetURL}
	ttl := r.cacheTTL
	if link.ExpiresAt != nil {
		entry.ExpiresAt = link.ExpiresAt.UnixNano()
		if remaining := time.Until(*link.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	if err := r.cache.Set(ctx, code, entry, ttl); err != nil {
		r.log.Warn().Err(err).Msg("cache fill failed")
	}

	metrics.Redirects.WithLabelValues("hit").Inc()
	r.record(link.ID, meta)
	return link.TargetURL, nil
}

func (r *Resolver) record(linkID string, meta ClickMeta) {
	r.sink.Submit(domain.ClickEvent{
		LinkID:      linkID,
		Referrer:    truncate(meta.Referrer, maxReferrerLen),
		UAClass:     classifyUA(meta.UserAgent),
		Country:     meta.Country,
		VisitorHash: visitorHash(meta.IP, meta.UserAgent),
		ClickedAt:   time.Now(),
	})
}

// visitorHash — усечённый SHA-256 от IP и User-Agent: достаточно для
// подсчёта уникальных посетителей, бесполезно для обратного поиска IP.
func visitorHash(ip, ua string) string {
	sum := sha256.Sum256([]byte(ip + "|" + ua))
	return hex.EncodeToString(sum[:8])
}

func classifyUA(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "bot"), strings.Contains(ua, "spider"), strings.Contains(ua, "crawl"):
		return "bot"
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		return "mobile"
	default:
		return "desktop"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
