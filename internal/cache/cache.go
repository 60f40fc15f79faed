package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix     = "link:"
	localTTL      = 5 * time.Minute
	cleanupPeriod = time.Minute
)

// Cache — двухуровневый кэш пути резолва: локальная карта поверх Redis.
// Значение — пара (link id, target URL). Любая мутация ссылки обязана
// звать Invalidate, иначе редирект будет отдавать устаревший target.
type Cache struct {
	rdb      *redis.Client
	localMu  sync.RWMutex
	localMap map[string]cacheEntry
	quit     chan struct{}
	once     sync.Once
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Entry — закэшированный результат резолва. ExpiresAt — срок жизни самой
// ссылки в unix-наносекундах (0 — бессрочная): TTL записи грубее срока
// ссылки, поэтому читающая сторона перепроверяет его сама.
type Entry struct {
	LinkID    string
	TargetURL string
	ExpiresAt int64
}

// Expired — истекла ли сама ссылка (не запись кэша).
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixNano() >= e.ExpiresAt
}

func New(rdb *redis.Client) *Cache {
	c := &Cache{
		rdb:      rdb,
		localMap: make(map[string]cacheEntry),
		quit:     make(chan struct{}),
	}

	go c.cleanup()
	return c
}

func (c *Cache) Get(ctx context.Context, code string) (Entry, bool, error) {
	key := keyPrefix + code

	c.localMu.RLock()
	if entry, ok := c.localMap[key]; ok && time.Now().Before(entry.expiresAt) {
		c.localMu.RUnlock()
		return decode(entry.value), true, nil
	}
	c.localMu.RUnlock()

	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	c.localMu.Lock()
	c.localMap[key] = cacheEntry{
		value:     val,
		expiresAt: time.Now().Add(localTTL),
	}
	c.localMu.Unlock()

	return decode(val), true, nil
}

func (c *Cache) Set(ctx context.Context, code string, entry Entry, ttl time.Duration) error {
	key := keyPrefix + code
	val := encode(entry)

	if err := c.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return err
	}

	local := ttl
	if local > localTTL {
		local = localTTL
	}

	c.localMu.Lock()
	c.localMap[key] = cacheEntry{
		value:     val,
		expiresAt: time.Now().Add(local),
	}
	c.localMu.Unlock()

	return nil
}

func (c *Cache) Invalidate(ctx context.Context, code string) error {
	key := keyPrefix + code

	c.localMu.Lock()
	delete(c.localMap, key)
	c.localMu.Unlock()

	return c.rdb.Del(ctx, key).Err()
}

func (c *Cache) Close() {
	c.once.Do(func() { close(c.quit) })
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			c.localMu.Lock()
			now := time.Now()
			for key, entry := range c.localMap {
				if now.After(entry.expiresAt) {
					delete(c.localMap, key)
				}
			}
			c.localMu.Unlock()
		}
	}
}

// Формат значения — "id|expires|url". URL идёт последним: даже если он
// содержит '|', два Cut по первым разделителям корректны.
func encode(e Entry) string {
	return e.LinkID + "|" + strconv.FormatInt(e.ExpiresAt, 10) + "|" + e.TargetURL
}

func decode(val string) Entry {
	id, rest, _ := strings.Cut(val, "|")
	exp, url, _ := strings.Cut(rest, "|")
	expiresAt, _ := strconv.ParseInt(exp, 10, 64)
	return Entry{LinkID: id, TargetURL: url, ExpiresAt: expiresAt}
}
