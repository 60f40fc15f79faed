package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"linkshort/internal/domain"
	"linkshort/internal/middleware"
	"linkshort/internal/resolver"
)

type LinksService interface {
	Create(ctx context.Context, ownerID, targetURL, customCode string, ttlDays int) (*domain.Link, error)
	Update(ctx context.Context, ownerID, linkID, targetURL string) (*domain.Link, error)
	Rotate(ctx context.Context, ownerID, linkID string) (*domain.Link, error)
	Delete(ctx context.Context, ownerID, linkID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error)
}

type AnalyticsService interface {
	Aggregate(ctx context.Context, ownerID, linkID string, window time.Duration) (*domain.ClickStats, error)
}

type Redirector interface {
	Redirect(ctx context.Context, code string, meta resolver.ClickMeta) (string, error)
}

type Handler struct {
	links     LinksService
	analytics AnalyticsService
	resolver  Redirector
	baseURL   string
}

func New(links LinksService, analytics AnalyticsService, res Redirector, baseURL string) *Handler {
	return &Handler{
		links:     links,
		analytics: analytics,
		resolver:  res,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

type createRequest struct {
	URL        string `json:"url" binding:"required"`
	CustomCode string `json:"custom_code"`
	TTLDays    int    `json:"ttl_days"`
}

type updateRequest struct {
	URL string `json:"url" binding:"required"`
}

type linkResponse struct {
	ID        string     `json:"id"`
	ShortCode string     `json:"short_code"`
	ShortURL  string     `json:"short_url"`
	TargetURL string     `json:"target_url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (h *Handler) CreateLink(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.links.Create(c.Request.Context(), middleware.OwnerID(c), req.URL, req.CustomCode, req.TTLDays)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.linkResponse(link))
}

func (h *Handler) ListLinks(c *gin.Context) {
	links, err := h.links.ListByOwner(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]linkResponse, 0, len(links))
	for i := range links {
		out = append(out, h.linkResponse(&links[i]))
	}
	c.JSON(http.StatusOK, gin.H{"links": out})
}

func (h *Handler) UpdateLink(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.links.Update(c.Request.Context(), middleware.OwnerID(c), c.Param("id"), req.URL)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, h.linkResponse(link))
}

func (h *Handler) RotateLink(c *gin.Context) {
	link, err := h.links.Rotate(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, h.linkResponse(link))
}

func (h *Handler) DeleteLink(c *gin.Context) {
	if err := h.links.Delete(c.Request.Context(), middleware.OwnerID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) GetStats(c *gin.Context) {
	window := 24 * time.Hour
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad window"})
			return
		}
		window = parsed
	}

	stats, err := h.analytics.Aggregate(c.Request.Context(), middleware.OwnerID(c), c.Param("id"), window)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := gin.H{
		"link_id":         c.Param("id"),
		"total_clicks":    stats.TotalClicks,
		"unique_visitors": stats.UniqueVisitors,
		"window_clicks":   stats.WindowClicks,
		"daily":           dailyResponse(stats.Daily),
	}
	if stats.LastClickedAt != nil {
		resp["last_clicked_at"] = stats.LastClickedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// Redirect — публичный маршрут. Все отказы, кроме недоступного
// хранилища, на выходе неразличимы.
func (h *Handler) Redirect(c *gin.Context) {
	target, err := h.resolver.Redirect(c.Request.Context(), c.Param("shortCode"), resolver.ClickMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
		Country:   c.GetHeader("CF-IPCountry"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.Redirect(http.StatusMovedPermanently, target)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) linkResponse(link *domain.Link) linkResponse {
	return linkResponse{
		ID:        link.ID,
		ShortCode: link.ShortCode,
		ShortURL:  h.baseURL + "/" + link.ShortCode,
		TargetURL: link.TargetURL,
		ExpiresAt: link.ExpiresAt,
		CreatedAt: link.CreatedAt,
		UpdatedAt: link.UpdatedAt,
	}
}

type dailyEntry struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}

func dailyResponse(daily []domain.DailyClicks) []dailyEntry {
	out := make([]dailyEntry, 0, len(daily))
	for _, d := range daily {
		out = append(out, dailyEntry{Date: d.Date, Clicks: d.Clicks})
	}
	return out
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrInvalidCode),
		errors.Is(err, domain.ErrReservedCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateCode):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, domain.ErrCodeSpaceExhausted),
		errors.Is(err, domain.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
