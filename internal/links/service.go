package links

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"linkshort/internal/domain"
	"linkshort/internal/metrics"
	"linkshort/pkg/circuitbreaker"
	"linkshort/pkg/shortcode"
)

// Repo — контракт хранилища ссылок. Уникальность short_code — зона
// ответственности хранилища: Create и Rotate атомарны относительно
// конкурентных вставок того же кода.
type Repo interface {
	Create(ctx context.Context, link *domain.Link) error
	GetByID(ctx context.Context, id string) (*domain.Link, error)
	UpdateTarget(ctx context.Context, ownerID, linkID, targetURL string) (*domain.Link, error)
	Rotate(ctx context.Context, ownerID, linkID, newCode string) (*domain.Link, error)
	SoftDelete(ctx context.Context, ownerID, linkID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error)
}

// CodeCache — инвалидация кэша резолва при мутациях.
type CodeCache interface {
	Invalidate(ctx context.Context, code string) error
}

const (
	storeAttempts = 3
	storeBackoff  = 50 * time.Millisecond
)

type Service struct {
	repo    Repo
	gen     *shortcode.Generator
	cache   CodeCache
	breaker *circuitbreaker.CircuitBreaker
	log     zerolog.Logger

	// Бюджет попыток на коллизию при автогенерации. Исчерпание бюджета
	// на исходной длине даёт одну явную эскалацию на длину+1.
	codeRetries int
}

func NewService(repo Repo, gen *shortcode.Generator, cache CodeCache, codeRetries int, log zerolog.Logger) *Service {
	breaker := circuitbreaker.New(5, 10*time.Second).
		WithIgnore(domain.DomainError).
		WithOnChange(func(from, to circuitbreaker.State) {
			metrics.BreakerTransitions.WithLabelValues(stateName(to)).Inc()
			log.Warn().
				Str("from", stateName(from)).
				Str("to", stateName(to)).
				Msg("store circuit breaker state changed")
		})

	if codeRetries <= 0 {
		codeRetries = 5
	}

	return &Service{
		repo:        repo,
		gen:         gen,
		cache:       cache,
		breaker:     breaker,
		log:         log.With().Str("component", "links").Logger(),
		codeRetries: codeRetries,
	}
}

func (s *Service) Create(ctx context.Context, ownerID, targetURL, customCode string, ttlDays int) (*domain.Link, error) {
	if err := domain.ValidateTargetURL(targetURL); err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if ttlDays > 0 {
		t := time.Now().AddDate(0, 0, ttlDays)
		expiresAt = &t
	}

	link := &domain.Link{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		TargetURL: targetURL,
		IsActive:  true,
		ExpiresAt: expiresAt,
	}

	if customCode != "" {
		if err := s.validateCustom(customCode); err != nil {
			return nil, err
		}
		link.ShortCode = customCode

		// Дубликат пользовательского кода — ошибка вызывающего, наружу как есть
		if err := s.callStore(ctx, func() error { return s.repo.Create(ctx, link) }); err != nil {
			return nil, err
		}
		return link, nil
	}

	return s.createAutoCode(ctx, link)
}

// createAutoCode тянет случайные коды, полагаясь на уникальный индекс
// хранилища как на единственный детектор коллизий. Retry-бюджет строго
// ограничен; после его исчерпания — одна эскалация длины.
func (s *Service) createAutoCode(ctx context.Context, link *domain.Link) (*domain.Link, error) {
	lengths := []int{s.gen.Length(), s.gen.Length() + 1}

	for i, length := range lengths {
		if i > 0 {
			s.log.Warn().
				Int("length", length).
				Msg("code retry budget exhausted, escalating code length")
		}

		for attempt := 0; attempt < s.codeRetries; attempt++ {
			code, err := s.gen.GenerateWithLength(length)
			if err != nil {
				return nil, err
			}
			link.ShortCode = code

			err = s.callStore(ctx, func() error { return s.repo.Create(ctx, link) })
			if errors.Is(err, domain.ErrDuplicateCode) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return link, nil
		}
	}

	return nil, domain.ErrCodeSpaceExhausted
}

func (s *Service) Get(ctx context.Context, ownerID, linkID string) (*domain.Link, error) {
	var link *domain.Link
	err := s.callStore(ctx, func() error {
		var err error
		link, err = s.repo.GetByID(ctx, linkID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !authorize(ownerID, link) {
		return nil, domain.ErrForbidden
	}
	return link, nil
}

func (s *Service) Update(ctx context.Context, ownerID, linkID, targetURL string) (*domain.Link, error) {
	if err := domain.ValidateTargetURL(targetURL); err != nil {
		return nil, err
	}

	var link *domain.Link
	err := s.callStore(ctx, func() error {
		var err error
		link, err = s.repo.UpdateTarget(ctx, ownerID, linkID, targetURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, link.ShortCode)
	return link, nil
}

// Rotate выдаёт ссылке новый автогенерированный код. Старый код сразу
// перестаёт резолвиться; история кликов остаётся на link id.
func (s *Service) Rotate(ctx context.Context, ownerID, linkID string) (*domain.Link, error) {
	old, err := s.Get(ctx, ownerID, linkID)
	if err != nil {
		return nil, err
	}

	var rotated *domain.Link
	for attempt := 0; attempt < s.codeRetries; attempt++ {
		code, err := s.gen.Generate()
		if err != nil {
			return nil, err
		}

		err = s.callStore(ctx, func() error {
			var err error
			rotated, err = s.repo.Rotate(ctx, ownerID, linkID, code)
			return err
		})
		if errors.Is(err, domain.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.invalidate(ctx, old.ShortCode)
		return rotated, nil
	}

	return nil, domain.ErrCodeSpaceExhausted
}

func (s *Service) Delete(ctx context.Context, ownerID, linkID string) error {
	link, err := s.Get(ctx, ownerID, linkID)
	if err != nil {
		return err
	}

	if err := s.callStore(ctx, func() error { return s.repo.SoftDelete(ctx, ownerID, linkID) }); err != nil {
		return err
	}

	s.invalidate(ctx, link.ShortCode)
	return nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error) {
	var links []domain.Link
	err := s.callStore(ctx, func() error {
		var err error
		links, err = s.repo.ListByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (s *Service) invalidate(ctx context.Context, code string) {
	if err := s.cache.Invalidate(ctx, code); err != nil {
		// Кэш переживёт: TTL добьёт запись, но устаревший target
		// какое-то время будет резолвиться — поэтому warn, не debug
		s.log.Warn().Err(err).Str("code", code).Msg("cache invalidation failed")
	}
}

// authorize — единственная точка проверки владения для мутаций.
func authorize(ownerID string, link *domain.Link) bool {
	return link.OwnerID == ownerID
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.StateOpen:
		return "open"
	case circuitbreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func (s *Service) validateCustom(code string) error {
	switch err := s.gen.ValidateCustom(code); {
	case err == nil:
		return nil
	case errors.Is(err, shortcode.ErrReserved):
		return domain.ErrReservedCode
	default:
		return domain.ErrInvalidCode
	}
}

// callStore прогоняет обращение к хранилищу через circuit breaker с
// ограниченным ретраем по backoff; через него идут и чтения, и мутации.
// Бизнес-ошибки не ретраятся и breaker не открывают.
func (s *Service) callStore(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < storeAttempts; attempt++ {
		err = s.breaker.Call(fn)
		if err == nil || domain.DomainError(err) {
			return err
		}
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return domain.ErrUnavailable
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(storeBackoff << attempt):
		}
	}

	s.log.Error().Err(err).Msg("store unavailable after retries")
	return domain.ErrUnavailable
}
