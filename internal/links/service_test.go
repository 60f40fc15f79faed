package links

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"linkshort/internal/domain"
	"linkshort/pkg/shortcode"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Create(ctx context.Context, link *domain.Link) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockRepo) GetByID(ctx context.Context, id string) (*domain.Link, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockRepo) UpdateTarget(ctx context.Context, ownerID, linkID, targetURL string) (*domain.Link, error) {
	args := m.Called(ctx, ownerID, linkID, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockRepo) Rotate(ctx context.Context, ownerID, linkID, newCode string) (*domain.Link, error) {
	args := m.Called(ctx, ownerID, linkID, newCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockRepo) SoftDelete(ctx context.Context, ownerID, linkID string) error {
	args := m.Called(ctx, ownerID, linkID)
	return args.Error(0)
}

func (m *MockRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Link), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Invalidate(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func newTestService(repo Repo, cache CodeCache) *Service {
	gen := shortcode.New(7, "api", "metrics", "healthz")
	return NewService(repo, gen, cache, 5, zerolog.Nop())
}

func TestCreateWithCustomCode(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(repo, new(MockCache))

	link, err := svc.Create(context.Background(), "owner-1", "https://example.com/page", "promo2", 0)
	require.NoError(t, err)
	assert.Equal(t, "promo2", link.ShortCode)
	assert.Equal(t, "owner-1", link.OwnerID)
	assert.NotEmpty(t, link.ID)
	assert.True(t, link.IsActive)
}

func TestCreateCustomCodeDuplicate(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Create", mock.Anything, mock.Anything).Return(domain.ErrDuplicateCode)

	svc := newTestService(repo, new(MockCache))

	// Дубликат пользовательского кода наружу как есть, без ретраев
	_, err := svc.Create(context.Background(), "owner-1", "https://example.com", "promo2", 0)
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
	repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(new(MockRepo), new(MockCache))
	ctx := context.Background()

	_, err := svc.Create(ctx, "owner-1", "not-a-url", "", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	_, err = svc.Create(ctx, "owner-1", "https://example.com", "ab", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCode)

	_, err = svc.Create(ctx, "owner-1", "https://example.com", "metrics", 0)
	assert.ErrorIs(t, err, domain.ErrReservedCode)
}

func TestCreateAutoRetriesOnCollision(t *testing.T) {
	repo := new(MockRepo)
	// Две коллизии, третья вставка успешна
	repo.On("Create", mock.Anything, mock.Anything).Return(domain.ErrDuplicateCode).Twice()
	repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	svc := newTestService(repo, new(MockCache))

	link, err := svc.Create(context.Background(), "owner-1", "https://example.com", "", 0)
	require.NoError(t, err, "Collisions must be retried without surfacing")
	assert.Len(t, link.ShortCode, 7)
	repo.AssertNumberOfCalls(t, "Create", 3)
}

func TestCreateAutoEscalatesLength(t *testing.T) {
	repo := new(MockRepo)
	// Весь бюджет на длине 7 сгорает, первая попытка на длине 8 проходит
	repo.On("Create", mock.Anything, mock.MatchedBy(func(l *domain.Link) bool {
		return len(l.ShortCode) == 7
	})).Return(domain.ErrDuplicateCode)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(l *domain.Link) bool {
		return len(l.ShortCode) == 8
	})).Return(nil)

	svc := newTestService(repo, new(MockCache))

	link, err := svc.Create(context.Background(), "owner-1", "https://example.com", "", 0)
	require.NoError(t, err)
	assert.Len(t, link.ShortCode, 8, "Escalation adds exactly one character")
}

func TestCreateAutoExhausted(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Create", mock.Anything, mock.Anything).Return(domain.ErrDuplicateCode)

	svc := newTestService(repo, new(MockCache))

	_, err := svc.Create(context.Background(), "owner-1", "https://example.com", "", 0)
	assert.ErrorIs(t, err, domain.ErrCodeSpaceExhausted)
	// 5 попыток на исходной длине + 5 после эскалации
	repo.AssertNumberOfCalls(t, "Create", 10)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	repo := new(MockRepo)
	updated := &domain.Link{ID: "id-1", OwnerID: "owner-1", ShortCode: "abc2345", TargetURL: "https://example.com/new"}
	repo.On("UpdateTarget", mock.Anything, "owner-1", "id-1", "https://example.com/new").Return(updated, nil)

	cache := new(MockCache)
	cache.On("Invalidate", mock.Anything, "abc2345").Return(nil)

	svc := newTestService(repo, cache)

	link, err := svc.Update(context.Background(), "owner-1", "id-1", "https://example.com/new")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", link.TargetURL)
	cache.AssertCalled(t, "Invalidate", mock.Anything, "abc2345")
}

func TestUpdateForbidden(t *testing.T) {
	repo := new(MockRepo)
	repo.On("UpdateTarget", mock.Anything, "intruder", "id-1", mock.Anything).Return(nil, domain.ErrForbidden)

	svc := newTestService(repo, new(MockCache))

	_, err := svc.Update(context.Background(), "intruder", "id-1", "https://evil.example.com")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDeleteChecksOwnership(t *testing.T) {
	repo := new(MockRepo)
	repo.On("GetByID", mock.Anything, "id-1").Return(&domain.Link{ID: "id-1", OwnerID: "owner-1", ShortCode: "abc2345"}, nil)

	svc := newTestService(repo, new(MockCache))

	err := svc.Delete(context.Background(), "intruder", "id-1")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	repo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetUnavailableOnStoreOutage(t *testing.T) {
	repo := new(MockRepo)
	repo.On("GetByID", mock.Anything, "id-1").Return(nil, errors.New("connection refused"))

	svc := newTestService(repo, new(MockCache))

	// Чтение идёт через те же ретраи/breaker, что и мутации: наружу
	// уходит ErrUnavailable, а не сырая ошибка драйвера
	_, err := svc.Get(context.Background(), "owner-1", "id-1")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	repo.AssertNumberOfCalls(t, "GetByID", 3)
}

func TestListByOwnerUnavailableOnStoreOutage(t *testing.T) {
	repo := new(MockRepo)
	repo.On("ListByOwner", mock.Anything, "owner-1").Return(nil, errors.New("connection refused"))

	svc := newTestService(repo, new(MockCache))

	_, err := svc.ListByOwner(context.Background(), "owner-1")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestRotateKeepsLinkID(t *testing.T) {
	repo := new(MockRepo)
	repo.On("GetByID", mock.Anything, "id-1").Return(&domain.Link{ID: "id-1", OwnerID: "owner-1", ShortCode: "oldcode2"}, nil)
	repo.On("Rotate", mock.Anything, "owner-1", "id-1", mock.Anything).Return(
		&domain.Link{ID: "id-1", OwnerID: "owner-1", ShortCode: "newcode2"}, nil)

	cache := new(MockCache)
	cache.On("Invalidate", mock.Anything, "oldcode2").Return(nil)

	svc := newTestService(repo, cache)

	link, err := svc.Rotate(context.Background(), "owner-1", "id-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", link.ID, "Rotation must not change the link id")
	assert.NotEqual(t, "oldcode2", link.ShortCode)
	cache.AssertCalled(t, "Invalidate", mock.Anything, "oldcode2")
}

// memRepo повторяет контракт хранилища для property-теста гонки:
// атомарная проверка уникальности под мьютексом как у уникального индекса.
type memRepo struct {
	mu    sync.Mutex
	codes map[string]string // short_code -> link id
}

func newMemRepo() *memRepo {
	return &memRepo{codes: make(map[string]string)}
}

func (r *memRepo) Create(_ context.Context, link *domain.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.codes[link.ShortCode]; taken {
		return domain.ErrDuplicateCode
	}
	r.codes[link.ShortCode] = link.ID
	return nil
}

func (r *memRepo) GetByID(context.Context, string) (*domain.Link, error) { return nil, domain.ErrNotFound }
func (r *memRepo) UpdateTarget(context.Context, string, string, string) (*domain.Link, error) {
	return nil, domain.ErrNotFound
}
func (r *memRepo) Rotate(context.Context, string, string, string) (*domain.Link, error) {
	return nil, domain.ErrNotFound
}
func (r *memRepo) SoftDelete(context.Context, string, string) error { return domain.ErrNotFound }
func (r *memRepo) ListByOwner(context.Context, string) ([]domain.Link, error) { return nil, nil }

func TestConcurrentCreateSameCustomCode(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, new(MockCache))

	const n = 50
	results := make(chan error, n)
	var wg sync.WaitGroup

	// N конкурентных create с одним и тем же пользовательским кодом
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), "owner-1", "https://example.com", "promo2", 0)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var successes, duplicates int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrDuplicateCode):
			duplicates++
		}
	}

	assert.Equal(t, 1, successes, "Exactly one concurrent create must win")
	assert.Equal(t, n-1, duplicates, "All others must see DuplicateCode")
}

func TestConcurrentAutoGenerateNoCollisions(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, new(MockCache))

	const n = 200
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), "owner-1", "https://example.com", "", 0)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.codes, n, "Every create must end up with a distinct code")
}
