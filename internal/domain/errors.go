package domain

import "errors"

var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrInvalidCode        = errors.New("invalid short code")
	ErrReservedCode       = errors.New("short code is reserved")
	ErrDuplicateCode      = errors.New("short code already exists")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrCodeSpaceExhausted = errors.New("failed to allocate a free short code")
	ErrUnavailable        = errors.New("storage unavailable")
)

// DomainError — ошибка бизнес-логики, а не инфраструктуры. Такие ошибки
// не ретраятся и не открывают circuit breaker.
func DomainError(err error) bool {
	for _, d := range []error{
		ErrInvalidURL, ErrInvalidCode, ErrReservedCode,
		ErrDuplicateCode, ErrNotFound, ErrForbidden, ErrCodeSpaceExhausted,
	} {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}
