package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://example.com/page", false},
		{"http", "http://example.com", false},
		{"with query", "https://example.com/a?b=c&d=e", false},
		{"trimmed spaces", "  https://example.com  ", false},
		{"empty", "", true},
		{"spaces only", "   ", true},
		{"no scheme", "example.com/page", true},
		{"ftp", "ftp://example.com/file", true},
		{"javascript", "javascript:alert(1)", true},
		{"relative", "/just/a/path", true},
		{"no host", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargetURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLinkResolvable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	active := Link{IsActive: true}
	assert.True(t, active.Resolvable(now))

	deleted := Link{IsActive: false}
	assert.False(t, deleted.Resolvable(now))

	expired := Link{IsActive: true, ExpiresAt: &past}
	assert.False(t, expired.Resolvable(now))

	notYet := Link{IsActive: true, ExpiresAt: &future}
	assert.True(t, notYet.Resolvable(now))
}

func TestDomainError(t *testing.T) {
	assert.True(t, DomainError(ErrDuplicateCode))
	assert.True(t, DomainError(ErrNotFound))
	assert.True(t, DomainError(ErrForbidden))
	assert.False(t, DomainError(ErrUnavailable))
	assert.False(t, DomainError(assert.AnError))
}
