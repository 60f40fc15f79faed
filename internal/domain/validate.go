package domain

import (
	"net/url"
	"strings"
)

// ValidateTargetURL принимает только абсолютные http/https URL.
func ValidateTargetURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return ErrInvalidURL
	}

	u, err := url.ParseRequestURI(s)
	if err != nil {
		return ErrInvalidURL
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}

	if u.Host == "" {
		return ErrInvalidURL
	}

	return nil
}
