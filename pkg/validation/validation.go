package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrInvalidInput indicates the input failed validation
	ErrInvalidInput = errors.New("invalid input")

	// Circuit names are dependency identifiers such as "payments-api" or "db.primary"
	circuitNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,99}$`)
)

const maxCacheKeyLength = 512

// SanitizeString removes potentially dangerous characters and trims whitespace
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters except newline and tab
	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ValidateCircuitName checks a circuit name taken from a request path
func ValidateCircuitName(name string) error {
	if name == "" {
		return invalid("circuit name cannot be empty")
	}
	if name != SanitizeString(name) {
		return invalid("circuit name contains whitespace or control characters")
	}
	if !circuitNameRegex.MatchString(name) {
		return invalid("circuit name must start with alphanumeric and contain only letters, numbers, dots, hyphens, and underscores")
	}
	return nil
}

// ValidateCacheKey checks a cache key or key prefix supplied by an operator
func ValidateCacheKey(key string) error {
	if key == "" {
		return invalid("cache key cannot be empty")
	}
	if len(key) > maxCacheKeyLength {
		return invalid("cache key must not exceed %d characters", maxCacheKeyLength)
	}
	if strings.ContainsFunc(key, unicode.IsControl) {
		return invalid("cache key contains control characters")
	}
	return nil
}

// ValidateUsername checks if a username is valid
func ValidateUsername(username string) error {
	username = SanitizeString(username)

	if username == "" {
		return invalid("username cannot be empty")
	}

	if len(username) < 3 {
		return invalid("username must be at least 3 characters")
	}

	if len(username) > 50 {
		return invalid("username must not exceed 50 characters")
	}

	return nil
}

// ValidatePassword checks if a password meets security requirements
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return invalid("password must be at least 8 characters")
	}

	if len(password) > 72 {
		return invalid("password must not exceed 72 bytes")
	}

	var (
		hasUpper   bool
		hasLower   bool
		hasNumber  bool
		hasSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return invalid("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return invalid("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return invalid("password must contain at least one number")
	}
	if !hasSpecial {
		return invalid("password must contain at least one special character")
	}

	return nil
}

// ValidateReplicaBounds checks the scaler's replica range
func ValidateReplicaBounds(min, max int) error {
	if min < 1 {
		return invalid("minimum replicas must be at least 1")
	}

	if max < min {
		return invalid("maximum replicas must be greater than or equal to minimum replicas")
	}

	if max > 1000 {
		return invalid("maximum replicas cannot exceed 1000")
	}

	return nil
}
