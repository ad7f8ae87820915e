package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "a\tb", SanitizeString("  a\x00\x07\tb \n"))
}

func TestValidateCircuitName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{name: "simple", input: "payments", ok: true},
		{name: "dotted", input: "db.primary-1", ok: true},
		{name: "empty", input: ""},
		{name: "leading dash", input: "-x"},
		{name: "space", input: " payments"},
		{name: "slash", input: "a/b"},
		{name: "too long", input: strings.Repeat("a", 101)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCircuitName(tt.input)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}

func TestValidateCacheKey(t *testing.T) {
	assert.NoError(t, ValidateCacheKey("api:0cc175b9c0f1b6a831c399e269772661"))
	assert.ErrorIs(t, ValidateCacheKey(""), ErrInvalidInput)
	assert.ErrorIs(t, ValidateCacheKey("a\nb"), ErrInvalidInput)
	assert.ErrorIs(t, ValidateCacheKey(strings.Repeat("k", maxCacheKeyLength+1)), ErrInvalidInput)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  string
	}{
		{password: "Sh0rt!", wantErr: "at least 8"},
		{password: "alllower1!", wantErr: "uppercase"},
		{password: "ALLUPPER1!", wantErr: "lowercase"},
		{password: "NoDigits!!", wantErr: "number"},
		{password: "NoSpecial1", wantErr: "special"},
		{password: "G00d-Enough"},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateReplicaBounds(t *testing.T) {
	assert.NoError(t, ValidateReplicaBounds(1, 10))
	assert.Error(t, ValidateReplicaBounds(0, 10))
	assert.Error(t, ValidateReplicaBounds(5, 4))
	assert.Error(t, ValidateReplicaBounds(1, 1001))
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("ops"))
	assert.Error(t, ValidateUsername(" o "))
	assert.Error(t, ValidateUsername(strings.Repeat("u", 51)))
}
