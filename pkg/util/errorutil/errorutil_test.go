package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestDomainErrorIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("create ticket: %w", NewCitizenNotFound("5511999999999"))

	assert.True(t, errors.Is(err, ErrCitizenNotFound))
	assert.False(t, errors.Is(err, ErrPersistence))
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewPersistenceError("insert ticket", cause)

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"no rows", pgx.ErrNoRows, CodeNotFound, http.StatusNotFound},
		{"deadline", context.DeadlineExceeded, CodePersistence, http.StatusServiceUnavailable},
		{"generic", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
		{"domain", NewConflict("invalid transition", nil), CodeConflict, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := ToDomainError(tt.err)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.status, de.HTTPStatus)
		})
	}
	assert.Nil(t, ToDomainError(nil))
	assert.NoError(t, MapError(nil))
}
