package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := Wrap(base, CodeInternal, "failed to load rules")
	outer := fmt.Errorf("publish: %w", Wrap(wrapped, CodeUnavailable, "rule store unavailable"))

	assert.True(t, HasCode(outer, CodeUnavailable))
	assert.True(t, HasCode(outer, CodeInternal))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(base, CodeInternal))
	assert.ErrorIs(t, outer, base)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(CodeValidation))
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusConflict, ToHTTPStatus(CodeInvariantViolation))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(Code("unknown")))
}
