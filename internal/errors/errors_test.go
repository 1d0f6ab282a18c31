package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	se := From(fmt.Errorf("outer: %w", NotFound("session", "abc")))
	assert.Equal(t, CodeNotFound, se.Code)
	assert.Equal(t, http.StatusNotFound, se.HTTPStatus)

	plain := errors.New("boom")
	se = From(plain)
	assert.Equal(t, CodeInternal, se.Code)
	assert.ErrorIs(t, se, plain)
}

func TestRateLimitExceeded(t *testing.T) {
	se := RateLimitExceeded(10, "1s")
	assert.Equal(t, http.StatusTooManyRequests, se.HTTPStatus)
	assert.Contains(t, se.Error(), "10 requests per 1s")
}
