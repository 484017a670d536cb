package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchError_Is(t *testing.T) {
	transient := &FetchError{URL: "http://x", StatusCode: 503, Transient: true}
	permanent := &FetchError{URL: "http://x", StatusCode: 404}

	wrapped := fmt.Errorf("page 2: %w", transient)
	assert.True(t, errors.Is(wrapped, ErrTransientFetch))
	assert.False(t, errors.Is(wrapped, ErrPermanentFetch))
	assert.True(t, errors.Is(permanent, ErrPermanentFetch))

	var fe *FetchError
	assert.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, 503, fe.StatusCode)
	assert.Contains(t, permanent.Error(), "status code 404")
}

func TestExtractionError_Unwrap(t *testing.T) {
	cause := errors.New("bad selector")
	err := &ExtractionError{Field: "price", Err: cause}
	assert.True(t, errors.Is(err, ErrExtractionConfig))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), `field "price"`)
}
