package githubclt

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/stretchr/testify/assert"

	"github.com/simplesurance/rebasebot/internal/boterr"
)

func TestWrapRetryableErrorsServerError(t *testing.T) {
	clt := New("")

	err := clt.wrapRetryableErrors(&github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusBadGateway},
	})

	var retryErr *boterr.RetryableError
	assert.True(t, errors.As(err, &retryErr))
	assert.True(t, retryErr.After.IsZero())
}

func TestWrapRetryableErrorsClientError(t *testing.T) {
	clt := New("")

	orig := &github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusNotFound},
	}
	err := clt.wrapRetryableErrors(orig)

	var retryErr *boterr.RetryableError
	assert.False(t, errors.As(err, &retryErr))
	assert.Equal(t, orig, err)
}

func TestWrapRetryableErrorsRateLimit(t *testing.T) {
	clt := New("")

	reset := time.Now().Add(time.Hour)
	err := clt.wrapRetryableErrors(&github.RateLimitError{
		Rate: github.Rate{Limit: 5000, Reset: github.Timestamp{Time: reset}},
	})

	var retryErr *boterr.RetryableError
	assert.True(t, errors.As(err, &retryErr))
	assert.Equal(t, reset, retryErr.After)
}

func TestWrapGraphQLRetryableErrors(t *testing.T) {
	clt := New("")

	err := clt.wrapGraphQLRetryableErrors(errors.New("non-200 OK status code: 502 Bad Gateway body: \"\""))

	var retryErr *boterr.RetryableError
	assert.True(t, errors.As(err, &retryErr))

	err = clt.wrapGraphQLRetryableErrors(errors.New("non-200 OK status code: 401 Unauthorized body: \"\""))
	assert.False(t, errors.As(err, &retryErr))
}
