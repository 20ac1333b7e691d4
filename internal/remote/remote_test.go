package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	cause := errors.New("wrong shape")
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(cause)
	})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestRetry_StopsOnClientError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, &APIError{Service: "qdrant", StatusCode: http.StatusNotFound, Status: "404 Not Found"}
	})
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesServerErrorsUntilExhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, &APIError{Service: "openai", StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_AppliesCallTimeout(t *testing.T) {
	p := fastPolicy(1)
	p.CallTimeout = 10 * time.Millisecond
	_, err := Retry(context.Background(), p, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetry_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFromResponse_ParsesRetryAfter(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Status:     "429 Too Many Requests",
		Header:     http.Header{"Retry-After": []string{"2"}},
		Body:       io.NopCloser(strings.NewReader("slow down\n")),
	}
	apiErr := FromResponse("openai", resp)

	assert.Equal(t, 2*time.Second, apiErr.RetryAfter)
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, "openai: 429 Too Many Requests: slow down", apiErr.Error())
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

	assert.Equal(t, 200*time.Millisecond, p.delay(0, errors.New("x")))
	assert.Equal(t, 800*time.Millisecond, p.delay(2, errors.New("x")))
	assert.Equal(t, 5*time.Second, p.delay(10, errors.New("x")))
	assert.Equal(t, 5*time.Second, p.delay(0, &APIError{StatusCode: 429, RetryAfter: time.Minute}))
}
