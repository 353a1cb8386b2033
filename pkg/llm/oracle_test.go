package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/carelens/carelens-engine/pkg/retry"
)

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestOracle_Complete_Success(t *testing.T) {
	mock := NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (string, error) {
		return "SELECT 1", nil
	}

	oracle := NewOracle(mock, OracleConfig{Retry: fastRetry()}, zaptest.NewLogger(t))

	got, err := oracle.Complete(context.Background(), CompletionRequest{Prompt: "count claims"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got)
	assert.Equal(t, 1, mock.CompleteCalls)
}

func TestOracle_Complete_RetriesTransient(t *testing.T) {
	mock := NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (string, error) {
		if mock.CompleteCalls < 3 {
			return "", NewError(ErrorTypeEndpoint, "server error", true, errors.New("502"))
		}
		return "ok", nil
	}

	oracle := NewOracle(mock, OracleConfig{Retry: fastRetry()}, zaptest.NewLogger(t))

	got, err := oracle.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, mock.CompleteCalls)
}

func TestOracle_Complete_NoRetryOnAuthError(t *testing.T) {
	mock := NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (string, error) {
		return "", NewError(ErrorTypeAuth, "authentication failed", false, nil)
	}

	oracle := NewOracle(mock, OracleConfig{Retry: fastRetry()}, zaptest.NewLogger(t))

	_, err := oracle.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	require.Error(t, err)
	assert.Equal(t, 1, mock.CompleteCalls)
}

func TestOracle_Complete_BreakerTrips(t *testing.T) {
	mock := NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (string, error) {
		return "", NewError(ErrorTypeAuth, "authentication failed", false, nil)
	}

	oracle := NewOracle(mock, OracleConfig{
		Retry:   fastRetry(),
		Breaker: CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute},
	}, zaptest.NewLogger(t))

	ctx := context.Background()
	_, _ = oracle.Complete(ctx, CompletionRequest{Prompt: "q"})
	_, _ = oracle.Complete(ctx, CompletionRequest{Prompt: "q"})
	assert.Equal(t, CircuitOpen, oracle.BreakerState())

	callsBefore := mock.CompleteCalls
	_, err := oracle.Complete(ctx, CompletionRequest{Prompt: "q"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, callsBefore, mock.CompleteCalls)
}

func TestOracle_DefaultMaxTokensApplied(t *testing.T) {
	mock := NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (string, error) {
		return "ok", nil
	}

	oracle := NewOracle(mock, OracleConfig{DefaultMaxTokens: 512, Retry: fastRetry()}, zaptest.NewLogger(t))

	_, err := oracle.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, 512, mock.LastRequest.MaxTokens)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"unauthorized", errors.New("401 unauthorized"), ErrorTypeAuth, false},
		{"model missing", errors.New("model llama-x not found"), ErrorTypeModel, false},
		{"endpoint missing", errors.New("404 page not found"), ErrorTypeEndpoint, false},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"timeout", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{"rate limited", errors.New("429 too many requests"), ErrorTypeUnknown, true},
		{"gateway error", errors.New("HTTP 502 bad gateway"), ErrorTypeEndpoint, true},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			assert.Equal(t, tt.wantType, classified.Type)
			assert.Equal(t, tt.retryable, classified.Retryable)
		})
	}
}
