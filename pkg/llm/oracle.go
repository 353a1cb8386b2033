package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/retry"
)

// OracleConfig bounds each oracle call.
type OracleConfig struct {
	// Timeout is the wall-clock bound on a single completion attempt.
	Timeout time.Duration
	// DefaultMaxTokens applies when the request does not set MaxTokens.
	DefaultMaxTokens int
	// Retry controls backoff for transient provider errors; nil uses defaults.
	Retry *retry.Config
	// Breaker controls the circuit breaker; zero value uses defaults.
	Breaker CircuitBreakerConfig
}

// Oracle wraps a provider client with a per-call timeout, bounded retries on
// transient failures, and a circuit breaker. The pipeline talks only to the
// oracle, never to providers directly.
type Oracle struct {
	client  Client
	cfg     OracleConfig
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewOracle creates an oracle around a provider client.
func NewOracle(client Client, cfg OracleConfig, logger *zap.Logger) *Oracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 1024
	}
	if cfg.Breaker.Threshold == 0 {
		cfg.Breaker = DefaultCircuitBreakerConfig()
	}
	return &Oracle{
		client:  client,
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.Breaker),
		logger:  logger.Named("oracle"),
	}
}

// Complete runs one completion with retry and breaker protection. A tripped
// breaker fails immediately with a retryable endpoint error so the
// orchestrator can surface UpstreamUnavailable without waiting.
func (o *Oracle) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if allowed, err := o.breaker.Allow(); !allowed {
		return "", NewError(ErrorTypeEndpoint, "llm circuit open", true, err)
	}

	if req.MaxTokens <= 0 {
		req.MaxTokens = o.cfg.DefaultMaxTokens
	}

	var result string
	err := retry.DoIfRetryable(ctx, o.cfg.Retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()

		text, err := o.client.Complete(callCtx, req)
		if err != nil {
			return err
		}
		result = text
		return nil
	})
	if err != nil {
		o.breaker.RecordFailure()
		o.logger.Warn("completion failed after retries", zap.Error(err))
		return "", err
	}

	o.breaker.RecordSuccess()
	return result, nil
}

// GetModel returns the underlying client's model name.
func (o *Oracle) GetModel() string {
	return o.client.GetModel()
}

// GetEndpoint returns the underlying client's endpoint.
func (o *Oracle) GetEndpoint() string {
	return o.client.GetEndpoint()
}

// BreakerState exposes the circuit state for health reporting.
func (o *Oracle) BreakerState() CircuitState {
	return o.breaker.State()
}
