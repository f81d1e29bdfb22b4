package tool

import (
	"context"
	"encoding/json"

	"golang.org/x/time/rate"

	"showoff/internal/domain"
)

// RateLimitedTool rejects calls once the shared limiter runs dry.
type RateLimitedTool struct {
	inner   domain.Tool
	limiter *rate.Limiter
}

// WithRateLimit wraps t with limiter.
func WithRateLimit(t domain.Tool, limiter *rate.Limiter) domain.Tool {
	return &RateLimitedTool{inner: t, limiter: limiter}
}

func (r *RateLimitedTool) Name() string              { return r.inner.Name() }
func (r *RateLimitedTool) Description() string       { return r.inner.Description() }
func (r *RateLimitedTool) Schema() domain.ToolSchema { return r.inner.Schema() }

func (r *RateLimitedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if !r.limiter.Allow() {
		return &domain.ToolResult{
			IsError:     true,
			IsRetryable: true,
			Content:     "rate limit exceeded for " + r.inner.Name() + ", slow down",
		}, nil
	}
	return r.inner.Execute(ctx, params)
}
