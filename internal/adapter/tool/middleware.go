package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"showoff/internal/domain"
	"showoff/internal/infra/tracer"
)

// Execute is the standard tool pipeline: parse params, start a span, run the
// handler and format its result.
//
// The handler returns one of:
//   - (*domain.ToolResult, nil): returned as-is
//   - (string, nil): wrapped in a plain-text ToolResult
//   - (any other value, nil): JSON-marshaled into a success ToolResult
//   - (nil, error): turned into an error ToolResult and logged
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	p, bad := ParseParams[P](rawParams)
	if bad != nil {
		tracer.RecordError(span, errors.New(bad.Content))
		return bad, nil
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err, "code", string(domain.ErrorCodeOf(err)))

		retryable := classifyToolError(err)
		content := err.Error()
		if retryable {
			content += " (transient error, may succeed on retry)"
		}
		return &domain.ToolResult{IsError: true, IsRetryable: retryable, Content: content}, nil
	}

	return formatResult(span, result)
}

func formatResult(span trace.Span, result any) (*domain.ToolResult, error) {
	switch v := result.(type) {
	case *domain.ToolResult:
		if v.IsError {
			tracer.RecordError(span, errors.New(v.Content))
		} else {
			tracer.SetOK(span)
		}
		return v, nil
	case string:
		tracer.SetOK(span)
		return &domain.ToolResult{Content: v}, nil
	default:
		res, err := JSONResult(result)
		if err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{
				IsError: true,
				Content: fmt.Sprintf("failed to format response: %v", err),
			}, nil
		}
		tracer.SetOK(span)
		return res, nil
	}
}

// ParseParams unmarshals rawParams into P. On failure it returns an error
// ToolResult suitable for returning directly. Empty params decode as {}.
func ParseParams[P any](rawParams json.RawMessage) (P, *domain.ToolResult) {
	var p P
	if len(rawParams) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, &domain.ToolResult{
			IsError: true,
			Content: fmt.Sprintf("invalid params: %v", err),
		}
	}
	return p, nil
}

// ErrResult creates an error ToolResult for failures that should reach the
// agent without being logged as warnings.
func ErrResult(format string, args ...any) (*domain.ToolResult, error) {
	return &domain.ToolResult{
		IsError: true,
		Content: fmt.Sprintf(format, args...),
	}, nil
}

// JSONResult marshals v as indented JSON into a success ToolResult.
func JSONResult(v any) (*domain.ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &domain.ToolResult{Content: string(data)}, nil
}

// TextResult creates a plain text success ToolResult.
func TextResult(s string) *domain.ToolResult {
	return &domain.ToolResult{Content: s}
}

// BadAction returns an error for an unknown action listing the valid ones.
func BadAction(got string, valid ...string) error {
	return domain.NewDomainError("tool", domain.ErrInvalidInput,
		fmt.Sprintf("unknown action %q (want: %s)", got, strings.Join(valid, ", ")))
}
