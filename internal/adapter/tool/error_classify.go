package tool

import (
	"errors"
	"strings"

	"showoff/internal/domain"
)

// retryableSentinels are failures caused by surface timing rather than by
// the request itself.
var retryableSentinels = []error{
	domain.ErrTimeout,
	domain.ErrSurfaceUnavailable,
	domain.ErrCaptureInFlight,
	domain.ErrLimitReached,
}

// retryablePatterns catch transient errors that carry no sentinel.
// Matched case-insensitively.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"deadline exceeded",
	"temporarily unavailable",
}

// classifyToolError reports whether a failed tool call may succeed on retry.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}
	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
