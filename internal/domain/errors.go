package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError so ErrorCodeOf can resolve a
// subsystem-specific code.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the domain layer.
var (
	ErrSurfaceUnavailable = fmt.Errorf("no surface attached")
	ErrCaptureInFlight    = fmt.Errorf("capture already in flight")
	ErrToolNotFound       = fmt.Errorf("tool not found")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrAuditWrite         = fmt.Errorf("audit log write failed")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "ScreenRegistry.Apply")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "screen", "window"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsValidationError reports whether err is a caller-side validation failure,
// i.e. a required field was missing or malformed.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeSurfaceUnavailable ErrorCode = "SURFACE_UNAVAILABLE"
	CodeCaptureInFlight    ErrorCode = "CAPTURE_IN_FLIGHT"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeAuditWrite         ErrorCode = "AUDIT_WRITE"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth        ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound  ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload  ErrorCode = "RPC_INVALID_PAYLOAD"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeScreenInvalid   ErrorCode = "SCREEN_INVALID"
	CodeWindowInvalid   ErrorCode = "WINDOW_INVALID"
	CodeWindowNotFound  ErrorCode = "WINDOW_NOT_FOUND"
	CodeScreenNotFound  ErrorCode = "SCREEN_NOT_FOUND"
	CodeCanvasTimeout   ErrorCode = "CANVAS_CAPTURE_TIMEOUT"
	CodeCanvasInvalid   ErrorCode = "CANVAS_INVALID"
	CodeSurfaceOverflow ErrorCode = "SURFACE_QUEUE_OVERFLOW"

	// Category codes, used when no subsystem-specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrInvalidInput: CodeInvalidInput,

	ErrSurfaceUnavailable: CodeSurfaceUnavailable,
	ErrCaptureInFlight:    CodeCaptureInFlight,
	ErrToolNotFound:       CodeToolNotFound,
	ErrDecryption:         CodeDecryption,
	ErrAuditWrite:         CodeAuditWrite,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrGatewayAuthFailed:  CodeGatewayAuth,
	ErrRPCMethodNotFound:  CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:  CodeRPCInvalidPayload,
}

var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"screen": CodeScreenNotFound,
		"window": CodeWindowNotFound,
	},
	ErrInvalidInput: {
		"screen": CodeScreenInvalid,
		"window": CodeWindowInvalid,
		"canvas": CodeCanvasInvalid,
	},
	ErrTimeout: {
		"canvas": CodeCanvasTimeout,
	},
	ErrLimitReached: {
		"surface": CodeSurfaceOverflow,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
