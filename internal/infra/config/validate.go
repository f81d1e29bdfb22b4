package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateGateway(cfg, ve)
	validateSurface(cfg, ve)
	validateMCP(cfg, ve)
	validateTools(cfg, ve)
	validateAudit(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var validLogFormats = map[string]bool{"text": true, "json": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want debug, info, warn or error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{"noop": true, "stdout": true, "": true}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is not supported (want noop or stdout)", cfg.Tracer.Exporter)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if g.Addr == "" {
		ve.Add("gateway.addr is required")
		return
	}
	host, _, err := net.SplitHostPort(g.Addr)
	if err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", g.Addr)
		return
	}

	names := make(map[string]bool, len(g.Auth.Tokens))
	for i, tok := range g.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d].token is required", i)
		}
		if tok.Name == "" {
			ve.Add("gateway.auth.tokens[%d].name is required", i)
		} else if names[tok.Name] {
			ve.Add("gateway.auth.tokens[%d].name %q is duplicated", i, tok.Name)
		}
		names[tok.Name] = true
	}
	if len(g.Auth.Tokens) == 0 && !isLoopback(host) {
		ve.Add("gateway.auth.tokens are required when gateway.addr %q is not loopback", g.Addr)
	}

	if g.SendQueue < 1 {
		ve.Add("gateway.send_queue must be >= 1")
	}
	if g.PingInterval < 0 {
		ve.Add("gateway.ping_interval must be >= 0")
	}

	if g.RateLimit.RequestsPerMin < 0 {
		ve.Add("gateway.rate_limit.requests_per_min must be >= 0")
	}
	if g.RateLimit.RequestsPerMin > 0 && g.RateLimit.Burst < 1 {
		ve.Add("gateway.rate_limit.burst must be >= 1 when rate limiting is enabled")
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validateSurface(cfg *Config, ve *ValidationError) {
	s := cfg.Surface
	if s.CaptureTimeout <= 0 {
		ve.Add("surface.capture_timeout must be > 0")
	}
	switch s.CaptureOverlap {
	case "reject", "replace":
	default:
		ve.Add("surface.capture_overlap %q is invalid (want reject or replace)", s.CaptureOverlap)
	}
	if s.QueueSize < 1 {
		ve.Add("surface.queue_size must be >= 1")
	}
	if s.ReadLimit < 0 {
		ve.Add("surface.read_limit must be >= 0")
	}
	if s.WriteTimeout < 0 {
		ve.Add("surface.write_timeout must be >= 0")
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	if strings.TrimSpace(cfg.MCP.Name) == "" {
		ve.Add("mcp.name is required")
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	t := cfg.Tools
	if t.CallsPerSecond < 0 {
		ve.Add("tools.calls_per_second must be >= 0")
	}
	if t.CallsPerSecond > 0 && t.CallBurst < 1 {
		ve.Add("tools.call_burst must be >= 1 when calls_per_second is set")
	}
	if t.MaxDrawingSize < 0 {
		ve.Add("tools.max_drawing_size must be >= 0")
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	a := cfg.Audit
	if !a.Enabled {
		return
	}
	if strings.TrimSpace(a.Path) == "" {
		ve.Add("audit.path is required when audit is enabled")
	}
	if a.MaxAge < 0 {
		ve.Add("audit.max_age must be >= 0")
	}
	if _, err := ParseSize(a.MaxSize); err != nil {
		ve.Add("audit.max_size: %v", err)
	}
}

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseSize parses a size such as "512KB", "100MB" or "1GB". Empty is 0.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
