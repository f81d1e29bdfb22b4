package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateLoggerInvalid(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "verbose"
	cfg.Logger.Format = "xml"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `logger.level "verbose" is invalid`)
	assertContains(t, err.Error(), `logger.format "xml" is invalid`)
}

func TestValidateLoggerCaseInsensitive(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "WARN"
	cfg.Logger.Format = "JSON"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTracerExporter(t *testing.T) {
	cfg := Defaults()
	cfg.Tracer.Exporter = "jaeger"
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled tracer should not be validated: %v", err)
	}

	cfg.Tracer.Enabled = true
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `tracer.exporter "jaeger" is not supported`)
}

func TestValidateGatewayInvalidAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Addr = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "gateway.addr is required")
}

func TestValidateGatewayBadHostPort(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Addr = "not-valid"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "not a valid host:port")
}

func TestValidateGatewayTokensRequiredOffLoopback(t *testing.T) {
	tests := []struct {
		addr    string
		tokens  []TokenConfig
		wantErr bool
	}{
		{"127.0.0.1:8090", nil, false},
		{"localhost:8090", nil, false},
		{"[::1]:8090", nil, false},
		{"0.0.0.0:8090", nil, true},
		{":8090", nil, true},
		{"0.0.0.0:8090", []TokenConfig{{Name: "planner", Token: "t"}}, false},
	}
	for _, tt := range tests {
		cfg := Defaults()
		cfg.Gateway.Addr = tt.addr
		cfg.Gateway.Auth.Tokens = tt.tokens
		err := Validate(cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("addr %q tokens %d: err = %v, wantErr %v", tt.addr, len(tt.tokens), err, tt.wantErr)
		}
	}
}

func TestValidateGatewayTokenEntries(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Auth.Tokens = []TokenConfig{
		{Name: "planner", Token: "a"},
		{Name: "planner", Token: "b"},
		{Name: "", Token: "c"},
		{Name: "empty", Token: ""},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `gateway.auth.tokens[1].name "planner" is duplicated`)
	assertContains(t, err.Error(), "gateway.auth.tokens[2].name is required")
	assertContains(t, err.Error(), "gateway.auth.tokens[3].token is required")
}

func TestValidateGatewayRateLimit(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.RateLimit.RequestsPerMin = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "gateway.rate_limit.requests_per_min must be >= 0")

	cfg = Defaults()
	cfg.Gateway.RateLimit.Burst = 0
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "gateway.rate_limit.burst must be >= 1")

	cfg = Defaults()
	cfg.Gateway.RateLimit = RateLimitConfig{}
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled rate limit should pass: %v", err)
	}
}

func TestValidateSurface(t *testing.T) {
	cfg := Defaults()
	cfg.Surface.CaptureTimeout = 0
	cfg.Surface.CaptureOverlap = "queue"
	cfg.Surface.QueueSize = 0
	cfg.Surface.ReadLimit = -1
	cfg.Surface.WriteTimeout = -time.Second
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	assertContains(t, msg, "surface.capture_timeout must be > 0")
	assertContains(t, msg, `surface.capture_overlap "queue" is invalid`)
	assertContains(t, msg, "surface.queue_size must be >= 1")
	assertContains(t, msg, "surface.read_limit must be >= 0")
	assertContains(t, msg, "surface.write_timeout must be >= 0")
}

func TestValidateSurfaceReplaceOverlap(t *testing.T) {
	cfg := Defaults()
	cfg.Surface.CaptureOverlap = "replace"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMCPNameRequired(t *testing.T) {
	cfg := Defaults()
	cfg.MCP.Name = "  "
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "mcp.name is required")
}

func TestValidateTools(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.CallsPerSecond = 5
	cfg.Tools.CallBurst = 0
	cfg.Tools.MaxDrawingSize = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "tools.call_burst must be >= 1")
	assertContains(t, err.Error(), "tools.max_drawing_size must be >= 0")

	cfg = Defaults()
	cfg.Tools.CallsPerSecond = -1
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "tools.calls_per_second must be >= 0")
}

func TestValidateGatewayQueueAndPing(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.SendQueue = 0
	cfg.Gateway.PingInterval = -time.Second
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "gateway.send_queue must be >= 1")
	assertContains(t, err.Error(), "gateway.ping_interval must be >= 0")
}

func TestValidateAudit(t *testing.T) {
	cfg := Defaults()
	cfg.Audit.Path = ""
	cfg.Audit.MaxSize = "huge"
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled audit should not be validated: %v", err)
	}

	cfg.Audit.Enabled = true
	cfg.Audit.MaxAge = -time.Hour
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "audit.path is required")
	assertContains(t, err.Error(), "audit.max_age must be >= 0")
	assertContains(t, err.Error(), "audit.max_size")

	cfg = Defaults()
	cfg.Audit.Enabled = true
	cfg.Audit.MaxSize = "50MB"
	if err := Validate(cfg); err != nil {
		t.Errorf("valid audit config rejected: %v", err)
	}
}

func TestValidateMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "loud"
	cfg.Gateway.Addr = "nope"
	cfg.Surface.QueueSize = 0
	cfg.MCP.Name = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) < 4 {
		t.Errorf("expected at least 4 errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidationErrorFormat(t *testing.T) {
	ve := &ValidationError{}
	ve.Add("first error")
	ve.Add("second error")

	msg := ve.Error()
	if !strings.HasPrefix(msg, "config validation failed:") {
		t.Errorf("unexpected prefix: %s", msg)
	}
	if !strings.Contains(msg, "first error") || !strings.Contains(msg, "second error") {
		t.Errorf("missing error details: %s", msg)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"100", 100, false},
		{"512B", 512, false},
		{"4kb", 4096, false},
		{"10MB", 10 << 20, false},
		{" 1 GB ", 1 << 30, false},
		{"lots", 0, true},
		{"-5MB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
