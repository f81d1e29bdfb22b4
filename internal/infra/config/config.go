package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"showoff/internal/domain"
)

// ConfigKeyEnv names the environment variable holding the passphrase for
// "enc:" secret values.
const ConfigKeyEnv = "SHOWOFF_CONFIG_KEY"

// Config is the top-level application configuration.
type Config struct {
	Logger   LoggerConfig  `yaml:"logger"`
	Tracer   TracerConfig  `yaml:"tracer"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Surface  SurfaceConfig `yaml:"surface"`
	MCP      MCPConfig     `yaml:"mcp"`
	Tools    ToolsConfig   `yaml:"tools"`
	Audit    AuditConfig   `yaml:"audit"`
	Includes []string      `yaml:"includes,omitempty"`
}

// GatewayConfig holds the HTTP/WebSocket listener settings. Surface
// endpoints are served on the same listener.
type GatewayConfig struct {
	Addr           string          `yaml:"addr"`
	Auth           AuthConfig      `yaml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	AllowedOrigins []string        `yaml:"allowed_origins,omitempty"` // loopback is always allowed
	SendQueue      int             `yaml:"send_queue"`
	PingInterval   time.Duration   `yaml:"ping_interval"` // 0 disables
}

// AuthConfig holds gateway authentication settings. No tokens means the
// agent API is open, which Validate only allows on loopback addresses.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// RateLimitConfig throttles HTTP requests per client IP. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// SurfaceConfig holds front-end transport and canvas settings.
type SurfaceConfig struct {
	Token          string        `yaml:"token"` // required by /surface/* when set
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	CaptureOverlap string        `yaml:"capture_overlap"` // "reject" or "replace"
	QueueSize      int           `yaml:"queue_size"`
	ReadLimit      int64         `yaml:"read_limit"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins,omitempty"`
}

// MCPConfig holds the stdio MCP server settings.
type MCPConfig struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions,omitempty"`
}

// ToolsConfig holds tool-layer limits.
type ToolsConfig struct {
	CallsPerSecond float64 `yaml:"calls_per_second"` // 0 disables throttling
	CallBurst      int     `yaml:"call_burst"`
	MaxDrawingSize int     `yaml:"max_drawing_size"`
}

// AuditConfig controls the JSONL audit trail of agent actions.
type AuditConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	MaxAge  time.Duration `yaml:"max_age"`  // 0 keeps everything
	MaxSize string        `yaml:"max_size"` // e.g. "50MB"; empty is unlimited
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a config with sensible default values.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Gateway: GatewayConfig{
			Addr:         "127.0.0.1:8090",
			SendQueue:    64,
			PingInterval: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerMin: 600,
				Burst:          60,
			},
		},
		Surface: SurfaceConfig{
			CaptureTimeout: 5 * time.Second,
			CaptureOverlap: "reject",
			QueueSize:      256,
			ReadLimit:      16 << 20,
			WriteTimeout:   5 * time.Second,
		},
		MCP: MCPConfig{
			Name: "showoff",
		},
		Tools: ToolsConfig{
			CallsPerSecond: 20,
			CallBurst:      40,
			MaxDrawingSize: 512 * 1024,
		},
		Audit: AuditConfig{
			Path:   "showoff-audit.jsonl",
			MaxAge: 30 * 24 * time.Hour,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		if err := newIncludeLoader(absPath).apply(cfg, filepath.Dir(absPath), 0); err != nil {
			return nil, err
		}
		// The main file wins over anything it includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(ConfigKeyEnv); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps SHOWOFF_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHOWOFF_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SHOWOFF_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SHOWOFF_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("SHOWOFF_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SHOWOFF_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("SHOWOFF_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	// Comma-separated name=token pairs.
	if v := os.Getenv("SHOWOFF_GATEWAY_TOKENS"); v != "" {
		cfg.Gateway.Auth.Tokens = nil
		for _, pair := range splitAndTrim(v, ",") {
			name, token, ok := strings.Cut(pair, "=")
			if !ok {
				name, token = "env", pair
			}
			cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Name: name, Token: token})
		}
	}
	if v := os.Getenv("SHOWOFF_SURFACE_TOKEN"); v != "" {
		cfg.Surface.Token = v
	}
	if v := os.Getenv("SHOWOFF_SURFACE_CAPTURE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Surface.CaptureTimeout = d
		}
	}
	if v := os.Getenv("SHOWOFF_SURFACE_CAPTURE_OVERLAP"); v != "" {
		cfg.Surface.CaptureOverlap = v
	}
	if v := os.Getenv("SHOWOFF_SURFACE_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Surface.QueueSize = n
		}
	}
	if v := os.Getenv("SHOWOFF_TOOLS_CALLS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tools.CallsPerSecond = f
		}
	}
	if v := os.Getenv("SHOWOFF_AUDIT_ENABLED"); v == "true" {
		cfg.Audit.Enabled = true
	}
	if v := os.Getenv("SHOWOFF_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." token values and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
			}
			cfg.Gateway.Auth.Tokens[i].Token = decrypted
		}
	}

	if strings.HasPrefix(cfg.Surface.Token, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(cfg.Surface.Token, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("surface token: %w", err)
		}
		cfg.Surface.Token = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
