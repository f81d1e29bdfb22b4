package tool

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"showoff/internal/domain"
)

// Registry holds named tools.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]domain.Tool
	logger  *slog.Logger
	limiter *rate.Limiter
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCallRate throttles every registered tool with a shared token bucket.
// A non-positive perSecond disables throttling.
func WithCallRate(perSecond float64, burst int) RegistryOption {
	return func(r *Registry) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewRegistry creates an empty tool registry. Registered tools are wrapped
// with schema validation; compilation errors are logged and the tool is
// registered unwrapped.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Returns error if name already registered.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, fmt.Sprintf("tool %q", name))
	}

	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		r.logger.Warn("schema validation disabled for tool", "tool", name, "error", err)
	} else {
		t = wrapped
	}
	if r.limiter != nil {
		t = WithRateLimit(t, r.limiter)
	}

	r.tools[name] = t
	r.logger.Debug("tool registered", "tool", name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Schemas returns all tool schemas sorted by name.
func (r *Registry) Schemas() []domain.ToolSchema {
	tools := r.List()
	schemas := make([]domain.ToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}
