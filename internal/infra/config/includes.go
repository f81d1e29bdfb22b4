package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// includeLoader overlays the files listed under "includes" onto a Config.
// Every file is loaded at most once per Load call.
type includeLoader struct {
	root string
	seen map[string]struct{}
}

func newIncludeLoader(mainPath string) *includeLoader {
	return &includeLoader{
		root: filepath.Dir(mainPath),
		seen: map[string]struct{}{mainPath: {}},
	}
}

// apply loads cfg.Includes relative to dir and clears the list.
func (l *includeLoader) apply(cfg *Config, dir string, depth int) error {
	patterns := cfg.Includes
	cfg.Includes = nil
	for _, pattern := range patterns {
		files, err := l.expand(dir, pattern)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := l.load(cfg, f, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// expand resolves pattern against dir. Literal paths are returned even when
// missing so the read reports them; globs with no match yield nothing.
func (l *includeLoader) expand(dir, pattern string) ([]string, error) {
	p := pattern
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	p = filepath.Clean(p)
	if rel, err := filepath.Rel(l.root, p); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("config includes: %q escapes config directory", pattern)
	}

	if !strings.ContainsAny(p, "*?[") {
		return []string{p}, nil
	}
	matches, err := filepath.Glob(p)
	if err != nil {
		return nil, fmt.Errorf("config includes: bad pattern %q: %w", pattern, err)
	}
	return matches, nil
}

func (l *includeLoader) load(cfg *Config, path string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded at %s", maxIncludeDepth, path)
	}
	if _, dup := l.seen[path]; dup {
		return fmt.Errorf("config includes: circular include of %s", path)
	}
	l.seen[path] = struct{}{}

	if err := validatePermissions(path); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config includes: parse %s: %w", path, err)
	}
	return l.apply(cfg, filepath.Dir(path), depth)
}
