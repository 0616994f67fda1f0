package config

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// PropertiesPathEnv overrides the configured properties file path.
const PropertiesPathEnv = "KERNEL_PROPERTIES"

// Properties is a string property set. Initial values are given at
// construction; the properties file is read when the component starts.
//
// Values may reference other properties or environment variables as
// ${name}. Properties take precedence over the environment; unknown
// references are left as they are.
//
//	props := config.NewProperties("conf/kernel.properties", map[string]string{
//	    "data.dir": "${HOME}/data",
//	}, log)
type Properties struct {
	path string
	log  *zap.Logger

	mu     sync.RWMutex
	values map[string]string
}

// NewProperties returns a property set holding initial. path may be empty;
// KERNEL_PROPERTIES, when set, replaces it.
func NewProperties(path string, initial map[string]string, log *zap.Logger) *Properties {
	if log == nil {
		log = zap.NewNop()
	}
	if p := os.Getenv(PropertiesPathEnv); p != "" {
		path = p
	}
	props := &Properties{path: path, log: log, values: make(map[string]string, len(initial))}
	for _, name := range sortedKeys(initial) {
		props.values[name] = props.expandLocked(initial[name])
		log.Debug("property from init params", zap.String("name", name))
	}
	return props
}

// Path returns the properties file path, empty when none is configured.
func (p *Properties) Path() string { return p.path }

// Start loads the properties file. .properties and .env files are read with
// godotenv, .yaml and .yml files as a flat map. Other extensions are skipped.
func (p *Properties) Start(context.Context) error {
	if p.path == "" {
		return nil
	}

	var (
		loaded map[string]string
		err    error
	)
	switch strings.ToLower(filepath.Ext(p.path)) {
	case ".properties", ".env":
		loaded, err = godotenv.Read(p.path)
	case ".yaml", ".yml":
		loaded, err = readYAMLProperties(p.path)
	default:
		p.log.Warn("properties file format not recognized, skipping", zap.String("path", p.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load properties %s: %w", p.path, err)
	}

	p.mu.Lock()
	for _, name := range sortedKeys(loaded) {
		p.values[name] = p.expandLocked(loaded[name])
	}
	p.mu.Unlock()

	p.log.Info("properties loaded", zap.String("path", p.path), zap.Int("count", len(loaded)))
	return nil
}

// Get returns the named property.
func (p *Properties) Get(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[name]
	return v, ok
}

// GetOr returns the named property or fallback.
func (p *Properties) GetOr(name, fallback string) string {
	if v, ok := p.Get(name); ok {
		return v
	}
	return fallback
}

// Set stores a property, expanding references in value.
func (p *Properties) Set(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = p.expandLocked(value)
}

// All returns a copy of every property.
func (p *Properties) All() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.values)
}

// Expand resolves ${name} references in s.
func (p *Properties) Expand(s string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.expandLocked(s)
}

func (p *Properties) expandLocked(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			break
		}
		name := s[start+2 : start+end]
		b.WriteString(s[:start])
		if v, ok := p.values[name]; ok {
			b.WriteString(v)
		} else if v, ok := os.LookupEnv(name); ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : start+end+1])
		}
		s = s[start+end+1:]
	}
	b.WriteString(s)
	return b.String()
}

func readYAMLProperties(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
