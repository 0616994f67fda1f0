package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/km-arc/go-kernel/framework/container"
)

// ── Declarations ──────────────────────────────────────────────────────────────

// Declarations is the declarative form of container registrations, per
// container level:
//
//	properties:
//	  greeting.prefix: Hello
//	containers:
//	  root:
//	    - type: clock
//	      eager: true
//	  portal:
//	    - key: tenantService
//	      type: tenant-service
//	      plugins: [tenant-lookup, tenant-observer]
//	    - type: cart
//	      scope: per-container
type Declarations struct {
	Properties map[string]string        `yaml:"properties"`
	Containers map[string][]Declaration `yaml:"containers"`
}

// Declaration registers one component.
type Declaration struct {
	// Key is a name key. Empty keys register under the factory's type key.
	Key string `yaml:"key"`
	// Type names a factory of the Catalog.
	Type  string `yaml:"type"`
	Scope string `yaml:"scope"`
	Eager bool   `yaml:"eager"`
	// Plugins names Catalog types handed to the component.
	Plugins []string `yaml:"plugins"`
}

// LoadDeclarations reads and parses a declarations file.
func LoadDeclarations(path string) (*Declarations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declarations: %w", err)
	}
	return ParseDeclarations(data)
}

// ParseDeclarations parses YAML declarations. Unknown fields are rejected.
func ParseDeclarations(data []byte) (*Declarations, error) {
	var d Declarations
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse declarations: %w", err)
	}
	return &d, nil
}

// Apply registers the declarations of level into c, in file order.
func (d *Declarations) Apply(c *container.Container, level string, catalog *Catalog) error {
	for i, decl := range d.Containers[level] {
		if err := catalog.register(c, decl); err != nil {
			return fmt.Errorf("%s[%d] %s: %w", level, i, decl.Type, err)
		}
	}
	return nil
}

// ── Catalog ───────────────────────────────────────────────────────────────────

// Factory registers one component type into c under key. A nil key means
// the factory's own type key.
//
//	func(c *container.Container, key container.Key, opts ...container.Option) error {
//	    return container.Provide1(c, key, NewCart, opts...)
//	}
type Factory func(c *container.Container, key container.Key, opts ...container.Option) error

// Catalog maps the type names used in declarations to factories and plugin
// types.
type Catalog struct {
	factories map[string]Factory
	types     map[string]reflect.Type
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
		types:     make(map[string]reflect.Type),
	}
}

// Add names a factory.
func (cat *Catalog) Add(name string, f Factory) *Catalog {
	cat.factories[name] = f
	return cat
}

// AddType names a type usable in plugin lists.
func (cat *Catalog) AddType(name string, t reflect.Type) *Catalog {
	cat.types[name] = t
	return cat
}

func (cat *Catalog) register(c *container.Container, decl Declaration) error {
	f, ok := cat.factories[decl.Type]
	if !ok {
		return fmt.Errorf("unknown component type %q", decl.Type)
	}
	scope, err := container.ParseScope(decl.Scope)
	if err != nil {
		return err
	}

	opts := []container.Option{container.WithScope(scope)}
	if decl.Eager {
		opts = append(opts, container.Eager())
	}
	for _, name := range decl.Plugins {
		t, ok := cat.types[name]
		if !ok {
			return fmt.Errorf("unknown plugin type %q", name)
		}
		opts = append(opts, container.WithPlugins(t))
	}

	var key container.Key
	if decl.Key != "" {
		key = decl.Key
	}
	return f(c, key, opts...)
}
