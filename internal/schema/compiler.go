package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

// Compiler validates request payloads against named JSON Schemas, caching
// compiled schemas in an expiring LRU.
type Compiler struct {
	compiler *js.Compiler
	cache    *expirable.LRU[string, *js.Schema]
}

// NewCompilerWithCache creates a new compiler with cache
func NewCompilerWithCache(maxSize int) *Compiler {
	c := js.NewCompiler()
	c.ExtractAnnotations = true

	return &Compiler{
		compiler: c,
		cache:    expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
	}
}

func (c *Compiler) compiled(name, source string) (*js.Schema, error) {
	if schema, ok := c.cache.Get(name); ok {
		return schema, nil
	}

	resourceURL := fmt.Sprintf("mem://schema/%s.json", name)
	if err := c.compiler.AddResource(resourceURL, bytes.NewReader([]byte(source))); err != nil {
		return nil, fmt.Errorf("failed to add resource: %w", err)
	}

	schema, err := c.compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	c.cache.Add(name, schema)
	return schema, nil
}

// Validate validates a payload against the named built-in schema.
func (c *Compiler) Validate(ctx context.Context, name string, payload map[string]interface{}) error {
	source, ok := builtin[name]
	if !ok {
		return fmt.Errorf("unknown payload schema %q", name)
	}

	schema, err := c.compiled(name, source)
	if err != nil {
		return err
	}

	// Round-trip through JSON so numbers and nested maps take the shapes the
	// validator expects.
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
