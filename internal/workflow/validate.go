// ABOUTME: Input validation against workflow JSON schemas
// ABOUTME: Compiled schemas are cached per handle id and version

package workflow

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/2389/nexus-gateway/internal/apperr"
)

// Validator compiles handle input schemas on first use and caches the
// result. Handles are immutable per version, so the cache never
// invalidates.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate checks inputs against the handle's schema. Handles without a
// schema accept anything. Validation failures are returned as validation
// errors with the schema's own message.
func (v *Validator) Validate(h *Handle, inputs map[string]any) error {
	if len(h.InputSchema) == 0 {
		return nil
	}

	schema, err := v.schemaFor(h)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("workflow %s schema", h.ID), err)
	}

	// jsonschema validates any-typed values; a nil inputs map is an
	// empty object to the schema.
	var doc any = inputs
	if inputs == nil {
		doc = map[string]any{}
	}
	if err := schema.Validate(doc); err != nil {
		return apperr.Validation(fmt.Sprintf("inputs for %s", h.ID), err)
	}
	return nil
}

func (v *Validator) schemaFor(h *Handle) (*jsonschema.Schema, error) {
	key := fmt.Sprintf("%s@%d", h.ID, h.Version)

	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.compiled[key]; ok {
		return s, nil
	}

	s, err := jsonschema.CompileString(key+".json", string(h.InputSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	v.compiled[key] = s
	return s, nil
}
