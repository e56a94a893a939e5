// Package envelope defines the JSON call and reply envelopes exchanged with the native runtime.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const logPrefix = "envelope:envelope"

// PlatformGo is the platform tag sent when the builder is not given one.
const PlatformGo = "go"

// Reserved wire keys. Business params may never override these.
const (
	KeyTarget    = "targetObject"
	KeyModule    = "class"
	KeyOperation = "method"
	KeyPlatform  = "platform"
	KeyHandle    = "handler"
	KeyResultAPI = "resultAPI"
)

// Params holds operation-specific request fields merged into the top level of the call envelope.
type Params map[string]interface{}

// Call is the outbound call descriptor. It is immutable once built.
type Call struct {
	target    string
	module    string
	operation string
	platform  string
	handle    *int64
	params    Params
}

// Target returns the opaque caller/session tag.
func (c Call) Target() string { return c.target }

// Module returns the feature module name (wire key "class").
func (c Call) Module() string { return c.module }

// Operation returns the operation name (wire key "method").
func (c Call) Operation() string { return c.operation }

// Platform returns the platform tag.
func (c Call) Platform() string { return c.platform }

// Handle returns the correlation handle and whether one is present.
func (c Call) Handle() (int64, bool) {
	if c.handle == nil {
		return 0, false
	}
	return *c.handle, true
}

// Param returns a business param by key.
func (c Call) Param(key string) (interface{}, bool) {
	v, ok := c.params[key]
	return v, ok
}

// MarshalJSON flattens params and reserved fields into one object.
func (c Call) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.params)+5)
	for k, v := range c.params {
		out[k] = v
	}
	out[KeyTarget] = c.target
	out[KeyModule] = c.module
	out[KeyOperation] = c.operation
	out[KeyPlatform] = c.platform
	if c.handle != nil {
		out[KeyHandle] = *c.handle
	} else {
		delete(out, KeyHandle)
	}
	return json.Marshal(out)
}

// Encode serializes the call for the native bridge.
func (c Call) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode %s.%s: %w", logPrefix, c.module, c.operation, err)
	}
	return data, nil
}

// Builder produces call envelopes for one caller target and platform.
type Builder struct {
	target   string
	platform string
}

// NewBuilder creates a Builder. An empty target gets a random tag; an empty platform uses PlatformGo.
func NewBuilder(target, platform string) *Builder {
	if target == "" {
		target = uuid.NewString()
	}
	if platform == "" {
		platform = PlatformGo
	}
	return &Builder{target: target, platform: platform}
}

// Target returns the tag stamped on every envelope from this builder.
func (b *Builder) Target() string { return b.target }

// Platform returns the platform tag stamped on every envelope from this builder.
func (b *Builder) Platform() string { return b.platform }

// Build constructs a call. A nil handle produces a pure query envelope.
func (b *Builder) Build(module, operation string, handle *int64, params Params) Call {
	var h *int64
	if handle != nil {
		v := *handle
		h = &v
	}
	var p Params
	if len(params) > 0 {
		p = make(Params, len(params))
		for k, v := range params {
			p[k] = v
		}
	}
	return Call{
		target:    b.target,
		module:    module,
		operation: operation,
		platform:  b.platform,
		handle:    h,
		params:    p,
	}
}
