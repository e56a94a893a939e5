package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

const responseLogPrefix = "envelope:response"

// ErrMalformedReply is returned when a reply is not a JSON object.
var ErrMalformedReply = errors.New("malformed reply")

// Response is a reply from the native runtime. Only the routing fields are
// decoded up front; payload fields are read on demand from Raw.
type Response struct {
	Module    string
	Operation string
	Handle    *int64
	// StageKey is set by the dispatcher for multi-slot replies.
	StageKey string
	Raw      []byte
}

// ParseResponse decodes the routing fields of a reply.
func ParseResponse(raw []byte) (*Response, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%s - %w: invalid JSON", responseLogPrefix, ErrMalformedReply)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%s - %w: not an object", responseLogPrefix, ErrMalformedReply)
	}

	resp := &Response{
		Module:    root.Get(KeyModule).String(),
		Operation: root.Get(KeyOperation).String(),
		Raw:       raw,
	}
	if h := root.Get(KeyHandle); h.Exists() && h.Type == gjson.Number {
		v := h.Int()
		resp.Handle = &v
	}
	return resp, nil
}

// EmptyResponse is the reply used when the native side returned nothing for a
// query. Every field lookup on it yields the zero value.
func EmptyResponse(module, operation string) *Response {
	return &Response{Module: module, Operation: operation, Raw: []byte("{}")}
}

// Field returns a payload field by gjson path.
func (r *Response) Field(path string) gjson.Result {
	if r == nil || len(r.Raw) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Raw, path)
}

// Has reports whether a payload field is present and not null.
func (r *Response) Has(path string) bool {
	f := r.Field(path)
	return f.Exists() && f.Type != gjson.Null
}

// DecodeField unmarshals a payload field into v. It returns false when the field
// is missing or does not fit v, leaving v untouched in the missing case.
func (r *Response) DecodeField(path string, v interface{}) bool {
	f := r.Field(path)
	if !f.Exists() || f.Type == gjson.Null {
		return false
	}
	if err := json.Unmarshal([]byte(f.Raw), v); err != nil {
		return false
	}
	return true
}

// HandleValue returns the handle and whether the reply carried one.
func (r *Response) HandleValue() (int64, bool) {
	if r == nil || r.Handle == nil {
		return 0, false
	}
	return *r.Handle, true
}
