package correlation

import "github.com/morezero/sdk-bridge/pkg/envelope"

// Continuation is a caller callback waiting on a reply. Bind decodes the reply
// and returns the invocation to run on the designated goroutine; decoding
// happens at bind time so the invocation carries its typed result.
type Continuation interface {
	Bind(resp *envelope.Response) func()
}

// Decoder turns a reply into a typed result. Decoders never fail; missing
// fields yield zero or default values.
type Decoder[T any] func(resp *envelope.Response) T

type typed[T any] struct {
	decode Decoder[T]
	fn     func(T)
}

// Typed adapts a typed callback into a Continuation.
func Typed[T any](decode Decoder[T], fn func(T)) Continuation {
	return &typed[T]{decode: decode, fn: fn}
}

func (c *typed[T]) Bind(resp *envelope.Response) func() {
	result := c.decode(resp)
	return func() {
		if c.fn != nil {
			c.fn(result)
		}
	}
}

// Func is a Continuation over the raw reply.
type Func func(resp *envelope.Response)

func (f Func) Bind(resp *envelope.Response) func() {
	return func() {
		if f != nil {
			f(resp)
		}
	}
}
