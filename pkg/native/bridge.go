// Package native defines the contract of the opaque native runtime the
// bridge talks to.
//
// Send carries one serialized call envelope. Queries get their reply as the
// return value of Send; asynchronous calls return an empty reply and are
// answered later, zero or more times, through the DeliverFunc from any
// goroutine.
package native

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("native bridge closed")

// DeliverFunc receives an asynchronous reply.
type DeliverFunc func(reply []byte)

// Bridge is the transport to a native runtime.
type Bridge interface {
	Send(ctx context.Context, request []byte) ([]byte, error)
	SetDeliver(fn DeliverFunc)
	Close() error
}

// SendFunc answers a call. deliver may be retained and called later.
type SendFunc func(ctx context.Context, request []byte, deliver DeliverFunc) ([]byte, error)

// Func adapts a SendFunc into a Bridge. It is used to embed an in-process
// runtime and in tests.
type Func struct {
	send SendFunc

	mu      sync.RWMutex
	deliver DeliverFunc
	closed  bool
}

// NewFunc creates a Func bridge.
func NewFunc(send SendFunc) *Func {
	return &Func{send: send}
}

// Send forwards the request to the SendFunc.
func (f *Func) Send(ctx context.Context, request []byte) ([]byte, error) {
	f.mu.RLock()
	closed := f.closed
	f.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return f.send(ctx, request, f.Deliver)
}

// SetDeliver installs the reply callback.
func (f *Func) SetDeliver(fn DeliverFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliver = fn
}

// Deliver hands an asynchronous reply to the installed callback. Replies
// arriving before SetDeliver are discarded.
func (f *Func) Deliver(reply []byte) {
	f.mu.RLock()
	fn := f.deliver
	f.mu.RUnlock()
	if fn != nil {
		fn(reply)
	}
}

// Close marks the bridge closed.
func (f *Func) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
