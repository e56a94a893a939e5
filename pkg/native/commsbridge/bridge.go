// Package commsbridge carries the native bridge contract over COMMS (NATS).
//
// Every call is a request on native.<platform>.call; the responder answers
// with the synchronous reply, empty for asynchronous calls. Asynchronous
// replies are published later on native.<platform>.deliver.<target>.
package commsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/sdk-bridge/pkg/commsutil"
	"github.com/morezero/sdk-bridge/pkg/native"
)

const logPrefix = "commsbridge:bridge"

// HeaderTarget carries the client target on call requests.
const HeaderTarget = "Bridge-Target"

// DefaultRequestTimeout bounds the synchronous part of a call.
const DefaultRequestTimeout = 5 * time.Second

// Options configures a Bridge.
type Options struct {
	Platform       string
	Target         string
	RequestTimeout time.Duration
}

// Bridge is a native.Bridge whose runtime sits behind COMMS.
type Bridge struct {
	nc             *comms.Conn
	callSubject    string
	deliverSubject string
	target         string
	timeout        time.Duration
	sub            *comms.Subscription

	mu      sync.RWMutex
	deliver native.DeliverFunc
	closed  bool
}

var _ native.Bridge = (*Bridge)(nil)

// New subscribes to the target's deliver subject and returns the bridge.
func New(nc *comms.Conn, opts Options) (*Bridge, error) {
	if opts.Platform == "" || opts.Target == "" {
		return nil, fmt.Errorf("%s - platform and target are required", logPrefix)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	b := &Bridge{
		nc:             nc,
		callSubject:    commsutil.BuildCallSubject(opts.Platform),
		deliverSubject: commsutil.BuildDeliverSubject(opts.Platform, opts.Target),
		target:         opts.Target,
		timeout:        opts.RequestTimeout,
	}

	sub, err := nc.Subscribe(b.deliverSubject, func(msg *comms.Msg) {
		b.mu.RLock()
		fn := b.deliver
		b.mu.RUnlock()
		if fn == nil {
			slog.Warn(fmt.Sprintf("%s - reply on %s before deliver was set, discarded", logPrefix, msg.Subject))
			return
		}
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, b.deliverSubject, err)
	}
	// The runtime may deliver right after answering, so the subscription
	// must be live before the first call.
	if err := nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("%s - failed to flush subscription: %w", logPrefix, err)
	}
	b.sub = sub

	slog.Info(fmt.Sprintf("%s - Bridge ready: calls on %s, replies on %s", logPrefix, b.callSubject, b.deliverSubject))
	return b, nil
}

// Send issues the call as a COMMS request and returns the synchronous reply.
func (b *Bridge) Send(ctx context.Context, request []byte) ([]byte, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, native.ErrClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	msg := comms.NewMsg(b.callSubject)
	msg.Header.Set(HeaderTarget, b.target)
	msg.Data = request

	resp, err := b.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, comms.ErrNoResponders) {
			return nil, fmt.Errorf("%s - no native runtime on %s: %w", logPrefix, b.callSubject, err)
		}
		return nil, fmt.Errorf("%s - request on %s failed: %w", logPrefix, b.callSubject, err)
	}
	if errText := resp.Header.Get(HeaderError); errText != "" {
		return nil, fmt.Errorf("%s - runtime rejected call: %s", logPrefix, errText)
	}
	return resp.Data, nil
}

// SetDeliver installs the reply callback.
func (b *Bridge) SetDeliver(fn native.DeliverFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = fn
}

// Close unsubscribes from the deliver subject. The connection stays open.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
			return fmt.Errorf("%s - failed to unsubscribe: %w", logPrefix, err)
		}
	}
	return nil
}
