package commsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/sdk-bridge/pkg/commsutil"
	"github.com/morezero/sdk-bridge/pkg/envelope"
	"github.com/morezero/sdk-bridge/pkg/native"
)

const responderLogPrefix = "commsbridge:responder"

// HeaderError is set on responses when the runtime rejected the call.
const HeaderError = "Bridge-Error"

// QueueGroup is the queue group responders join.
const QueueGroup = "native-runtime"

// Factory creates the runtime serving one client target.
type Factory func(target string) native.Bridge

// ResponderOptions configures a Responder.
type ResponderOptions struct {
	Platform string
	// CallTimeout bounds each runtime Send.
	CallTimeout time.Duration
}

// Responder serves native.<platform>.call with one runtime per client target.
type Responder struct {
	nc       *comms.Conn
	platform string
	timeout  time.Duration
	factory  Factory
	sub      *comms.Subscription

	mu       sync.Mutex
	runtimes map[string]native.Bridge
}

// NewResponder creates a Responder. Call Start to subscribe.
func NewResponder(nc *comms.Conn, factory Factory, opts ResponderOptions) *Responder {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultRequestTimeout
	}
	return &Responder{
		nc:       nc,
		platform: opts.Platform,
		timeout:  opts.CallTimeout,
		factory:  factory,
		runtimes: make(map[string]native.Bridge),
	}
}

// Start subscribes to the call subject.
func (r *Responder) Start() error {
	subject := commsutil.BuildCallSubject(r.platform)
	sub, err := r.nc.QueueSubscribe(subject, QueueGroup, r.handle)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", responderLogPrefix, subject, err)
	}
	r.sub = sub
	slog.Info(fmt.Sprintf("%s - Serving native calls on %s", responderLogPrefix, subject))
	return nil
}

// Targets returns the number of client targets with a live runtime.
func (r *Responder) Targets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runtimes)
}

func (r *Responder) runtime(target string) native.Bridge {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt, ok := r.runtimes[target]; ok {
		return rt
	}
	rt := r.factory(target)
	subject := commsutil.BuildDeliverSubject(r.platform, target)
	rt.SetDeliver(func(reply []byte) {
		if err := r.nc.Publish(subject, reply); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish reply to %s: %v", responderLogPrefix, subject, err))
		}
	})
	r.runtimes[target] = rt
	slog.Debug(fmt.Sprintf("%s - new runtime for target %s", responderLogPrefix, target))
	return rt
}

func (r *Responder) handle(msg *comms.Msg) {
	target := msg.Header.Get(HeaderTarget)
	if target == "" {
		target = commsutil.PeekString(msg.Data, envelope.KeyTarget)
	}
	if target == "" {
		r.respondError(msg, "missing target")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	reply, err := r.runtime(target).Send(ctx, msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - %s.%s for %s failed: %v", responderLogPrefix,
			commsutil.PeekString(msg.Data, envelope.KeyModule), commsutil.PeekString(msg.Data, envelope.KeyOperation), target, err))
		r.respondError(msg, err.Error())
		return
	}
	if err := msg.Respond(reply); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond: %v", responderLogPrefix, err))
	}
}

func (r *Responder) respondError(msg *comms.Msg, text string) {
	out := comms.NewMsg(msg.Reply)
	out.Header.Set(HeaderError, text)
	if err := msg.RespondMsg(out); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond with error: %v", responderLogPrefix, err))
	}
}

// Close unsubscribes and closes every runtime.
func (r *Responder) Close() error {
	if r.sub != nil {
		if err := r.sub.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to drain subscription: %v", responderLogPrefix, err))
		}
	}

	r.mu.Lock()
	runtimes := r.runtimes
	r.runtimes = make(map[string]native.Bridge)
	r.mu.Unlock()

	for target, rt := range runtimes {
		if err := rt.Close(); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to close runtime for %s: %v", responderLogPrefix, target, err))
		}
	}
	return nil
}
