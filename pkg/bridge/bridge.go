// Package bridge ties the envelope builder, correlation registry, dispatcher
// and executor queue to one native runtime.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/sdk-bridge/pkg/commsutil"
	"github.com/morezero/sdk-bridge/pkg/correlation"
	"github.com/morezero/sdk-bridge/pkg/dispatcher"
	"github.com/morezero/sdk-bridge/pkg/envelope"
	"github.com/morezero/sdk-bridge/pkg/events"
	"github.com/morezero/sdk-bridge/pkg/executor"
	"github.com/morezero/sdk-bridge/pkg/metrics"
	"github.com/morezero/sdk-bridge/pkg/native"
	"github.com/morezero/sdk-bridge/pkg/resultapi"
)

const logPrefix = "bridge:bridge"

var (
	// ErrNotMounted is returned for calls into a module without a route table.
	ErrNotMounted = errors.New("module not mounted")
	// ErrNilContinuation is returned by Call when no continuation is given.
	ErrNilContinuation = errors.New("nil continuation")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bridge closed")
)

// Caller is the surface feature modules use to reach the native runtime.
type Caller interface {
	Mount(tables ...*dispatcher.Table)
	Call(ctx context.Context, module, operation string, cont correlation.Continuation, params envelope.Params) error
	CallStages(ctx context.Context, module, operation string, slots map[correlation.Stage]correlation.Continuation, params envelope.Params) error
	Query(ctx context.Context, module, operation string, params envelope.Params) (*envelope.Response, error)
	Notify(ctx context.Context, module, operation string, params envelope.Params) error
	RemoveListener(module, operation string) bool
}

var _ Caller = (*Bridge)(nil)

// Options configures a Bridge. The zero value is usable.
type Options struct {
	// Target is the caller tag stamped on every envelope. Empty means random.
	Target string
	// Platform tag. Empty means envelope.PlatformGo.
	Platform string
	// Publisher receives call and reply traffic events.
	Publisher events.EventPublisher
	// Metrics records traffic. Nil disables metrics.
	Metrics *metrics.Collectors
	// StageFallback, when set, is consumed for replies carrying an unrecognised stage.
	StageFallback correlation.Stage
}

// Bridge is the client side of the native boundary. Calls may be made from
// any goroutine; continuations run on whichever goroutine calls Drain or Run.
type Bridge struct {
	registry   *correlation.Registry
	queue      *executor.Queue
	dispatcher *dispatcher.Dispatcher
	builder    *envelope.Builder
	native     native.Bridge
	publisher  events.EventPublisher
	metrics    *metrics.Collectors

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// New wires a bridge over nb and installs itself as the reply callback.
func New(nb native.Bridge, opts *Options) *Bridge {
	if opts == nil {
		opts = &Options{}
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}

	reg := correlation.New()
	queue := executor.NewQueue()

	dopts := []dispatcher.Option{
		dispatcher.WithPublisher(publisher),
		dispatcher.WithMetrics(opts.Metrics),
	}
	if opts.StageFallback != correlation.StageUnknown {
		dopts = append(dopts, dispatcher.WithStageFallback(opts.StageFallback))
	}

	b := &Bridge{
		registry:   reg,
		queue:      queue,
		dispatcher: dispatcher.New(reg, queue, dopts...),
		builder:    envelope.NewBuilder(opts.Target, opts.Platform),
		native:     nb,
		publisher:  publisher,
		metrics:    opts.Metrics,
	}
	nb.SetDeliver(b.deliver)

	slog.Info(fmt.Sprintf("%s - bridge ready target=%s platform=%s", logPrefix, b.builder.Target(), b.builder.Platform()))
	return b
}

// Target returns the caller tag stamped on outgoing envelopes.
func (b *Bridge) Target() string { return b.builder.Target() }

// Registry exposes the correlation registry.
func (b *Bridge) Registry() *correlation.Registry { return b.registry }

// Queue exposes the executor queue.
func (b *Bridge) Queue() *executor.Queue { return b.queue }

// Dispatcher exposes the reply dispatcher.
func (b *Bridge) Dispatcher() *dispatcher.Dispatcher { return b.dispatcher }

// Mount installs module route tables.
func (b *Bridge) Mount(tables ...*dispatcher.Table) {
	for _, t := range tables {
		b.dispatcher.Mount(t)
	}
}

// Call registers cont according to the route of module.operation, sends the
// call and returns once the runtime accepted it. The continuation runs on
// the draining goroutine when the reply arrives. If the send fails, a
// RESPONSE_FAIL reply is delivered to cont and the send error is returned.
func (b *Bridge) Call(ctx context.Context, module, operation string, cont correlation.Continuation, params envelope.Params) error {
	if cont == nil {
		return fmt.Errorf("%s - %s.%s: %w", logPrefix, module, operation, ErrNilContinuation)
	}
	if b.isClosed() {
		return fmt.Errorf("%s - %s.%s: %w", logPrefix, module, operation, ErrClosed)
	}
	route, ok := b.dispatcher.Route(module, operation)
	if !ok {
		return fmt.Errorf("%s - %s.%s: %w", logPrefix, module, operation, ErrNotMounted)
	}

	var h correlation.Handle
	switch route.Kind {
	case correlation.KindPersistent:
		h = b.registry.RegisterPersistent(route.Listener, cont)
	case correlation.KindMultiSlot:
		h = b.registry.RegisterMultiSlot(route.Stages, cont)
	default:
		h = b.registry.Register(cont)
	}
	return b.send(ctx, route, h, module, operation, params)
}

// CallStages is Call for a multi-slot operation with a distinct continuation
// per stage. Stages without a continuation are not registered and their
// replies are dropped.
func (b *Bridge) CallStages(ctx context.Context, module, operation string, slots map[correlation.Stage]correlation.Continuation, params envelope.Params) error {
	if len(slots) == 0 {
		return fmt.Errorf("%s - %s.%s: %w", logPrefix, module, operation, ErrNilContinuation)
	}
	if b.isClosed() {
		return fmt.Errorf("%s - %s.%s: %w", logPrefix, module, operation, ErrClosed)
	}
	route, ok := b.dispatcher.Route(module, operation)
	if !ok {
		return fmt.Errorf("%s - %s.%s: %w", logPrefix, module, operation, ErrNotMounted)
	}
	if route.Kind != correlation.KindMultiSlot {
		return fmt.Errorf("%s - %s.%s is %s, not multi-slot", logPrefix, module, operation, route.Kind)
	}
	h := b.registry.RegisterStages(slots)
	return b.send(ctx, route, h, module, operation, params)
}

// send builds and sends a call registered under h.
func (b *Bridge) send(ctx context.Context, route dispatcher.Route, h correlation.Handle, module, operation string, params envelope.Params) error {
	b.updateOutstanding()

	handle := int64(h)
	call := b.builder.Build(module, operation, &handle, params)
	data, err := call.Encode()
	if err != nil {
		b.registry.Cancel(h)
		b.updateOutstanding()
		return err
	}

	reply, err := b.native.Send(ctx, data)
	if err != nil {
		b.recordCall(call, route.Kind.String(), events.OutcomeFailed, len(data))
		b.metrics.RecordTransportError(module, operation)
		slog.Warn(fmt.Sprintf("%s - send %s.%s handle=%d failed: %v", logPrefix, module, operation, handle, err))
		b.failCall(route, h, module, operation, err)
		return fmt.Errorf("%s - send %s.%s: %w", logPrefix, module, operation, err)
	}
	b.recordCall(call, route.Kind.String(), events.OutcomeSent, len(data))

	// Some runtimes answer an async call inline; route it like any delivery.
	if len(reply) > 0 {
		b.deliver(reply)
	}
	return nil
}

// Query sends a call without a handle and returns the runtime's immediate
// reply. An empty reply yields an empty response.
func (b *Bridge) Query(ctx context.Context, module, operation string, params envelope.Params) (*envelope.Response, error) {
	if b.isClosed() {
		return nil, fmt.Errorf("%s - %s.%s: %w", logPrefix, module, operation, ErrClosed)
	}
	call := b.builder.Build(module, operation, nil, params)
	data, err := call.Encode()
	if err != nil {
		return nil, err
	}

	reply, err := b.native.Send(ctx, data)
	if err != nil {
		b.recordCall(call, "", events.OutcomeFailed, len(data))
		b.metrics.RecordTransportError(module, operation)
		return nil, fmt.Errorf("%s - query %s.%s: %w", logPrefix, module, operation, err)
	}
	b.recordCall(call, "", events.OutcomeSent, len(data))

	if len(reply) == 0 {
		return envelope.EmptyResponse(module, operation), nil
	}
	resp, err := envelope.ParseResponse(reply)
	if err != nil {
		return nil, fmt.Errorf("%s - query %s.%s: %w", logPrefix, module, operation, err)
	}
	return resp, nil
}

// Notify sends a call without a handle and ignores any reply.
func (b *Bridge) Notify(ctx context.Context, module, operation string, params envelope.Params) error {
	_, err := b.Query(ctx, module, operation, params)
	if errors.Is(err, envelope.ErrMalformedReply) {
		return nil
	}
	return err
}

// RemoveListener drops the persistent listener routed for module.operation.
func (b *Bridge) RemoveListener(module, operation string) bool {
	route, ok := b.dispatcher.Route(module, operation)
	if !ok || route.Kind != correlation.KindPersistent {
		return false
	}
	removed := b.registry.RemovePersistent(route.Listener)
	b.updateOutstanding()
	return removed
}

// Deliver hands a raw reply to the dispatcher. Safe from any goroutine.
func (b *Bridge) Deliver(raw []byte) dispatcher.Outcome {
	out := b.dispatcher.Deliver(raw)
	b.updateOutstanding()
	return out
}

func (b *Bridge) deliver(raw []byte) { b.Deliver(raw) }

// Drain runs the queued continuations. Call only from the designated goroutine.
func (b *Bridge) Drain() int {
	start := time.Now()
	n := b.queue.Drain()
	b.metrics.RecordDrain(n, time.Since(start))
	return n
}

// Run makes the calling goroutine the designated one and drains until ctx is done.
func (b *Bridge) Run(ctx context.Context, interval time.Duration) error {
	return executor.RunFunc(ctx, b.Drain, b.queue.Signal(), interval)
}

// Reset drops every outstanding entry and queued invocation.
func (b *Bridge) Reset() {
	b.registry.Reset()
	if n := b.queue.Clear(); n > 0 {
		slog.Info(fmt.Sprintf("%s - reset discarded %d queued invocations", logPrefix, n))
	}
	b.updateOutstanding()
}

// Close notifies the runtime that the process is terminating, closes the
// native bridge and drops all state. Queued invocations are discarded.
func (b *Bridge) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		if nerr := b.Notify(ctx, "AuthV4", "terminateProcess", nil); nerr != nil {
			slog.Debug(fmt.Sprintf("%s - terminateProcess notification failed: %v", logPrefix, nerr))
		}

		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.queue.Close()
		err = b.native.Close()
		b.Reset()
		slog.Info(fmt.Sprintf("%s - bridge closed target=%s", logPrefix, b.builder.Target()))
	})
	return err
}

func (b *Bridge) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// failCall delivers a synthesized RESPONSE_FAIL reply for a call whose send
// failed. Multi-slot calls get one failure on the close stage and the
// remaining stages are dropped. Persistent listeners stay registered.
func (b *Bridge) failCall(route dispatcher.Route, h correlation.Handle, module, operation string, cause error) {
	msg := map[string]interface{}{
		envelope.KeyModule:    module,
		envelope.KeyOperation: operation,
		envelope.KeyHandle:    int64(h),
		envelope.KeyResultAPI: resultapi.ResponseFailed(cause),
	}

	switch route.Kind {
	case correlation.KindPersistent:
		return
	case correlation.KindMultiSlot:
		pending := b.registry.PendingStages(h)
		if len(pending) == 0 {
			return
		}
		stage := pending[0]
		for _, s := range pending {
			if s == correlation.StageClose {
				stage = s
				break
			}
		}
		msg[route.StageField] = stage.Wire()
	}

	data, err := commsutil.EncodePayload(msg)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode failure reply for %s.%s: %v", logPrefix, module, operation, err))
		b.registry.Cancel(h)
		return
	}
	b.deliver(data)
	if route.Kind == correlation.KindMultiSlot {
		b.registry.Cancel(h)
		b.updateOutstanding()
	}
}

func (b *Bridge) recordCall(call envelope.Call, kind, outcome string, size int) {
	b.metrics.RecordCall(call.Module(), call.Operation(), kind)

	ev := events.NewTrafficEvent(events.DirectionCall, call.Module(), call.Operation(), outcome)
	ev.Target = call.Target()
	ev.Platform = call.Platform()
	ev.Kind = kind
	ev.Size = size
	if h, ok := call.Handle(); ok {
		ev.WithHandle(h)
	}
	if err := b.publisher.PublishTraffic(context.Background(), ev); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish traffic event: %v", logPrefix, err))
	}
}

func (b *Bridge) updateOutstanding() {
	if b.metrics == nil {
		return
	}
	st := b.registry.Outstanding()
	b.metrics.SetOutstanding(correlation.KindOneShot.String(), st.OneShot)
	b.metrics.SetOutstanding(correlation.KindMultiSlot.String(), st.MultiSlot)
	b.metrics.SetOutstanding(correlation.KindPersistent.String(), st.Persistent)
}
