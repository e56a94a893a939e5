// Package dispatcher routes native replies to the continuations waiting on them.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/sdk-bridge/pkg/correlation"
	"github.com/morezero/sdk-bridge/pkg/envelope"
	"github.com/morezero/sdk-bridge/pkg/events"
	"github.com/morezero/sdk-bridge/pkg/executor"
	"github.com/morezero/sdk-bridge/pkg/metrics"
	"github.com/morezero/sdk-bridge/pkg/resultapi"
)

const logPrefix = "dispatcher:dispatch"

// Outcome is the result of dispatching one reply.
type Outcome int

const (
	// OutcomeQueued means a continuation was bound and enqueued.
	OutcomeQueued Outcome = iota + 1
	// OutcomeDropped means nothing was waiting for the reply.
	OutcomeDropped
	// OutcomeMalformed means the reply could not be parsed.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeQueued:
		return events.OutcomeQueued
	case OutcomeDropped:
		return events.OutcomeDropped
	case OutcomeMalformed:
		return events.OutcomeMalformed
	default:
		return "unknown"
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStageFallback makes replies with an unrecognised stage value consume
// the given stage instead of being dropped.
func WithStageFallback(stage correlation.Stage) Option {
	return func(d *Dispatcher) { d.stageFallback = stage }
}

// WithPublisher publishes a traffic event for every reply.
func WithPublisher(p events.EventPublisher) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.publisher = p
		}
	}
}

// WithMetrics records reply outcomes.
func WithMetrics(m *metrics.Collectors) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher consumes registry entries for incoming replies and enqueues the
// bound continuations. It never returns errors to the delivering goroutine.
type Dispatcher struct {
	registry      *correlation.Registry
	queue         *executor.Queue
	stageFallback correlation.Stage
	publisher     events.EventPublisher
	metrics       *metrics.Collectors

	mu     sync.RWMutex
	tables map[string]*Table
}

// New creates a Dispatcher over a registry and queue.
func New(reg *correlation.Registry, queue *executor.Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  reg,
		queue:     queue,
		publisher: &events.NoOpPublisher{},
		tables:    make(map[string]*Table),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mount installs a module table, replacing any table for the same module.
func (d *Dispatcher) Mount(t *Table) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[t.Module()] = t
}

// Route returns the route for an operation. ok is false for unmounted modules.
func (d *Dispatcher) Route(module, operation string) (Route, bool) {
	d.mu.RLock()
	t, ok := d.tables[module]
	d.mu.RUnlock()
	if !ok {
		return Route{}, false
	}
	return t.Route(operation), true
}

// Deliver parses and dispatches a raw reply. Safe from any goroutine.
func (d *Dispatcher) Deliver(raw []byte) Outcome {
	resp, err := envelope.ParseResponse(raw)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed reply (%d bytes): %v", logPrefix, len(raw), err))
		d.record(nil, "", "", OutcomeMalformed, len(raw))
		return OutcomeMalformed
	}
	return d.Dispatch(resp)
}

// Dispatch consumes the entry for resp and enqueues its continuation.
func (d *Dispatcher) Dispatch(resp *envelope.Response) Outcome {
	route, ok := d.Route(resp.Module, resp.Operation)
	if !ok {
		slog.Debug(fmt.Sprintf("%s - no table for module %q, dropping %s", logPrefix, resp.Module, resp.Operation))
		d.record(resp, "", "", OutcomeDropped, len(resp.Raw))
		return OutcomeDropped
	}

	var (
		cont  correlation.Continuation
		found bool
	)

	switch route.Kind {
	case correlation.KindPersistent:
		cont, found = d.registry.Lookup(route.Listener)

	case correlation.KindMultiSlot:
		h, has := resp.HandleValue()
		if !has {
			break
		}
		stage := correlation.ParseStage(resp.Field(route.StageField).String())
		if stage == correlation.StageUnknown && d.stageFallback != correlation.StageUnknown {
			slog.Warn(fmt.Sprintf("%s - %s.%s unrecognised stage %q, using %s", logPrefix, resp.Module, resp.Operation, resp.Field(route.StageField).String(), d.stageFallback))
			stage = d.stageFallback
		}
		resp.StageKey = string(stage)
		cont, found = d.registry.ConsumeStage(correlation.Handle(h), stage)

	default:
		h, has := resp.HandleValue()
		if !has {
			break
		}
		cont, found = d.registry.Consume(correlation.Handle(h))
	}

	if !found {
		slog.Debug(fmt.Sprintf("%s - nothing waiting for %s.%s handle=%v stage=%q", logPrefix, resp.Module, resp.Operation, handleString(resp), resp.StageKey))
		d.record(resp, route.Kind.String(), resp.StageKey, OutcomeDropped, len(resp.Raw))
		return OutcomeDropped
	}

	inv := d.bind(cont, resp)
	if inv == nil || !d.queue.Enqueue(executor.Invocation(inv)) {
		d.record(resp, route.Kind.String(), resp.StageKey, OutcomeDropped, len(resp.Raw))
		return OutcomeDropped
	}

	d.record(resp, route.Kind.String(), resp.StageKey, OutcomeQueued, len(resp.Raw))
	return OutcomeQueued
}

// bind decodes the reply for cont. A panicking decoder drops the reply.
func (d *Dispatcher) bind(cont correlation.Continuation, resp *envelope.Response) (inv func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - decoder for %s.%s panicked: %v", logPrefix, resp.Module, resp.Operation, r))
			inv = nil
		}
	}()
	return cont.Bind(resp)
}

func (d *Dispatcher) record(resp *envelope.Response, kind, stage string, outcome Outcome, size int) {
	var module, operation string
	if resp != nil {
		module, operation = resp.Module, resp.Operation
	}
	d.metrics.RecordReply(module, operation, outcome.String())

	ev := events.NewTrafficEvent(events.DirectionReply, module, operation, outcome.String())
	ev.Kind = kind
	ev.Stage = stage
	ev.Size = size
	if resp != nil {
		if h, ok := resp.HandleValue(); ok {
			ev.WithHandle(h)
		}
		if resp.Has(envelope.KeyResultAPI) {
			code := int(resultapi.Decode(resp).ErrorCode)
			ev.ErrorCode = &code
		}
	}
	if err := d.publisher.PublishTraffic(context.Background(), ev); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish traffic event: %v", logPrefix, err))
	}
}

func handleString(resp *envelope.Response) string {
	if h, ok := resp.HandleValue(); ok {
		return fmt.Sprintf("%d", h)
	}
	return "none"
}
