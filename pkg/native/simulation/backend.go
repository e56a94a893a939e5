// Package simulation provides a native.Bridge that fabricates replies for an
// allow-list of operations, so the bridge can run without a native runtime.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/morezero/sdk-bridge/pkg/commsutil"
	"github.com/morezero/sdk-bridge/pkg/envelope"
	"github.com/morezero/sdk-bridge/pkg/native"
	"github.com/morezero/sdk-bridge/pkg/resultapi"
)

const logPrefix = "simulation:backend"

// ErrBadRequest is returned by Send for envelopes without class or method.
var ErrBadRequest = errors.New("request missing class or method")

// fields are the operation-specific reply fields.
type fields map[string]interface{}

// handler fabricates the reply fields for one operation. Async handlers
// answer through the deliver callback; the others answer from Send.
type handler struct {
	async bool
	fn    func(b *Backend, req gjson.Result) fields
}

// Backend is the simulation bridge.
type Backend struct {
	profile  *Profile
	identity Identity
	allowed  map[string]map[string]handler
	store    *store

	mu      sync.RWMutex
	deliver native.DeliverFunc
	closed  bool
	wg      sync.WaitGroup
}

var _ native.Bridge = (*Backend)(nil)

// New creates a backend for profile. A nil profile uses DefaultProfile.
// Identity fields left empty are generated once per backend.
func New(profile *Profile) *Backend {
	if profile == nil {
		profile = DefaultProfile()
	}

	id := profile.Identity
	if id.DID == "" {
		id.DID = uuid.NewString()
	}
	if id.VID == "" {
		id.VID = uuid.NewString()
	}
	if id.AccessToken == "" {
		id.AccessToken = uuid.NewString()
	}
	if id.PlayerToken == "" {
		id.PlayerToken = uuid.NewString()
	}

	b := &Backend{
		profile:  profile,
		identity: id,
		allowed:  make(map[string]map[string]handler),
		store:    newStore(),
	}
	for module, ops := range profile.Supported {
		for _, op := range ops {
			h, ok := builtin[module][op]
			if !ok {
				slog.Debug(fmt.Sprintf("%s - %s.%s has no canned reply, answering with success only", logPrefix, module, op))
				h = handler{async: true, fn: func(*Backend, gjson.Result) fields { return nil }}
			}
			if b.allowed[module] == nil {
				b.allowed[module] = make(map[string]handler)
			}
			b.allowed[module][op] = h
		}
	}
	return b
}

// Profile returns the profile the backend was built from.
func (b *Backend) Profile() *Profile { return b.profile }

// Identity returns the fake identity used in replies.
func (b *Backend) Identity() Identity { return b.identity }

// ScheduledLocalPushes returns how many local notifications are registered.
func (b *Backend) ScheduledLocalPushes() int { return b.store.scheduled() }

// Supports reports whether module.operation is on the allow-list.
func (b *Backend) Supports(module, operation string) bool {
	_, ok := b.allowed[module][operation]
	return ok
}

// Send answers one call envelope.
func (b *Backend) Send(_ context.Context, request []byte) ([]byte, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, native.ErrClosed
	}

	if !gjson.ValidBytes(request) {
		return nil, fmt.Errorf("%s - %w: invalid JSON", logPrefix, ErrBadRequest)
	}
	req := gjson.ParseBytes(request)
	module := req.Get(envelope.KeyModule).String()
	operation := req.Get(envelope.KeyOperation).String()
	if module == "" || operation == "" {
		return nil, fmt.Errorf("%s - %w", logPrefix, ErrBadRequest)
	}
	hasHandle := req.Get(envelope.KeyHandle).Exists()

	h, ok := b.allowed[module][operation]
	if !ok {
		api := resultapi.NotSupportedFor(module, operation)
		if msg := b.profile.UnsupportedMessage; msg != "" {
			api.ErrorMessage, api.Message = msg, msg
		}
		reply, err := b.reply(req, &api, nil)
		if err != nil {
			return nil, err
		}
		slog.Debug(fmt.Sprintf("%s - %s.%s not supported (async=%v)", logPrefix, module, operation, hasHandle))
		if hasHandle {
			b.deliverLater(reply)
			return nil, nil
		}
		return reply, nil
	}

	out := h.fn(b, req)
	if h.async {
		if !hasHandle {
			return nil, nil
		}
		api := resultapi.OK()
		reply, err := b.reply(req, &api, out)
		if err != nil {
			return nil, err
		}
		b.deliverLater(reply)
		return nil, nil
	}
	return b.reply(req, nil, out)
}

// Emit delivers an unsolicited reply, as the native side does for
// persistent listeners.
func (b *Backend) Emit(module, operation string, payload map[string]interface{}) error {
	msg := make(map[string]interface{}, len(payload)+3)
	for k, v := range payload {
		msg[k] = v
	}
	msg[envelope.KeyModule] = module
	msg[envelope.KeyOperation] = operation
	if _, ok := msg[envelope.KeyResultAPI]; !ok {
		msg[envelope.KeyResultAPI] = resultapi.OK()
	}
	data, err := commsutil.EncodePayload(msg)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s.%s: %w", logPrefix, module, operation, err)
	}
	b.deliverLater(data)
	return nil
}

// SetDeliver installs the reply callback.
func (b *Backend) SetDeliver(fn native.DeliverFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = fn
}

// Close stops accepting calls and waits for pending deliveries.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

// reply builds a reply echoing the routing fields of req.
func (b *Backend) reply(req gjson.Result, api *resultapi.API, out fields) ([]byte, error) {
	msg := make(map[string]interface{}, len(out)+5)
	for k, v := range out {
		msg[k] = v
	}
	msg[envelope.KeyModule] = req.Get(envelope.KeyModule).String()
	msg[envelope.KeyOperation] = req.Get(envelope.KeyOperation).String()
	if p := req.Get(envelope.KeyPlatform); p.Exists() {
		msg[envelope.KeyPlatform] = p.String()
	}
	if h := req.Get(envelope.KeyHandle); h.Exists() {
		msg[envelope.KeyHandle] = h.Int()
	}
	if api != nil {
		msg[envelope.KeyResultAPI] = api
	}
	data, err := commsutil.EncodePayload(msg)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode reply: %w", logPrefix, err)
	}
	return data, nil
}

// deliverLater hands reply to the deliver callback from a new goroutine.
func (b *Backend) deliverLater(reply []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	fn := b.deliver
	if fn == nil {
		slog.Warn(fmt.Sprintf("%s - no deliver callback installed, reply discarded", logPrefix))
		return
	}

	delay := b.profile.DeliveryDelay
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		fn(reply)
	}()
}
