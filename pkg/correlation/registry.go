// Package correlation tracks continuations for in-flight native calls.
//
// Three entry kinds exist. A one-shot entry is removed on its first reply. A
// multi-slot entry holds one continuation per lifecycle stage under a single
// handle; each stage is removed on its own first reply and the handle is
// retired once no stages remain. A persistent entry is keyed by a listener
// name, fires on every reply and is only replaced or reset.
package correlation

import (
	"fmt"
	"log/slog"
	"sync"
)

const logPrefix = "correlation:registry"

// Handle identifies one outstanding call. Handles are unique among
// outstanding entries and may be reused after the entry is retired.
type Handle int64

// Kind is the entry variant.
type Kind int

const (
	KindOneShot Kind = iota + 1
	KindMultiSlot
	KindPersistent
)

func (k Kind) String() string {
	switch k {
	case KindOneShot:
		return "one-shot"
	case KindMultiSlot:
		return "multi-slot"
	case KindPersistent:
		return "persistent"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type entry struct {
	kind  Kind
	once  Continuation
	slots map[Stage]Continuation
}

// Stats is a snapshot of outstanding entries.
type Stats struct {
	OneShot    int
	MultiSlot  int
	Slots      int
	Persistent int
}

// Total returns the number of handle-bound entries.
func (s Stats) Total() int {
	return s.OneShot + s.MultiSlot
}

// Registry holds outstanding entries. All methods are safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	next       Handle
	entries    map[Handle]*entry
	persistent map[string]Continuation
}

// New creates an empty registry. The first allocated handle is 0.
func New() *Registry {
	return &Registry{
		entries:    make(map[Handle]*entry),
		persistent: make(map[string]Continuation),
	}
}

// allocate returns the next handle not currently outstanding. Caller holds mu.
func (r *Registry) allocate() Handle {
	for {
		h := r.next
		r.next++
		if _, busy := r.entries[h]; !busy {
			return h
		}
	}
}

// Register stores a one-shot continuation and returns its handle.
func (r *Registry) Register(c Continuation) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.allocate()
	r.entries[h] = &entry{kind: KindOneShot, once: c}
	return h
}

// RegisterMultiSlot stores one continuation under every given stage.
func (r *Registry) RegisterMultiSlot(stages []Stage, c Continuation) Handle {
	slots := make(map[Stage]Continuation, len(stages))
	for _, s := range stages {
		slots[s] = c
	}
	return r.RegisterStages(slots)
}

// RegisterStages stores a distinct continuation per stage. Stages with a nil
// continuation are skipped.
func (r *Registry) RegisterStages(slots map[Stage]Continuation) Handle {
	owned := make(map[Stage]Continuation, len(slots))
	for s, c := range slots {
		if c != nil && s != StageUnknown {
			owned[s] = c
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.allocate()
	if len(owned) > 0 {
		r.entries[h] = &entry{kind: KindMultiSlot, slots: owned}
	}
	return h
}

// RegisterPersistent stores c under name, replacing any previous listener.
// A handle is still allocated for the outgoing envelope but nothing is
// tracked under it.
func (r *Registry) RegisterPersistent(name string, c Continuation) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.persistent[name]; exists {
		slog.Debug(fmt.Sprintf("%s - replacing persistent listener %s", logPrefix, name))
	}
	r.persistent[name] = c
	return r.allocate()
}

// RemovePersistent drops the listener under name.
func (r *Registry) RemovePersistent(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.persistent[name]; !ok {
		return false
	}
	delete(r.persistent, name)
	return true
}

// Consume removes and returns the one-shot continuation for h. It returns
// false for unknown handles, consumed handles and multi-slot handles.
func (r *Registry) Consume(h Handle) (Continuation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok || e.kind != KindOneShot {
		return nil, false
	}
	delete(r.entries, h)
	return e.once, true
}

// ConsumeStage removes and returns the continuation for one stage of a
// multi-slot handle. The handle is retired when its last stage is consumed.
func (r *Registry) ConsumeStage(h Handle, stage Stage) (Continuation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok || e.kind != KindMultiSlot {
		return nil, false
	}
	c, ok := e.slots[stage]
	if !ok {
		return nil, false
	}
	delete(e.slots, stage)
	if len(e.slots) == 0 {
		delete(r.entries, h)
	}
	return c, true
}

// Cancel drops an outstanding one-shot or multi-slot handle without
// invoking anything. It reports whether the handle was outstanding.
func (r *Registry) Cancel(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[h]; !ok {
		return false
	}
	delete(r.entries, h)
	return true
}

// Lookup returns the persistent listener under name without removing it.
func (r *Registry) Lookup(name string) (Continuation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.persistent[name]
	return c, ok
}

// KindOf reports the kind of an outstanding handle.
func (r *Registry) KindOf(h Handle) (Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// PendingStages returns the stages still outstanding for a multi-slot handle.
func (r *Registry) PendingStages(h Handle) []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok || e.kind != KindMultiSlot {
		return nil
	}
	out := make([]Stage, 0, len(e.slots))
	for s := range e.slots {
		out = append(out, s)
	}
	return out
}

// Outstanding returns a snapshot of the registry contents.
func (r *Registry) Outstanding() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{Persistent: len(r.persistent)}
	for _, e := range r.entries {
		switch e.kind {
		case KindOneShot:
			st.OneShot++
		case KindMultiSlot:
			st.MultiSlot++
			st.Slots += len(e.slots)
		}
	}
	return st
}

// Reset drops every entry and restarts handle allocation at 0.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := len(r.entries) + len(r.persistent)
	r.entries = make(map[Handle]*entry)
	r.persistent = make(map[string]Continuation)
	r.next = 0
	if dropped > 0 {
		slog.Info(fmt.Sprintf("%s - reset dropped %d entries", logPrefix, dropped))
	}
}
