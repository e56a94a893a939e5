package dispatcher

import (
	"sort"

	"github.com/morezero/sdk-bridge/pkg/correlation"
)

// StageField is the reply field carrying the stage of a promotional view.
const StageField = "promotionEventType"

// Route says how replies for one operation are correlated.
type Route struct {
	Kind correlation.Kind
	// StageField names the reply field holding the stage (multi-slot only).
	StageField string
	// Stages are registered for every multi-slot call.
	Stages []correlation.Stage
	// Listener is the persistent entry name (persistent only).
	Listener string
}

// Table is the static routing table of one feature module.
type Table struct {
	module string
	routes map[string]Route
}

// NewTable creates an empty table for module.
func NewTable(module string) *Table {
	return &Table{module: module, routes: make(map[string]Route)}
}

// Module returns the module name the table routes for.
func (t *Table) Module() string { return t.module }

// OneShot declares one-shot operations.
func (t *Table) OneShot(ops ...string) *Table {
	for _, op := range ops {
		t.routes[op] = Route{Kind: correlation.KindOneShot}
	}
	return t
}

// MultiSlot declares operations whose replies fan out into stages.
func (t *Table) MultiSlot(stageField string, stages []correlation.Stage, ops ...string) *Table {
	owned := append([]correlation.Stage(nil), stages...)
	for _, op := range ops {
		t.routes[op] = Route{Kind: correlation.KindMultiSlot, StageField: stageField, Stages: owned}
	}
	return t
}

// Persistent declares an operation whose replies go to the listener registered
// under name.
func (t *Table) Persistent(name, op string) *Table {
	t.routes[op] = Route{Kind: correlation.KindPersistent, Listener: name}
	return t
}

// Route returns the route for op. Undeclared operations are one-shot.
func (t *Table) Route(op string) Route {
	if r, ok := t.routes[op]; ok {
		return r
	}
	return Route{Kind: correlation.KindOneShot}
}

// Ops returns the declared operation names, sorted.
func (t *Table) Ops() []string {
	ops := make([]string, 0, len(t.routes))
	for op := range t.routes {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
