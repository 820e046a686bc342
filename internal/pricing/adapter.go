package pricing

import (
	"context"
	"slices"
)

// Adapter is one orderable, activatable step of a pricing run over a
// resolved context C. IsActivatedFor must be pure. Calculate must return the
// same rows for the same inputs and must not modify sheet.
type Adapter[C any] interface {
	Key() string
	Label() string
	Version() string
	OrderIndex() int
	IsActivatedFor(c C) bool
	Calculate(ctx context.Context, c C, sheet *Sheet, discounts []Discount) ([]Row, error)
}

// Configurable is implemented by adapters that can report misconfiguration
// before a run starts.
type Configurable interface {
	ConfigurationError() error
}

// Identity carries the registry identity of an adapter and is meant to be embedded.
type Identity struct {
	key        string
	label      string
	version    string
	orderIndex int
}

// NewIdentity returns an Identity for an adapter.
func NewIdentity(key, label, version string, orderIndex int) Identity {
	return Identity{key: key, label: label, version: version, orderIndex: orderIndex}
}

func (i Identity) Key() string     { return i.key }
func (i Identity) Label() string   { return i.label }
func (i Identity) Version() string { return i.version }
func (i Identity) OrderIndex() int { return i.orderIndex }

// Func adapts plain functions to Adapter. A nil Activated activates always.
type Func[C any] struct {
	Identity
	Activated func(C) bool
	Fn        func(ctx context.Context, c C, sheet *Sheet, discounts []Discount) ([]Row, error)
}

func (f Func[C]) IsActivatedFor(c C) bool {
	if f.Activated == nil {
		return true
	}
	return f.Activated(c)
}

func (f Func[C]) Calculate(ctx context.Context, c C, sheet *Sheet, discounts []Discount) ([]Row, error) {
	if f.Fn == nil {
		return nil, NewError(CodeNotImplemented, f.Key(), nil)
	}
	return f.Fn(ctx, c, sheet, discounts)
}

// Actions binds an adapter to the inputs of one invocation.
type Actions[C any] struct {
	adapter     Adapter[C]
	context     C
	sheet       *Sheet
	discounts   []Discount
	calculation []Row
}

// NewActions prepares an invocation of a against sheet.
func NewActions[C any](a Adapter[C], c C, sheet *Sheet, discounts []Discount) *Actions[C] {
	return &Actions[C]{adapter: a, context: c, sheet: sheet, discounts: discounts}
}

// Calculate invokes the adapter and returns the new rows it produced.
func (a *Actions[C]) Calculate(ctx context.Context) ([]Row, error) {
	rows, err := a.adapter.Calculate(ctx, a.context, a.sheet, slices.Clone(a.discounts))
	if err != nil {
		return nil, err
	}
	a.calculation = rows
	return slices.Clone(rows), nil
}

// Calculation returns the rows produced by the last successful Calculate.
func (a *Actions[C]) Calculation() []Row {
	return slices.Clone(a.calculation)
}

// Context returns the resolved context the adapter runs against.
func (a *Actions[C]) Context() C {
	return a.context
}

// ResultSheet returns the input sheet with the calculated rows appended.
func (a *Actions[C]) ResultSheet() *Sheet {
	return a.sheet.Append(a.calculation...)
}
