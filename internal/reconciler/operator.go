package reconciler

import (
	"context"
	"errors"
	"strings"
)

// ErrAborted is returned by an Operator that wants the whole run to stop.
var ErrAborted = errors.New("operator aborted the run")

// Query is what the operator is shown for one unresolved vehicle
type Query struct {
	Vehicle     string
	Descriptors []string
	KnownUnits  []string
}

// Operator resolves vehicles that neither the vehicle index nor the unit
// pattern could attribute. ok=false leaves the vehicle unresolved; an error
// (ErrAborted in particular) terminates the run.
type Operator interface {
	Resolve(ctx context.Context, q Query) (unit string, ok bool, err error)
}

// Briefer is implemented by operators that want to see the whole pending
// list before the first Resolve call.
type Briefer interface {
	Brief(ctx context.Context, knownUnits, pending []string) error
}

// OperatorFunc adapts a function to the Operator interface
type OperatorFunc func(ctx context.Context, q Query) (string, bool, error)

// Resolve calls f(ctx, q)
func (f OperatorFunc) Resolve(ctx context.Context, q Query) (string, bool, error) {
	return f(ctx, q)
}

// Decline never resolves a vehicle. It is the non-interactive operator.
var Decline Operator = OperatorFunc(func(context.Context, Query) (string, bool, error) {
	return "", false, nil
})

// MapOperator answers from a fixed vehicle → unit table and declines the rest
type MapOperator map[string]string

// Resolve looks the vehicle up in the table
func (m MapOperator) Resolve(_ context.Context, q Query) (string, bool, error) {
	unit, ok := m[q.Vehicle]
	unit = strings.TrimSpace(unit)
	if !ok || unit == "" {
		return "", false, nil
	}
	return unit, true, nil
}

// Chain asks each operator in turn until one resolves the vehicle
func Chain(operators ...Operator) Operator {
	return chain(operators)
}

type chain []Operator

func (c chain) Resolve(ctx context.Context, q Query) (string, bool, error) {
	for _, op := range c {
		unit, ok, err := op.Resolve(ctx, q)
		if err != nil {
			return "", false, err
		}
		if ok {
			return unit, true, nil
		}
	}
	return "", false, nil
}

func (c chain) Brief(ctx context.Context, knownUnits, pending []string) error {
	for _, op := range c {
		if b, ok := op.(Briefer); ok {
			if err := b.Brief(ctx, knownUnits, pending); err != nil {
				return err
			}
		}
	}
	return nil
}
