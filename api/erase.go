package api

import (
	"context"
	"iter"
)

// Erase adapts a concretely-typed source to AnySource so it can enter an
// interface-typed filter chain. Descriptors handed back to the source are
// asserted to the concrete types; a foreign descriptor is a contract
// violation and is reported as such where the method can return an error,
// and panics otherwise.
func Erase[B Basis, F Field, S Step, Z Zone](src Source[B, F, S, Z]) AnySource {
	if e, ok := any(src).(*erased[B, F, S, Z]); ok {
		return e
	}
	return &erased[B, F, S, Z]{src: src}
}

type erased[B Basis, F Field, S Step, Z Zone] struct {
	src Source[B, F, S, Z]
}

func recast[T any](v any, what string) T {
	t, ok := v.(T)
	if !ok {
		panic(Contractf("%s descriptor does not belong to this source", what))
	}
	return t
}

func (e *erased[B, F, S, Z]) Properties() SourceProperties { return e.src.Properties() }

func (e *erased[B, F, S, Z]) Open(ctx context.Context) error { return e.src.Open(ctx) }

func (e *erased[B, F, S, Z]) Close() error { return e.src.Close() }

func (e *erased[B, F, S, Z]) Bases() iter.Seq[Basis] {
	return func(yield func(Basis) bool) {
		for b := range e.src.Bases() {
			if !yield(b) {
				return
			}
		}
	}
}

func (e *erased[B, F, S, Z]) Fields(basis Basis) iter.Seq[Field] {
	b := recast[B](basis, "basis")
	return func(yield func(Field) bool) {
		for f := range e.src.Fields(b) {
			if !yield(f) {
				return
			}
		}
	}
}

func (e *erased[B, F, S, Z]) Geometries(basis Basis) iter.Seq[Field] {
	b := recast[B](basis, "basis")
	return func(yield func(Field) bool) {
		for f := range e.src.Geometries(b) {
			if !yield(f) {
				return
			}
		}
	}
}

func (e *erased[B, F, S, Z]) BasisOf(field Field) (Basis, error) {
	f, ok := field.(F)
	if !ok {
		return nil, Contractf("field %q does not belong to this source", field.Name())
	}
	return e.src.BasisOf(f)
}

func (e *erased[B, F, S, Z]) Zones() iter.Seq[Zone] {
	return func(yield func(Zone) bool) {
		for z := range e.src.Zones() {
			if !yield(z) {
				return
			}
		}
	}
}

func (e *erased[B, F, S, Z]) Steps() iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		for s, err := range e.src.Steps() {
			if !yield(s, err) {
				return
			}
		}
	}
}

func (e *erased[B, F, S, Z]) TopologyUpdates(step Step, basis Basis) bool {
	return e.src.TopologyUpdates(recast[S](step, "step"), recast[B](basis, "basis"))
}

func (e *erased[B, F, S, Z]) FieldUpdates(step Step, field Field) bool {
	return e.src.FieldUpdates(recast[S](step, "step"), recast[F](field, "field"))
}

func (e *erased[B, F, S, Z]) Topology(ctx context.Context, step Step, basis Basis, zone Zone) (*Topology, error) {
	s, ok := step.(S)
	if !ok {
		return nil, Contractf("step %d does not belong to this source", step.Index())
	}
	b, ok := basis.(B)
	if !ok {
		return nil, Contractf("basis %q does not belong to this source", basis.Name())
	}
	z, ok := zone.(Z)
	if !ok {
		return nil, Contractf("zone %q does not belong to this source", zone.Key())
	}
	return e.src.Topology(ctx, s, b, z)
}

func (e *erased[B, F, S, Z]) FieldData(ctx context.Context, step Step, field Field, zone Zone) (*FieldData, error) {
	s, ok := step.(S)
	if !ok {
		return nil, Contractf("step %d does not belong to this source", step.Index())
	}
	f, ok := field.(F)
	if !ok {
		return nil, Contractf("field %q does not belong to this source", field.Name())
	}
	z, ok := zone.(Z)
	if !ok {
		return nil, Contractf("zone %q does not belong to this source", zone.Key())
	}
	return e.src.FieldData(ctx, s, f, z)
}
