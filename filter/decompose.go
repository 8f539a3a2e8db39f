package filter

import (
	"context"
	"fmt"
	"iter"

	"github.com/TheBB/CICO/api"
)

var componentSuffixes = []string{"x", "y", "z"}

// componentField presents one component of a vector field as a scalar field.
type componentField struct {
	api.Field
	comp int
}

func (f *componentField) Name() string {
	if f.comp < len(componentSuffixes) {
		return fmt.Sprintf("%s_%s", f.Field.Name(), componentSuffixes[f.comp])
	}
	return fmt.Sprintf("%s_%d", f.Field.Name(), f.comp+1)
}

func (f *componentField) NumComps() int { return 1 }
func (f *componentField) Splittable() bool { return false }
func (f *componentField) Kind() api.FieldKind { return api.KindScalar }

// Decompose supplements every splittable vector field with per-component
// scalar fields. The original vector field stays visible alongside its
// components.
type Decompose struct {
	*Passthrough
}

// NewDecompose wraps src in component splitting.
func NewDecompose(src api.AnySource) *Decompose {
	return &Decompose{Passthrough: NewPassthrough(src)}
}

func (d *Decompose) Fields(basis api.Basis) iter.Seq[api.Field] {
	return func(yield func(api.Field) bool) {
		for field := range d.Passthrough.Fields(basis) {
			if !yield(field) {
				return
			}
			if !field.Splittable() || field.NumComps() < 2 {
				continue
			}
			for comp := 0; comp < field.NumComps(); comp++ {
				if !yield(&componentField{Field: field, comp: comp}) {
					return
				}
			}
		}
	}
}

func (d *Decompose) BasisOf(field api.Field) (api.Basis, error) {
	if comp, ok := field.(*componentField); ok {
		return d.Passthrough.BasisOf(comp.Field)
	}
	return d.Passthrough.BasisOf(field)
}

func (d *Decompose) FieldUpdates(step api.Step, field api.Field) bool {
	if comp, ok := field.(*componentField); ok {
		return d.Passthrough.FieldUpdates(step, comp.Field)
	}
	return d.Passthrough.FieldUpdates(step, field)
}

func (d *Decompose) FieldData(ctx context.Context, step api.Step, field api.Field, zone api.Zone) (*api.FieldData, error) {
	comp, ok := field.(*componentField)
	if !ok {
		return d.Passthrough.FieldData(ctx, step, field, zone)
	}
	data, err := d.Passthrough.FieldData(ctx, step, comp.Field, zone)
	if err != nil {
		return nil, err
	}
	return data.Component(comp.comp), nil
}
