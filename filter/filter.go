// Package filter provides source-to-source transformations. Filters wrap an
// erased source and present the same contract with altered semantics, so
// chains can be assembled at runtime from configuration.
package filter

import (
	"context"
	"iter"

	"github.com/TheBB/CICO/api"
)

// Passthrough delegates every operation to the wrapped source unchanged.
// Concrete filters embed it and override the operations they alter.
type Passthrough struct {
	src api.AnySource
}

// NewPassthrough wraps src without altering it.
func NewPassthrough(src api.AnySource) *Passthrough {
	return &Passthrough{src: src}
}

func (p *Passthrough) Properties() api.SourceProperties { return p.src.Properties() }

func (p *Passthrough) Open(ctx context.Context) error { return p.src.Open(ctx) }

func (p *Passthrough) Close() error { return p.src.Close() }

func (p *Passthrough) Bases() iter.Seq[api.Basis] { return p.src.Bases() }

func (p *Passthrough) Fields(basis api.Basis) iter.Seq[api.Field] {
	return p.src.Fields(basis)
}

func (p *Passthrough) Geometries(basis api.Basis) iter.Seq[api.Field] {
	return p.src.Geometries(basis)
}

func (p *Passthrough) BasisOf(field api.Field) (api.Basis, error) {
	return p.src.BasisOf(field)
}

func (p *Passthrough) Zones() iter.Seq[api.Zone] { return p.src.Zones() }

func (p *Passthrough) Steps() iter.Seq2[api.Step, error] { return p.src.Steps() }

func (p *Passthrough) TopologyUpdates(step api.Step, basis api.Basis) bool {
	return p.src.TopologyUpdates(step, basis)
}

func (p *Passthrough) FieldUpdates(step api.Step, field api.Field) bool {
	return p.src.FieldUpdates(step, field)
}

func (p *Passthrough) Topology(ctx context.Context, step api.Step, basis api.Basis, zone api.Zone) (*api.Topology, error) {
	return p.src.Topology(ctx, step, basis, zone)
}

func (p *Passthrough) FieldData(ctx context.Context, step api.Step, field api.Field, zone api.Zone) (*api.FieldData, error) {
	return p.src.FieldData(ctx, step, field, zone)
}

var _ api.AnySource = (*Passthrough)(nil)
