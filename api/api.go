// Package api defines the contracts between data sources and sinks: the
// descriptor interfaces (Basis, Field, Step, Zone), the Source and Sink
// contracts, the change-detection protocol, and the payload types exchanged
// between them.
package api

import (
	"context"
	"iter"
)

// Basis is a named coordinate or function space over which fields are
// defined. A source may expose several bases, e.g. different meshes sharing
// one simulation.
type Basis interface {
	// Name uniquely identifies the basis within one source.
	Name() string

	// ParDim is the parametric dimension of the basis.
	ParDim() int
}

// Field is a named quantity defined over a basis.
type Field interface {
	// Name uniquely identifies the field within its basis.
	Name() string

	// NumComps is the number of components per node or cell.
	NumComps() int

	// Cellwise reports whether the field is defined per cell rather than
	// per node.
	Cellwise() bool

	// Splittable reports whether the field may be decomposed into
	// per-component scalar fields.
	Splittable() bool

	// Kind classifies the field as scalar, vector or geometry.
	Kind() FieldKind

	// Interpretation refines the classification for vector fields.
	Interpretation() Interpretation

	// Coords is the coordinate-system tag for geometry fields, empty
	// otherwise.
	Coords() string
}

// Step is one instant or configuration in the time or load sequence.
type Step interface {
	// Index is the 0-based ordinal of the step. Indices are unique and
	// strictly increasing across the iteration order of Source.Steps.
	Index() int

	// Value is the physical coordinate of the step (time, load level,
	// eigenvalue). The second return is false when the step has no value;
	// how a value is presented downstream is governed by the source's
	// StepInterpretation.
	Value() (float64, bool)
}

// Zone is one connected piece of the domain, such as a patch or block.
type Zone interface {
	// Key is a stable identifier, unique within one basis/step pairing.
	// If the source is globally keyed, the key is stable across all bases
	// and steps.
	Key() string

	// Shape is the topological kind of the zone.
	Shape() Shape

	// Coords are the corner points of the zone in reference space.
	Coords() [][]float64
}

// Source is a polymorphic data provider. It exposes the set of bases,
// fields and zones, the ordered sequence of steps, and, per step,
// change-detection probes and on-demand data retrieval.
//
// All descriptor sequences are stable for the life of the source, except
// Steps, which is lazy, finite, forward-only and not restartable: a second
// pass requires a new source instance.
//
// Query methods may perform blocking I/O. The caller drives them strictly
// sequentially; a source never sees concurrent calls.
type Source[B Basis, F Field, S Step, Z Zone] interface {
	// Properties describes the source. Fixed per instance, queried once.
	Properties() SourceProperties

	// Open prepares the source for a conversion pass.
	Open(ctx context.Context) error

	// Close releases resources held by the source.
	Close() error

	// Bases yields the bases of the source, in a stable order.
	Bases() iter.Seq[B]

	// Fields yields the fields associated with basis, in a stable order.
	Fields(basis B) iter.Seq[F]

	// Geometries yields exactly the fields usable as the geometry of
	// basis.
	Geometries(basis B) iter.Seq[F]

	// BasisOf resolves the owning basis of a field.
	BasisOf(field F) (B, error)

	// Zones yields the zones of the source, in a stable order, valid for
	// the current conversion pass.
	Zones() iter.Seq[Z]

	// Steps produces the step sequence. Consumers must not assume it can
	// be replayed.
	Steps() iter.Seq2[S, error]

	// TopologyUpdates reports whether the topology for basis differs from
	// what was last reported for the immediately preceding step. For the
	// first step consumed for a basis it must report true.
	TopologyUpdates(step S, basis B) bool

	// FieldUpdates is the TopologyUpdates contract scoped to a field.
	FieldUpdates(step S, field F) bool

	// Topology fetches the topology of zone under basis at step. It is
	// only invoked after TopologyUpdates reported true for (step, basis).
	Topology(ctx context.Context, step S, basis B, zone Z) (*Topology, error)

	// FieldData fetches the values of field on zone at step. It is only
	// invoked after FieldUpdates reported true for (step, field).
	FieldData(ctx context.Context, step S, field F, zone Z) (*FieldData, error)
}

// Sink consumes a source and serializes it. Configure must be called before
// Consume. Consume owns the output resource for its full duration: it is
// opened on entry and finalized on every exit path, error paths included.
type Sink[B Basis, F Field, S Step, Z Zone] interface {
	// Properties declares what shapes of data the sink accepts.
	Properties() SinkProperties

	// Configure applies sink settings. Unrecognized option values are
	// rejected here, not silently ignored.
	Configure(settings Settings) error

	// Consume drives one full pass over the source, using geometry as the
	// primary geometry field.
	Consume(ctx context.Context, src Source[B, F, S, Z], geometry F) error
}

// AnySource is a source erased to the descriptor interface types. Filter
// chains whose shape is only known at runtime are composed at this level.
type AnySource = Source[Basis, Field, Step, Zone]

// AnySink is the sink counterpart of AnySource.
type AnySink = Sink[Basis, Field, Step, Zone]
