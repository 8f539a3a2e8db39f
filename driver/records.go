// Package driver orchestrates one conversion pass: it iterates the steps of
// a source, negotiates incremental updates through the change-detection
// probes, fetches only what changed, and hands assembled per-step records to
// a handler for serialization.
package driver

import (
	"github.com/TheBB/CICO/api"
)

// BasisInfo pairs a basis with its fields and geometry candidates, in the
// order the source yields them.
type BasisInfo[B api.Basis, F api.Field] struct {
	Basis      B
	Fields     []F
	Geometries []F
}

// Header is the static part of the output, written once per pass before any
// step: the source properties verbatim, plus the enumeration of bases,
// fields and zones.
type Header[B api.Basis, F api.Field, Z api.Zone] struct {
	Properties api.SourceProperties
	Bases      []BasisInfo[B, F]
	Zones      []Z
}

// TopologyRecord is one entry of a step's topology list. An update record
// carries the zone and its fetched topology. A no-update marker carries only
// the basis: the sink must note "unchanged" explicitly so that sinks which
// replicate prior-step data by reference can do so.
type TopologyRecord[B api.Basis, Z api.Zone] struct {
	Basis    B
	Zone     Z
	Updates  bool
	Topology *api.Topology
}

// Marker reports whether the record is a no-update marker.
func (r *TopologyRecord[B, Z]) Marker() bool { return !r.Updates && r.Topology == nil }

// FieldRecord is the field counterpart of TopologyRecord.
type FieldRecord[F api.Field, Z api.Zone] struct {
	Field   F
	Zone    Z
	Updates bool
	Data    *api.FieldData
}

// Marker reports whether the record is a no-update marker.
func (r *FieldRecord[F, Z]) Marker() bool { return !r.Updates && r.Data == nil }

// StepRecord is the full per-step record handed to the handler: the step
// itself, the topology records of every basis and the data records of every
// field, in the ordering of the conversion algorithm (geometry basis and
// geometry field first).
type StepRecord[B api.Basis, F api.Field, S api.Step, Z api.Zone] struct {
	Step       S
	Topologies []TopologyRecord[B, Z]
	Data       []FieldRecord[F, Z]
}
