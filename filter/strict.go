package filter

import (
	"context"
	"iter"

	"github.com/TheBB/CICO/api"
)

// probeKey identifies one change probe: a step index and a descriptor name.
type probeKey struct {
	step int
	name string
}

// Strict validates the wrapped source against the contract as data flows
// through it: step indices must be strictly increasing, fetches must target
// declared descriptors and be preceded by a change probe for the same step,
// and payload shapes must be internally consistent. Violations surface as
// contract errors on the operation that exposed them.
//
// A fetch after a probe that answered false is allowed: the first step of a
// pass is force-fetched regardless of the probe's answer.
type Strict struct {
	*Passthrough

	bases  map[string]struct{}
	fields map[string]struct{}
	zones  map[string]struct{}

	probedTopo map[probeKey]struct{}
	probedData map[probeKey]struct{}
}

// NewStrict wraps src in contract validation.
func NewStrict(src api.AnySource) *Strict {
	return &Strict{
		Passthrough: NewPassthrough(src),
		probedTopo:  make(map[probeKey]struct{}),
		probedData:  make(map[probeKey]struct{}),
	}
}

// catalog enumerates the declared descriptors once, on first use, so fetches
// for names the source never handed out can be rejected.
func (s *Strict) catalog() {
	if s.bases != nil {
		return
	}
	s.bases = make(map[string]struct{})
	s.fields = make(map[string]struct{})
	s.zones = make(map[string]struct{})
	for basis := range s.Passthrough.Bases() {
		s.bases[basis.Name()] = struct{}{}
		for field := range s.Passthrough.Geometries(basis) {
			s.fields[field.Name()] = struct{}{}
		}
		for field := range s.Passthrough.Fields(basis) {
			s.fields[field.Name()] = struct{}{}
		}
	}
	for zone := range s.Passthrough.Zones() {
		s.zones[zone.Key()] = struct{}{}
	}
}

func (s *Strict) Steps() iter.Seq2[api.Step, error] {
	inner := s.Passthrough.Steps()
	return func(yield func(api.Step, error) bool) {
		first := true
		last := 0
		for step, err := range inner {
			if err == nil && !first && step.Index() <= last {
				yield(nil, api.Contractf("step index %d not above preceding index %d", step.Index(), last))
				return
			}
			if !yield(step, err) || err != nil {
				return
			}
			first = false
			last = step.Index()
		}
	}
}

func (s *Strict) TopologyUpdates(step api.Step, basis api.Basis) bool {
	s.probedTopo[probeKey{step.Index(), basis.Name()}] = struct{}{}
	return s.Passthrough.TopologyUpdates(step, basis)
}

func (s *Strict) FieldUpdates(step api.Step, field api.Field) bool {
	s.probedData[probeKey{step.Index(), field.Name()}] = struct{}{}
	return s.Passthrough.FieldUpdates(step, field)
}

func (s *Strict) Topology(ctx context.Context, step api.Step, basis api.Basis, zone api.Zone) (*api.Topology, error) {
	s.catalog()
	if _, ok := s.bases[basis.Name()]; !ok {
		return nil, api.Contractf("topology fetch for undeclared basis %q", basis.Name())
	}
	if _, ok := s.zones[zone.Key()]; !ok {
		return nil, api.Contractf("topology fetch for undeclared zone %q", zone.Key())
	}
	if _, ok := s.probedTopo[probeKey{step.Index(), basis.Name()}]; !ok {
		return nil, api.Contractf("topology of basis %q fetched at step %d without a change probe",
			basis.Name(), step.Index())
	}
	topology, err := s.Passthrough.Topology(ctx, step, basis, zone)
	if err != nil {
		return nil, err
	}
	if topology.NumCells != len(topology.Cells) {
		return nil, api.Contractf("topology of basis %q declares %d cells but carries %d",
			basis.Name(), topology.NumCells, len(topology.Cells))
	}
	verts := topology.CellType.NumVerts()
	for i, cell := range topology.Cells {
		if len(cell) != verts {
			return nil, api.Contractf("cell %d of basis %q has %d vertices, %s needs %d",
				i, basis.Name(), len(cell), topology.CellType, verts)
		}
		for _, node := range cell {
			if node < 0 || node >= topology.NumNodes {
				return nil, api.Contractf("cell %d of basis %q references node %d outside [0, %d)",
					i, basis.Name(), node, topology.NumNodes)
			}
		}
	}
	return topology, nil
}

func (s *Strict) FieldData(ctx context.Context, step api.Step, field api.Field, zone api.Zone) (*api.FieldData, error) {
	s.catalog()
	if _, ok := s.fields[field.Name()]; !ok {
		return nil, api.Contractf("data fetch for undeclared field %q", field.Name())
	}
	if _, ok := s.zones[zone.Key()]; !ok {
		return nil, api.Contractf("data fetch for undeclared zone %q", zone.Key())
	}
	if _, ok := s.probedData[probeKey{step.Index(), field.Name()}]; !ok {
		return nil, api.Contractf("data of field %q fetched at step %d without a change probe",
			field.Name(), step.Index())
	}
	data, err := s.Passthrough.FieldData(ctx, step, field, zone)
	if err != nil {
		return nil, err
	}
	if data.NumComps != field.NumComps() {
		return nil, api.Contractf("field %q declares %d components but its data carries %d",
			field.Name(), field.NumComps(), data.NumComps)
	}
	if data.NumComps > 0 && len(data.Data)%data.NumComps != 0 {
		return nil, api.Contractf("field %q data length %d not divisible by %d components",
			field.Name(), len(data.Data), data.NumComps)
	}
	return data, nil
}
