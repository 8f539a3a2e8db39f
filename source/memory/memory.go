// Package memory provides an in-memory source. It backs tests and
// diagnostics: datasets are declared up front, change-detection answers can
// be scripted per step, and every fetch is recorded so callers can assert on
// the exact sequence of source calls.
package memory

import (
	"context"
	"fmt"
	"iter"

	"github.com/TheBB/CICO/api"
)

// Basis is an in-memory basis descriptor.
type Basis struct {
	name   string
	parDim int
}

func (b *Basis) Name() string { return b.name }
func (b *Basis) ParDim() int { return b.parDim }

// FieldSpec declares a field for AddField and AddGeometry.
type FieldSpec struct {
	Name           string
	NumComps       int
	Cellwise       bool
	Splittable     bool
	Kind           api.FieldKind
	Interpretation api.Interpretation
	Coords         string
}

// Field is an in-memory field descriptor.
type Field struct {
	spec FieldSpec
}

func (f *Field) Name() string { return f.spec.Name }
func (f *Field) NumComps() int { return f.spec.NumComps }
func (f *Field) Cellwise() bool { return f.spec.Cellwise }
func (f *Field) Splittable() bool { return f.spec.Splittable }
func (f *Field) Kind() api.FieldKind { return f.spec.Kind }
func (f *Field) Interpretation() api.Interpretation { return f.spec.Interpretation }
func (f *Field) Coords() string { return f.spec.Coords }

// Step is an in-memory step descriptor.
type Step struct {
	index int
	value *float64
}

func (s *Step) Index() int { return s.index }

func (s *Step) Value() (float64, bool) {
	if s.value == nil {
		return 0, false
	}
	return *s.value, true
}

// Zone is an in-memory zone descriptor.
type Zone struct {
	key    string
	shape  api.Shape
	coords [][]float64
}

func (z *Zone) Key() string { return z.key }
func (z *Zone) Shape() api.Shape { return z.shape }
func (z *Zone) Coords() [][]float64 { return z.coords }

// Source is an in-memory implementation of the source contract.
type Source struct {
	props  api.SourceProperties
	bases  []*Basis
	fields map[string][]*Field
	geoms  map[string][]*Field
	owner  map[string]*Basis
	zones  []*Zone
	steps  []*Step

	topoUpdates  map[string]bool
	fieldUpdates map[string]bool
	topologies   map[string]*api.Topology
	fieldData    map[string]*api.FieldData
	topoErrs     map[string]error
	dataErrs     map[string]error

	// TopologyCalls and FieldDataCalls record every fetch as
	// "index/name/key", in call order.
	TopologyCalls  []string
	FieldDataCalls []string

	stepsStarted bool
}

// New creates an empty source with the given properties.
func New(props api.SourceProperties) *Source {
	return &Source{
		props:        props,
		fields:       make(map[string][]*Field),
		geoms:        make(map[string][]*Field),
		owner:        make(map[string]*Basis),
		topoUpdates:  make(map[string]bool),
		fieldUpdates: make(map[string]bool),
		topologies:   make(map[string]*api.Topology),
		fieldData:    make(map[string]*api.FieldData),
		topoErrs:     make(map[string]error),
		dataErrs:     make(map[string]error),
	}
}

// AddBasis declares a basis.
func (s *Source) AddBasis(name string, parDim int) *Basis {
	basis := &Basis{name: name, parDim: parDim}
	s.bases = append(s.bases, basis)
	return basis
}

// AddField declares a non-geometry field on a basis.
func (s *Source) AddField(basis *Basis, spec FieldSpec) *Field {
	field := &Field{spec: spec}
	s.fields[basis.name] = append(s.fields[basis.name], field)
	s.owner[spec.Name] = basis
	return field
}

// AddGeometry declares a geometry field on a basis.
func (s *Source) AddGeometry(basis *Basis, spec FieldSpec) *Field {
	spec.Kind = api.KindGeometry
	field := &Field{spec: spec}
	s.geoms[basis.name] = append(s.geoms[basis.name], field)
	s.owner[spec.Name] = basis
	return field
}

// AddZone declares a zone.
func (s *Source) AddZone(key string, shape api.Shape, coords [][]float64) *Zone {
	zone := &Zone{key: key, shape: shape, coords: coords}
	s.zones = append(s.zones, zone)
	return zone
}

// AddStep appends a step with a physical value.
func (s *Source) AddStep(index int, value float64) *Step {
	step := &Step{index: index, value: &value}
	s.steps = append(s.steps, step)
	return step
}

// AddBareStep appends a step without a physical value.
func (s *Source) AddBareStep(index int) *Step {
	step := &Step{index: index}
	s.steps = append(s.steps, step)
	return step
}

// SetTopologyUpdates scripts the change probe for (step, basis). Unscripted
// pairs answer true on the source's first step and false afterwards.
func (s *Source) SetTopologyUpdates(step *Step, basis *Basis, updates bool) {
	s.topoUpdates[pairKey(step.index, basis.name)] = updates
}

// SetFieldUpdates scripts the change probe for (step, field).
func (s *Source) SetFieldUpdates(step *Step, field *Field, updates bool) {
	s.fieldUpdates[pairKey(step.index, field.Name())] = updates
}

// SetTopology stores the topology payload for (step, basis, zone).
func (s *Source) SetTopology(step *Step, basis *Basis, zone *Zone, topology *api.Topology) {
	s.topologies[tripleKey(step.index, basis.name, zone.key)] = topology
}

// SetFieldData stores the data payload for (step, field, zone).
func (s *Source) SetFieldData(step *Step, field *Field, zone *Zone, data *api.FieldData) {
	s.fieldData[tripleKey(step.index, field.Name(), zone.key)] = data
}

// FailTopology makes the topology fetch for (step, basis, zone) fail.
func (s *Source) FailTopology(step *Step, basis *Basis, zone *Zone, err error) {
	s.topoErrs[tripleKey(step.index, basis.name, zone.key)] = err
}

// FailFieldData makes the data fetch for (step, field, zone) fail.
func (s *Source) FailFieldData(step *Step, field *Field, zone *Zone, err error) {
	s.dataErrs[tripleKey(step.index, field.Name(), zone.key)] = err
}

func pairKey(index int, name string) string {
	return fmt.Sprintf("%d/%s", index, name)
}

func tripleKey(index int, name, key string) string {
	return fmt.Sprintf("%d/%s/%s", index, name, key)
}

func (s *Source) Properties() api.SourceProperties { return s.props }

func (s *Source) Open(ctx context.Context) error { return nil }

func (s *Source) Close() error { return nil }

func (s *Source) Bases() iter.Seq[*Basis] {
	return func(yield func(*Basis) bool) {
		for _, basis := range s.bases {
			if !yield(basis) {
				return
			}
		}
	}
}

func (s *Source) Fields(basis *Basis) iter.Seq[*Field] {
	return func(yield func(*Field) bool) {
		for _, field := range s.fields[basis.name] {
			if !yield(field) {
				return
			}
		}
	}
}

func (s *Source) Geometries(basis *Basis) iter.Seq[*Field] {
	return func(yield func(*Field) bool) {
		for _, field := range s.geoms[basis.name] {
			if !yield(field) {
				return
			}
		}
	}
}

func (s *Source) BasisOf(field *Field) (*Basis, error) {
	basis, ok := s.owner[field.Name()]
	if !ok {
		return nil, api.Contractf("field %q not declared by this source", field.Name())
	}
	return basis, nil
}

func (s *Source) Zones() iter.Seq[*Zone] {
	return func(yield func(*Zone) bool) {
		for _, zone := range s.zones {
			if !yield(zone) {
				return
			}
		}
	}
}

// Steps yields the step sequence. The sequence is single-pass: a second call
// reports an error, matching the contract that sources need not be
// restartable.
func (s *Source) Steps() iter.Seq2[*Step, error] {
	return func(yield func(*Step, error) bool) {
		if s.stepsStarted {
			yield(nil, api.Contractf("step sequence consumed twice"))
			return
		}
		s.stepsStarted = true
		for _, step := range s.steps {
			if !yield(step, nil) {
				return
			}
		}
	}
}

func (s *Source) TopologyUpdates(step *Step, basis *Basis) bool {
	if updates, ok := s.topoUpdates[pairKey(step.index, basis.name)]; ok {
		return updates
	}
	return s.isFirstStep(step)
}

func (s *Source) FieldUpdates(step *Step, field *Field) bool {
	if updates, ok := s.fieldUpdates[pairKey(step.index, field.Name())]; ok {
		return updates
	}
	return s.isFirstStep(step)
}

func (s *Source) isFirstStep(step *Step) bool {
	return len(s.steps) > 0 && s.steps[0].index == step.index
}

func (s *Source) Topology(ctx context.Context, step *Step, basis *Basis, zone *Zone) (*api.Topology, error) {
	key := tripleKey(step.index, basis.name, zone.key)
	s.TopologyCalls = append(s.TopologyCalls, key)
	if err := s.topoErrs[key]; err != nil {
		return nil, err
	}
	if topology, ok := s.topologies[key]; ok {
		return topology, nil
	}
	return synthTopology(zone), nil
}

func (s *Source) FieldData(ctx context.Context, step *Step, field *Field, zone *Zone) (*api.FieldData, error) {
	key := tripleKey(step.index, field.Name(), zone.key)
	s.FieldDataCalls = append(s.FieldDataCalls, key)
	if err := s.dataErrs[key]; err != nil {
		return nil, err
	}
	if data, ok := s.fieldData[key]; ok {
		return data, nil
	}
	return synthFieldData(step, field, zone), nil
}

// synthTopology derives a deterministic single-cell topology from the zone
// shape, for fixtures that don't store explicit payloads.
func synthTopology(zone *Zone) *api.Topology {
	var celltype api.CellType
	switch zone.shape {
	case api.Line:
		celltype = api.CellLine
	case api.Quadrilateral:
		celltype = api.CellQuadrilateral
	default:
		celltype = api.CellHexahedron
	}
	nodes := celltype.NumVerts()
	cell := make([]int, nodes)
	for i := range cell {
		cell[i] = i
	}
	return &api.Topology{
		CellType: celltype,
		NumNodes: nodes,
		NumCells: 1,
		Cells:    [][]int{cell},
	}
}

// synthFieldData derives deterministic values from the step index and field
// shape, so independently constructed sources produce identical output.
func synthFieldData(step *Step, field *Field, zone *Zone) *api.FieldData {
	dofs := synthTopology(zone).NumNodes
	if field.Cellwise() {
		dofs = 1
	}
	data := make([]float64, dofs*field.NumComps())
	for i := range data {
		data[i] = float64(step.index*1000 + i)
	}
	return &api.FieldData{NumComps: field.NumComps(), Data: data}
}
