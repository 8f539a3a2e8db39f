package filter

import (
	"context"
	"errors"
	"iter"

	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
)

// multiStep presents a step of one constituent source under a global index.
type multiStep struct {
	api.Step
	index  int
	source int
}

func (s *multiStep) Index() int { return s.index }

// table resolves the descriptors of one constituent source by name, so
// descriptors handed out by the first source can be translated before
// delegating to any of the others.
type table struct {
	bases  map[string]api.Basis
	fields map[string]api.Field
	zones  map[string]api.Zone
}

// MultiSource concatenates several compatible sources into one step
// sequence. All sources must expose the same bases, fields and zone keys;
// descriptors are resolved by name against the source owning the current
// step. Step indices are renumbered consecutively across the whole sequence.
type MultiSource struct {
	sources []api.AnySource
	logger  *zap.Logger
	tables  []table
}

// NewMultiSource concatenates sources in order.
func NewMultiSource(sources []api.AnySource, logger *zap.Logger) *MultiSource {
	return &MultiSource{sources: sources, logger: logger}
}

// Properties reports the first source's properties. The concatenation spans
// several step sequences, so it is never instantaneous even when its
// constituents are.
func (m *MultiSource) Properties() api.SourceProperties {
	props := m.sources[0].Properties()
	props.Instantaneous = false
	return props
}

func (m *MultiSource) Open(ctx context.Context) error {
	m.tables = make([]table, len(m.sources))
	for i, src := range m.sources {
		if err := src.Open(ctx); err != nil {
			return err
		}
		t := table{
			bases:  make(map[string]api.Basis),
			fields: make(map[string]api.Field),
			zones:  make(map[string]api.Zone),
		}
		for basis := range src.Bases() {
			t.bases[basis.Name()] = basis
			for field := range src.Geometries(basis) {
				t.fields[field.Name()] = field
			}
			for field := range src.Fields(basis) {
				t.fields[field.Name()] = field
			}
		}
		for zone := range src.Zones() {
			t.zones[zone.Key()] = zone
		}
		m.tables[i] = t
	}
	return nil
}

func (m *MultiSource) Close() error {
	var errs []error
	for _, src := range m.sources {
		errs = append(errs, src.Close())
	}
	return errors.Join(errs...)
}

func (m *MultiSource) Bases() iter.Seq[api.Basis] { return m.sources[0].Bases() }

func (m *MultiSource) Fields(basis api.Basis) iter.Seq[api.Field] {
	return m.sources[0].Fields(basis)
}

func (m *MultiSource) Geometries(basis api.Basis) iter.Seq[api.Field] {
	return m.sources[0].Geometries(basis)
}

func (m *MultiSource) BasisOf(field api.Field) (api.Basis, error) {
	return m.sources[0].BasisOf(field)
}

func (m *MultiSource) Zones() iter.Seq[api.Zone] { return m.sources[0].Zones() }

func (m *MultiSource) Steps() iter.Seq2[api.Step, error] {
	return func(yield func(api.Step, error) bool) {
		index := 0
		for i, src := range m.sources {
			m.logger.Debug("Consuming constituent source", zap.Int("ordinal", i))
			for step, err := range src.Steps() {
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(&multiStep{Step: step, index: index, source: i}, nil) {
					return
				}
				index++
			}
		}
	}
}

func (m *MultiSource) TopologyUpdates(step api.Step, basis api.Basis) bool {
	ms := step.(*multiStep)
	local, ok := m.tables[ms.source].bases[basis.Name()]
	if !ok {
		return true
	}
	return m.sources[ms.source].TopologyUpdates(ms.Step, local)
}

func (m *MultiSource) FieldUpdates(step api.Step, field api.Field) bool {
	ms := step.(*multiStep)
	local, ok := m.tables[ms.source].fields[field.Name()]
	if !ok {
		return true
	}
	return m.sources[ms.source].FieldUpdates(ms.Step, local)
}

func (m *MultiSource) Topology(ctx context.Context, step api.Step, basis api.Basis, zone api.Zone) (*api.Topology, error) {
	ms := step.(*multiStep)
	t := m.tables[ms.source]
	local, ok := t.bases[basis.Name()]
	if !ok {
		return nil, api.Contractf("basis %q not declared by constituent source %d", basis.Name(), ms.source)
	}
	localZone, ok := t.zones[zone.Key()]
	if !ok {
		return nil, api.Contractf("zone %q not declared by constituent source %d", zone.Key(), ms.source)
	}
	return m.sources[ms.source].Topology(ctx, ms.Step, local, localZone)
}

func (m *MultiSource) FieldData(ctx context.Context, step api.Step, field api.Field, zone api.Zone) (*api.FieldData, error) {
	ms := step.(*multiStep)
	t := m.tables[ms.source]
	local, ok := t.fields[field.Name()]
	if !ok {
		return nil, api.Contractf("field %q not declared by constituent source %d", field.Name(), ms.source)
	}
	localZone, ok := t.zones[zone.Key()]
	if !ok {
		return nil, api.Contractf("zone %q not declared by constituent source %d", zone.Key(), ms.source)
	}
	return m.sources[ms.source].FieldData(ctx, ms.Step, local, localZone)
}

var _ api.AnySource = (*MultiSource)(nil)
