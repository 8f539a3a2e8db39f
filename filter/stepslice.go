package filter

import (
	"context"
	"iter"

	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
)

// slicedStep presents an underlying step under a new consecutive index.
type slicedStep struct {
	api.Step
	index int
}

func (s *slicedStep) Index() int { return s.index }

func unslice(step api.Step) api.Step {
	if sliced, ok := step.(*slicedStep); ok {
		return sliced.Step
	}
	return step
}

// accumulator tracks change probes across skipped steps. Updates that fire
// while a step is being skipped are carried forward and reported, OR-ed
// together, on the next step that survives the slice.
type accumulator struct {
	src    api.AnySource
	bases  []api.Basis
	fields []api.Field
	topo   map[string]bool
	data   map[string]bool
}

func newAccumulator(src api.AnySource) *accumulator {
	acc := &accumulator{src: src}
	for basis := range src.Bases() {
		acc.bases = append(acc.bases, basis)
		for field := range src.Geometries(basis) {
			acc.fields = append(acc.fields, field)
		}
		for field := range src.Fields(basis) {
			acc.fields = append(acc.fields, field)
		}
	}
	acc.reset()
	return acc
}

// absorb folds the probes of one underlying step into the pending state.
func (a *accumulator) absorb(step api.Step) {
	for _, basis := range a.bases {
		if a.src.TopologyUpdates(step, basis) {
			a.topo[basis.Name()] = true
		}
	}
	for _, field := range a.fields {
		if a.src.FieldUpdates(step, field) {
			a.data[field.Name()] = true
		}
	}
}

func (a *accumulator) reset() {
	a.topo = make(map[string]bool)
	a.data = make(map[string]bool)
}

// StepSlice passes through only the steps whose ordinal position falls in
// [start, stop) with the given stride, re-indexed consecutively from zero.
// Change probes of skipped steps are folded into the next surviving step, so
// downstream consumers never miss an update.
type StepSlice struct {
	*Passthrough

	logger *zap.Logger
	start  int
	stop   int
	stride int

	acc *accumulator
}

// NewStepSlice slices the step sequence of src. A negative stop means
// unbounded; a stride below one is treated as one.
func NewStepSlice(src api.AnySource, start, stop, stride int, logger *zap.Logger) *StepSlice {
	if start < 0 {
		start = 0
	}
	if stride < 1 {
		stride = 1
	}
	return &StepSlice{
		Passthrough: NewPassthrough(src),
		logger:      logger,
		start:       start,
		stop:        stop,
		stride:      stride,
	}
}

func (s *StepSlice) selected(ordinal int) bool {
	if ordinal < s.start {
		return false
	}
	if s.stop >= 0 && ordinal >= s.stop {
		return false
	}
	return (ordinal-s.start)%s.stride == 0
}

func (s *StepSlice) Steps() iter.Seq2[api.Step, error] {
	inner := s.Passthrough.Steps()
	return func(yield func(api.Step, error) bool) {
		s.acc = newAccumulator(s.Passthrough.src)
		ordinal := 0
		out := 0
		for step, err := range inner {
			if err != nil {
				yield(nil, err)
				return
			}
			s.acc.absorb(step)
			if s.selected(ordinal) {
				if !yield(&slicedStep{Step: step, index: out}, nil) {
					return
				}
				out++
				s.acc.reset()
			} else {
				s.logger.Debug("Step skipped", zap.Int("index", step.Index()))
			}
			ordinal++
			if s.stop >= 0 && ordinal >= s.stop {
				return
			}
		}
	}
}

func (s *StepSlice) TopologyUpdates(step api.Step, basis api.Basis) bool {
	return s.acc.topo[basis.Name()]
}

func (s *StepSlice) FieldUpdates(step api.Step, field api.Field) bool {
	return s.acc.data[field.Name()]
}

func (s *StepSlice) Topology(ctx context.Context, step api.Step, basis api.Basis, zone api.Zone) (*api.Topology, error) {
	return s.Passthrough.Topology(ctx, unslice(step), basis, zone)
}

func (s *StepSlice) FieldData(ctx context.Context, step api.Step, field api.Field, zone api.Zone) (*api.FieldData, error) {
	return s.Passthrough.FieldData(ctx, unslice(step), field, zone)
}

// LastStep discards all but the final step and presents the result as an
// instantaneous source. All updates along the way are folded into the single
// surviving step.
type LastStep struct {
	*Passthrough

	logger *zap.Logger
	acc    *accumulator
}

// NewLastStep keeps only the final step of src.
func NewLastStep(src api.AnySource, logger *zap.Logger) *LastStep {
	return &LastStep{Passthrough: NewPassthrough(src), logger: logger}
}

func (l *LastStep) Properties() api.SourceProperties {
	props := l.Passthrough.Properties()
	props.Instantaneous = true
	return props
}

func (l *LastStep) Steps() iter.Seq2[api.Step, error] {
	inner := l.Passthrough.Steps()
	return func(yield func(api.Step, error) bool) {
		l.acc = newAccumulator(l.Passthrough.src)
		var last api.Step
		for step, err := range inner {
			if err != nil {
				yield(nil, err)
				return
			}
			l.acc.absorb(step)
			last = step
		}
		if last == nil {
			return
		}
		l.logger.Debug("Final step selected", zap.Int("index", last.Index()))
		yield(&slicedStep{Step: last, index: 0}, nil)
	}
}

func (l *LastStep) TopologyUpdates(step api.Step, basis api.Basis) bool {
	return l.acc.topo[basis.Name()]
}

func (l *LastStep) FieldUpdates(step api.Step, field api.Field) bool {
	return l.acc.data[field.Name()]
}

func (l *LastStep) Topology(ctx context.Context, step api.Step, basis api.Basis, zone api.Zone) (*api.Topology, error) {
	return l.Passthrough.Topology(ctx, unslice(step), basis, zone)
}

func (l *LastStep) FieldData(ctx context.Context, step api.Step, field api.Field, zone api.Zone) (*api.FieldData, error) {
	return l.Passthrough.FieldData(ctx, unslice(step), field, zone)
}
