package driver

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
	"github.com/TheBB/CICO/metrics"
)

// Handler receives the assembled output of a pass. Concrete sinks implement
// it and drive Run from their Consume method.
type Handler[B api.Basis, F api.Field, S api.Step, Z api.Zone] interface {
	// WriteHeader receives the static header, exactly once, before any
	// step.
	WriteHeader(ctx context.Context, header *Header[B, F, Z]) error

	// WriteStep receives one per-step record. Steps arrive in source
	// order, strictly sequentially.
	WriteStep(ctx context.Context, rec *StepRecord[B, F, S, Z]) error
}

// CheckpointFunc persists the index of the last finalized step so an
// interrupted pass can be resumed.
type CheckpointFunc func(ctx context.Context, index int) error

// Options tune a pass. The zero value is valid.
type Options struct {
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
	Checkpoint CheckpointFunc

	// Requirements are re-checked against the source before the pass
	// starts, so a handler driven outside the usual chain assembly still
	// never sees data it cannot represent. The zero value requires
	// nothing.
	Requirements api.SinkProperties
}

// Run performs one full conversion pass over src, handing records to h.
//
// The pass is single-threaded and strictly sequential: one step at a time,
// each step's records fully assembled before the next step is touched, and
// no source call out of order. Within a step, the geometry field and its
// basis are always processed first so sinks can establish coordinate context
// before consuming dependent fields; all other ordering follows the order
// the source yields bases, fields and zones.
//
// Run never retries a failed fetch, and it does not finalize the sink's
// output resource: that is owned by the sink's Consume method, which must
// release it on every exit path.
func Run[B api.Basis, F api.Field, S api.Step, Z api.Zone](
	ctx context.Context,
	src api.Source[B, F, S, Z],
	geometry F,
	h Handler[B, F, S, Z],
	opts Options,
) error {
	err := run(ctx, src, geometry, h, opts)
	if err != nil && opts.Metrics != nil {
		opts.Metrics.RecordError(errorKind(err))
	}
	return err
}

// errorKind maps an error to its metric label.
func errorKind(err error) string {
	var contractErr *api.ContractError
	var fetchErr *api.FetchError
	var serErr *api.SerializationError
	switch {
	case errors.As(err, &contractErr):
		return "contract"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &serErr):
		return "serialization"
	}
	return "other"
}

func run[B api.Basis, F api.Field, S api.Step, Z api.Zone](
	ctx context.Context,
	src api.Source[B, F, S, Z],
	geometry F,
	h Handler[B, F, S, Z],
	opts Options,
) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := checkRequirements(src.Properties(), opts.Requirements); err != nil {
		return err
	}

	header := buildHeader(src)
	if err := h.WriteHeader(ctx, header); err != nil {
		return err
	}
	logger.Debug("Header written",
		zap.Int("bases", len(header.Bases)),
		zap.Int("zones", len(header.Zones)))

	seenTopo := make(map[string]bool)
	seenField := make(map[string]bool)
	lastIndex := -1

	for step, err := range src.Steps() {
		if err != nil {
			return fmt.Errorf("advancing step sequence: %w", err)
		}
		if step.Index() <= lastIndex {
			return api.Contractf("step index %d not above preceding index %d", step.Index(), lastIndex)
		}
		lastIndex = step.Index()

		var timer *metrics.Timer
		if opts.Metrics != nil {
			timer = metrics.NewTimer()
		}

		geomBasis, err := src.BasisOf(geometry)
		if err != nil {
			return fmt.Errorf("resolving basis of geometry %q: %w", geometry.Name(), err)
		}

		rec := &StepRecord[B, F, S, Z]{Step: step}

		appendBasis := func(basis B) error {
			force := !seenTopo[basis.Name()]
			seenTopo[basis.Name()] = true
			for tr, err := range ConsumeBasis(ctx, src, step, basis, force) {
				if err != nil {
					return err
				}
				rec.Topologies = append(rec.Topologies, tr)
			}
			return nil
		}
		appendField := func(field F) error {
			force := !seenField[field.Name()]
			seenField[field.Name()] = true
			for fr, err := range ConsumeField(ctx, src, step, field, force) {
				if err != nil {
					return err
				}
				rec.Data = append(rec.Data, fr)
			}
			return nil
		}

		// Geometry basis and geometry field come first.
		if err := appendBasis(geomBasis); err != nil {
			return err
		}
		if err := appendField(geometry); err != nil {
			return err
		}
		for field := range src.Fields(geomBasis) {
			if field.Name() == geometry.Name() {
				continue
			}
			if err := appendField(field); err != nil {
				return err
			}
		}
		for basis := range src.Bases() {
			if basis.Name() == geomBasis.Name() {
				continue
			}
			if err := appendBasis(basis); err != nil {
				return err
			}
			for field := range src.Fields(basis) {
				if err := appendField(field); err != nil {
					return err
				}
			}
		}

		if err := h.WriteStep(ctx, rec); err != nil {
			return err
		}
		if opts.Metrics != nil {
			var topoFetched, topoSkipped, fieldFetched, fieldSkipped int
			for i := range rec.Topologies {
				if rec.Topologies[i].Marker() {
					topoSkipped++
				} else {
					topoFetched++
				}
			}
			for i := range rec.Data {
				if rec.Data[i].Marker() {
					fieldSkipped++
				} else {
					fieldFetched++
				}
			}
			opts.Metrics.RecordTopologies(topoFetched, topoSkipped)
			opts.Metrics.RecordFields(fieldFetched, fieldSkipped)
			opts.Metrics.RecordStep(timer.Stop())
			opts.Metrics.RecordRecords(len(rec.Topologies) + len(rec.Data))
		}
		logger.Debug("Step finalized",
			zap.Int("index", step.Index()),
			zap.Int("topologies", len(rec.Topologies)),
			zap.Int("data", len(rec.Data)))

		if opts.Checkpoint != nil {
			if err := opts.Checkpoint(ctx, step.Index()); err != nil {
				return fmt.Errorf("checkpointing step %d: %w", step.Index(), err)
			}
		}
	}

	return nil
}

// checkRequirements verifies the source satisfies the sink requirements.
func checkRequirements(src api.SourceProperties, req api.SinkProperties) error {
	if req.RequireInstantaneous && !src.Instantaneous {
		return api.Contractf("sink requires an instantaneous source")
	}
	if req.RequireSingleBasis && !src.SingleBasis {
		return api.Contractf("sink requires a single-basis source")
	}
	if req.RequireSingleZone && !src.SingleZoned {
		return api.Contractf("sink requires a single-zoned source")
	}
	if req.RequireDiscreteTopology && !src.DiscreteTopology {
		return api.Contractf("sink requires discrete topology")
	}
	return nil
}

// buildHeader enumerates bases, fields and zones into the static header.
func buildHeader[B api.Basis, F api.Field, S api.Step, Z api.Zone](src api.Source[B, F, S, Z]) *Header[B, F, Z] {
	header := &Header[B, F, Z]{Properties: src.Properties()}
	for basis := range src.Bases() {
		info := BasisInfo[B, F]{Basis: basis}
		for field := range src.Fields(basis) {
			info.Fields = append(info.Fields, field)
		}
		for field := range src.Geometries(basis) {
			info.Geometries = append(info.Geometries, field)
		}
		header.Bases = append(header.Bases, info)
	}
	for zone := range src.Zones() {
		header.Zones = append(header.Zones, zone)
	}
	return header
}

// ConsumeBasis produces the topology records for one (step, basis) pair: a
// single no-update marker when the topology is unchanged, otherwise one
// update record per zone. The sequence is lazy, single-pass and
// forward-only. When force is set the change probe is still consulted, so
// the source's own change tracking advances, but its answer is overridden;
// callers set it on the first step processed for a basis.
func ConsumeBasis[B api.Basis, F api.Field, S api.Step, Z api.Zone](
	ctx context.Context,
	src api.Source[B, F, S, Z],
	step S,
	basis B,
	force bool,
) iter.Seq2[TopologyRecord[B, Z], error] {
	return func(yield func(TopologyRecord[B, Z], error) bool) {
		updates := src.TopologyUpdates(step, basis)
		if !updates && !force {
			yield(TopologyRecord[B, Z]{Basis: basis}, nil)
			return
		}
		for zone := range src.Zones() {
			topology, err := src.Topology(ctx, step, basis, zone)
			if err != nil {
				yield(TopologyRecord[B, Z]{}, &api.FetchError{
					What: fmt.Sprintf("topology of basis %q, zone %q, step %d", basis.Name(), zone.Key(), step.Index()),
					Err:  err,
				})
				return
			}
			rec := TopologyRecord[B, Z]{Basis: basis, Zone: zone, Updates: true, Topology: topology}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// ConsumeField is the field counterpart of ConsumeBasis.
func ConsumeField[B api.Basis, F api.Field, S api.Step, Z api.Zone](
	ctx context.Context,
	src api.Source[B, F, S, Z],
	step S,
	field F,
	force bool,
) iter.Seq2[FieldRecord[F, Z], error] {
	return func(yield func(FieldRecord[F, Z], error) bool) {
		updates := src.FieldUpdates(step, field)
		if !updates && !force {
			yield(FieldRecord[F, Z]{Field: field}, nil)
			return
		}
		for zone := range src.Zones() {
			data, err := src.FieldData(ctx, step, field, zone)
			if err != nil {
				yield(FieldRecord[F, Z]{}, &api.FetchError{
					What: fmt.Sprintf("data of field %q, zone %q, step %d", field.Name(), zone.Key(), step.Index()),
					Err:  err,
				})
				return
			}
			rec := FieldRecord[F, Z]{Field: field, Zone: zone, Updates: true, Data: data}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
