// Package arrowipc provides a sink writing Arrow IPC streams. Each step
// becomes one record batch; topology and field payloads share a single flat
// schema so the stream can be consumed by any Arrow-aware tool.
package arrowipc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	arrowmem "github.com/apache/arrow/go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
	"github.com/TheBB/CICO/driver"
)

const (
	recordTopology = "topology"
	recordField    = "field"
)

// Sink serializes a conversion pass as an Arrow IPC stream.
type Sink[B api.Basis, F api.Field, S api.Step, Z api.Zone] struct {
	logger *zap.Logger
	path   string

	// Options configure the conversion pass driven by Consume.
	Options driver.Options

	settings   api.Settings
	configured bool

	file    *os.File
	writer  *ipc.Writer
	schema  *arrow.Schema
	builder *array.RecordBuilder
}

// New creates a sink writing to path.
func New[B api.Basis, F api.Field, S api.Step, Z api.Zone](path string, logger *zap.Logger) *Sink[B, F, S, Z] {
	return &Sink[B, F, S, Z]{logger: logger, path: path}
}

// NewAny creates a sink over erased descriptor types, for use at the end of
// a filter chain.
func NewAny(path string, logger *zap.Logger) *Sink[api.Basis, api.Field, api.Step, api.Zone] {
	return New[api.Basis, api.Field, api.Step, api.Zone](path, logger)
}

func (s *Sink[B, F, S, Z]) Properties() api.SinkProperties {
	return api.SinkProperties{RequireDiscreteTopology: true}
}

// Configure validates the settings. Arrow IPC is a binary format with its
// own byte-order handling, so only binary mode with native endianness is
// accepted.
func (s *Sink[B, F, S, Z]) Configure(settings api.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.Mode != api.ModeBinary {
		return api.Contractf("arrow sink does not support %q output mode", string(settings.Mode))
	}
	if settings.Endianness != api.Native {
		return api.Contractf("arrow sink does not support %q endianness", string(settings.Endianness))
	}
	s.settings = settings
	s.configured = true
	return nil
}

// Consume drives one full pass and writes the stream. The output file is
// created on entry and closed on every exit path.
func (s *Sink[B, F, S, Z]) Consume(ctx context.Context, src api.Source[B, F, S, Z], geometry F) error {
	if !s.configured {
		return api.Contractf("arrow sink driven before Configure")
	}

	file, err := os.Create(s.path)
	if err != nil {
		return &api.SerializationError{Sink: "arrow", Err: err}
	}
	s.file = file

	opts := s.Options
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	opts.Requirements = s.Properties()

	runErr := driver.Run(ctx, src, geometry, s, opts)
	if err := s.finalize(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// finalize flushes and closes the stream. Always invoked, so a failed pass
// still leaves a well-formed prefix on disk.
func (s *Sink[B, F, S, Z]) finalize() error {
	var failed error
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			failed = err
		}
		s.writer = nil
	}
	if s.builder != nil {
		s.builder.Release()
		s.builder = nil
	}
	if err := s.file.Close(); err != nil && failed == nil {
		failed = err
	}
	if failed != nil {
		return &api.SerializationError{Sink: "arrow", Err: failed}
	}
	s.logger.Info("Arrow stream written", zap.String("path", s.path))
	return nil
}

// WriteHeader fixes the stream schema and stores the pass description as
// schema metadata.
func (s *Sink[B, F, S, Z]) WriteHeader(ctx context.Context, header *driver.Header[B, F, Z]) error {
	props, err := json.Marshal(header.Properties)
	if err != nil {
		return &api.SerializationError{Sink: "arrow", Err: err}
	}
	baseNames := make([]string, len(header.Bases))
	for i, info := range header.Bases {
		baseNames[i] = info.Basis.Name()
	}
	bases, err := json.Marshal(baseNames)
	if err != nil {
		return &api.SerializationError{Sink: "arrow", Err: err}
	}

	metadata := arrow.NewMetadata(
		[]string{"source-properties", "bases"},
		[]string{string(props), string(bases)},
	)
	s.schema = arrow.NewSchema([]arrow.Field{
		{Name: "step", Type: arrow.PrimitiveTypes.Int64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "record", Type: arrow.BinaryTypes.String},
		{Name: "basis", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "field", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "zone", Type: arrow.BinaryTypes.String},
		{Name: "celltype", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "num_nodes", Type: arrow.PrimitiveTypes.Int64},
		{Name: "num_cells", Type: arrow.PrimitiveTypes.Int64},
		{Name: "num_comps", Type: arrow.PrimitiveTypes.Int32},
		{Name: "cells", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64)},
		{Name: "values", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
	}, &metadata)

	s.writer = ipc.NewWriter(s.file, ipc.WithSchema(s.schema))
	s.builder = array.NewRecordBuilder(arrowmem.DefaultAllocator, s.schema)
	return nil
}

// WriteStep emits one record batch carrying the updated payloads of the
// step. No-update markers occupy no rows; their absence is the marker.
func (s *Sink[B, F, S, Z]) WriteStep(ctx context.Context, record *driver.StepRecord[B, F, S, Z]) error {
	for _, topology := range record.Topologies {
		if topology.Marker() {
			continue
		}
		s.appendTopology(record.Step, topology)
	}
	for _, data := range record.Data {
		if data.Marker() {
			continue
		}
		s.appendField(record.Step, data)
	}

	batch := s.builder.NewRecord()
	defer batch.Release()
	if err := s.writer.Write(batch); err != nil {
		return &api.SerializationError{Sink: "arrow", Err: fmt.Errorf("failed to write step %d: %w", record.Step.Index(), err)}
	}
	return nil
}

func (s *Sink[B, F, S, Z]) appendCommon(step S, basis, field, zone string) {
	s.builder.Field(0).(*array.Int64Builder).Append(int64(step.Index()))
	if value, ok := step.Value(); ok {
		s.builder.Field(1).(*array.Float64Builder).Append(value)
	} else {
		s.builder.Field(1).(*array.Float64Builder).AppendNull()
	}
	if basis == "" {
		s.builder.Field(3).(*array.StringBuilder).AppendNull()
	} else {
		s.builder.Field(3).(*array.StringBuilder).Append(basis)
	}
	if field == "" {
		s.builder.Field(4).(*array.StringBuilder).AppendNull()
	} else {
		s.builder.Field(4).(*array.StringBuilder).Append(field)
	}
	s.builder.Field(5).(*array.StringBuilder).Append(zone)
}

func (s *Sink[B, F, S, Z]) appendTopology(step S, record driver.TopologyRecord[B, Z]) {
	topology := record.Topology
	s.builder.Field(2).(*array.StringBuilder).Append(recordTopology)
	s.appendCommon(step, record.Basis.Name(), "", record.Zone.Key())
	s.builder.Field(6).(*array.StringBuilder).Append(topology.CellType.String())
	s.builder.Field(7).(*array.Int64Builder).Append(int64(topology.NumNodes))
	s.builder.Field(8).(*array.Int64Builder).Append(int64(topology.NumCells))
	s.builder.Field(9).(*array.Int32Builder).Append(0)

	cells := s.builder.Field(10).(*array.ListBuilder)
	cellValues := cells.ValueBuilder().(*array.Int64Builder)
	cells.Append(true)
	for _, cell := range topology.Cells {
		for _, node := range cell {
			cellValues.Append(int64(node))
		}
	}

	values := s.builder.Field(11).(*array.ListBuilder)
	values.Append(true)
}

func (s *Sink[B, F, S, Z]) appendField(step S, record driver.FieldRecord[F, Z]) {
	s.builder.Field(2).(*array.StringBuilder).Append(recordField)
	s.appendCommon(step, "", record.Field.Name(), record.Zone.Key())
	s.builder.Field(6).(*array.StringBuilder).AppendNull()
	s.builder.Field(7).(*array.Int64Builder).Append(0)
	s.builder.Field(8).(*array.Int64Builder).Append(0)
	s.builder.Field(9).(*array.Int32Builder).Append(int32(record.Data.NumComps))

	cells := s.builder.Field(10).(*array.ListBuilder)
	cells.Append(true)

	values := s.builder.Field(11).(*array.ListBuilder)
	valueBuilder := values.ValueBuilder().(*array.Float64Builder)
	values.Append(true)
	valueBuilder.AppendValues(record.Data.Data, nil)
}
