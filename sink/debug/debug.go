// Package debug provides the diagnostic sink: it serializes a full
// conversion pass into a single canonical JSON envelope. The envelope shape
// is the reference fixture against which other sinks' output can be
// cross-checked, so its key layout and orderings are deliberately stable.
package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
	"github.com/TheBB/CICO/driver"
)

// Sink accumulates one pass and writes it as a JSON envelope on completion.
// Partial output is written even when the pass fails, so the resource is
// never left unfinalized; a partial envelope is valid JSON covering the
// steps finalized before the failure.
type Sink[B api.Basis, F api.Field, S api.Step, Z api.Zone] struct {
	logger *zap.Logger
	path   string
	stream io.Writer

	// Options are passed to the driver; the logger defaults to the
	// sink's own.
	Options driver.Options

	configured bool
	settings   api.Settings
	envelope   *Envelope
}

// New creates a sink writing to a file at path.
func New[B api.Basis, F api.Field, S api.Step, Z api.Zone](path string, logger *zap.Logger) *Sink[B, F, S, Z] {
	return &Sink[B, F, S, Z]{logger: logger, path: path}
}

// NewStream creates a sink writing to w, for embedding and tests.
func NewStream[B api.Basis, F api.Field, S api.Step, Z api.Zone](w io.Writer, logger *zap.Logger) *Sink[B, F, S, Z] {
	return &Sink[B, F, S, Z]{logger: logger, stream: w}
}

// NewAny creates a file sink at the erased interface types, for use at the
// end of a filter chain.
func NewAny(path string, logger *zap.Logger) *Sink[api.Basis, api.Field, api.Step, api.Zone] {
	return New[api.Basis, api.Field, api.Step, api.Zone](path, logger)
}

// Properties declares that the debug sink accepts any shape of data.
func (s *Sink[B, F, S, Z]) Properties() api.SinkProperties {
	return api.SinkProperties{}
}

// Configure applies sink settings. The envelope is plain text, so every
// output mode is accepted; unknown values are rejected.
func (s *Sink[B, F, S, Z]) Configure(settings api.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.settings = settings
	s.configured = true
	return nil
}

// Consume drives one pass over src. The output resource is acquired on
// entry and finalized exactly once on every exit path.
func (s *Sink[B, F, S, Z]) Consume(ctx context.Context, src api.Source[B, F, S, Z], geometry F) error {
	if !s.configured {
		return api.Contractf("debug sink driven before Configure")
	}

	out := s.stream
	if out == nil {
		file, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", s.path, err)
		}
		defer file.Close()
		out = file
	}

	s.envelope = newEnvelope()

	opts := s.Options
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	opts.Requirements = s.Properties()
	runErr := driver.Run(ctx, src, geometry, s, opts)

	if err := s.finalize(out); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (s *Sink[B, F, S, Z]) finalize(out io.Writer) error {
	data, err := json.MarshalIndent(s.envelope, "", "  ")
	if err != nil {
		return &api.SerializationError{Sink: "debug", Err: err}
	}
	if _, err := out.Write(append(data, '\n')); err != nil {
		return &api.SerializationError{Sink: "debug", Err: err}
	}
	s.logger.Info("Envelope written",
		zap.Int("steps", len(s.envelope.Steps)),
		zap.String("path", s.path))
	return nil
}

// WriteHeader records the static header.
func (s *Sink[B, F, S, Z]) WriteHeader(ctx context.Context, header *driver.Header[B, F, Z]) error {
	s.envelope.SourceProperties = header.Properties
	for _, info := range header.Bases {
		entry := BasisEntry{Name: info.Basis.Name(), Fields: []FieldEntry{}}
		for _, field := range info.Geometries {
			entry.Fields = append(entry.Fields, fieldEntry(field))
		}
		for _, field := range info.Fields {
			entry.Fields = append(entry.Fields, fieldEntry(field))
		}
		s.envelope.Bases = append(s.envelope.Bases, entry)
	}
	for _, zone := range header.Zones {
		s.envelope.Zones = append(s.envelope.Zones, ZoneEntry{
			Shape:  zone.Shape(),
			Coords: zone.Coords(),
			Key:    zone.Key(),
		})
	}
	return nil
}

// WriteStep appends one per-step record to the envelope.
func (s *Sink[B, F, S, Z]) WriteStep(ctx context.Context, rec *driver.StepRecord[B, F, S, Z]) error {
	entry := StepEntry{
		Index:      rec.Step.Index(),
		Topologies: []TopologyEntry{},
		Data:       []DataEntry{},
	}
	if value, ok := rec.Step.Value(); ok {
		entry.Value = &value
	}
	for i := range rec.Topologies {
		tr := &rec.Topologies[i]
		te := TopologyEntry{Basis: tr.Basis.Name(), Updates: tr.Updates}
		if !tr.Marker() {
			te.Zone = tr.Zone.Key()
			te.Topology = tr.Topology
		}
		entry.Topologies = append(entry.Topologies, te)
	}
	for i := range rec.Data {
		fr := &rec.Data[i]
		de := DataEntry{Field: fr.Field.Name(), Updates: fr.Updates}
		if !fr.Marker() {
			de.Zone = fr.Zone.Key()
			de.Data = fr.Data
		}
		entry.Data = append(entry.Data, de)
	}
	s.envelope.Steps = append(s.envelope.Steps, entry)
	return nil
}

func fieldEntry(field api.Field) FieldEntry {
	return FieldEntry{
		Name:     field.Name(),
		NumComps: field.NumComps(),
		Cellwise: field.Cellwise(),
		Kind:     field.Kind(),
	}
}
