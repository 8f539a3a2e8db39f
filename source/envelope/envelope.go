// Package envelope provides a source that reads the canonical JSON envelope
// produced by the debug sink. Together the pair gives the converter a
// self-describing interchange format: any pass can be serialized, inspected,
// and replayed through another sink later.
package envelope

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
	"github.com/TheBB/CICO/sink/debug"
	"github.com/TheBB/CICO/source/memory"
)

// Source replays a stored envelope. It is backed by an in-memory source
// built when Open parses the file; no method may be called before Open.
type Source struct {
	*memory.Source

	path   string
	logger *zap.Logger
}

// New creates a source reading the envelope at path. The file is not
// touched until Open.
func New(path string, logger *zap.Logger) *Source {
	return &Source{path: path, logger: logger}
}

// NewAny creates an envelope source erased to the descriptor interface
// types, ready for filter chain composition.
func NewAny(path string, logger *zap.Logger) api.AnySource {
	return api.Erase[*memory.Basis, *memory.Field, *memory.Step, *memory.Zone](New(path, logger))
}

// Open parses the envelope and builds the replay tables.
func (s *Source) Open(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var env debug.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to parse envelope %s: %w", s.path, err)
	}

	src, err := build(&env)
	if err != nil {
		return fmt.Errorf("failed to rebuild source from %s: %w", s.path, err)
	}
	s.Source = src

	s.logger.Info("Envelope loaded",
		zap.String("path", s.path),
		zap.Int("bases", len(env.Bases)),
		zap.Int("zones", len(env.Zones)),
		zap.Int("steps", len(env.Steps)))
	return nil
}

// build reconstructs an in-memory source from a parsed envelope: the
// declared bases, fields and zones, the scripted change answers, and the
// stored payloads.
func build(env *debug.Envelope) (*memory.Source, error) {
	src := memory.New(env.SourceProperties)

	bases := make(map[string]*memory.Basis, len(env.Bases))
	fields := make(map[string]*memory.Field)
	for _, be := range env.Bases {
		basis := src.AddBasis(be.Name, basisParDim(env, be.Name))
		bases[be.Name] = basis
		for _, fe := range be.Fields {
			spec := memory.FieldSpec{
				Name:     fe.Name,
				NumComps: fe.NumComps,
				Cellwise: fe.Cellwise,
				Kind:     fe.Kind,
			}
			if fe.Kind == api.KindGeometry {
				fields[fe.Name] = src.AddGeometry(basis, spec)
			} else {
				fields[fe.Name] = src.AddField(basis, spec)
			}
		}
	}

	zones := make(map[string]*memory.Zone, len(env.Zones))
	for _, ze := range env.Zones {
		zones[ze.Key] = src.AddZone(ze.Key, ze.Shape, ze.Coords)
	}

	for _, se := range env.Steps {
		var step *memory.Step
		if se.Value != nil {
			step = src.AddStep(se.Index, *se.Value)
		} else {
			step = src.AddBareStep(se.Index)
		}
		for _, te := range se.Topologies {
			basis, ok := bases[te.Basis]
			if !ok {
				return nil, fmt.Errorf("step %d references undeclared basis %q", se.Index, te.Basis)
			}
			src.SetTopologyUpdates(step, basis, te.Updates)
			if te.Updates {
				zone, ok := zones[te.Zone]
				if !ok {
					return nil, fmt.Errorf("step %d references undeclared zone %q", se.Index, te.Zone)
				}
				src.SetTopology(step, basis, zone, te.Topology)
			}
		}
		for _, de := range se.Data {
			field, ok := fields[de.Field]
			if !ok {
				return nil, fmt.Errorf("step %d references undeclared field %q", se.Index, de.Field)
			}
			src.SetFieldUpdates(step, field, de.Updates)
			if de.Updates {
				zone, ok := zones[de.Zone]
				if !ok {
					return nil, fmt.Errorf("step %d references undeclared zone %q", se.Index, de.Zone)
				}
				src.SetFieldData(step, field, zone, de.Data)
			}
		}
	}

	return src, nil
}

// basisParDim derives the parametric dimension from the first stored
// topology of the basis, falling back to 3.
func basisParDim(env *debug.Envelope, name string) int {
	for _, se := range env.Steps {
		for _, te := range se.Topologies {
			if te.Basis == name && te.Topology != nil {
				switch te.Topology.CellType {
				case api.CellLine:
					return 1
				case api.CellQuadrilateral:
					return 2
				default:
					return 3
				}
			}
		}
	}
	return 3
}
