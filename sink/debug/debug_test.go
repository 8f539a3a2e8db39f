package debug

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
	"github.com/TheBB/CICO/source/memory"
)

func buildSource() (*memory.Source, *memory.Field) {
	src := memory.New(api.SourceProperties{DiscreteTopology: true, StepInterpretation: api.Time})
	mesh := src.AddBasis("mesh", 3)
	geometry := src.AddGeometry(mesh, memory.FieldSpec{Name: "geometry", NumComps: 3})
	temp := src.AddField(mesh, memory.FieldSpec{Name: "temperature", NumComps: 1})
	src.AddZone("only", api.Quadrilateral, [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}})

	s0 := src.AddStep(0, 0.0)
	s1 := src.AddStep(1, 0.5)
	src.SetTopologyUpdates(s1, mesh, false)
	src.SetFieldUpdates(s1, geometry, false)
	src.SetFieldUpdates(s1, temp, true)
	_ = s0
	return src, geometry
}

func consume(t *testing.T, src *memory.Source, geometry *memory.Field) []byte {
	t.Helper()
	var buf bytes.Buffer
	sink := NewStream[*memory.Basis, *memory.Field, *memory.Step, *memory.Zone](&buf, zap.NewNop())
	require.NoError(t, sink.Configure(api.DefaultSettings()))
	require.NoError(t, sink.Consume(context.Background(), src, geometry))
	return buf.Bytes()
}

func TestEnvelopeShape(t *testing.T) {
	src, geometry := buildSource()
	out := consume(t, src, geometry)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	for _, key := range []string{"source-properties", "bases", "zones", "steps"} {
		assert.Contains(t, raw, key)
	}

	var env Envelope
	require.NoError(t, json.Unmarshal(out, &env))
	require.Len(t, env.Bases, 1)
	assert.Equal(t, "mesh", env.Bases[0].Name)
	require.Len(t, env.Bases[0].Fields, 2)
	assert.Equal(t, "geometry", env.Bases[0].Fields[0].Name)
	require.Len(t, env.Steps, 2)

	// Second step: topology and geometry are markers, temperature is an
	// update record.
	second := env.Steps[1]
	require.Len(t, second.Topologies, 1)
	assert.False(t, second.Topologies[0].Updates)
	assert.Nil(t, second.Topologies[0].Topology)

	byField := make(map[string]DataEntry)
	for _, entry := range second.Data {
		byField[entry.Field] = entry
	}
	assert.False(t, byField["geometry"].Updates)
	assert.Nil(t, byField["geometry"].Data)
	assert.True(t, byField["temperature"].Updates)
	require.NotNil(t, byField["temperature"].Data)
}

func TestMarkerKeyAsymmetry(t *testing.T) {
	// No-update markers carry the key "update"; update records carry
	// "updates" plus the payload.
	src, geometry := buildSource()
	out := consume(t, src, geometry)

	var raw struct {
		Steps []struct {
			Topologies []map[string]json.RawMessage `json:"topologies"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(out, &raw))
	require.Len(t, raw.Steps, 2)

	update := raw.Steps[0].Topologies[0]
	assert.Contains(t, update, "updates")
	assert.Contains(t, update, "topology")
	assert.NotContains(t, update, "update")

	marker := raw.Steps[1].Topologies[0]
	assert.Contains(t, marker, "update")
	assert.NotContains(t, marker, "updates")
	assert.NotContains(t, marker, "topology")
}

func TestIdempotentRerun(t *testing.T) {
	// Driving two identically constructed sources yields byte-identical
	// output.
	srcA, geomA := buildSource()
	srcB, geomB := buildSource()
	assert.Equal(t, consume(t, srcA, geomA), consume(t, srcB, geomB))
}

func TestUnconfiguredSinkRejected(t *testing.T) {
	src, geometry := buildSource()
	sink := NewStream[*memory.Basis, *memory.Field, *memory.Step, *memory.Zone](&bytes.Buffer{}, zap.NewNop())
	err := sink.Consume(context.Background(), src, geometry)
	var contractErr *api.ContractError
	require.ErrorAs(t, err, &contractErr)
}

func TestInvalidSettingsRejected(t *testing.T) {
	sink := NewStream[*memory.Basis, *memory.Field, *memory.Step, *memory.Zone](&bytes.Buffer{}, zap.NewNop())
	err := sink.Configure(api.Settings{Mode: "yaml", Endianness: api.Native})
	var contractErr *api.ContractError
	require.ErrorAs(t, err, &contractErr)
}

func TestTwoStepScenario(t *testing.T) {
	src := memory.New(api.SourceProperties{})
	mesh := src.AddBasis("mesh", 3)
	geometry := src.AddGeometry(mesh, memory.FieldSpec{Name: "X", NumComps: 3})
	pressure := src.AddField(mesh, memory.FieldSpec{Name: "pressure", NumComps: 1})
	src.AddZone("z0", api.Hexahedron, [][]float64{{0, 0, 0}})

	s0 := src.AddStep(0, 0.0)
	s1 := src.AddStep(1, 1.0)
	src.SetTopologyUpdates(s0, mesh, true)
	src.SetTopologyUpdates(s1, mesh, false)
	src.SetFieldUpdates(s0, geometry, false)
	src.SetFieldUpdates(s1, geometry, false)
	src.SetFieldUpdates(s0, pressure, true)
	src.SetFieldUpdates(s1, pressure, true)

	out := consume(t, src, geometry)
	var env Envelope
	require.NoError(t, json.Unmarshal(out, &env))
	require.Len(t, env.Steps, 2)

	require.Len(t, env.Steps[0].Topologies, 1)
	assert.True(t, env.Steps[0].Topologies[0].Updates)
	require.Len(t, env.Steps[1].Topologies, 1)
	assert.Equal(t, "mesh", env.Steps[1].Topologies[0].Basis)
	assert.False(t, env.Steps[1].Topologies[0].Updates)

	for i, step := range env.Steps {
		var found bool
		for _, entry := range step.Data {
			if entry.Field == "pressure" {
				found = true
				assert.True(t, entry.Updates, "step %d", i)
			}
		}
		assert.True(t, found, "step %d carries no pressure entry", i)
	}
}

func TestEmptySourceEnvelope(t *testing.T) {
	src := memory.New(api.SourceProperties{GloballyKeyed: true})

	var buf bytes.Buffer
	sink := NewStream[*memory.Basis, *memory.Field, *memory.Step, *memory.Zone](&buf, zap.NewNop())
	require.NoError(t, sink.Configure(api.DefaultSettings()))
	require.NoError(t, sink.Consume(context.Background(), src, nil))

	var env Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.Empty(t, env.Bases)
	assert.Empty(t, env.Zones)
	assert.Empty(t, env.Steps)
	assert.True(t, env.SourceProperties.GloballyKeyed)
}

func TestFinalizeOnError(t *testing.T) {
	// A failed pass still leaves a parseable envelope with the steps
	// completed before the failure.
	src := memory.New(api.SourceProperties{})
	mesh := src.AddBasis("mesh", 3)
	geometry := src.AddGeometry(mesh, memory.FieldSpec{Name: "geometry", NumComps: 3})
	temp := src.AddField(mesh, memory.FieldSpec{Name: "temperature", NumComps: 1})
	zone := src.AddZone("only", api.Hexahedron, [][]float64{{0, 0, 0}})
	src.AddStep(0, 0.0)
	fail := src.AddStep(1, 0.5)
	src.SetFieldUpdates(fail, temp, true)
	src.FailFieldData(fail, temp, zone, errors.New("source went away"))

	path := filepath.Join(t.TempDir(), "out.json")
	sink := New[*memory.Basis, *memory.Field, *memory.Step, *memory.Zone](path, zap.NewNop())
	require.NoError(t, sink.Configure(api.DefaultSettings()))

	err := sink.Consume(context.Background(), src, geometry)
	var fetchErr *api.FetchError
	require.ErrorAs(t, err, &fetchErr)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.Len(t, env.Steps, 1)
	assert.Equal(t, 0, env.Steps[0].Index)
}
