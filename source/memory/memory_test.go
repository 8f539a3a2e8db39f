package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheBB/CICO/api"
)

func TestStepsSinglePass(t *testing.T) {
	src := New(api.SourceProperties{})
	src.AddBareStep(0)
	src.AddBareStep(1)

	var count int
	for _, err := range src.Steps() {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count)

	var failure error
	for _, err := range src.Steps() {
		failure = err
	}
	var contractErr *api.ContractError
	require.ErrorAs(t, failure, &contractErr)
}

func TestUnscriptedProbesDefaultToFirstStep(t *testing.T) {
	src := New(api.SourceProperties{})
	mesh := src.AddBasis("mesh", 3)
	temp := src.AddField(mesh, FieldSpec{Name: "temperature", NumComps: 1})
	first := src.AddBareStep(0)
	second := src.AddBareStep(1)

	assert.True(t, src.TopologyUpdates(first, mesh))
	assert.True(t, src.FieldUpdates(first, temp))
	assert.False(t, src.TopologyUpdates(second, mesh))
	assert.False(t, src.FieldUpdates(second, temp))
}

func TestSynthesizedPayloadsAreDeterministic(t *testing.T) {
	build := func() (*Source, *Step, *Field, *Zone) {
		src := New(api.SourceProperties{})
		mesh := src.AddBasis("mesh", 3)
		temp := src.AddField(mesh, FieldSpec{Name: "temperature", NumComps: 2})
		zone := src.AddZone("only", api.Quadrilateral, [][]float64{{0, 0}})
		step := src.AddBareStep(1)
		return src, step, temp, zone
	}

	srcA, stepA, fieldA, zoneA := build()
	srcB, stepB, fieldB, zoneB := build()
	ctx := context.Background()

	dataA, err := srcA.FieldData(ctx, stepA, fieldA, zoneA)
	require.NoError(t, err)
	dataB, err := srcB.FieldData(ctx, stepB, fieldB, zoneB)
	require.NoError(t, err)
	assert.Equal(t, dataA, dataB)

	topoA, err := srcA.Topology(ctx, stepA, srcA.bases[0], zoneA)
	require.NoError(t, err)
	assert.Equal(t, api.CellQuadrilateral, topoA.CellType)
	assert.Equal(t, 1, topoA.NumCells)
}

func TestEraseRejectsForeignDescriptors(t *testing.T) {
	src := New(api.SourceProperties{})
	mesh := src.AddBasis("mesh", 3)
	src.AddField(mesh, FieldSpec{Name: "temperature", NumComps: 1})
	src.AddZone("only", api.Hexahedron, [][]float64{{0, 0, 0}})
	src.AddBareStep(0)

	erased := api.Erase[*Basis, *Field, *Step, *Zone](src)

	_, err := erased.BasisOf(alienField{})
	var contractErr *api.ContractError
	require.ErrorAs(t, err, &contractErr)
}

// alienField implements the field interface without being this source's
// descriptor type.
type alienField struct{}

func (alienField) Name() string { return "alien" }
func (alienField) NumComps() int { return 1 }
func (alienField) Cellwise() bool { return false }
func (alienField) Splittable() bool { return false }
func (alienField) Kind() api.FieldKind { return api.KindScalar }
func (alienField) Interpretation() api.Interpretation { return api.Generic }
func (alienField) Coords() string { return "" }
