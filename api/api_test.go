package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
	assert.NoError(t, Settings{Mode: ModeAscii, Endianness: Big}.Validate())

	err := Settings{Mode: "yaml", Endianness: Native}.Validate()
	var contractErr *ContractError
	require.ErrorAs(t, err, &contractErr)

	err = Settings{Mode: ModeBinary, Endianness: "middle"}.Validate()
	require.ErrorAs(t, err, &contractErr)
}

func TestFieldDataComponent(t *testing.T) {
	data := &FieldData{NumComps: 3, Data: []float64{1, 2, 3, 4, 5, 6}}
	assert.Equal(t, 2, data.NumDofs())

	comp := data.Component(1)
	assert.Equal(t, 1, comp.NumComps)
	assert.Equal(t, []float64{2, 5}, comp.Data)

	out := data.Component(7)
	assert.Empty(t, out.Data)
}

func TestCellTypeNumVerts(t *testing.T) {
	assert.Equal(t, 2, CellLine.NumVerts())
	assert.Equal(t, 4, CellQuadrilateral.NumVerts())
	assert.Equal(t, 8, CellHexahedron.NumVerts())
}

func TestShapeTextRoundTrip(t *testing.T) {
	text, err := Quadrilateral.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "quadrilateral", string(text))

	var shape Shape
	require.NoError(t, shape.UnmarshalText(text))
	assert.Equal(t, Quadrilateral, shape)

	assert.Error(t, shape.UnmarshalText([]byte("dodecahedron")))
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	fetch := &FetchError{What: "topology of basis \"mesh\"", Err: cause}
	assert.ErrorIs(t, fetch, cause)
	assert.Contains(t, fetch.Error(), "mesh")

	ser := &SerializationError{Sink: "debug", Err: cause}
	assert.ErrorIs(t, ser, cause)
	assert.Contains(t, ser.Error(), "debug sink")
}
