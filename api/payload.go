package api

import "fmt"

// CellType is the cell kind of a discrete topology.
type CellType int

const (
	CellLine CellType = iota
	CellQuadrilateral
	CellHexahedron
)

func (c CellType) String() string {
	switch c {
	case CellLine:
		return "line"
	case CellQuadrilateral:
		return "quadrilateral"
	case CellHexahedron:
		return "hexahedron"
	default:
		return fmt.Sprintf("CellType(%d)", int(c))
	}
}

// MarshalText serializes the cell type by name.
func (c CellType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a cell type by name.
func (c *CellType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "line":
		*c = CellLine
	case "quadrilateral":
		*c = CellQuadrilateral
	case "hexahedron":
		*c = CellHexahedron
	default:
		return fmt.Errorf("unknown cell type %q", string(text))
	}
	return nil
}

// NumVerts is the number of vertices per cell.
func (c CellType) NumVerts() int {
	switch c {
	case CellLine:
		return 2
	case CellQuadrilateral:
		return 4
	default:
		return 8
	}
}

// Topology is the geometric and connectivity description of one zone under
// one basis at one step. Owned by the source that produced it; consumers
// never mutate it.
type Topology struct {
	CellType CellType `json:"celltype"`
	NumNodes int      `json:"num-nodes"`
	NumCells int      `json:"num-cells"`

	// Cells is the connectivity: one row of node indices per cell.
	Cells [][]int `json:"cells"`
}

// FieldData holds the values of one field on one zone at one step, stored
// row-major with NumComps values per node or cell.
type FieldData struct {
	NumComps int       `json:"num-comps"`
	Data     []float64 `json:"data"`
}

// NumDofs is the number of nodes or cells the data covers.
func (d *FieldData) NumDofs() int {
	if d.NumComps == 0 {
		return 0
	}
	return len(d.Data) / d.NumComps
}

// Component extracts a single component as a new FieldData.
func (d *FieldData) Component(comp int) *FieldData {
	if comp < 0 || comp >= d.NumComps {
		return &FieldData{NumComps: 1}
	}
	out := make([]float64, 0, d.NumDofs())
	for i := comp; i < len(d.Data); i += d.NumComps {
		out = append(out, d.Data[i])
	}
	return &FieldData{NumComps: 1, Data: out}
}
