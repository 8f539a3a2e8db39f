package api

import "fmt"

// Shape is the topological kind of a zone.
type Shape int

const (
	Line Shape = iota
	Quadrilateral
	Hexahedron
)

func (s Shape) String() string {
	switch s {
	case Line:
		return "line"
	case Quadrilateral:
		return "quadrilateral"
	case Hexahedron:
		return "hexahedron"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// MarshalText serializes the shape by name.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a shape by name.
func (s *Shape) UnmarshalText(text []byte) error {
	switch string(text) {
	case "line":
		*s = Line
	case "quadrilateral":
		*s = Quadrilateral
	case "hexahedron":
		*s = Hexahedron
	default:
		return fmt.Errorf("unknown shape %q", string(text))
	}
	return nil
}

// ParDim is the parametric dimension of the shape.
func (s Shape) ParDim() int {
	switch s {
	case Line:
		return 1
	case Quadrilateral:
		return 2
	default:
		return 3
	}
}
