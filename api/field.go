package api

import "fmt"

// FieldKind classifies a field.
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindVector
	KindGeometry
)

func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindVector:
		return "vector"
	case KindGeometry:
		return "geometry"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// MarshalText serializes the kind by name.
func (k FieldKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind by name.
func (k *FieldKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "scalar":
		*k = KindScalar
	case "vector":
		*k = KindVector
	case "geometry":
		*k = KindGeometry
	default:
		return fmt.Errorf("unknown field kind %q", string(text))
	}
	return nil
}

// Interpretation refines how a scalar or vector field should be understood
// downstream.
type Interpretation int

const (
	Generic Interpretation = iota
	Displacement
	Eigenmode
	Flow
)

func (i Interpretation) String() string {
	switch i {
	case Generic:
		return "generic"
	case Displacement:
		return "displacement"
	case Eigenmode:
		return "eigenmode"
	case Flow:
		return "flow"
	default:
		return fmt.Sprintf("Interpretation(%d)", int(i))
	}
}

// MarshalText serializes the interpretation by name.
func (i Interpretation) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText parses an interpretation by name.
func (i *Interpretation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "generic":
		*i = Generic
	case "displacement":
		*i = Displacement
	case "eigenmode":
		*i = Eigenmode
	case "flow":
		*i = Flow
	default:
		return fmt.Errorf("unknown interpretation %q", string(text))
	}
	return nil
}

// IsScalar reports whether f is a scalar field.
func IsScalar(f Field) bool { return f.Kind() == KindScalar }

// IsVector reports whether f is a vector field.
func IsVector(f Field) bool { return f.Kind() == KindVector }

// IsGeometry reports whether f is a geometry field.
func IsGeometry(f Field) bool { return f.Kind() == KindGeometry }

// IsEigenmode reports whether f holds eigenmode data.
func IsEigenmode(f Field) bool { return f.Interpretation() == Eigenmode }

// IsDisplacement reports whether f holds displacement data.
func IsDisplacement(f Field) bool {
	return f.Kind() == KindVector && f.Interpretation() == Displacement
}
