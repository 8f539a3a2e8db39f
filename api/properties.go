package api

import "fmt"

// StepInterpretation governs how step values are presented downstream.
type StepInterpretation int

const (
	Time StepInterpretation = iota
	Load
	Eigenvalue
	GenericStep
)

func (s StepInterpretation) String() string {
	switch s {
	case Time:
		return "time"
	case Load:
		return "load"
	case Eigenvalue:
		return "eigenvalue"
	case GenericStep:
		return "generic"
	default:
		return fmt.Sprintf("StepInterpretation(%d)", int(s))
	}
}

// MarshalText serializes the interpretation by name.
func (s StepInterpretation) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses an interpretation by name.
func (s *StepInterpretation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "time":
		*s = Time
	case "load":
		*s = Load
	case "eigenvalue":
		*s = Eigenvalue
	case "generic":
		*s = GenericStep
	default:
		return fmt.Errorf("unknown step interpretation %q", string(text))
	}
	return nil
}

// SourceProperties describes a source. Fixed for the life of a source
// instance.
type SourceProperties struct {
	// Instantaneous means the source has no time dependence at all.
	Instantaneous bool `json:"instantaneous"`

	// GloballyKeyed means zone keys are stable across bases and steps.
	GloballyKeyed bool `json:"globally-keyed"`

	// DiscreteTopology means topology is never interpolated, only
	// replaced wholesale: a topology update for a basis requires
	// refetching every zone.
	DiscreteTopology bool `json:"discrete-topology"`

	// SingleBasis means exactly one basis exists.
	SingleBasis bool `json:"single-basis"`

	// SingleZoned means exactly one zone exists. When false, zones may
	// vary across bases.
	SingleZoned bool `json:"single-zoned"`

	// StepInterpretation governs how step values are presented.
	StepInterpretation StepInterpretation `json:"step-interpretation"`
}

// SinkProperties declares the shapes of data a sink accepts.
type SinkProperties struct {
	RequireSingleZone       bool
	RequireSingleBasis      bool
	RequireDiscreteTopology bool
	RequireInstantaneous    bool
}

// OutputMode selects the encoding of sink output, for sinks which support
// more than one.
type OutputMode string

const (
	ModeBinary   OutputMode = "binary"
	ModeAscii    OutputMode = "ascii"
	ModeAppended OutputMode = "appended"
)

// Endianness selects the byte order of binary sink output.
type Endianness string

const (
	Native Endianness = "native"
	Little Endianness = "little"
	Big    Endianness = "big"
)

// Settings is the closed option set consumed by Sink.Configure. Sinks reject
// values outside the enumerated set, and values they recognize but do not
// support.
type Settings struct {
	Mode       OutputMode
	Endianness Endianness
}

// DefaultSettings returns the settings applied when the caller does not
// override any option.
func DefaultSettings() Settings {
	return Settings{Mode: ModeBinary, Endianness: Native}
}

// Validate checks that every option carries an enumerated value.
func (s Settings) Validate() error {
	switch s.Mode {
	case ModeBinary, ModeAscii, ModeAppended:
	default:
		return Contractf("unrecognized output mode %q", string(s.Mode))
	}
	switch s.Endianness {
	case Native, Little, Big:
	default:
		return Contractf("unrecognized endianness %q", string(s.Endianness))
	}
	return nil
}
