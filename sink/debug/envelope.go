package debug

import (
	"encoding/json"

	"github.com/TheBB/CICO/api"
)

// Envelope is the canonical serialization of one conversion pass. All
// arrays preserve the conversion ordering: bases, fields and zones as the
// source yields them, steps as consumed, and within a step the geometry
// basis and field first.
type Envelope struct {
	SourceProperties api.SourceProperties `json:"source-properties"`
	Bases            []BasisEntry         `json:"bases"`
	Zones            []ZoneEntry          `json:"zones"`
	Steps            []StepEntry          `json:"steps"`
}

func newEnvelope() *Envelope {
	return &Envelope{
		Bases: []BasisEntry{},
		Zones: []ZoneEntry{},
		Steps: []StepEntry{},
	}
}

// BasisEntry describes one basis and its fields, geometry first.
type BasisEntry struct {
	Name   string       `json:"name"`
	Fields []FieldEntry `json:"fields"`
}

// FieldEntry describes one field.
type FieldEntry struct {
	Name     string        `json:"name"`
	NumComps int           `json:"num-comps"`
	Cellwise bool          `json:"cellwise"`
	Kind     api.FieldKind `json:"kind"`
}

// ZoneEntry describes one zone.
type ZoneEntry struct {
	Shape  api.Shape   `json:"shape"`
	Coords [][]float64 `json:"coords"`
	Key    string      `json:"key"`
}

// StepEntry is the per-step record.
type StepEntry struct {
	Index      int             `json:"index"`
	Value      *float64        `json:"value"`
	Topologies []TopologyEntry `json:"topologies"`
	Data       []DataEntry     `json:"data"`
}

// TopologyEntry is one entry of a step's topology list. Update records
// serialize as {zone, basis, updates: true, topology}; no-update markers as
// {basis, update: false}. The asymmetric key names are part of the format
// and relied on by downstream consumers.
type TopologyEntry struct {
	Basis    string
	Zone     string
	Updates  bool
	Topology *api.Topology
}

func (e TopologyEntry) MarshalJSON() ([]byte, error) {
	if !e.Updates {
		return json.Marshal(struct {
			Basis  string `json:"basis"`
			Update bool   `json:"update"`
		}{Basis: e.Basis})
	}
	return json.Marshal(struct {
		Zone     string        `json:"zone"`
		Basis    string        `json:"basis"`
		Updates  bool          `json:"updates"`
		Topology *api.Topology `json:"topology"`
	}{Zone: e.Zone, Basis: e.Basis, Updates: true, Topology: e.Topology})
}

func (e *TopologyEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Zone     string        `json:"zone"`
		Basis    string        `json:"basis"`
		Updates  bool          `json:"updates"`
		Topology *api.Topology `json:"topology"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Basis = raw.Basis
	e.Zone = raw.Zone
	e.Updates = raw.Updates
	e.Topology = raw.Topology
	return nil
}

// DataEntry is the field counterpart of TopologyEntry.
type DataEntry struct {
	Field   string
	Zone    string
	Updates bool
	Data    *api.FieldData
}

func (e DataEntry) MarshalJSON() ([]byte, error) {
	if !e.Updates {
		return json.Marshal(struct {
			Field  string `json:"field"`
			Update bool   `json:"update"`
		}{Field: e.Field})
	}
	return json.Marshal(struct {
		Zone    string         `json:"zone"`
		Field   string         `json:"field"`
		Updates bool           `json:"updates"`
		Data    *api.FieldData `json:"data"`
	}{Zone: e.Zone, Field: e.Field, Updates: true, Data: e.Data})
}

func (e *DataEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Zone    string         `json:"zone"`
		Field   string         `json:"field"`
		Updates bool           `json:"updates"`
		Data    *api.FieldData `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Field = raw.Field
	e.Zone = raw.Zone
	e.Updates = raw.Updates
	e.Data = raw.Data
	return nil
}
