package filter

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
)

// KeyZones rewrites zone keys so that zones occupying the same region of
// reference space carry the same key, and reports the result as globally
// keyed. Sources whose native keys are only stable per basis or per step are
// made safe for sinks that address zones by key.
type KeyZones struct {
	*Passthrough

	logger  *zap.Logger
	manager *zoneManager
}

// NewKeyZones wraps src in global zone keying.
func NewKeyZones(src api.AnySource, logger *zap.Logger) *KeyZones {
	return &KeyZones{
		Passthrough: NewPassthrough(src),
		logger:      logger,
		manager:     newZoneManager(),
	}
}

func (k *KeyZones) Properties() api.SourceProperties {
	props := k.Passthrough.Properties()
	props.GloballyKeyed = true
	return props
}

func (k *KeyZones) Zones() iter.Seq[api.Zone] {
	return func(yield func(api.Zone) bool) {
		for zone := range k.Passthrough.Zones() {
			key, fresh := k.manager.key(zone)
			if fresh {
				k.logger.Debug("Zone assigned global key",
					zap.String("original", zone.Key()),
					zap.String("key", key))
			}
			if !yield(&keyedZone{Zone: zone, key: key}) {
				return
			}
		}
	}
}

func (k *KeyZones) Topology(ctx context.Context, step api.Step, basis api.Basis, zone api.Zone) (*api.Topology, error) {
	return k.Passthrough.Topology(ctx, step, basis, unkey(zone))
}

func (k *KeyZones) FieldData(ctx context.Context, step api.Step, field api.Field, zone api.Zone) (*api.FieldData, error) {
	return k.Passthrough.FieldData(ctx, step, field, unkey(zone))
}

// keyedZone presents a zone under its assigned global key.
type keyedZone struct {
	api.Zone
	key string
}

func (z *keyedZone) Key() string { return z.key }

func unkey(zone api.Zone) api.Zone {
	if keyed, ok := zone.(*keyedZone); ok {
		return keyed.Zone
	}
	return zone
}

// zoneManager assigns stable keys by matching zone corner coordinates. Zones
// with the same corner set, in any order, map to the same key.
type zoneManager struct {
	keys map[string]string
	next int
}

func newZoneManager() *zoneManager {
	return &zoneManager{keys: make(map[string]string)}
}

// key returns the global key for zone, allocating one on first sight. The
// second return reports whether the key is newly allocated.
func (m *zoneManager) key(zone api.Zone) (string, bool) {
	signature := coordSignature(zone.Coords())
	if key, ok := m.keys[signature]; ok {
		return key, false
	}
	key := fmt.Sprintf("zone-%d", m.next)
	m.next++
	m.keys[signature] = key
	return key, true
}

// coordSignature canonicalizes a corner set into a comparable string,
// insensitive to corner ordering.
func coordSignature(coords [][]float64) string {
	corners := make([]string, len(coords))
	for i, corner := range coords {
		parts := make([]string, len(corner))
		for j, c := range corner {
			parts[j] = fmt.Sprintf("%.9g", c)
		}
		corners[i] = strings.Join(parts, ",")
	}
	sort.Strings(corners)
	return strings.Join(corners, ";")
}
