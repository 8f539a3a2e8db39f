package filter

import (
	"iter"

	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
)

// FieldFilter hides all non-geometry fields not named in the allow list.
// Geometry candidates always pass, so the source stays consumable.
type FieldFilter struct {
	*Passthrough

	logger  *zap.Logger
	allowed map[string]bool
}

// NewFieldFilter keeps only the named fields of src.
func NewFieldFilter(src api.AnySource, names []string, logger *zap.Logger) *FieldFilter {
	allowed := make(map[string]bool, len(names))
	for _, name := range names {
		allowed[name] = true
	}
	return &FieldFilter{Passthrough: NewPassthrough(src), logger: logger, allowed: allowed}
}

func (f *FieldFilter) Fields(basis api.Basis) iter.Seq[api.Field] {
	return func(yield func(api.Field) bool) {
		for field := range f.Passthrough.Fields(basis) {
			if !f.allowed[field.Name()] {
				f.logger.Debug("Field hidden", zap.String("field", field.Name()))
				continue
			}
			if !yield(field) {
				return
			}
		}
	}
}

// BasisFilter hides all bases not named in the allow list, together with
// their fields. When a single basis remains the source is reported as
// single-basis.
type BasisFilter struct {
	*Passthrough

	logger  *zap.Logger
	allowed map[string]bool
}

// NewBasisFilter keeps only the named bases of src.
func NewBasisFilter(src api.AnySource, names []string, logger *zap.Logger) *BasisFilter {
	allowed := make(map[string]bool, len(names))
	for _, name := range names {
		allowed[name] = true
	}
	return &BasisFilter{Passthrough: NewPassthrough(src), logger: logger, allowed: allowed}
}

func (f *BasisFilter) Properties() api.SourceProperties {
	props := f.Passthrough.Properties()
	if len(f.allowed) == 1 {
		props.SingleBasis = true
	}
	return props
}

func (f *BasisFilter) Bases() iter.Seq[api.Basis] {
	return func(yield func(api.Basis) bool) {
		for basis := range f.Passthrough.Bases() {
			if !f.allowed[basis.Name()] {
				f.logger.Debug("Basis hidden", zap.String("basis", basis.Name()))
				continue
			}
			if !yield(basis) {
				return
			}
		}
	}
}
