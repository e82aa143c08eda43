package service

import (
	"fmt"

	"github.com/pkordes/eventsync/internal/domain"
	"github.com/pkordes/eventsync/internal/metrics"
)

// FieldOwner is a component that is the only writer of some fields.
type FieldOwner interface {
	OwnsField(name string) bool
}

// FieldGuard rejects external writes to fields that have a single owning
// writer. The stored value is never touched by a rejected write.
type FieldGuard struct {
	owners  []FieldOwner
	metrics *metrics.Metrics
}

// NewFieldGuard constructs a FieldGuard over the given owners.
func NewFieldGuard(m *metrics.Metrics, owners ...FieldOwner) *FieldGuard {
	return &FieldGuard{owners: owners, metrics: m}
}

// CheckField returns domain.ErrWriteDenied when name is owned.
func (g *FieldGuard) CheckField(name string) error {
	for _, o := range g.owners {
		if o.OwnsField(name) {
			g.metrics.WriteDenied(name)
			return fmt.Errorf("%w: %s", domain.ErrWriteDenied, name)
		}
	}
	return nil
}

// Check applies CheckField to every submitted field in name order.
func (g *FieldGuard) Check(fields domain.Fields) error {
	for _, name := range fields.Names() {
		if err := g.CheckField(name); err != nil {
			return err
		}
	}
	return nil
}
