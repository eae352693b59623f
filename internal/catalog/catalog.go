package catalog

import (
	"context"
	"fmt"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// TableLister is the slice of the store gateway the catalog needs
type TableLister interface {
	ListTables(ctx context.Context) ([]models.ExpandoTable, error)
}

// Catalog enumerates beacon events, one store table per event
type Catalog struct {
	store TableLister
}

// New creates a new event catalog
func New(store TableLister) *Catalog {
	return &Catalog{store: store}
}

// ListEvents returns the names of all beacon-data tables in gateway order
func (c *Catalog) ListEvents(ctx context.Context) ([]string, error) {
	tables, err := c.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]string, 0, len(tables))
	for _, t := range tables {
		if t.ClassName != models.BeaconDataClass {
			continue
		}
		events = append(events, t.Name)
	}
	return events, nil
}

// ListTenantEvents is ListEvents restricted to one tenant
func (c *Catalog) ListTenantEvents(ctx context.Context, companyID int64) ([]string, error) {
	tables, err := c.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var events []string
	for _, t := range tables {
		if t.ClassName == models.BeaconDataClass && t.CompanyID == companyID {
			events = append(events, t.Name)
		}
	}
	return events, nil
}
