package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// CreateEventTable creates an event table with the four ping columns
func (r *ExpandoRepository) CreateEventTable(ctx context.Context, companyID int64, event string) (*models.ExpandoTable, error) {
	table, err := r.AddTable(ctx, companyID, models.BeaconDataClass, event)
	if err != nil {
		return nil, err
	}
	for _, col := range models.BeaconColumns {
		if _, err := r.AddColumn(ctx, table.TableID, col.Name, col.Type); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// EnsureEventTable returns the event table, creating it when missing
func (r *ExpandoRepository) EnsureEventTable(ctx context.Context, companyID int64, event string) (*models.ExpandoTable, error) {
	table, err := r.GetTable(ctx, companyID, models.BeaconDataClass, event)
	if err == nil {
		return table, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return r.CreateEventTable(ctx, companyID, event)
}

// AppendPing writes the four cells of a ping under its row handle
func (r *ExpandoRepository) AppendPing(ctx context.Context, companyID int64, p models.Ping) (int64, error) {
	regions := p.Regions
	if regions == nil {
		regions = []string{}
	}
	beacons := p.Beacons
	if beacons == nil {
		beacons = []models.BeaconSighting{}
	}

	regionsJSON, err := json.Marshal(regions)
	if err != nil {
		return 0, fmt.Errorf("failed to encode regions: %w", err)
	}
	beaconsJSON, err := json.Marshal(beacons)
	if err != nil {
		return 0, fmt.Errorf("failed to encode beacons: %w", err)
	}

	pk := p.RowHandle()
	cells := []struct {
		column string
		value  any
	}{
		{models.ColumnDate, p.Date},
		{models.ColumnID, p.ID},
		{models.ColumnBeacons, string(beaconsJSON)},
		{models.ColumnRegions, string(regionsJSON)},
	}
	for _, c := range cells {
		if _, err := r.AppendValue(ctx, companyID, models.BeaconDataClass, p.Event, c.column, pk, c.value); err != nil {
			return 0, err
		}
	}
	return pk, nil
}
