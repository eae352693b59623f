package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

func TestEnsureEventTable_CreatesOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.EnsureEventTable(ctx, testCompany, "DevCon Frankfurt")
	require.NoError(t, err)
	again, err := repo.EnsureEventTable(ctx, testCompany, "DevCon Frankfurt")
	require.NoError(t, err)
	assert.Equal(t, first.TableID, again.TableID)

	tables, err := repo.ListTables(ctx)
	require.NoError(t, err)
	assert.Len(t, tables, 1)
}

func TestAppendPing_WritesFourCells(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, err := repo.EnsureEventTable(ctx, testCompany, "France Symposium")
	require.NoError(t, err)

	at := time.Date(2014, 11, 4, 9, 30, 0, 0, time.UTC)
	p := models.Ping{
		Event:   "France Symposium",
		ID:      "p-1",
		Date:    at,
		Regions: []string{"Bar"},
	}
	pk, err := repo.AppendPing(ctx, testCompany, p)
	require.NoError(t, err)
	assert.Equal(t, p.RowHandle(), pk)

	date, err := repo.ReadValue(ctx, testCompany, models.BeaconDataClass, "France Symposium", models.ColumnDate, pk)
	require.NoError(t, err)
	got, err := date.Date()
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	beacons, err := repo.ReadValue(ctx, testCompany, models.BeaconDataClass, "France Symposium", models.ColumnBeacons, pk)
	require.NoError(t, err)
	assert.Equal(t, "[]", beacons.Data)

	regions, err := repo.ReadValue(ctx, testCompany, models.BeaconDataClass, "France Symposium", models.ColumnRegions, pk)
	require.NoError(t, err)
	assert.Equal(t, `["Bar"]`, regions.Data)
}

func TestAppendPing_MissingTable(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.AppendPing(context.Background(), testCompany, models.Ping{Event: "Nope", ID: "x", Date: time.Now()})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
