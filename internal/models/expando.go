package models

import (
	"fmt"
	"strconv"
	"time"
)

// BeaconDataClass is the class tag shared by every beacon event table
const BeaconDataClass = "com.liferay.events.BeaconData"

// Column type codes understood by the expando store
const (
	ColumnTypeDate   = 3
	ColumnTypeString = 15
)

// Beacon event table column names
const (
	ColumnDate    = "date"
	ColumnID      = "id"
	ColumnBeacons = "beacons"
	ColumnRegions = "regions"
)

// BeaconColumns lists the schema of a beacon event table in creation order
var BeaconColumns = []ExpandoColumn{
	{Name: ColumnDate, Type: ColumnTypeDate},
	{Name: ColumnBeacons, Type: ColumnTypeString},
	{Name: ColumnRegions, Type: ColumnTypeString},
	{Name: ColumnID, Type: ColumnTypeString},
}

// ExpandoTable is one logical table of the schemaless store
type ExpandoTable struct {
	TableID   int64  `json:"table_id" db:"table_id"`
	CompanyID int64  `json:"company_id" db:"company_id"` // Tenant
	ClassName string `json:"class_name" db:"class_name"`
	Name      string `json:"name" db:"name"`
}

// ExpandoColumn describes a typed column of an expando table
type ExpandoColumn struct {
	ColumnID int64  `json:"column_id" db:"column_id"`
	TableID  int64  `json:"table_id" db:"table_id"`
	Name     string `json:"name" db:"name"`
	Type     int    `json:"type" db:"type"`
}

// ExpandoRow is an opaque row handle
type ExpandoRow struct {
	RowID   int64 `json:"row_id" db:"row_id"`
	TableID int64 `json:"table_id" db:"table_id"`
	ClassPK int64 `json:"class_pk" db:"class_pk"`
}

// ExpandoValue is a single cell; Data holds the raw text, interpreted through Type
type ExpandoValue struct {
	ValueID  int64  `json:"value_id" db:"value_id"`
	TableID  int64  `json:"table_id" db:"table_id"`
	ColumnID int64  `json:"column_id" db:"column_id"`
	RowID    int64  `json:"row_id" db:"row_id"`
	ClassPK  int64  `json:"class_pk" db:"class_pk"`
	Column   string `json:"column" db:"column_name"`
	Type     int    `json:"type" db:"type"`
	Data     string `json:"data" db:"data"`
}

// Date decodes a DATE cell
func (v ExpandoValue) Date() (time.Time, error) {
	if v.Type != ColumnTypeDate {
		return time.Time{}, fmt.Errorf("%w: column %q is not a DATE column", ErrMalformedRow, v.Column)
	}
	ms, err := strconv.ParseInt(v.Data, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q in column %q", ErrMalformedRow, v.Data, v.Column)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// String returns the raw cell text
func (v ExpandoValue) String() string {
	return v.Data
}

// EncodeDate renders a time as the DATE cell representation
func EncodeDate(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
