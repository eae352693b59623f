package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExpandoRepository is the read/write gateway over the schemaless tabular store.
// Tables are keyed by (company, class name, table name); cells by (row, column).
type ExpandoRepository struct {
	db *sql.DB
	q  querier
}

// NewExpandoRepository creates a new expando repository
func NewExpandoRepository(db *sql.DB) *ExpandoRepository {
	return &ExpandoRepository{db: db, q: db}
}

// InTx runs fn against a repository bound to a single transaction
func (r *ExpandoRepository) InTx(ctx context.Context, fn func(tx *ExpandoRepository) error) error {
	if _, ok := r.q.(*sql.Tx); ok {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.NewStoreError("begin", err)
	}

	if err := fn(&ExpandoRepository{db: r.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w; %w", err, models.NewStoreError("rollback", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return models.NewStoreError("commit", err)
	}
	return nil
}

// ListTables returns every table of every tenant
func (r *ExpandoRepository) ListTables(ctx context.Context) ([]models.ExpandoTable, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT table_id, company_id, class_name, name FROM expando_tables`)
	if err != nil {
		return nil, models.NewStoreError("list tables", err)
	}
	defer rows.Close()

	var tables []models.ExpandoTable
	for rows.Next() {
		var t models.ExpandoTable
		if err := rows.Scan(&t.TableID, &t.CompanyID, &t.ClassName, &t.Name); err != nil {
			return nil, models.NewStoreError("list tables", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStoreError("list tables", err)
	}

	return tables, nil
}

// GetTable looks up a table; fails with ErrNotFound when absent
func (r *ExpandoRepository) GetTable(ctx context.Context, companyID int64, className, name string) (*models.ExpandoTable, error) {
	query := `
		SELECT table_id, company_id, class_name, name
		FROM expando_tables
		WHERE company_id = ? AND class_name = ? AND name = ?
	`

	t := &models.ExpandoTable{}
	err := r.q.QueryRowContext(ctx, query, companyID, className, name).
		Scan(&t.TableID, &t.CompanyID, &t.ClassName, &t.Name)
	if err != nil {
		return nil, models.NewStoreError(fmt.Sprintf("get table %q", name), err)
	}

	return t, nil
}

// AddTable creates a new table
func (r *ExpandoRepository) AddTable(ctx context.Context, companyID int64, className, name string) (*models.ExpandoTable, error) {
	result, err := r.q.ExecContext(ctx,
		`INSERT INTO expando_tables (company_id, class_name, name) VALUES (?, ?, ?)`,
		companyID, className, name)
	if err != nil {
		return nil, models.NewStoreError(fmt.Sprintf("add table %q", name), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, models.NewStoreError(fmt.Sprintf("add table %q", name), err)
	}

	return &models.ExpandoTable{TableID: id, CompanyID: companyID, ClassName: className, Name: name}, nil
}

// AddColumn adds a typed column to a table
func (r *ExpandoRepository) AddColumn(ctx context.Context, tableID int64, name string, columnType int) (*models.ExpandoColumn, error) {
	if columnType != models.ColumnTypeDate && columnType != models.ColumnTypeString {
		return nil, models.NewStoreError("add column", fmt.Errorf("unsupported column type %d", columnType))
	}

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO expando_columns (table_id, name, type) VALUES (?, ?, ?)`,
		tableID, name, columnType)
	if err != nil {
		return nil, models.NewStoreError(fmt.Sprintf("add column %q", name), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, models.NewStoreError(fmt.Sprintf("add column %q", name), err)
	}

	return &models.ExpandoColumn{ColumnID: id, TableID: tableID, Name: name, Type: columnType}, nil
}

// ListRows returns the row handles of a table
func (r *ExpandoRepository) ListRows(ctx context.Context, companyID int64, className, tableName string) ([]models.ExpandoRow, error) {
	query := `
		SELECT r.row_id, r.table_id, r.class_pk
		FROM expando_rows r
		JOIN expando_tables t ON t.table_id = r.table_id
		WHERE t.company_id = ? AND t.class_name = ? AND t.name = ?
	`

	rows, err := r.q.QueryContext(ctx, query, companyID, className, tableName)
	if err != nil {
		return nil, models.NewStoreError("list rows", err)
	}
	defer rows.Close()

	var result []models.ExpandoRow
	for rows.Next() {
		var row models.ExpandoRow
		if err := rows.Scan(&row.RowID, &row.TableID, &row.ClassPK); err != nil {
			return nil, models.NewStoreError("list rows", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStoreError("list rows", err)
	}

	return result, nil
}

const valueSelect = `
	SELECT v.value_id, v.table_id, v.column_id, v.row_id, v.class_pk, c.name, c.type, v.data
	FROM expando_values v
	JOIN expando_columns c ON c.column_id = v.column_id
	JOIN expando_tables t ON t.table_id = v.table_id
	WHERE t.company_id = ? AND t.class_name = ? AND t.name = ? AND c.name = ?
`

func scanValue(scan func(dest ...any) error) (models.ExpandoValue, error) {
	var v models.ExpandoValue
	err := scan(&v.ValueID, &v.TableID, &v.ColumnID, &v.RowID, &v.ClassPK, &v.Column, &v.Type, &v.Data)
	return v, err
}

// ReadValue reads one cell; fails with ErrNotFound when the row has no value for the column
func (r *ExpandoRepository) ReadValue(ctx context.Context, companyID int64, className, tableName, column string, classPK int64) (*models.ExpandoValue, error) {
	row := r.q.QueryRowContext(ctx, valueSelect+" AND v.class_pk = ?", companyID, className, tableName, column, classPK)
	v, err := scanValue(row.Scan)
	if err != nil {
		return nil, models.NewStoreError(fmt.Sprintf("read value %s.%s", tableName, column), err)
	}
	return &v, nil
}

// GetColumnValues returns every value of a column, in no particular order
func (r *ExpandoRepository) GetColumnValues(ctx context.Context, companyID int64, className, tableName, column string) ([]models.ExpandoValue, error) {
	rows, err := r.q.QueryContext(ctx, valueSelect, companyID, className, tableName, column)
	if err != nil {
		return nil, models.NewStoreError(fmt.Sprintf("get column values %s.%s", tableName, column), err)
	}
	defer rows.Close()

	var values []models.ExpandoValue
	for rows.Next() {
		v, err := scanValue(rows.Scan)
		if err != nil {
			return nil, models.NewStoreError(fmt.Sprintf("get column values %s.%s", tableName, column), err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStoreError(fmt.Sprintf("get column values %s.%s", tableName, column), err)
	}

	return values, nil
}

// AppendValue writes a cell, creating the row on first write. value must be a
// time.Time for DATE columns and a string for STRING columns.
func (r *ExpandoRepository) AppendValue(ctx context.Context, companyID int64, className, tableName, column string, classPK int64, value any) (*models.ExpandoValue, error) {
	op := fmt.Sprintf("append value %s.%s", tableName, column)

	var col models.ExpandoColumn
	err := r.q.QueryRowContext(ctx, `
		SELECT c.column_id, c.table_id, c.name, c.type
		FROM expando_columns c
		JOIN expando_tables t ON t.table_id = c.table_id
		WHERE t.company_id = ? AND t.class_name = ? AND t.name = ? AND c.name = ?
	`, companyID, className, tableName, column).Scan(&col.ColumnID, &col.TableID, &col.Name, &col.Type)
	if err != nil {
		return nil, models.NewStoreError(op, err)
	}

	data, err := encodeValue(col, value)
	if err != nil {
		return nil, models.NewStoreError(op, err)
	}

	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO expando_rows (table_id, class_pk) VALUES (?, ?) ON CONFLICT (table_id, class_pk) DO NOTHING`,
		col.TableID, classPK); err != nil {
		return nil, models.NewStoreError(op, err)
	}

	var rowID int64
	if err := r.q.QueryRowContext(ctx,
		`SELECT row_id FROM expando_rows WHERE table_id = ? AND class_pk = ?`,
		col.TableID, classPK).Scan(&rowID); err != nil {
		return nil, models.NewStoreError(op, err)
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO expando_values (table_id, column_id, row_id, class_pk, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (column_id, row_id) DO UPDATE SET data = excluded.data
	`, col.TableID, col.ColumnID, rowID, classPK, data); err != nil {
		return nil, models.NewStoreError(op, err)
	}

	return &models.ExpandoValue{
		TableID:  col.TableID,
		ColumnID: col.ColumnID,
		RowID:    rowID,
		ClassPK:  classPK,
		Column:   col.Name,
		Type:     col.Type,
		Data:     data,
	}, nil
}

func encodeValue(col models.ExpandoColumn, value any) (string, error) {
	switch col.Type {
	case models.ColumnTypeDate:
		t, ok := value.(time.Time)
		if !ok {
			return "", fmt.Errorf("column %q expects a time.Time, got %T", col.Name, value)
		}
		return models.EncodeDate(t), nil
	case models.ColumnTypeString:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("column %q expects a string, got %T", col.Name, value)
		}
		return s, nil
	default:
		return "", errors.New("unsupported column type")
	}
}

// DeleteTableValues removes every value of a table
func (r *ExpandoRepository) DeleteTableValues(ctx context.Context, tableID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM expando_values WHERE table_id = ?`, tableID); err != nil {
		return models.NewStoreError("delete table values", err)
	}
	return nil
}

// DeleteRow removes a row handle
func (r *ExpandoRepository) DeleteRow(ctx context.Context, rowID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM expando_rows WHERE row_id = ?`, rowID); err != nil {
		return models.NewStoreError("delete row", err)
	}
	return nil
}

// DeleteTable removes a table together with its column definitions
func (r *ExpandoRepository) DeleteTable(ctx context.Context, tableID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM expando_columns WHERE table_id = ?`, tableID); err != nil {
		return models.NewStoreError("delete table columns", err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM expando_tables WHERE table_id = ?`, tableID); err != nil {
		return models.NewStoreError("delete table", err)
	}
	return nil
}
