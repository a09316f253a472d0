package store

import (
	"fmt"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
	"github.com/arcflow-db/arcdb/internal/table"
)

// catalogSchema is the fixed layout of every "<table>_schema" bookkeeping
// table: one row per column, in declaration order. Grounded exactly on
// original_source/src/catalog.h's Catalog::connectToTable, including the
// varchar(1024) width for both name and type columns.
func catalogSchema() *rowcodec.Schema {
	s, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{
		{Name: "name", Type: rowcodec.TypeFixedString, Length: 1024},
		{Name: "length", Type: rowcodec.TypeUint64},
		{Name: "type", Type: rowcodec.TypeFixedString, Length: 1024},
	})
	if err != nil {
		panic("store: catalog schema is malformed: " + err.Error())
	}
	return s
}

func typeName(t rowcodec.ColumnType) (string, error) {
	switch t {
	case rowcodec.TypeBool:
		return "boolean", nil
	case rowcodec.TypeUint64:
		return "uint64", nil
	case rowcodec.TypeInt64:
		return "int64", nil
	case rowcodec.TypeFixedString:
		return "varchar", nil
	case rowcodec.TypeVarString:
		return "string", nil
	default:
		return "", fmt.Errorf("type name for column: %w: unknown column type %v", arcerr.ErrSchemaMismatch, t)
	}
}

func typeFromName(name string) (rowcodec.ColumnType, error) {
	switch name {
	case "boolean":
		return rowcodec.TypeBool, nil
	case "uint64":
		return rowcodec.TypeUint64, nil
	case "int64":
		return rowcodec.TypeInt64, nil
	case "varchar":
		return rowcodec.TypeFixedString, nil
	case "string":
		return rowcodec.TypeVarString, nil
	default:
		return 0, fmt.Errorf("type from name %q: %w", name, arcerr.ErrSchemaMismatch)
	}
}

// saveTableSchema appends one catalog row per column of schema to
// catalogTable, which the caller has already created. Mirrors
// Catalog::saveTableSchema.
func saveTableSchema(catalogTable *table.Table, schema *rowcodec.Schema) error {
	for _, col := range schema.Columns {
		tn, err := typeName(col.Type)
		if err != nil {
			return err
		}
		row := rowcodec.Row{
			rowcodec.FixedStringValue(col.Name),
			rowcodec.Uint64Value(uint64(col.Length)),
			rowcodec.FixedStringValue(tn),
		}
		if _, err := catalogTable.InsertRow(row); err != nil {
			return fmt.Errorf("save table schema: %w", err)
		}
	}
	return nil
}

// loadTableSchema reconstructs a Schema from name's "_schema" table.
// Mirrors Catalog::findTableSchema, including its tombstone skip.
func loadTableSchema(catalogTable *table.Table) (*rowcodec.Schema, error) {
	var columns []rowcodec.ColumnSchema
	var scanErr error
	err := catalogTable.Scan(func(_ table.RowID, row rowcodec.Row) bool {
		t, terr := typeFromName(row[2].Str)
		if terr != nil {
			scanErr = terr
			return false
		}
		columns = append(columns, rowcodec.ColumnSchema{
			Name:   row[0].Str,
			Length: int(row[1].Uint64),
			Type:   t,
		})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("load table schema: %w", err)
	}
	if scanErr != nil {
		return nil, fmt.Errorf("load table schema: %w", scanErr)
	}

	return rowcodec.NewSchema(columns)
}
