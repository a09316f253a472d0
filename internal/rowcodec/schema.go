package rowcodec

import (
	"fmt"
	"strings"

	"github.com/arcflow-db/arcdb/internal/arcerr"
)

// MaxColumns is the widest a schema can be. The null bitmap is a
// single uint64, and one of its 64 bits is reserved rather than
// assigned to a column, leaving 63 usable columns.
const MaxColumns = 63

// ColumnSchema describes one column: its name, type, and (for
// TypeFixedString only) its fixed byte width.
type ColumnSchema struct {
	Name   string
	Type   ColumnType
	Length int
}

func (c ColumnSchema) String() string {
	if c.Length != 0 {
		return fmt.Sprintf("%s %s(%d)", c.Name, c.Type, c.Length)
	}
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

// Schema is an ordered list of columns.
type Schema struct {
	Columns []ColumnSchema
}

// NewSchema validates and wraps a column list.
func NewSchema(columns []ColumnSchema) (*Schema, error) {
	if len(columns) > MaxColumns {
		return nil, fmt.Errorf("schema with %d columns: %w: max %d columns", len(columns), arcerr.ErrSchemaMismatch, MaxColumns)
	}
	for _, c := range columns {
		if c.Type == TypeFixedString && c.Length <= 0 {
			return nil, fmt.Errorf("column %q: %w: fixed string column requires a positive length", c.Name, arcerr.ErrSchemaMismatch)
		}
	}
	return &Schema{Columns: columns}, nil
}

// ColumnIndex returns the index of name, or -1 if absent.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (s *Schema) String() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// Row is one tuple of values, positional against a Schema.
type Row []Value
