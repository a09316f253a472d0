package rowcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/arcflow-db/arcdb/internal/arcerr"
)

const nullsWidth = 8 // uint64 bitmap

// fixedFieldWidth returns the number of bytes a non-null column of this
// type occupies in the fixed prefix. Variable strings occupy an
// offset+length pair pointing into the trailing variable section.
func fixedFieldWidth(c ColumnSchema) int {
	switch c.Type {
	case TypeBool:
		return 1
	case TypeUint64:
		return 8
	case TypeInt64:
		return 8
	case TypeFixedString:
		return c.Length
	case TypeVarString:
		return 8 // uint32 offset + uint32 length
	default:
		panic("rowcodec: unknown column type")
	}
}

func nullBitmap(schema *Schema, row Row) uint64 {
	var nulls uint64
	for i := range row {
		if row[i].Null {
			nulls |= 1 << uint(i)
		}
	}
	return nulls
}

func fixedRowSpaceForNulls(schema *Schema, nulls uint64) int {
	total := nullsWidth
	for i, c := range schema.Columns {
		if nulls&(1<<uint(i)) != 0 {
			continue
		}
		total += fixedFieldWidth(c)
	}
	return total
}

// FixedRowSpace returns the byte size of an all-non-null row under
// schema: the layout fixedrow pages rely on for their fixed stride.
func FixedRowSpace(schema *Schema) int {
	return fixedRowSpaceForNulls(schema, 0)
}

// RowSpace returns the exact encoded size of row, including any
// variable-length string payload.
func RowSpace(schema *Schema, row Row) (int, error) {
	if len(row) != len(schema.Columns) {
		return 0, fmt.Errorf("row has %d values: %w: schema has %d columns", len(row), arcerr.ErrSchemaMismatch, len(schema.Columns))
	}
	nulls := nullBitmap(schema, row)
	total := fixedRowSpaceForNulls(schema, nulls)
	for i, c := range schema.Columns {
		if nulls&(1<<uint(i)) != 0 {
			continue
		}
		if c.Type == TypeVarString {
			total += len(row[i].Str)
		}
	}
	return total, nil
}

// Marshal encodes row into buf, which must be at least RowSpace(schema,
// row) bytes. It returns the number of bytes written.
func Marshal(schema *Schema, row Row, buf []byte) (int, error) {
	if len(row) != len(schema.Columns) {
		return 0, fmt.Errorf("row has %d values: %w: schema has %d columns", len(row), arcerr.ErrSchemaMismatch, len(schema.Columns))
	}
	space, err := RowSpace(schema, row)
	if err != nil {
		return 0, err
	}
	if len(buf) < space {
		return 0, fmt.Errorf("marshal row: %w: buffer has %d bytes, need %d", arcerr.ErrStorage, len(buf), space)
	}

	nulls := nullBitmap(schema, row)
	binary.LittleEndian.PutUint64(buf[0:8], nulls)

	fixedSpace := fixedRowSpaceForNulls(schema, nulls)
	pos := nullsWidth
	varPos := fixedSpace

	for i, c := range schema.Columns {
		if nulls&(1<<uint(i)) != 0 {
			continue
		}
		v := row[i]
		switch c.Type {
		case TypeBool:
			if v.Bool {
				buf[pos] = 1
			} else {
				buf[pos] = 0
			}
			pos += 1
		case TypeUint64:
			binary.LittleEndian.PutUint64(buf[pos:pos+8], v.Uint64)
			pos += 8
		case TypeInt64:
			binary.LittleEndian.PutUint64(buf[pos:pos+8], uint64(v.Int64))
			pos += 8
		case TypeFixedString:
			n := copy(buf[pos:pos+c.Length], v.Str)
			for j := n; j < c.Length; j++ {
				buf[pos+j] = 0
			}
			pos += c.Length
		case TypeVarString:
			strLen := len(v.Str)
			binary.LittleEndian.PutUint32(buf[pos:pos+4], uint32(varPos))
			binary.LittleEndian.PutUint32(buf[pos+4:pos+8], uint32(strLen))
			copy(buf[varPos:varPos+strLen], v.Str)
			varPos += strLen
			pos += 8
		}
	}
	return varPos, nil
}

// Unmarshal decodes a row from buf according to schema. buf must
// contain at least FixedRowSpace(schema) bytes plus whatever variable
// payload the row's non-null var-string columns require.
func Unmarshal(schema *Schema, buf []byte) (Row, error) {
	if len(buf) < nullsWidth {
		return nil, fmt.Errorf("unmarshal row: %w: buffer too short", arcerr.ErrStorage)
	}
	nulls := binary.LittleEndian.Uint64(buf[0:8])
	row := make(Row, len(schema.Columns))
	pos := nullsWidth
	for i, c := range schema.Columns {
		if nulls&(1<<uint(i)) != 0 {
			row[i] = NullValue()
			continue
		}
		switch c.Type {
		case TypeBool:
			row[i] = BoolValue(buf[pos] != 0)
			pos += 1
		case TypeUint64:
			row[i] = Uint64Value(binary.LittleEndian.Uint64(buf[pos : pos+8]))
			pos += 8
		case TypeInt64:
			row[i] = Int64Value(int64(binary.LittleEndian.Uint64(buf[pos : pos+8])))
			pos += 8
		case TypeFixedString:
			raw := buf[pos : pos+c.Length]
			end := len(raw)
			for end > 0 && raw[end-1] == 0 {
				end--
			}
			row[i] = FixedStringValue(string(raw[:end]))
			pos += c.Length
		case TypeVarString:
			off := binary.LittleEndian.Uint32(buf[pos : pos+4])
			length := binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
			row[i] = VarStringValue(string(buf[off : off+length]))
			pos += 8
		}
	}
	return row, nil
}

// AllNullRow builds a row of the given width with every value null,
// used as the tombstone marker on fixed-row pages.
func AllNullRow(width int) Row {
	row := make(Row, width)
	for i := range row {
		row[i] = NullValue()
	}
	return row
}

// IsAllNull reports whether every value in row is null.
func IsAllNull(row Row) bool {
	for _, v := range row {
		if !v.Null {
			return false
		}
	}
	return true
}
