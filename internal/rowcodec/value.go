// Package rowcodec implements the schema-driven row layout: a Value sum
// type, a Schema of typed columns, and a null-bitmap binary encoding
// translated from original_source/src/marshal.h's Marshal class.
package rowcodec

import "fmt"

// ColumnType identifies the runtime representation of a column.
type ColumnType uint8

const (
	TypeBool ColumnType = iota
	TypeUint64
	TypeInt64
	TypeFixedString // fixed-width, null-padded/truncated, length = ColumnSchema.Length
	TypeVarString   // variable-width
)

func (t ColumnType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeUint64:
		return "uint64"
	case TypeInt64:
		return "int64"
	case TypeFixedString:
		return "fixedstring"
	case TypeVarString:
		return "varstring"
	default:
		return "unknown"
	}
}

// Value is the tagged union every row cell holds. The zero Value is
// null.
type Value struct {
	Null   bool
	Type   ColumnType
	Bool   bool
	Uint64 uint64
	Int64  int64
	Str    string
}

// NullValue returns the null value.
func NullValue() Value { return Value{Null: true} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Type: TypeBool, Bool: b} }

// Uint64Value wraps a uint64.
func Uint64Value(v uint64) Value { return Value{Type: TypeUint64, Uint64: v} }

// Int64Value wraps an int64.
func Int64Value(v int64) Value { return Value{Type: TypeInt64, Int64: v} }

// FixedStringValue wraps a fixed-width string.
func FixedStringValue(s string) Value { return Value{Type: TypeFixedString, Str: s} }

// VarStringValue wraps a variable-width string.
func VarStringValue(s string) Value { return Value{Type: TypeVarString, Str: s} }

func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	switch v.Type {
	case TypeBool:
		return fmt.Sprintf("%v", v.Bool)
	case TypeUint64:
		return fmt.Sprintf("%d", v.Uint64)
	case TypeInt64:
		return fmt.Sprintf("%d", v.Int64)
	case TypeFixedString, TypeVarString:
		return v.Str
	default:
		return "?"
	}
}

// Compare orders two values of the same declared type. Null sorts
// before any non-null value, and two nulls compare equal (0).
func Compare(lhs, rhs Value) int {
	if lhs.Null && rhs.Null {
		return 0
	}
	if lhs.Null {
		return -1
	}
	if rhs.Null {
		return 1
	}
	switch lhs.Type {
	case TypeBool:
		if lhs.Bool == rhs.Bool {
			return 0
		}
		if !lhs.Bool {
			return -1
		}
		return 1
	case TypeUint64:
		switch {
		case lhs.Uint64 < rhs.Uint64:
			return -1
		case lhs.Uint64 > rhs.Uint64:
			return 1
		default:
			return 0
		}
	case TypeInt64:
		switch {
		case lhs.Int64 < rhs.Int64:
			return -1
		case lhs.Int64 > rhs.Int64:
			return 1
		default:
			return 0
		}
	case TypeFixedString, TypeVarString:
		switch {
		case lhs.Str < rhs.Str:
			return -1
		case lhs.Str > rhs.Str:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// Equal reports whether two values compare equal.
func Equal(lhs, rhs Value) bool {
	return Compare(lhs, rhs) == 0
}
