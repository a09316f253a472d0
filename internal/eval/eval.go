// Package eval builds and evaluates scalar expression trees against a
// row, given a schema that resolves identifiers to column positions.
//
// Grounded line-for-line on original_source/src/expression.cpp's
// IdentifierExpression/NumberConstantExpression/StringConstantExpression/
// BinaryOperatorExpression/UnaryOperatorExpression and the switch-coded
// buildExpression dispatcher. Where the original uses std::get<T> and
// panics (bad_variant_access) on a type mismatch, this module returns
// arcerr.ErrTypeError: Go has no implicit "trust the AST" unwrap, and
// spec.md calls out type mismatches as an explicit runtime error.
package eval

import (
	"fmt"
	"math"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
)

// BinaryOp identifies a binary operator code.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpAnd
	OpOr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// UnaryOp identifies a unary operator code.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

// Expr is a scalar expression node. Every node type implements Eval.
type Expr interface {
	Eval(row rowcodec.Row) (rowcodec.Value, error)
	ResultType() rowcodec.ColumnType
}

// Identifier reads input_row[idx], resolved once at build time against
// a SchemaAccessor. Length carries the source column's fixed width
// when Type is TypeFixedString, so a projection can reuse it instead
// of guessing.
type Identifier struct {
	Index  int
	Type   rowcodec.ColumnType
	Length int
}

func (e *Identifier) ResultType() rowcodec.ColumnType { return e.Type }

func (e *Identifier) Eval(row rowcodec.Row) (rowcodec.Value, error) {
	if e.Index < 0 || e.Index >= len(row) {
		return rowcodec.Value{}, fmt.Errorf("evaluate identifier: %w: column index %d out of range", arcerr.ErrSchemaMismatch, e.Index)
	}
	return row[e.Index], nil
}

// IntConstant is a literal int64.
type IntConstant struct{ Value int64 }

func (e *IntConstant) ResultType() rowcodec.ColumnType { return rowcodec.TypeInt64 }

func (e *IntConstant) Eval(rowcodec.Row) (rowcodec.Value, error) {
	return rowcodec.Int64Value(e.Value), nil
}

// StringConstant is a literal string, evaluated as a variable-width
// string value (matching the original's std::string constant, which
// carries no fixed width).
type StringConstant struct{ Value string }

func (e *StringConstant) ResultType() rowcodec.ColumnType { return rowcodec.TypeVarString }

func (e *StringConstant) Eval(rowcodec.Row) (rowcodec.Value, error) {
	return rowcodec.VarStringValue(e.Value), nil
}

// BoolConstant is a literal TRUE/FALSE. The original has no bare
// boolean literal (booleans only ever arise from a comparison), but
// this module's grammar accepts one directly for INSERT ... VALUES
// against boolean columns, so it needs a constant node of its own.
type BoolConstant struct{ Value bool }

func (e *BoolConstant) ResultType() rowcodec.ColumnType { return rowcodec.TypeBool }

func (e *BoolConstant) Eval(rowcodec.Row) (rowcodec.Value, error) {
	return rowcodec.BoolValue(e.Value), nil
}

// BinaryOperator applies op to the evaluated LHS/RHS.
type BinaryOperator struct {
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

func (e *BinaryOperator) ResultType() rowcodec.ColumnType {
	switch e.Op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return arithResultType(e.LHS.ResultType(), e.RHS.ResultType())
	default:
		return rowcodec.TypeBool
	}
}

// arithResultType gives a uint64 operand priority: a uint64 column
// combined with an int64 literal, the only type SQL integer constants
// carry, still produces a uint64 result.
func arithResultType(lhs, rhs rowcodec.ColumnType) rowcodec.ColumnType {
	if lhs == rowcodec.TypeUint64 || rhs == rowcodec.TypeUint64 {
		return rowcodec.TypeUint64
	}
	return rowcodec.TypeInt64
}

func asInt64(v rowcodec.Value) (int64, error) {
	if v.Type != rowcodec.TypeInt64 || v.Null {
		return 0, fmt.Errorf("evaluate expression: %w: expected non-null int64, got %s", arcerr.ErrTypeError, v.String())
	}
	return v.Int64, nil
}

// asUint64 accepts a uint64 value directly, or a non-negative int64,
// the type every integer literal evaluates as, promoted up.
func asUint64(v rowcodec.Value) (uint64, error) {
	if v.Null {
		return 0, fmt.Errorf("evaluate expression: %w: expected non-null numeric value", arcerr.ErrTypeError)
	}
	switch v.Type {
	case rowcodec.TypeUint64:
		return v.Uint64, nil
	case rowcodec.TypeInt64:
		if v.Int64 < 0 {
			return 0, fmt.Errorf("evaluate expression: %w: negative value where uint64 expected", arcerr.ErrTypeError)
		}
		return uint64(v.Int64), nil
	default:
		return 0, fmt.Errorf("evaluate expression: %w: expected numeric value, got %s", arcerr.ErrTypeError, v.String())
	}
}

// compareNumeric orders two int64/uint64 values, promoting an int64
// operand into the uint64 domain whenever the other side is uint64,
// the same per-type switch rowcodec.Compare uses, extended to accept
// the int64-literal-against-uint64-column case that Compare itself
// never has to handle.
func compareNumeric(lhs, rhs rowcodec.Value) (int, error) {
	if lhs.Type == rowcodec.TypeUint64 || rhs.Type == rowcodec.TypeUint64 {
		a, err := asUint64(lhs)
		if err != nil {
			return 0, err
		}
		b, err := asUint64(rhs)
		if err != nil {
			return 0, err
		}
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		default:
			return 0, nil
		}
	}
	a, err := asInt64(lhs)
	if err != nil {
		return 0, err
	}
	b, err := asInt64(rhs)
	if err != nil {
		return 0, err
	}
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	default:
		return 0, nil
	}
}

func asBool(v rowcodec.Value) (bool, error) {
	if v.Type != rowcodec.TypeBool || v.Null {
		return false, fmt.Errorf("evaluate expression: %w: expected non-null bool, got %s", arcerr.ErrTypeError, v.String())
	}
	return v.Bool, nil
}

func (e *BinaryOperator) Eval(row rowcodec.Row) (rowcodec.Value, error) {
	lhs, err := e.LHS.Eval(row)
	if err != nil {
		return rowcodec.Value{}, err
	}
	rhs, err := e.RHS.Eval(row)
	if err != nil {
		return rowcodec.Value{}, err
	}

	switch e.Op {
	case OpAdd, OpSub, OpMul, OpDiv:
		if lhs.Type == rowcodec.TypeUint64 || rhs.Type == rowcodec.TypeUint64 {
			a, err := asUint64(lhs)
			if err != nil {
				return rowcodec.Value{}, err
			}
			b, err := asUint64(rhs)
			if err != nil {
				return rowcodec.Value{}, err
			}
			switch e.Op {
			case OpAdd:
				return rowcodec.Uint64Value(a + b), nil
			case OpSub:
				return rowcodec.Uint64Value(a - b), nil
			case OpMul:
				return rowcodec.Uint64Value(a * b), nil
			default:
				if b == 0 {
					return rowcodec.Value{}, fmt.Errorf("evaluate expression: %w: division by zero", arcerr.ErrTypeError)
				}
				return rowcodec.Uint64Value(a / b), nil
			}
		}
		a, err := asInt64(lhs)
		if err != nil {
			return rowcodec.Value{}, err
		}
		b, err := asInt64(rhs)
		if err != nil {
			return rowcodec.Value{}, err
		}
		switch e.Op {
		case OpAdd:
			return rowcodec.Int64Value(a + b), nil
		case OpSub:
			return rowcodec.Int64Value(a - b), nil
		case OpMul:
			return rowcodec.Int64Value(a * b), nil
		default:
			if b == 0 {
				return rowcodec.Value{}, fmt.Errorf("evaluate expression: %w: division by zero", arcerr.ErrTypeError)
			}
			return rowcodec.Int64Value(a / b), nil
		}
	case OpAnd, OpOr:
		a, err := asBool(lhs)
		if err != nil {
			return rowcodec.Value{}, err
		}
		b, err := asBool(rhs)
		if err != nil {
			return rowcodec.Value{}, err
		}
		if e.Op == OpAnd {
			return rowcodec.BoolValue(a && b), nil
		}
		return rowcodec.BoolValue(a || b), nil
	case OpEq:
		return rowcodec.BoolValue(rowcodec.Equal(lhs, rhs)), nil
	case OpNe:
		return rowcodec.BoolValue(!rowcodec.Equal(lhs, rhs)), nil
	case OpLt, OpLe, OpGt, OpGe:
		c, err := compareNumeric(lhs, rhs)
		if err != nil {
			return rowcodec.Value{}, err
		}
		switch e.Op {
		case OpLt:
			return rowcodec.BoolValue(c < 0), nil
		case OpLe:
			return rowcodec.BoolValue(c <= 0), nil
		case OpGt:
			return rowcodec.BoolValue(c > 0), nil
		default:
			return rowcodec.BoolValue(c >= 0), nil
		}
	default:
		return rowcodec.Value{}, fmt.Errorf("evaluate expression: %w: unknown binary operator %d", arcerr.ErrTypeError, e.Op)
	}
}

// UnaryOperator applies op to the evaluated operand.
type UnaryOperator struct {
	Op      UnaryOp
	Operand Expr
}

func (e *UnaryOperator) ResultType() rowcodec.ColumnType {
	if e.Op == OpNeg {
		return rowcodec.TypeInt64
	}
	return e.Operand.ResultType()
}

func (e *UnaryOperator) Eval(row rowcodec.Row) (rowcodec.Value, error) {
	v, err := e.Operand.Eval(row)
	if err != nil {
		return rowcodec.Value{}, err
	}
	if e.Op == OpNot {
		b, err := asBool(v)
		if err != nil {
			return rowcodec.Value{}, err
		}
		return rowcodec.BoolValue(!b), nil
	}
	if v.Type == rowcodec.TypeUint64 {
		u, err := asUint64(v)
		if err != nil {
			return rowcodec.Value{}, err
		}
		if u > uint64(math.MaxInt64) {
			return rowcodec.Value{}, fmt.Errorf("evaluate expression: %w: value too large to negate", arcerr.ErrTypeError)
		}
		return rowcodec.Int64Value(-int64(u)), nil
	}
	n, err := asInt64(v)
	if err != nil {
		return rowcodec.Value{}, err
	}
	return rowcodec.Int64Value(-n), nil
}

// SchemaAccessor resolves identifier names against a row schema,
// mirroring original_source/src/expression.cpp's SchemaAccessor
// dependency (getColumnIndexOrThrow/getColumnOrThrow).
type SchemaAccessor struct {
	schema *rowcodec.Schema
}

func NewSchemaAccessor(schema *rowcodec.Schema) *SchemaAccessor {
	return &SchemaAccessor{schema: schema}
}

// ColumnIndexOrError returns the column's position, or ErrBadQuery if
// name is not a column of the accessor's schema.
func (a *SchemaAccessor) ColumnIndexOrError(name string) (int, error) {
	idx := a.schema.ColumnIndex(name)
	if idx < 0 {
		return 0, fmt.Errorf("column %q: %w", name, arcerr.ErrBadQuery)
	}
	return idx, nil
}

// BuildIdentifier resolves name into an *Identifier node.
func (a *SchemaAccessor) BuildIdentifier(name string) (*Identifier, error) {
	idx, err := a.ColumnIndexOrError(name)
	if err != nil {
		return nil, err
	}
	return &Identifier{Index: idx, Type: a.schema.Columns[idx].Type, Length: a.schema.Columns[idx].Length}, nil
}
