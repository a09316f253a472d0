package eval

import (
	"errors"
	"testing"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
)

func testSchema(t *testing.T) *rowcodec.Schema {
	t.Helper()
	s, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{
		{Name: "a", Type: rowcodec.TypeInt64},
		{Name: "b", Type: rowcodec.TypeInt64},
		{Name: "flag", Type: rowcodec.TypeBool},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestIdentifierEval(t *testing.T) {
	acc := NewSchemaAccessor(testSchema(t))
	expr, err := acc.BuildIdentifier("b")
	if err != nil {
		t.Fatalf("BuildIdentifier: %v", err)
	}
	row := rowcodec.Row{rowcodec.Int64Value(1), rowcodec.Int64Value(2), rowcodec.BoolValue(true)}
	v, err := expr.Eval(row)
	if err != nil || v.Int64 != 2 {
		t.Fatalf("Eval = %v err=%v", v, err)
	}
}

func TestUnknownIdentifierIsBadQuery(t *testing.T) {
	acc := NewSchemaAccessor(testSchema(t))
	if _, err := acc.BuildIdentifier("nope"); !errors.Is(err, arcerr.ErrBadQuery) {
		t.Fatalf("expected ErrBadQuery, got %v", err)
	}
}

func TestBinaryArithmetic(t *testing.T) {
	acc := NewSchemaAccessor(testSchema(t))
	a, _ := acc.BuildIdentifier("a")
	b, _ := acc.BuildIdentifier("b")
	expr := &BinaryOperator{Op: OpAdd, LHS: a, RHS: b}
	row := rowcodec.Row{rowcodec.Int64Value(3), rowcodec.Int64Value(4), rowcodec.BoolValue(false)}
	v, err := expr.Eval(row)
	if err != nil || v.Int64 != 7 {
		t.Fatalf("Eval = %v err=%v", v, err)
	}
}

func TestDivisionByZero(t *testing.T) {
	expr := &BinaryOperator{Op: OpDiv, LHS: &IntConstant{Value: 1}, RHS: &IntConstant{Value: 0}}
	_, err := expr.Eval(nil)
	if !errors.Is(err, arcerr.ErrTypeError) {
		t.Fatalf("expected ErrTypeError, got %v", err)
	}
}

func TestComparisonAndBoolOps(t *testing.T) {
	lt := &BinaryOperator{Op: OpLt, LHS: &IntConstant{Value: 1}, RHS: &IntConstant{Value: 2}}
	v, err := lt.Eval(nil)
	if err != nil || !v.Bool {
		t.Fatalf("1 < 2 = %v err=%v", v, err)
	}

	and := &BinaryOperator{
		Op:  OpAnd,
		LHS: &BinaryOperator{Op: OpEq, LHS: &IntConstant{Value: 5}, RHS: &IntConstant{Value: 5}},
		RHS: &UnaryOperator{Op: OpNot, Operand: &BinaryOperator{Op: OpEq, LHS: &IntConstant{Value: 1}, RHS: &IntConstant{Value: 2}}},
	}
	v, err = and.Eval(nil)
	if err != nil || !v.Bool {
		t.Fatalf("(5=5) and not(1=2) = %v err=%v", v, err)
	}
}

func TestTypeMismatchIsError(t *testing.T) {
	expr := &BinaryOperator{Op: OpAnd, LHS: &IntConstant{Value: 1}, RHS: &IntConstant{Value: 2}}
	_, err := expr.Eval(nil)
	if !errors.Is(err, arcerr.ErrTypeError) {
		t.Fatalf("expected ErrTypeError, got %v", err)
	}
}

func TestUnaryNegate(t *testing.T) {
	expr := &UnaryOperator{Op: OpNeg, Operand: &IntConstant{Value: 5}}
	v, err := expr.Eval(nil)
	if err != nil || v.Int64 != -5 {
		t.Fatalf("Eval = %v err=%v", v, err)
	}
}

func TestComparisonAgainstUint64Column(t *testing.T) {
	schema, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{{Name: "age", Type: rowcodec.TypeUint64}})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	acc := NewSchemaAccessor(schema)
	age, _ := acc.BuildIdentifier("age")
	row := rowcodec.Row{rowcodec.Uint64Value(20)}

	ge := &BinaryOperator{Op: OpGe, LHS: age, RHS: &IntConstant{Value: 19}}
	v, err := ge.Eval(row)
	if err != nil || !v.Bool {
		t.Fatalf("age(20) >= 19 = %v err=%v", v, err)
	}

	lt := &BinaryOperator{Op: OpLt, LHS: age, RHS: &IntConstant{Value: 21}}
	v, err = lt.Eval(row)
	if err != nil || !v.Bool {
		t.Fatalf("age(20) < 21 = %v err=%v", v, err)
	}

	lt = &BinaryOperator{Op: OpLt, LHS: age, RHS: &IntConstant{Value: 19}}
	v, err = lt.Eval(row)
	if err != nil || v.Bool {
		t.Fatalf("age(20) < 19 = %v err=%v", v, err)
	}
}

func TestArithmeticOverUint64Column(t *testing.T) {
	schema, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{{Name: "age", Type: rowcodec.TypeUint64}})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	acc := NewSchemaAccessor(schema)
	age, _ := acc.BuildIdentifier("age")
	row := rowcodec.Row{rowcodec.Uint64Value(20)}

	expr := &BinaryOperator{Op: OpAdd, LHS: age, RHS: &IntConstant{Value: 5}}
	if expr.ResultType() != rowcodec.TypeUint64 {
		t.Fatalf("ResultType = %v, want TypeUint64", expr.ResultType())
	}
	v, err := expr.Eval(row)
	if err != nil || v.Type != rowcodec.TypeUint64 || v.Uint64 != 25 {
		t.Fatalf("age(20) + 5 = %+v err=%v", v, err)
	}
}
