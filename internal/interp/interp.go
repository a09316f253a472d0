// Package interp maps parsed SQL statements onto store operations and
// executor pipelines, the one piece sitting above both
// internal/sqlfront (syntax) and internal/exec (pull-based execution).
//
// Grounded on original_source/src/interpreter.cpp's AST-kind dispatch
// (SELECT builds a read -> optional filter -> optional sort -> project
// pipeline; INSERT evaluates VALUES against an empty row and type-checks
// against the target schema; CREATE/DROP TABLE delegate straight to the
// catalog), with plan-building kept separate from plan-running in
// miniature as Interpreter.Explain.
package interp

import (
	"fmt"
	"strings"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/btree"
	"github.com/arcflow-db/arcdb/internal/eval"
	"github.com/arcflow-db/arcdb/internal/exec"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
	"github.com/arcflow-db/arcdb/internal/sqlfront"
	"github.com/arcflow-db/arcdb/internal/store"
)

// Result is the output of running one statement: a SELECT carries
// Columns/Rows, every other statement kind returns an empty Result.
type Result struct {
	Columns []string
	Rows    []rowcodec.Row
}

// Interpreter runs parsed statements against one store.
type Interpreter struct {
	store *store.Store
}

// New wraps a store for statement execution.
func New(s *store.Store) *Interpreter {
	return &Interpreter{store: s}
}

// Run executes one parsed statement.
func (in *Interpreter) Run(stmt sqlfront.Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *sqlfront.CreateTable:
		return &Result{}, in.runCreateTable(s)
	case *sqlfront.DropTable:
		return &Result{}, in.store.DropTable(s.Table)
	case *sqlfront.CreateIndex:
		return &Result{}, in.store.CreateIndex(s.Index, s.Table, s.Column)
	case *sqlfront.DropIndex:
		return &Result{}, in.store.DropIndex(s.Index)
	case *sqlfront.Insert:
		return &Result{}, in.runInsert(s)
	case *sqlfront.Select:
		return in.runSelect(s)
	default:
		return nil, fmt.Errorf("run statement: %w: unknown statement type %T", arcerr.ErrBadQuery, stmt)
	}
}

func (in *Interpreter) runCreateTable(s *sqlfront.CreateTable) error {
	columns := make([]rowcodec.ColumnSchema, len(s.Columns))
	for i, c := range s.Columns {
		t, err := columnType(c.Type)
		if err != nil {
			return fmt.Errorf("create table %s: %w", s.Table, err)
		}
		columns[i] = rowcodec.ColumnSchema{Name: c.Name, Type: t, Length: c.Length}
	}
	schema, err := rowcodec.NewSchema(columns)
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.Table, err)
	}
	return in.store.CreateTable(s.Table, schema)
}

func columnType(name string) (rowcodec.ColumnType, error) {
	switch name {
	case "BOOLEAN":
		return rowcodec.TypeBool, nil
	case "UINT64":
		return rowcodec.TypeUint64, nil
	case "INT64":
		return rowcodec.TypeInt64, nil
	case "VARCHAR":
		return rowcodec.TypeFixedString, nil
	case "STRING":
		return rowcodec.TypeVarString, nil
	default:
		return 0, fmt.Errorf("column type %q: %w", name, arcerr.ErrBadQuery)
	}
}

func (in *Interpreter) runInsert(s *sqlfront.Insert) error {
	tbl, schema, err := in.store.Table(s.Table)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", s.Table, err)
	}
	if len(s.Values) != len(schema.Columns) {
		return fmt.Errorf("insert into %s: %w: expected %d values, got %d", s.Table, arcerr.ErrSchemaMismatch, len(schema.Columns), len(s.Values))
	}

	row := make(rowcodec.Row, len(s.Values))
	for i, valExpr := range s.Values {
		e, err := buildEvalExpr(valExpr, nil)
		if err != nil {
			return fmt.Errorf("insert into %s: %w", s.Table, err)
		}
		v, err := e.Eval(nil)
		if err != nil {
			return fmt.Errorf("insert into %s: %w", s.Table, err)
		}
		coerced, err := coerceToColumn(v, schema.Columns[i])
		if err != nil {
			return fmt.Errorf("insert into %s, column %s: %w", s.Table, schema.Columns[i].Name, err)
		}
		row[i] = coerced
	}

	_, err = tbl.InsertRow(row)
	return err
}

func coerceToColumn(v rowcodec.Value, col rowcodec.ColumnSchema) (rowcodec.Value, error) {
	switch col.Type {
	case rowcodec.TypeBool:
		if v.Type != rowcodec.TypeBool {
			return rowcodec.Value{}, fmt.Errorf("%w: expected boolean, got %s", arcerr.ErrSchemaMismatch, v.Type)
		}
		return v, nil
	case rowcodec.TypeUint64:
		switch v.Type {
		case rowcodec.TypeUint64:
			return v, nil
		case rowcodec.TypeInt64:
			if v.Int64 < 0 {
				return rowcodec.Value{}, fmt.Errorf("%w: negative value for uint64 column", arcerr.ErrSchemaMismatch)
			}
			return rowcodec.Uint64Value(uint64(v.Int64)), nil
		default:
			return rowcodec.Value{}, fmt.Errorf("%w: expected uint64, got %s", arcerr.ErrSchemaMismatch, v.Type)
		}
	case rowcodec.TypeInt64:
		if v.Type != rowcodec.TypeInt64 {
			return rowcodec.Value{}, fmt.Errorf("%w: expected int64, got %s", arcerr.ErrSchemaMismatch, v.Type)
		}
		return v, nil
	case rowcodec.TypeFixedString:
		if v.Type != rowcodec.TypeVarString && v.Type != rowcodec.TypeFixedString {
			return rowcodec.Value{}, fmt.Errorf("%w: expected string, got %s", arcerr.ErrSchemaMismatch, v.Type)
		}
		return rowcodec.FixedStringValue(v.Str), nil
	case rowcodec.TypeVarString:
		if v.Type != rowcodec.TypeVarString && v.Type != rowcodec.TypeFixedString {
			return rowcodec.Value{}, fmt.Errorf("%w: expected string, got %s", arcerr.ErrSchemaMismatch, v.Type)
		}
		return rowcodec.VarStringValue(v.Str), nil
	default:
		return rowcodec.Value{}, fmt.Errorf("%w: unknown column type", arcerr.ErrSchemaMismatch)
	}
}

// buildEvalExpr translates a syntax-level expression into an
// internal/eval tree, resolving identifiers against acc (nil when no
// row context exists, e.g. INSERT's VALUES list or a FROM-less SELECT).
func buildEvalExpr(e sqlfront.Expr, acc *eval.SchemaAccessor) (eval.Expr, error) {
	switch n := e.(type) {
	case *sqlfront.Ident:
		if acc == nil {
			return nil, fmt.Errorf("column %q: %w: no row source in this context", n.Name, arcerr.ErrBadQuery)
		}
		return acc.BuildIdentifier(n.Name)
	case *sqlfront.IntLit:
		return &eval.IntConstant{Value: n.Value}, nil
	case *sqlfront.StrLit:
		return &eval.StringConstant{Value: n.Value}, nil
	case *sqlfront.BoolLit:
		return &eval.BoolConstant{Value: n.Value}, nil
	case *sqlfront.Unary:
		operand, err := buildEvalExpr(n.Operand, acc)
		if err != nil {
			return nil, err
		}
		op, err := unaryOp(n.Op)
		if err != nil {
			return nil, err
		}
		return &eval.UnaryOperator{Op: op, Operand: operand}, nil
	case *sqlfront.Binary:
		left, err := buildEvalExpr(n.Left, acc)
		if err != nil {
			return nil, err
		}
		right, err := buildEvalExpr(n.Right, acc)
		if err != nil {
			return nil, err
		}
		op, err := binaryOp(n.Op)
		if err != nil {
			return nil, err
		}
		return &eval.BinaryOperator{Op: op, LHS: left, RHS: right}, nil
	default:
		return nil, fmt.Errorf("build expression: %w: unknown expression node %T", arcerr.ErrBadQuery, e)
	}
}

func unaryOp(op string) (eval.UnaryOp, error) {
	switch op {
	case "-":
		return eval.OpNeg, nil
	case "NOT":
		return eval.OpNot, nil
	default:
		return 0, fmt.Errorf("unary operator %q: %w", op, arcerr.ErrBadQuery)
	}
}

func binaryOp(op string) (eval.BinaryOp, error) {
	switch op {
	case "+":
		return eval.OpAdd, nil
	case "-":
		return eval.OpSub, nil
	case "*":
		return eval.OpMul, nil
	case "/":
		return eval.OpDiv, nil
	case "AND":
		return eval.OpAnd, nil
	case "OR":
		return eval.OpOr, nil
	case "=":
		return eval.OpEq, nil
	case "!=":
		return eval.OpNe, nil
	case "<":
		return eval.OpLt, nil
	case "<=":
		return eval.OpLe, nil
	case ">":
		return eval.OpGt, nil
	case ">=":
		return eval.OpGe, nil
	default:
		return 0, fmt.Errorf("binary operator %q: %w", op, arcerr.ErrBadQuery)
	}
}

var emptySchema = &rowcodec.Schema{}

func (in *Interpreter) runSelect(s *sqlfront.Select) (*Result, error) {
	var cur exec.Executor
	if len(s.From) == 0 {
		cur = exec.NewReadFromRows([]rowcodec.Row{{}}, emptySchema)
	} else {
		first, err := in.readFromSource(s.From[0])
		if err != nil {
			return nil, err
		}
		cur = first
		for _, name := range s.From[1:] {
			right, err := in.readFromSource(name)
			if err != nil {
				return nil, err
			}
			cur, err = exec.NewJoin(cur, right)
			if err != nil {
				return nil, fmt.Errorf("join %s: %w", name, err)
			}
		}
	}

	if s.Where != nil {
		if len(s.From) == 1 {
			if optimized, ok, err := in.tryIndexScan(s.From[0], s.Where, cur.OutputSchema()); err != nil {
				return nil, err
			} else if ok {
				cur = optimized
			}
		}
		acc := eval.NewSchemaAccessor(cur.OutputSchema())
		predicate, err := buildEvalExpr(s.Where, acc)
		if err != nil {
			return nil, fmt.Errorf("WHERE: %w", err)
		}
		cur = exec.NewFilter(cur, predicate)
	}

	if len(s.OrderBy) > 0 {
		acc := eval.NewSchemaAccessor(cur.OutputSchema())
		keys := make([]exec.SortKey, len(s.OrderBy))
		for i, term := range s.OrderBy {
			e, err := buildEvalExpr(term.Expr, acc)
			if err != nil {
				return nil, fmt.Errorf("ORDER BY: %w", err)
			}
			keys[i] = exec.SortKey{Expr: e, Desc: term.Desc}
		}
		sorted, err := exec.NewSort(cur, keys)
		if err != nil {
			return nil, fmt.Errorf("ORDER BY: %w", err)
		}
		cur = sorted
	}

	var columns []string
	if !s.Star {
		acc := eval.NewSchemaAccessor(cur.OutputSchema())
		exprs := make([]eval.Expr, len(s.Projections))
		names := make([]string, len(s.Projections))
		for i, p := range s.Projections {
			e, err := buildEvalExpr(p, acc)
			if err != nil {
				return nil, fmt.Errorf("SELECT: %w", err)
			}
			exprs[i] = e
			names[i] = projectionName(p, i)
		}
		projected, err := exec.NewProject(cur, exprs, names)
		if err != nil {
			return nil, fmt.Errorf("SELECT: %w", err)
		}
		cur = projected
		columns = names
	} else {
		for _, c := range cur.OutputSchema().Columns {
			columns = append(columns, c.Name)
		}
	}

	var rows []rowcodec.Row
	for {
		row, ok, err := cur.Next()
		if err != nil {
			return nil, fmt.Errorf("execute SELECT: %w", err)
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return &Result{Columns: columns, Rows: rows}, nil
}

func projectionName(e sqlfront.Expr, idx int) string {
	if id, ok := e.(*sqlfront.Ident); ok {
		return id.Name
	}
	return fmt.Sprintf("col_%d", idx)
}

func (in *Interpreter) readFromSource(name string) (exec.Executor, error) {
	tbl, schema, err := in.store.Table(name)
	if err != nil {
		return nil, fmt.Errorf("FROM %s: %w", name, err)
	}
	return exec.NewReadFromTable(tbl, schema), nil
}

// indexBound is one comparison of an indexed column against a literal,
// found while walking a WHERE predicate's AND-connected conjuncts.
type indexBound struct {
	column string
	op     string
	value  sqlfront.Expr
}

// andConjuncts flattens a chain of AND-joined comparisons into its
// leaves; an OR or any other shape is left as a single opaque leaf,
// since this module's loose index bound only ever narrows an AND of
// independent column comparisons.
func andConjuncts(e sqlfront.Expr) []sqlfront.Expr {
	bin, ok := e.(*sqlfront.Binary)
	if !ok || bin.Op != "AND" {
		return []sqlfront.Expr{e}
	}
	return append(andConjuncts(bin.Left), andConjuncts(bin.Right)...)
}

// indexableBound recognizes "column <cmp> literal" (either operand
// order) against the indexed column colName.
func indexableBound(e sqlfront.Expr, colName string) (indexBound, bool) {
	bin, ok := e.(*sqlfront.Binary)
	if !ok || !cmpOps[bin.Op] {
		return indexBound{}, false
	}
	if ident, ok := bin.Left.(*sqlfront.Ident); ok && ident.Name == colName {
		return indexBound{column: colName, op: bin.Op, value: bin.Right}, true
	}
	if ident, ok := bin.Right.(*sqlfront.Ident); ok && ident.Name == colName {
		return indexBound{column: colName, op: flipOp(bin.Op), value: bin.Left}, true
	}
	return indexBound{}, false
}

var cmpOps = map[string]bool{"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

// tryIndexScan replaces a full table scan with an IndexScan when the
// WHERE predicate's AND-connected conjuncts narrow an indexed column
// against literals, per SPEC_FULL.md §5's automatic index selection.
// The resulting [low, high) bound is deliberately loose around
// exclusive comparisons, so a Filter still runs on top of it for exact
// semantics rather than relying on the index bound alone.
func (in *Interpreter) tryIndexScan(tableName string, where sqlfront.Expr, schema *rowcodec.Schema) (exec.Executor, bool, error) {
	idx, colName, ok := in.findIndexableColumn(tableName, where, schema)
	if !ok {
		return nil, false, nil
	}
	col := schema.Columns[schema.ColumnIndex(colName)]

	var low, high rowcodec.Row
	for _, leaf := range andConjuncts(where) {
		bound, ok := indexableBound(leaf, colName)
		if !ok {
			continue
		}
		key, err := buildEvalExpr(bound.value, nil)
		if err != nil {
			continue
		}
		literal, err := key.Eval(nil)
		if err != nil {
			continue
		}
		value, err := coerceToColumn(literal, col)
		if err != nil {
			continue
		}
		switch bound.op {
		case "=", ">", ">=":
			low = rowcodec.Row{value}
		case "<", "<=":
			high = rowcodec.Row{value}
		}
	}
	if low == nil && high == nil {
		return nil, false, nil
	}

	tbl, _, err := in.store.Table(tableName)
	if err != nil {
		return nil, false, err
	}
	return exec.NewIndexScan(idx, tbl, schema, low, high), true, nil
}

// findIndexableColumn reports the first indexed column that appears in
// an AND-connected conjunct of where, if any.
func (in *Interpreter) findIndexableColumn(tableName string, where sqlfront.Expr, schema *rowcodec.Schema) (*btree.Index, string, bool) {
	for _, leaf := range andConjuncts(where) {
		bin, ok := leaf.(*sqlfront.Binary)
		if !ok || !cmpOps[bin.Op] {
			continue
		}
		var colName string
		if ident, ok := bin.Left.(*sqlfront.Ident); ok {
			colName = ident.Name
		} else if ident, ok := bin.Right.(*sqlfront.Ident); ok {
			colName = ident.Name
		} else {
			continue
		}
		if schema.ColumnIndex(colName) < 0 {
			continue
		}
		if idx, ok := in.store.Index(tableName, colName); ok {
			return idx, colName, true
		}
	}
	return nil, "", false
}

func flipOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}

// Explain renders the shape of the pipeline a SELECT would build,
// without running it. Non-SELECT statements explain as their side
// effect.
func (in *Interpreter) Explain(stmt sqlfront.Statement) (string, error) {
	sel, ok := stmt.(*sqlfront.Select)
	if !ok {
		return explainNonSelect(stmt)
	}

	plan := explainFrom(sel.From)
	if sel.Where != nil {
		if len(sel.From) == 1 {
			if _, schema, err := in.store.Table(sel.From[0]); err == nil {
				if _, ok, err := in.tryIndexScan(sel.From[0], sel.Where, schema); err == nil && ok {
					plan = fmt.Sprintf("IndexScan(%s)", sel.From[0])
				}
			}
		}
		plan = "Filter -> " + plan
	}
	if len(sel.OrderBy) > 0 {
		plan = "Sort -> " + plan
	}
	if sel.Star {
		return plan, nil
	}
	return "Project -> " + plan, nil
}

func explainFrom(from []string) string {
	if len(from) == 0 {
		return "ReadFromRows"
	}
	plan := fmt.Sprintf("ReadFromTable(%s)", from[0])
	for _, name := range from[1:] {
		plan = fmt.Sprintf("Join(%s, ReadFromTable(%s))", plan, name)
	}
	return plan
}

func explainNonSelect(stmt sqlfront.Statement) (string, error) {
	switch s := stmt.(type) {
	case *sqlfront.CreateTable:
		return fmt.Sprintf("CreateTable(%s)", s.Table), nil
	case *sqlfront.DropTable:
		return fmt.Sprintf("DropTable(%s)", s.Table), nil
	case *sqlfront.CreateIndex:
		return fmt.Sprintf("CreateIndex(%s)", s.Index), nil
	case *sqlfront.DropIndex:
		return fmt.Sprintf("DropIndex(%s)", s.Index), nil
	case *sqlfront.Insert:
		return fmt.Sprintf("Insert(%s)", s.Table), nil
	default:
		return "", fmt.Errorf("explain: %w: unknown statement type %T", arcerr.ErrBadQuery, stmt)
	}
}

// String renders a Result the way the CLI prints it: one line per row,
// values comma-joined in brackets.
func (r *Result) String() string {
	var b strings.Builder
	for i, row := range r.Rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(v.String())
		}
		b.WriteByte(']')
	}
	return b.String()
}
