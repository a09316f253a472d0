// Package exec implements the pull-based (volcano-style) executor
// pipeline: each operator exposes Next, returning one row at a time,
// so a query's working set is bounded by the operator doing the most
// buffering (Sort, and the build side of Join) rather than by the size
// of every intermediate result.
//
// Grounded line-for-line on original_source/src/executor.cpp's
// ReadFromRowsExecutor, ReadFromTableExecutor, ExpressionsExecutor,
// FilterExecutor, SortExecutor, and JoinExecutor, each of which already
// has exactly this next() -> optional<Row> shape in the original C++.
// GroupByExecutor in the original is an unconditional
// throw(std::runtime_error("Not implemented")) stub, matching this
// module's GROUP BY non-goal, so it has no Go counterpart here.
package exec

import (
	"fmt"
	"sort"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/btree"
	"github.com/arcflow-db/arcdb/internal/eval"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
	"github.com/arcflow-db/arcdb/internal/table"
)

// Executor is one stage of a query plan.
type Executor interface {
	// Next returns the next row, or ok == false once exhausted.
	Next() (row rowcodec.Row, ok bool, err error)
	// OutputSchema describes the columns Next's rows carry.
	OutputSchema() *rowcodec.Schema
}

// ReadFromRows replays a fixed, in-memory row set, used for FROM-less
// SELECT and for INSERT ... VALUES's single input row.
type ReadFromRows struct {
	rows   []rowcodec.Row
	schema *rowcodec.Schema
	idx    int
}

func NewReadFromRows(rows []rowcodec.Row, schema *rowcodec.Schema) *ReadFromRows {
	return &ReadFromRows{rows: rows, schema: schema}
}

func (e *ReadFromRows) OutputSchema() *rowcodec.Schema { return e.schema }

func (e *ReadFromRows) Next() (rowcodec.Row, bool, error) {
	if e.idx >= len(e.rows) {
		return nil, false, nil
	}
	row := e.rows[e.idx]
	e.idx++
	return row, true, nil
}

// ReadFromTable streams every live row of a table in page order via a
// table.Cursor, matching ReadFromTableExecutor's skip-tombstones loop.
type ReadFromTable struct {
	cursor *table.Cursor
	schema *rowcodec.Schema
}

func NewReadFromTable(t *table.Table, schema *rowcodec.Schema) *ReadFromTable {
	return &ReadFromTable{cursor: t.NewCursor(), schema: schema}
}

func (e *ReadFromTable) OutputSchema() *rowcodec.Schema { return e.schema }

func (e *ReadFromTable) Next() (rowcodec.Row, bool, error) {
	_, row, ok, err := e.cursor.Next()
	if err != nil {
		return nil, false, fmt.Errorf("read from table: %w", err)
	}
	return row, ok, nil
}

// IndexScan streams rows whose indexed column falls within [low, high)
// by walking a btree.Index and fetching each matching row from its
// owning table, avoiding a full table scan. A nil bound is unbounded on
// that side. This has no original_source counterpart: the original has
// no query planner and never chooses an index over a scan; it is new
// code added so CREATE INDEX has a consumer (see SPEC_FULL.md §5).
type IndexScan struct {
	idx    *btree.Index
	tbl    *table.Table
	schema *rowcodec.Schema
	low    rowcodec.Row
	high   rowcodec.Row

	started bool
	pending []rowcodec.Row
	pos     int
}

func NewIndexScan(idx *btree.Index, t *table.Table, schema *rowcodec.Schema, low, high rowcodec.Row) *IndexScan {
	return &IndexScan{idx: idx, tbl: t, schema: schema, low: low, high: high}
}

func (e *IndexScan) OutputSchema() *rowcodec.Schema { return e.schema }

// Next runs the whole range scan on its first call, fetching every
// matching row from the table and holding them all in memory, then
// streams them one per call.
func (e *IndexScan) Next() (rowcodec.Row, bool, error) {
	if !e.started {
		e.started = true
		var rowIDs []table.RowID
		err := e.idx.ScanRange(e.low, e.high, func(_ rowcodec.Row, value table.RowID) bool {
			rowIDs = append(rowIDs, value)
			return true
		})
		if err != nil {
			return nil, false, fmt.Errorf("index scan: %w", err)
		}
		e.pending = make([]rowcodec.Row, 0, len(rowIDs))
		for _, id := range rowIDs {
			row, err := e.tbl.GetRow(id)
			if err != nil {
				return nil, false, fmt.Errorf("index scan: %w", err)
			}
			e.pending = append(e.pending, row)
		}
	}
	if e.pos >= len(e.pending) {
		return nil, false, nil
	}
	row := e.pending[e.pos]
	e.pos++
	return row, true, nil
}

// Project evaluates expressions against each input row, matching
// ExpressionsExecutor.
type Project struct {
	input       Executor
	expressions []eval.Expr
	schema      *rowcodec.Schema
}

func NewProject(input Executor, expressions []eval.Expr, outputNames []string) (*Project, error) {
	if len(expressions) != len(outputNames) {
		return nil, fmt.Errorf("project: %w: %d expressions but %d output names", arcerr.ErrSchemaMismatch, len(expressions), len(outputNames))
	}
	columns := make([]rowcodec.ColumnSchema, len(expressions))
	for i, e := range expressions {
		columns[i] = rowcodec.ColumnSchema{Name: outputNames[i], Type: e.ResultType()}
		if e.ResultType() == rowcodec.TypeFixedString {
			// Only a bare column reference can produce TypeFixedString
			// (arithmetic and comparisons yield numeric/bool, string
			// literals are always TypeVarString), so the source
			// column's own width is always available here.
			if id, ok := e.(*eval.Identifier); ok {
				columns[i].Length = id.Length
			} else {
				columns[i].Length = 1
			}
		}
	}
	schema, err := rowcodec.NewSchema(columns)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return &Project{input: input, expressions: expressions, schema: schema}, nil
}

func (e *Project) OutputSchema() *rowcodec.Schema { return e.schema }

func (e *Project) Next() (rowcodec.Row, bool, error) {
	input, ok, err := e.input.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	row := make(rowcodec.Row, len(e.expressions))
	for i, expr := range e.expressions {
		v, err := expr.Eval(input)
		if err != nil {
			return nil, false, fmt.Errorf("project: %w", err)
		}
		row[i] = v
	}
	return row, true, nil
}

// Filter keeps only input rows for which predicate evaluates true,
// matching FilterExecutor.
type Filter struct {
	input     Executor
	predicate eval.Expr
}

func NewFilter(input Executor, predicate eval.Expr) *Filter {
	return &Filter{input: input, predicate: predicate}
}

func (e *Filter) OutputSchema() *rowcodec.Schema { return e.input.OutputSchema() }

func (e *Filter) Next() (rowcodec.Row, bool, error) {
	for {
		row, ok, err := e.input.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		v, err := e.predicate.Eval(row)
		if err != nil {
			return nil, false, fmt.Errorf("filter: %w", err)
		}
		if v.Type != rowcodec.TypeBool || v.Null {
			return nil, false, fmt.Errorf("filter: %w: WHERE/ON expression must be boolean", arcerr.ErrTypeError)
		}
		if v.Bool {
			return row, true, nil
		}
	}
}

// SortKey is one ORDER BY term.
type SortKey struct {
	Expr eval.Expr
	Desc bool
}

// Sort consumes its input eagerly at construction time (mirroring
// SortExecutor's constructor-time materialize-then-sort), then replays
// the sorted rows one at a time.
type Sort struct {
	schema *rowcodec.Schema
	rows   []rowcodec.Row
	idx    int
}

func NewSort(input Executor, keys []SortKey) (*Sort, error) {
	var rows []rowcodec.Row
	for {
		row, ok, err := input.Next()
		if err != nil {
			return nil, fmt.Errorf("sort: %w", err)
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}

	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		less, err := sortLess(keys, rows[i], rows[j])
		if err != nil {
			sortErr = err
		}
		return less
	})
	if sortErr != nil {
		return nil, fmt.Errorf("sort: %w", sortErr)
	}

	return &Sort{schema: input.OutputSchema(), rows: rows}, nil
}

func sortLess(keys []SortKey, lhs, rhs rowcodec.Row) (bool, error) {
	for _, k := range keys {
		lv, err := k.Expr.Eval(lhs)
		if err != nil {
			return false, err
		}
		rv, err := k.Expr.Eval(rhs)
		if err != nil {
			return false, err
		}
		if rowcodec.Equal(lv, rv) {
			continue
		}
		if !k.Desc {
			return rowcodec.Compare(lv, rv) < 0, nil
		}
		return rowcodec.Compare(lv, rv) > 0, nil
	}
	return false, nil
}

func (e *Sort) OutputSchema() *rowcodec.Schema { return e.schema }

func (e *Sort) Next() (rowcodec.Row, bool, error) {
	if e.idx >= len(e.rows) {
		return nil, false, nil
	}
	row := e.rows[e.idx]
	e.idx++
	return row, true, nil
}

// Join is an equality join keyed on the columns left and right have in
// common by name. Grounded on JoinExecutor, which is not a nested
// loop: its constructor hash-partitions the left side by the shared
// key columns, and next() probes that partitioning from the right
// side, replaying every left match for a right row one at a time
// across successive next() calls before moving on to the next right
// row. The output schema is left's columns followed by right's
// columns that are not part of the shared key.
type Join struct {
	right         Executor
	schema        *rowcodec.Schema
	leftKeyIdx    []int
	rightKeyIdx   []int
	rightKeepIdx  []int
	partitions    map[string][]rowcodec.Row

	matches  []rowcodec.Row
	matchAt  int
	rightRow rowcodec.Row
}

// NewJoin drains left completely to build the hash partitioning, then
// returns an executor that streams right, replaying matches.
func NewJoin(left, right Executor) (*Join, error) {
	leftSchema := left.OutputSchema()
	rightSchema := right.OutputSchema()

	var keyNames []string
	for _, c := range leftSchema.Columns {
		if rightSchema.ColumnIndex(c.Name) >= 0 {
			keyNames = append(keyNames, c.Name)
		}
	}
	if len(keyNames) == 0 {
		return nil, fmt.Errorf("join: %w: inputs share no column names to join on", arcerr.ErrBadQuery)
	}

	leftKeyIdx := make([]int, len(keyNames))
	rightKeyIdx := make([]int, len(keyNames))
	for i, name := range keyNames {
		leftKeyIdx[i] = leftSchema.ColumnIndex(name)
		rightKeyIdx[i] = rightSchema.ColumnIndex(name)
	}

	var rightKeepIdx []int
	columns := append([]rowcodec.ColumnSchema{}, leftSchema.Columns...)
	for i, c := range rightSchema.Columns {
		if leftSchema.ColumnIndex(c.Name) >= 0 {
			continue
		}
		rightKeepIdx = append(rightKeepIdx, i)
		columns = append(columns, c)
	}
	schema, err := rowcodec.NewSchema(columns)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}

	partitions := make(map[string][]rowcodec.Row)
	for {
		row, ok, err := left.Next()
		if err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
		if !ok {
			break
		}
		key := joinKey(row, leftKeyIdx)
		partitions[key] = append(partitions[key], row)
	}

	return &Join{
		right:        right,
		schema:       schema,
		leftKeyIdx:   leftKeyIdx,
		rightKeyIdx:  rightKeyIdx,
		rightKeepIdx: rightKeepIdx,
		partitions:   partitions,
	}, nil
}

func joinKey(row rowcodec.Row, idx []int) string {
	var b []byte
	for _, i := range idx {
		b = append(b, []byte(row[i].String())...)
		b = append(b, 0)
	}
	return string(b)
}

func (e *Join) OutputSchema() *rowcodec.Schema { return e.schema }

func (e *Join) Next() (rowcodec.Row, bool, error) {
	for {
		if e.matchAt < len(e.matches) {
			left := e.matches[e.matchAt]
			e.matchAt++
			row := make(rowcodec.Row, 0, len(left)+len(e.rightKeepIdx))
			row = append(row, left...)
			for _, i := range e.rightKeepIdx {
				row = append(row, e.rightRow[i])
			}
			return row, true, nil
		}

		row, ok, err := e.right.Next()
		if err != nil {
			return nil, false, fmt.Errorf("join: %w", err)
		}
		if !ok {
			return nil, false, nil
		}
		e.rightRow = row
		e.matches = e.partitions[joinKey(row, e.rightKeyIdx)]
		e.matchAt = 0
	}
}
