package exec

import (
	"path/filepath"
	"testing"

	"github.com/arcflow-db/arcdb/internal/btree"
	"github.com/arcflow-db/arcdb/internal/bufpool"
	"github.com/arcflow-db/arcdb/internal/eval"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
	"github.com/arcflow-db/arcdb/internal/table"
)

func usersSchema(t *testing.T) *rowcodec.Schema {
	t.Helper()
	s, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{
		{Name: "id", Type: rowcodec.TypeInt64},
		{Name: "name", Type: rowcodec.TypeFixedString, Length: 16},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func drain(t *testing.T, e Executor) []rowcodec.Row {
	t.Helper()
	var rows []rowcodec.Row
	for {
		row, ok, err := e.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}

func TestReadFromRows(t *testing.T) {
	schema := usersSchema(t)
	rows := []rowcodec.Row{
		{rowcodec.Int64Value(1), rowcodec.FixedStringValue("alice")},
		{rowcodec.Int64Value(2), rowcodec.FixedStringValue("bob")},
	}
	e := NewReadFromRows(rows, schema)
	got := drain(t, e)
	if len(got) != 2 || got[0][0].Int64 != 1 || got[1][0].Int64 != 2 {
		t.Fatalf("drain = %v", got)
	}
}

func TestReadFromTable(t *testing.T) {
	schema := usersSchema(t)
	path := filepath.Join(t.TempDir(), "users.db")
	tbl, err := table.Create(path, schema, bufpool.New(8))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tbl.Close()
	for i, name := range []string{"alice", "bob", "carol"} {
		if _, err := tbl.InsertRow(rowcodec.Row{rowcodec.Int64Value(int64(i)), rowcodec.FixedStringValue(name)}); err != nil {
			t.Fatalf("InsertRow: %v", err)
		}
	}

	e := NewReadFromTable(tbl, schema)
	got := drain(t, e)
	if len(got) != 3 {
		t.Fatalf("drain = %v", got)
	}
}

func TestProjectAndFilter(t *testing.T) {
	schema := usersSchema(t)
	rows := []rowcodec.Row{
		{rowcodec.Int64Value(1), rowcodec.FixedStringValue("alice")},
		{rowcodec.Int64Value(2), rowcodec.FixedStringValue("bob")},
		{rowcodec.Int64Value(3), rowcodec.FixedStringValue("carol")},
	}
	src := NewReadFromRows(rows, schema)

	acc := eval.NewSchemaAccessor(schema)
	idCol, err := acc.BuildIdentifier("id")
	if err != nil {
		t.Fatalf("BuildIdentifier: %v", err)
	}
	pred := &eval.BinaryOperator{Op: eval.OpGe, LHS: idCol, RHS: &eval.IntConstant{Value: 2}}
	filtered := NewFilter(src, pred)

	nameCol, err := acc.BuildIdentifier("name")
	if err != nil {
		t.Fatalf("BuildIdentifier: %v", err)
	}
	proj, err := NewProject(filtered, []eval.Expr{nameCol}, []string{"name"})
	if err != nil {
		t.Fatalf("NewProject: %v", err)
	}

	got := drain(t, proj)
	if len(got) != 2 || got[0][0].Str != "bob" || got[1][0].Str != "carol" {
		t.Fatalf("drain = %v", got)
	}
}

func TestSortDescending(t *testing.T) {
	schema := usersSchema(t)
	rows := []rowcodec.Row{
		{rowcodec.Int64Value(3), rowcodec.FixedStringValue("carol")},
		{rowcodec.Int64Value(1), rowcodec.FixedStringValue("alice")},
		{rowcodec.Int64Value(2), rowcodec.FixedStringValue("bob")},
	}
	src := NewReadFromRows(rows, schema)
	acc := eval.NewSchemaAccessor(schema)
	idCol, err := acc.BuildIdentifier("id")
	if err != nil {
		t.Fatalf("BuildIdentifier: %v", err)
	}
	sorted, err := NewSort(src, []SortKey{{Expr: idCol, Desc: true}})
	if err != nil {
		t.Fatalf("NewSort: %v", err)
	}
	got := drain(t, sorted)
	if len(got) != 3 || got[0][0].Int64 != 3 || got[1][0].Int64 != 2 || got[2][0].Int64 != 1 {
		t.Fatalf("drain = %v", got)
	}
}

func ordersSchema(t *testing.T) *rowcodec.Schema {
	t.Helper()
	s, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{
		{Name: "id", Type: rowcodec.TypeInt64},
		{Name: "amount", Type: rowcodec.TypeInt64},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestJoinOnSharedColumnReplaysMultipleMatches(t *testing.T) {
	left := NewReadFromRows([]rowcodec.Row{
		{rowcodec.Int64Value(1), rowcodec.FixedStringValue("alice")},
		{rowcodec.Int64Value(2), rowcodec.FixedStringValue("bob")},
	}, usersSchema(t))
	right := NewReadFromRows([]rowcodec.Row{
		{rowcodec.Int64Value(1), rowcodec.Int64Value(100)},
		{rowcodec.Int64Value(1), rowcodec.Int64Value(200)},
		{rowcodec.Int64Value(2), rowcodec.Int64Value(300)},
		{rowcodec.Int64Value(99), rowcodec.Int64Value(400)},
	}, ordersSchema(t))

	j, err := NewJoin(left, right)
	if err != nil {
		t.Fatalf("NewJoin: %v", err)
	}
	got := drain(t, j)
	if len(got) != 3 {
		t.Fatalf("drain = %v (len %d)", got, len(got))
	}
	// output schema is left columns (id, name) followed by right's
	// non-shared column (amount); the shared "id" column is not repeated.
	if len(j.OutputSchema().Columns) != 3 {
		t.Fatalf("output schema = %v, want 3 columns", j.OutputSchema())
	}
	for _, row := range got {
		if len(row) != 3 {
			t.Fatalf("joined row has %d columns, want 3: %v", len(row), row)
		}
	}
}

func TestJoinWithNoSharedColumnsIsBadQuery(t *testing.T) {
	left := NewReadFromRows(nil, usersSchema(t))
	amountsSchema, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{
		{Name: "amount", Type: rowcodec.TypeInt64},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	right := NewReadFromRows(nil, amountsSchema)
	_, err = NewJoin(left, right)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestIndexScanUsesRangeBounds(t *testing.T) {
	schema := usersSchema(t)
	dir := t.TempDir()
	tbl, err := table.Create(filepath.Join(dir, "users.db"), schema, bufpool.New(8))
	if err != nil {
		t.Fatalf("Create table: %v", err)
	}
	defer tbl.Close()

	keySchema, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{{Name: "id", Type: rowcodec.TypeInt64}})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	idx, err := btree.Create(filepath.Join(dir, "users_id.idx"), keySchema, bufpool.New(8))
	if err != nil {
		t.Fatalf("btree.Create: %v", err)
	}
	defer idx.Close()

	for i := int64(0); i < 20; i++ {
		id, err := tbl.InsertRow(rowcodec.Row{rowcodec.Int64Value(i), rowcodec.FixedStringValue("x")})
		if err != nil {
			t.Fatalf("InsertRow: %v", err)
		}
		if err := idx.Insert(rowcodec.Row{rowcodec.Int64Value(i)}, id); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	scan := NewIndexScan(idx, tbl, schema, rowcodec.Row{rowcodec.Int64Value(5)}, rowcodec.Row{rowcodec.Int64Value(10)})
	got := drain(t, scan)
	if len(got) != 5 {
		t.Fatalf("drain = %v (len %d), want 5", got, len(got))
	}
	for i, row := range got {
		if row[0].Int64 != int64(5+i) {
			t.Fatalf("row %d = %v, want id %d", i, row, 5+i)
		}
	}
}
