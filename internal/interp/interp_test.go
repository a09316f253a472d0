package interp

import (
	"fmt"
	"testing"

	"github.com/arcflow-db/arcdb/internal/sqlfront"
	"github.com/arcflow-db/arcdb/internal/store"
)

func newInterp(t *testing.T) *Interpreter {
	t.Helper()
	st, err := store.Open(t.TempDir(), 8)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st)
}

func run(t *testing.T, in *Interpreter, sql string) *Result {
	t.Helper()
	stmt, err := sqlfront.NewParser(sql).ParseStatement()
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	res, err := in.Run(stmt)
	if err != nil {
		t.Fatalf("run %q: %v", sql, err)
	}
	return res
}

func TestCreateAndDropTableRoundTrip(t *testing.T) {
	in := newInterp(t)
	run(t, in, `CREATE TABLE test_table (id uint64, name varchar(32), age int64)`)
	if !in.store.TableExists("test_table") {
		t.Fatalf("table not created")
	}
	run(t, in, `DROP TABLE test_table`)
	if in.store.TableExists("test_table") {
		t.Fatalf("table still exists after DROP TABLE")
	}
}

func TestSelectLiteralsOnly(t *testing.T) {
	in := newInterp(t)

	res := run(t, in, `SELECT 11`)
	if len(res.Rows) != 1 || len(res.Rows[0]) != 1 || res.Rows[0][0].Int64 != 11 {
		t.Fatalf("SELECT 11 = %+v", res.Rows)
	}

	res = run(t, in, `SELECT (50-30)*2 <= 1*2*3*4`)
	if len(res.Rows) != 1 || res.Rows[0][0].Bool != false {
		t.Fatalf("precedence check = %+v", res.Rows)
	}

	res = run(t, in, `SELECT "Mike", "Bob", 1+2, 1>0`)
	if len(res.Rows) != 1 || len(res.Rows[0]) != 4 {
		t.Fatalf("mixed literal projection = %+v", res.Rows)
	}
	row := res.Rows[0]
	if row[0].Str != "Mike" || row[1].Str != "Bob" || row[2].Int64 != 3 || row[3].Bool != true {
		t.Fatalf("mixed literal projection values = %+v", row)
	}
}

func TestInsertThenScanPreservesOrder(t *testing.T) {
	in := newInterp(t)
	run(t, in, `CREATE TABLE test_table (id uint64, name varchar(32), age int64)`)
	run(t, in, `INSERT test_table VALUES (1, "Ann", 30)`)
	run(t, in, `INSERT test_table VALUES (2, "Bob", 25)`)
	run(t, in, `INSERT test_table VALUES (3, "Sara", 40)`)

	res := run(t, in, `SELECT id, name, age FROM test_table`)
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(res.Rows))
	}
	wantNames := []string{"Ann", "Bob", "Sara"}
	for i, row := range res.Rows {
		if row[1].Str != wantNames[i] {
			t.Fatalf("row %d name = %q, want %q", i, row[1].Str, wantNames[i])
		}
	}
}

func TestOrderByMultipleKeysIsStable(t *testing.T) {
	in := newInterp(t)
	run(t, in, `CREATE TABLE test_table (name varchar(32), age int64)`)
	run(t, in, `INSERT test_table VALUES ("Ann", 30)`)
	run(t, in, `INSERT test_table VALUES ("Bob", 30)`)
	run(t, in, `INSERT test_table VALUES ("Sara", 40)`)

	res := run(t, in, `SELECT name, age FROM test_table ORDER BY age DESC, name`)
	want := []string{"Sara", "Ann", "Bob"}
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(res.Rows))
	}
	for i, row := range res.Rows {
		if row[0].Str != want[i] {
			t.Fatalf("row %d name = %q, want %q", i, row[0].Str, want[i])
		}
	}
}

func TestJoinOnSharedColumnScenario(t *testing.T) {
	in := newInterp(t)
	run(t, in, `CREATE TABLE test_table (id uint64, name varchar(32))`)
	run(t, in, `CREATE TABLE test_orders (id uint64, price int64)`)

	run(t, in, `INSERT test_table VALUES (1, "Ann")`)
	run(t, in, `INSERT test_table VALUES (2, "Bob")`)
	run(t, in, `INSERT test_table VALUES (3, "Sara")`)

	run(t, in, `INSERT test_orders VALUES (1, 99)`)
	run(t, in, `INSERT test_orders VALUES (2, 10)`)
	run(t, in, `INSERT test_orders VALUES (3, 599)`)

	res := run(t, in, `SELECT name, price FROM test_table, test_orders WHERE price > 50`)
	if len(res.Columns) != 2 || res.Columns[0] != "name" || res.Columns[1] != "price" {
		t.Fatalf("columns = %+v", res.Columns)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(res.Rows), res.Rows)
	}
	if res.Rows[0][0].Str != "Ann" || res.Rows[0][1].Int64 != 99 {
		t.Fatalf("row 0 = %+v", res.Rows[0])
	}
	if res.Rows[1][0].Str != "Sara" || res.Rows[1][1].Int64 != 599 {
		t.Fatalf("row 1 = %+v", res.Rows[1])
	}
}

func TestCreateIndexSpeedsUpRangeScan(t *testing.T) {
	in := newInterp(t)
	run(t, in, `CREATE TABLE test_table (id uint64, name varchar(32))`)
	for i := int64(0); i < 20; i++ {
		run(t, in, fmt.Sprintf(`INSERT test_table VALUES (%d, "row")`, i))
	}
	run(t, in, `CREATE INDEX idx_id ON test_table(id)`)

	res := run(t, in, `SELECT id FROM test_table WHERE id >= 10`)
	if len(res.Rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(res.Rows))
	}

	run(t, in, `DROP INDEX idx_id`)
	res2 := run(t, in, `SELECT id FROM test_table WHERE id >= 10`)
	if len(res2.Rows) != len(res.Rows) {
		t.Fatalf("result changed after dropping index: %d vs %d", len(res2.Rows), len(res.Rows))
	}
}

func TestIndexScanHonorsBothSidesOfARange(t *testing.T) {
	in := newInterp(t)
	run(t, in, `CREATE TABLE test_table (age uint64, name varchar(32))`)
	for i := int64(15); i < 25; i++ {
		run(t, in, fmt.Sprintf(`INSERT test_table VALUES (%d, "row")`, i))
	}
	run(t, in, `CREATE INDEX idx_age ON test_table(age)`)

	res := run(t, in, `SELECT age FROM test_table WHERE age >= 19 AND age < 21`)
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(res.Rows), res.Rows)
	}
	if res.Rows[0][0].Uint64 != 19 || res.Rows[1][0].Uint64 != 20 {
		t.Fatalf("rows = %+v", res.Rows)
	}

	stmt, err := sqlfront.NewParser(`SELECT age FROM test_table WHERE age >= 19 AND age < 21`).ParseStatement()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	plan, err := in.Explain(stmt)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	want := "Project -> Filter -> IndexScan(test_table)"
	if plan != want {
		t.Fatalf("plan = %q, want %q", plan, want)
	}
}

func TestExplainDoesNotExecute(t *testing.T) {
	in := newInterp(t)
	run(t, in, `CREATE TABLE test_table (id uint64, name varchar(32))`)

	stmt, err := sqlfront.NewParser(`SELECT name FROM test_table WHERE id > 0 ORDER BY name`).ParseStatement()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	plan, err := in.Explain(stmt)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	want := "Project -> Sort -> Filter -> ReadFromTable(test_table)"
	if plan != want {
		t.Fatalf("plan = %q, want %q", plan, want)
	}
}
