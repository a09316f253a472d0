package page

import (
	"testing"

	"github.com/arcflow-db/arcdb/internal/diskfile"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
)

func fixedTestSchema(t *testing.T) *rowcodec.Schema {
	t.Helper()
	s, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{
		{Name: "id", Type: rowcodec.TypeUint64},
		{Name: "name", Type: rowcodec.TypeFixedString, Length: 16},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestFixedRowPageInsertGetDelete(t *testing.T) {
	schema := fixedTestSchema(t)
	buf := make([]byte, diskfile.PageSize)
	p := InitFixedRowPage(buf, schema)

	idx, ok, err := p.InsertRow(rowcodec.Row{rowcodec.Uint64Value(1), rowcodec.FixedStringValue("alice")})
	if err != nil || !ok {
		t.Fatalf("InsertRow: ok=%v err=%v", ok, err)
	}
	row, err := p.GetRow(idx)
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if row[0].Uint64 != 1 || row[1].Str != "alice" {
		t.Fatalf("GetRow = %v", row)
	}

	if err := p.DeleteRow(idx); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	tomb, err := p.IsTombstone(idx)
	if err != nil || !tomb {
		t.Fatalf("IsTombstone after delete: %v %v", tomb, err)
	}
}

func TestFixedRowPageFillsToCapacity(t *testing.T) {
	schema := fixedTestSchema(t)
	buf := make([]byte, diskfile.PageSize)
	p := InitFixedRowPage(buf, schema)
	cap := p.Capacity()
	for i := 0; i < cap; i++ {
		_, ok, err := p.InsertRow(rowcodec.Row{rowcodec.Uint64Value(uint64(i)), rowcodec.FixedStringValue("x")})
		if err != nil || !ok {
			t.Fatalf("InsertRow %d: ok=%v err=%v", i, ok, err)
		}
	}
	_, ok, err := p.InsertRow(rowcodec.Row{rowcodec.Uint64Value(999), rowcodec.FixedStringValue("overflow")})
	if err != nil {
		t.Fatalf("InsertRow overflow: %v", err)
	}
	if ok {
		t.Fatalf("InsertRow beyond capacity should fail")
	}
}

func varTestSchema(t *testing.T) *rowcodec.Schema {
	t.Helper()
	s, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{
		{Name: "id", Type: rowcodec.TypeUint64},
		{Name: "bio", Type: rowcodec.TypeVarString},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestFlexibleRowPageNeverReusesSlotIDs(t *testing.T) {
	schema := varTestSchema(t)
	buf := make([]byte, diskfile.PageSize)
	p := InitFlexibleRowPage(buf, schema)

	id0, ok, err := p.InsertRow(rowcodec.Row{rowcodec.Uint64Value(1), rowcodec.VarStringValue("first")})
	if err != nil || !ok || id0 != 0 {
		t.Fatalf("first insert: id=%d ok=%v err=%v", id0, ok, err)
	}
	id1, ok, err := p.InsertRow(rowcodec.Row{rowcodec.Uint64Value(2), rowcodec.VarStringValue("second")})
	if err != nil || !ok || id1 != 1 {
		t.Fatalf("second insert: id=%d ok=%v err=%v", id1, ok, err)
	}
	if err := p.DeleteRow(id0); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	id2, ok, err := p.InsertRow(rowcodec.Row{rowcodec.Uint64Value(3), rowcodec.VarStringValue("third")})
	if err != nil || !ok {
		t.Fatalf("third insert: ok=%v err=%v", ok, err)
	}
	if id2 <= id1 {
		t.Fatalf("slot id %d was reused or not monotonic after deleting slot %d", id2, id0)
	}

	row, err := p.GetRow(id1)
	if err != nil {
		t.Fatalf("GetRow(id1): %v", err)
	}
	if row[1].Str != "second" {
		t.Fatalf("GetRow(id1) = %v", row)
	}
}

func keySchema(t *testing.T) *rowcodec.Schema {
	t.Helper()
	s, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{{Name: "k", Type: rowcodec.TypeInt64}})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func cmpInt64Key(a, b rowcodec.Row) int { return rowcodec.Compare(a[0], b[0]) }

func TestBTreeLeafPageInsertLookupSplit(t *testing.T) {
	ks := keySchema(t)
	keySize := uint32(rowcodec.FixedRowSpace(ks))

	buf := make([]byte, diskfile.PageSize)
	leaf := InitBTreeLeafPage(buf, keySize, ks)

	for i := int64(0); i < 10; i++ {
		key := rowcodec.Row{rowcodec.Int64Value(i)}
		ok, err := leaf.Insert(key, RowID{PageIndex: 1, RowIndex: uint32(i)}, cmpInt64Key)
		if err != nil || !ok {
			t.Fatalf("Insert %d: ok=%v err=%v", i, ok, err)
		}
	}

	val, found, err := leaf.Lookup(rowcodec.Row{rowcodec.Int64Value(5)}, cmpInt64Key)
	if err != nil || !found || val.RowIndex != 5 {
		t.Fatalf("Lookup(5) = %v found=%v err=%v", val, found, err)
	}

	_, err = leaf.Insert(rowcodec.Row{rowcodec.Int64Value(5)}, RowID{}, cmpInt64Key)
	if err == nil {
		t.Fatalf("Insert duplicate key should fail")
	}

	rhsBuf := make([]byte, diskfile.PageSize)
	rhs := InitBTreeLeafPage(rhsBuf, keySize, ks)
	if err := leaf.Split(rhs); err != nil {
		t.Fatalf("Split: %v", err)
	}
	if leaf.Size()+rhs.Size() != 10 {
		t.Fatalf("split sizes %d + %d != 10", leaf.Size(), rhs.Size())
	}
	firstRhsKey, err := rhs.Key(0)
	if err != nil {
		t.Fatalf("rhs.Key(0): %v", err)
	}
	lastLhsKey, err := leaf.Key(leaf.Size() - 1)
	if err != nil {
		t.Fatalf("leaf.Key(last): %v", err)
	}
	if cmpInt64Key(lastLhsKey, firstRhsKey) >= 0 {
		t.Fatalf("split did not preserve order: lhs last %v >= rhs first %v", lastLhsKey, firstRhsKey)
	}
}

func TestBTreeInternalPageInsertAndLookup(t *testing.T) {
	ks := keySchema(t)
	keySize := uint32(rowcodec.FixedRowSpace(ks))
	buf := make([]byte, diskfile.PageSize)
	internal := InitBTreeInternalPage(buf, keySize, uint32(InternalCapacity(keySize)), ks)

	if err := internal.InsertFirstEntry(100); err != nil {
		t.Fatalf("InsertFirstEntry: %v", err)
	}
	ok, err := internal.InsertEntry(1, rowcodec.Row{rowcodec.Int64Value(10)}, 200)
	if err != nil || !ok {
		t.Fatalf("InsertEntry: ok=%v err=%v", ok, err)
	}
	ok, err = internal.InsertEntry(2, rowcodec.Row{rowcodec.Int64Value(20)}, 300)
	if err != nil || !ok {
		t.Fatalf("InsertEntry: ok=%v err=%v", ok, err)
	}

	child, _, err := internal.Lookup(rowcodec.Row{rowcodec.Int64Value(5)}, cmpInt64Key)
	if err != nil || child != 100 {
		t.Fatalf("Lookup(5) = %d, want 100 (err=%v)", child, err)
	}
	child, _, err = internal.Lookup(rowcodec.Row{rowcodec.Int64Value(15)}, cmpInt64Key)
	if err != nil || child != 200 {
		t.Fatalf("Lookup(15) = %d, want 200 (err=%v)", child, err)
	}
	child, _, err = internal.Lookup(rowcodec.Row{rowcodec.Int64Value(25)}, cmpInt64Key)
	if err != nil || child != 300 {
		t.Fatalf("Lookup(25) = %d, want 300 (err=%v)", child, err)
	}
}

func TestBTreeInternalPageSplitPromotesRealSeparator(t *testing.T) {
	ks := keySchema(t)
	keySize := uint32(rowcodec.FixedRowSpace(ks))
	maxPageSize := uint32(InternalCapacity(keySize))
	buf := make([]byte, diskfile.PageSize)
	internal := InitBTreeInternalPage(buf, keySize, maxPageSize, ks)

	if err := internal.InsertFirstEntry(0); err != nil {
		t.Fatalf("InsertFirstEntry: %v", err)
	}
	for i := int64(1); i <= 5; i++ {
		ok, err := internal.InsertEntry(int(i), rowcodec.Row{rowcodec.Int64Value(i * 10)}, diskfile.PageIndex(i))
		if err != nil || !ok {
			t.Fatalf("InsertEntry %d: ok=%v err=%v", i, ok, err)
		}
	}

	rhsBuf := make([]byte, diskfile.PageSize)
	rhs := InitBTreeInternalPage(rhsBuf, keySize, maxPageSize, ks)
	promoted, err := internal.Split(rhs)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if promoted == nil || promoted[0].Int64 == 0 {
		t.Fatalf("Split returned a zero/missing promoted key: %v", promoted)
	}
	wantPromoted := int64(30) // size 6, lhsSize=3, rhs starts at original slot 3 (key 30)
	if promoted[0].Int64 != wantPromoted {
		t.Fatalf("promoted key = %d, want %d", promoted[0].Int64, wantPromoted)
	}
}
