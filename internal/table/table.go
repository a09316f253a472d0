// Package table implements a single table as a sequence of disk pages,
// each holding either fixed-width or flexible-width rows, accessed
// through the buffer pool.
//
// Grounded on original_source/src/scan.h's ScanIterator/Scan (page
// index then row index traversal, skipping empty/tombstoned rows) and
// table.h's getRow/getPageCount/getRowCount surface.
package table

import (
	"fmt"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/bufpool"
	"github.com/arcflow-db/arcdb/internal/diskfile"
	"github.com/arcflow-db/arcdb/internal/page"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
)

// RowID locates a row within a table file.
type RowID = page.RowID

// Layout distinguishes the two page encodings a table may use,
// selected once at table creation based on whether the schema has any
// variable-width columns.
type Layout int

const (
	// FixedLayout packs same-size rows contiguously (rowcodec has no
	// varstring columns).
	FixedLayout Layout = iota
	// FlexibleLayout uses a slotted directory for variable-width rows.
	FlexibleLayout
)

func layoutFor(schema *rowcodec.Schema) Layout {
	for _, c := range schema.Columns {
		if c.Type == rowcodec.TypeVarString {
			return FlexibleLayout
		}
	}
	return FixedLayout
}

// Table is one disk file of pages, all using the same row layout,
// addressed through a view onto the store's shared buffer pool.
type Table struct {
	disk   *diskfile.File
	pool   *bufpool.View
	schema *rowcodec.Schema
	layout Layout
}

// Create initializes a brand new, empty table file, addressed through
// a view onto pool.
func Create(path string, schema *rowcodec.Schema, pool *bufpool.Pool) (*Table, error) {
	disk, err := diskfile.Open(path)
	if err != nil {
		return nil, err
	}
	if disk.PageCount() != 0 {
		return nil, fmt.Errorf("create table %s: %w: file already has pages", path, arcerr.ErrStorage)
	}
	view := pool.NewView(disk)
	t := &Table{disk: disk, pool: view, schema: schema, layout: layoutFor(schema)}

	pageID, frame, err := view.NewPage()
	if err != nil {
		return nil, err
	}
	if pageID != 0 {
		return nil, fmt.Errorf("create table %s: %w: first page must be page 0", path, arcerr.ErrStorage)
	}
	t.initPage(frame.Buf[:])
	view.UnpinPage(pageID, true)

	return t, nil
}

// Open reopens an existing table file, addressed through a view onto
// pool.
func Open(path string, schema *rowcodec.Schema, pool *bufpool.Pool) (*Table, error) {
	disk, err := diskfile.Open(path)
	if err != nil {
		return nil, err
	}
	view := pool.NewView(disk)
	return &Table{disk: disk, pool: view, schema: schema, layout: layoutFor(schema)}, nil
}

func (t *Table) initPage(buf []byte) {
	switch t.layout {
	case FixedLayout:
		page.InitFixedRowPage(buf, t.schema)
	default:
		page.InitFlexibleRowPage(buf, t.schema)
	}
}

// InsertRow appends row to the table, allocating a new page if every
// existing page is full, and returns its RowID.
func (t *Table) InsertRow(row rowcodec.Row) (RowID, error) {
	count := diskfile.PageIndex(t.disk.PageCount())
	for p := diskfile.PageIndex(0); p < count; p++ {
		frame, err := t.pool.FetchPage(p)
		if err != nil {
			return RowID{}, err
		}
		slot, ok, err := t.insertInto(frame.Buf[:], row)
		if err != nil {
			t.pool.UnpinPage(p, false)
			return RowID{}, err
		}
		if ok {
			t.pool.UnpinPage(p, true)
			return RowID{PageIndex: p, RowIndex: uint32(slot)}, nil
		}
		t.pool.UnpinPage(p, false)
	}

	pageID, frame, err := t.pool.NewPage()
	if err != nil {
		return RowID{}, err
	}
	t.initPage(frame.Buf[:])
	slot, ok, err := t.insertInto(frame.Buf[:], row)
	if err != nil {
		return RowID{}, err
	}
	if !ok {
		return RowID{}, fmt.Errorf("insert row: %w: row does not fit on an empty page", arcerr.ErrStorage)
	}
	t.pool.UnpinPage(pageID, true)
	return RowID{PageIndex: pageID, RowIndex: uint32(slot)}, nil
}

func (t *Table) insertInto(buf []byte, row rowcodec.Row) (int, bool, error) {
	switch t.layout {
	case FixedLayout:
		return page.WrapFixedRowPage(buf, t.schema).InsertRow(row)
	default:
		return page.WrapFlexibleRowPage(buf, t.schema).InsertRow(row)
	}
}

// GetRow reads the row at id.
func (t *Table) GetRow(id RowID) (rowcodec.Row, error) {
	frame, err := t.pool.FetchPage(id.PageIndex)
	if err != nil {
		return nil, err
	}
	defer t.pool.UnpinPage(id.PageIndex, false)
	switch t.layout {
	case FixedLayout:
		return page.WrapFixedRowPage(frame.Buf[:], t.schema).GetRow(int(id.RowIndex))
	default:
		return page.WrapFlexibleRowPage(frame.Buf[:], t.schema).GetRow(int(id.RowIndex))
	}
}

// DeleteRow tombstones the row at id.
func (t *Table) DeleteRow(id RowID) error {
	frame, err := t.pool.FetchPage(id.PageIndex)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(id.PageIndex, true)
	switch t.layout {
	case FixedLayout:
		return page.WrapFixedRowPage(frame.Buf[:], t.schema).DeleteRow(int(id.RowIndex))
	default:
		return page.WrapFlexibleRowPage(frame.Buf[:], t.schema).DeleteRow(int(id.RowIndex))
	}
}

// Scan calls visit for every live (non-tombstoned) row in page order,
// mirroring original_source/src/scan.h's ScanIterator, until visit
// returns false or the table is exhausted.
func (t *Table) Scan(visit func(id RowID, row rowcodec.Row) bool) error {
	count := diskfile.PageIndex(t.disk.PageCount())
	for p := diskfile.PageIndex(0); p < count; p++ {
		frame, err := t.pool.FetchPage(p)
		if err != nil {
			return err
		}
		stop, err := t.scanPage(p, frame.Buf[:], visit)
		t.pool.UnpinPage(p, false)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (t *Table) scanPage(p diskfile.PageIndex, buf []byte, visit func(id RowID, row rowcodec.Row) bool) (bool, error) {
	switch t.layout {
	case FixedLayout:
		fp := page.WrapFixedRowPage(buf, t.schema)
		for i := 0; i < fp.RowCount(); i++ {
			tomb, err := fp.IsTombstone(i)
			if err != nil {
				return false, err
			}
			if tomb {
				continue
			}
			row, err := fp.GetRow(i)
			if err != nil {
				return false, err
			}
			if !visit(RowID{PageIndex: p, RowIndex: uint32(i)}, row) {
				return true, nil
			}
		}
	default:
		fp := page.WrapFlexibleRowPage(buf, t.schema)
		ids, err := fp.SlotIDs()
		if err != nil {
			return false, err
		}
		for _, slot := range ids {
			row, err := fp.GetRow(slot)
			if err != nil {
				return false, err
			}
			if !visit(RowID{PageIndex: p, RowIndex: uint32(slot)}, row) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Cursor is a pull-style row iterator, grounded directly on
// original_source/src/scan.h's ScanIterator: page index then row/slot
// index, skipping tombstoned rows, advanced one step per Next call
// rather than materializing the whole table.
type Cursor struct {
	t          *Table
	pageIndex  diskfile.PageIndex
	pageCount  diskfile.PageIndex
	fixedSlot  int // next slot to try, fixed layout only
	flexSlots  []int
	flexSlotAt int
	flexLoaded bool
}

// NewCursor returns a cursor positioned before the table's first row.
func (t *Table) NewCursor() *Cursor {
	return &Cursor{t: t, pageCount: diskfile.PageIndex(t.disk.PageCount())}
}

// Next advances the cursor and returns the next live row, or
// ok == false once the table is exhausted.
func (c *Cursor) Next() (id RowID, row rowcodec.Row, ok bool, err error) {
	for c.pageIndex < c.pageCount {
		frame, err := c.t.pool.FetchPage(c.pageIndex)
		if err != nil {
			return RowID{}, nil, false, err
		}

		switch c.t.layout {
		case FixedLayout:
			fp := page.WrapFixedRowPage(frame.Buf[:], c.t.schema)
			for c.fixedSlot < fp.RowCount() {
				slot := c.fixedSlot
				c.fixedSlot++
				tomb, err := fp.IsTombstone(slot)
				if err != nil {
					c.t.pool.UnpinPage(c.pageIndex, false)
					return RowID{}, nil, false, err
				}
				if tomb {
					continue
				}
				row, err := fp.GetRow(slot)
				c.t.pool.UnpinPage(c.pageIndex, false)
				if err != nil {
					return RowID{}, nil, false, err
				}
				return RowID{PageIndex: c.pageIndex, RowIndex: uint32(slot)}, row, true, nil
			}
		default:
			fp := page.WrapFlexibleRowPage(frame.Buf[:], c.t.schema)
			if !c.flexLoaded {
				ids, err := fp.SlotIDs()
				if err != nil {
					c.t.pool.UnpinPage(c.pageIndex, false)
					return RowID{}, nil, false, err
				}
				c.flexSlots = ids
				c.flexSlotAt = 0
				c.flexLoaded = true
			}
			for c.flexSlotAt < len(c.flexSlots) {
				slot := c.flexSlots[c.flexSlotAt]
				c.flexSlotAt++
				row, err := fp.GetRow(slot)
				c.t.pool.UnpinPage(c.pageIndex, false)
				if err != nil {
					return RowID{}, nil, false, err
				}
				return RowID{PageIndex: c.pageIndex, RowIndex: uint32(slot)}, row, true, nil
			}
		}

		c.t.pool.UnpinPage(c.pageIndex, false)
		c.pageIndex++
		c.fixedSlot = 0
		c.flexLoaded = false
	}
	return RowID{}, nil, false, nil
}

// Close flushes this table's own dirty frames and closes its disk
// file, leaving other files sharing the same pool untouched.
func (t *Table) Close() error {
	if err := t.pool.Flush(); err != nil {
		return err
	}
	return t.disk.Close()
}
