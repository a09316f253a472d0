// Package page implements the typed page views layered over a raw
// frame buffer: fixed-row, flexible-row, and B+tree pages.
package page

import (
	"encoding/binary"
	"fmt"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/diskfile"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
)

const fixedRowHeaderSize = 8 // rowCount uint32 + freeSpaceOffset uint32

// FixedRowPage is a page holding same-size rows packed contiguously
// after a small header, used for tables whose schema has no variable
// width columns.
type FixedRowPage struct {
	buf    []byte
	schema *rowcodec.Schema
	stride int
}

// WrapFixedRowPage views buf (exactly diskfile.PageSize bytes) as a
// fixed-row page for schema.
func WrapFixedRowPage(buf []byte, schema *rowcodec.Schema) *FixedRowPage {
	return &FixedRowPage{buf: buf, schema: schema, stride: rowcodec.FixedRowSpace(schema)}
}

// InitFixedRowPage zeroes buf and writes an empty fixed-row header.
func InitFixedRowPage(buf []byte, schema *rowcodec.Schema) *FixedRowPage {
	for i := range buf {
		buf[i] = 0
	}
	p := WrapFixedRowPage(buf, schema)
	p.setRowCount(0)
	return p
}

// Capacity returns how many rows fit on one page for this schema.
func (p *FixedRowPage) Capacity() int {
	return (diskfile.PageSize - fixedRowHeaderSize) / p.stride
}

func (p *FixedRowPage) rowCount() uint32 {
	return binary.LittleEndian.Uint32(p.buf[0:4])
}

func (p *FixedRowPage) setRowCount(n uint32) {
	binary.LittleEndian.PutUint32(p.buf[0:4], n)
}

// RowCount returns how many slots (including tombstoned ones) the page
// has ever held.
func (p *FixedRowPage) RowCount() int {
	return int(p.rowCount())
}

func (p *FixedRowPage) slotOffset(index int) int {
	return fixedRowHeaderSize + index*p.stride
}

// InsertRow appends row to the next free slot and returns its index
// within the page, or false if the page is full.
func (p *FixedRowPage) InsertRow(row rowcodec.Row) (int, bool, error) {
	count := int(p.rowCount())
	if count >= p.Capacity() {
		return 0, false, nil
	}
	off := p.slotOffset(count)
	if _, err := rowcodec.Marshal(p.schema, row, p.buf[off:off+p.stride]); err != nil {
		return 0, false, fmt.Errorf("insert row into fixed page: %w", err)
	}
	p.setRowCount(uint32(count + 1))
	return count, true, nil
}

// GetRow reads the row at index. The caller is expected to have already
// range-checked index against RowCount.
func (p *FixedRowPage) GetRow(index int) (rowcodec.Row, error) {
	if index < 0 || index >= int(p.rowCount()) {
		return nil, fmt.Errorf("get row %d: %w: page has %d rows", index, arcerr.ErrNotFound, p.rowCount())
	}
	off := p.slotOffset(index)
	row, err := rowcodec.Unmarshal(p.schema, p.buf[off:off+p.stride])
	if err != nil {
		return nil, fmt.Errorf("get row %d: %w", index, err)
	}
	return row, nil
}

// DeleteRow overwrites the slot at index with an all-null tombstone.
func (p *FixedRowPage) DeleteRow(index int) error {
	if index < 0 || index >= int(p.rowCount()) {
		return fmt.Errorf("delete row %d: %w: page has %d rows", index, arcerr.ErrNotFound, p.rowCount())
	}
	off := p.slotOffset(index)
	tomb := rowcodec.AllNullRow(len(p.schema.Columns))
	if _, err := rowcodec.Marshal(p.schema, tomb, p.buf[off:off+p.stride]); err != nil {
		return fmt.Errorf("delete row %d: %w", index, err)
	}
	return nil
}

// IsTombstone reports whether the slot at index has been deleted.
func (p *FixedRowPage) IsTombstone(index int) (bool, error) {
	row, err := p.GetRow(index)
	if err != nil {
		return false, err
	}
	return rowcodec.IsAllNull(row), nil
}
