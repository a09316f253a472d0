package page

import (
	"encoding/binary"
	"fmt"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/diskfile"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
)

const flexRowCountHeaderSize = 4 // count uint32
const flexRowDirEntrySize = 3    // slotID uint8 + payloadOffset uint16

// flexSlot is one directory entry: a stable, never-reused slot id
// paired with the row currently stored under it.
type flexSlot struct {
	SlotID uint8
	Row    rowcodec.Row
}

// FlexibleRowPage is a page holding variable-width rows. Every mutation
// rewrites the whole directory and repacks payloads, a faithful port of
// the original's read-everything/write-everything approach: deleted
// slot ids are never reused and payloads are never compacted in place.
type FlexibleRowPage struct {
	buf    []byte
	schema *rowcodec.Schema
}

// WrapFlexibleRowPage views buf as a flexible-row page for schema.
func WrapFlexibleRowPage(buf []byte, schema *rowcodec.Schema) *FlexibleRowPage {
	return &FlexibleRowPage{buf: buf, schema: schema}
}

// InitFlexibleRowPage zeroes buf and writes an empty directory.
func InitFlexibleRowPage(buf []byte, schema *rowcodec.Schema) *FlexibleRowPage {
	for i := range buf {
		buf[i] = 0
	}
	p := WrapFlexibleRowPage(buf, schema)
	binary.LittleEndian.PutUint32(p.buf[0:4], 0)
	return p
}

func (p *FlexibleRowPage) readSlots() ([]flexSlot, error) {
	count := binary.LittleEndian.Uint32(p.buf[0:4])
	slots := make([]flexSlot, 0, count)
	dirPos := flexRowCountHeaderSize
	for i := uint32(0); i < count; i++ {
		slotID := p.buf[dirPos]
		off := binary.LittleEndian.Uint16(p.buf[dirPos+1 : dirPos+3])
		dirPos += flexRowDirEntrySize
		row, err := rowcodec.Unmarshal(p.schema, p.buf[off:])
		if err != nil {
			return nil, fmt.Errorf("read flexible page slot %d: %w", slotID, err)
		}
		slots = append(slots, flexSlot{SlotID: slotID, Row: row})
	}
	return slots, nil
}

// directorySize returns the total bytes this slot set would occupy if
// written to the page: header + directory + packed payloads.
func directorySize(schema *rowcodec.Schema, slots []flexSlot) (int, error) {
	total := flexRowCountHeaderSize + len(slots)*flexRowDirEntrySize
	for _, s := range slots {
		space, err := rowcodec.RowSpace(schema, s.Row)
		if err != nil {
			return 0, err
		}
		total += space
	}
	return total, nil
}

func (p *FlexibleRowPage) writeSlots(slots []flexSlot) error {
	for i := range p.buf {
		p.buf[i] = 0
	}
	binary.LittleEndian.PutUint32(p.buf[0:4], uint32(len(slots)))
	dirPos := flexRowCountHeaderSize
	payloadEnd := diskfile.PageSize
	for _, s := range slots {
		space, err := rowcodec.RowSpace(p.schema, s.Row)
		if err != nil {
			return err
		}
		payloadStart := payloadEnd - space
		if _, err := rowcodec.Marshal(p.schema, s.Row, p.buf[payloadStart:payloadEnd]); err != nil {
			return fmt.Errorf("write flexible page slot %d: %w", s.SlotID, err)
		}
		p.buf[dirPos] = s.SlotID
		binary.LittleEndian.PutUint16(p.buf[dirPos+1:dirPos+3], uint16(payloadStart))
		dirPos += flexRowDirEntrySize
		payloadEnd = payloadStart
	}
	return nil
}

// InsertRow appends row under a freshly allocated slot id (the maximum
// existing id plus one, or zero for an empty page) and returns it.
// Returns ok=false without mutating the page if there is no room.
func (p *FlexibleRowPage) InsertRow(row rowcodec.Row) (slotID int, ok bool, err error) {
	slots, err := p.readSlots()
	if err != nil {
		return 0, false, err
	}
	nextID := -1
	for _, s := range slots {
		if int(s.SlotID) > nextID {
			nextID = int(s.SlotID)
		}
	}
	nextID++
	if nextID > 255 {
		return 0, false, fmt.Errorf("insert row: %w: flexible page slot ids are limited to one byte", arcerr.ErrStorage)
	}
	candidate := append(slots, flexSlot{SlotID: uint8(nextID), Row: row})
	size, err := directorySize(p.schema, candidate)
	if err != nil {
		return 0, false, err
	}
	if size > diskfile.PageSize {
		return 0, false, nil
	}
	if err := p.writeSlots(candidate); err != nil {
		return 0, false, err
	}
	return nextID, true, nil
}

// GetRow returns the row stored under slotID.
func (p *FlexibleRowPage) GetRow(slotID int) (rowcodec.Row, error) {
	slots, err := p.readSlots()
	if err != nil {
		return nil, err
	}
	for _, s := range slots {
		if int(s.SlotID) == slotID {
			return s.Row, nil
		}
	}
	return nil, fmt.Errorf("get row slot %d: %w", slotID, arcerr.ErrNotFound)
}

// DeleteRow removes the slot entirely; its id is never reused.
func (p *FlexibleRowPage) DeleteRow(slotID int) error {
	slots, err := p.readSlots()
	if err != nil {
		return err
	}
	remaining := slots[:0]
	found := false
	for _, s := range slots {
		if int(s.SlotID) == slotID {
			found = true
			continue
		}
		remaining = append(remaining, s)
	}
	if !found {
		return fmt.Errorf("delete row slot %d: %w", slotID, arcerr.ErrNotFound)
	}
	return p.writeSlots(remaining)
}

// SlotIDs returns every live slot id on the page, in directory order.
func (p *FlexibleRowPage) SlotIDs() ([]int, error) {
	slots, err := p.readSlots()
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(slots))
	for i, s := range slots {
		ids[i] = int(s.SlotID)
	}
	return ids, nil
}
