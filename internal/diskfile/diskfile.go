// Package diskfile implements the lowest storage layer: a single
// operating-system file addressed in fixed-size pages. It knows nothing
// about what a page contains.
package diskfile

import (
	"fmt"
	"os"

	"github.com/arcflow-db/arcdb/internal/arcerr"
)

// PageSize is the fixed size in bytes of every page in the system.
const PageSize = 4096

// PageIndex identifies a page by its position in the file.
type PageIndex uint32

// InvalidPageIndex marks the absence of a page reference, e.g. a leaf's
// missing sibling link or an internal node's empty child slot.
const InvalidPageIndex PageIndex = 0xFFFFFFFF

// File is a page-addressed view over an *os.File. Pages are never
// reclaimed: AllocatePage only ever grows the file.
type File struct {
	f         *os.File
	pageCount uint32
}

// Open opens (creating if necessary) the file at path and computes its
// current page count from its size.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open disk file %s: %w: %v", path, arcerr.ErrStorage, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat disk file %s: %w: %v", path, arcerr.ErrStorage, err)
	}
	return &File{f: f, pageCount: uint32(info.Size() / PageSize)}, nil
}

// PageCount returns the number of allocated pages.
func (d *File) PageCount() uint32 {
	return d.pageCount
}

// ReadPage reads the page at idx into buf, which must be exactly
// PageSize bytes.
func (d *File) ReadPage(idx PageIndex, buf []byte) error {
	if len(buf) != PageSize {
		panic("diskfile: ReadPage buffer must be PageSize bytes")
	}
	if uint32(idx) >= d.pageCount {
		return fmt.Errorf("read page %d: %w: out of range (have %d pages)", idx, arcerr.ErrStorage, d.pageCount)
	}
	off := int64(idx) * PageSize
	if _, err := d.f.ReadAt(buf, off); err != nil {
		return fmt.Errorf("read page %d: %w: %v", idx, arcerr.ErrStorage, err)
	}
	return nil
}

// WritePage writes buf (exactly PageSize bytes) to the page at idx.
func (d *File) WritePage(idx PageIndex, buf []byte) error {
	if len(buf) != PageSize {
		panic("diskfile: WritePage buffer must be PageSize bytes")
	}
	if uint32(idx) >= d.pageCount {
		return fmt.Errorf("write page %d: %w: out of range (have %d pages)", idx, arcerr.ErrStorage, d.pageCount)
	}
	off := int64(idx) * PageSize
	if _, err := d.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("write page %d: %w: %v", idx, arcerr.ErrStorage, err)
	}
	return nil
}

// AllocatePage extends the file by one zero-filled page and returns its
// index. Pages are never freed or reused.
func (d *File) AllocatePage() (PageIndex, error) {
	idx := PageIndex(d.pageCount)
	off := int64(idx) * PageSize
	zero := make([]byte, PageSize)
	if _, err := d.f.WriteAt(zero, off); err != nil {
		return 0, fmt.Errorf("allocate page %d: %w: %v", idx, arcerr.ErrStorage, err)
	}
	d.pageCount++
	return idx, nil
}

// Sync flushes buffered writes to stable storage.
func (d *File) Sync() error {
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("sync disk file: %w: %v", arcerr.ErrStorage, err)
	}
	return nil
}

// Close closes the underlying file.
func (d *File) Close() error {
	if err := d.f.Close(); err != nil {
		return fmt.Errorf("close disk file: %w: %v", arcerr.ErrStorage, err)
	}
	return nil
}
