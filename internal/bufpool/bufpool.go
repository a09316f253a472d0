// Package bufpool implements a bounded, page-frame buffer pool with
// clock-sweep (second-chance) eviction, grounded on the ClockCache in
// original_source/src/cache.h and generalized into a pin-counted,
// dirty-tracking pool addressed by (file, page id) and shared across
// every table and index a store opens.
package bufpool

import (
	"fmt"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/diskfile"
)

// Frame is one slot of the pool's fixed-size frame array.
type Frame struct {
	File     *diskfile.File
	PageID   diskfile.PageIndex
	Buf      [diskfile.PageSize]byte
	Dirty    bool
	RefBit   bool
	PinCount int
	valid    bool
}

type frameKey struct {
	file *diskfile.File
	page diskfile.PageIndex
}

// Pool is a fixed-capacity set of frames shared by every table and
// index file opened against a store. It never grows past its initial
// frame count, regardless of how many files address it.
type Pool struct {
	frames   []*Frame
	resident map[frameKey]int // (file, page id) -> frame slot
	hand     int
}

// New creates a pool of frameCount frames, unbound to any file until a
// caller opens a View onto it.
func New(frameCount int) *Pool {
	if frameCount <= 0 {
		panic("bufpool: frameCount must be positive")
	}
	frames := make([]*Frame, frameCount)
	for i := range frames {
		frames[i] = &Frame{}
	}
	return &Pool{
		frames:   frames,
		resident: make(map[frameKey]int),
	}
}

// FetchPage pins and returns the frame holding (file, pageID), loading
// it from disk if it is not already resident. The caller must call
// UnpinPage exactly once for every successful FetchPage.
func (p *Pool) FetchPage(file *diskfile.File, pageID diskfile.PageIndex) (*Frame, error) {
	key := frameKey{file, pageID}
	if slot, ok := p.resident[key]; ok {
		f := p.frames[slot]
		f.PinCount++
		f.RefBit = true
		return f, nil
	}

	slot, err := p.evictOne()
	if err != nil {
		return nil, err
	}
	f := p.frames[slot]
	if err := file.ReadPage(pageID, f.Buf[:]); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageID, err)
	}
	f.File = file
	f.PageID = pageID
	f.Dirty = false
	f.RefBit = false
	f.PinCount = 1
	f.valid = true
	p.resident[key] = slot
	return f, nil
}

// NewPage allocates a fresh page on file and returns it pinned and
// zero-filled, without reading anything from disk.
func (p *Pool) NewPage(file *diskfile.File) (diskfile.PageIndex, *Frame, error) {
	pageID, err := file.AllocatePage()
	if err != nil {
		return 0, nil, err
	}
	slot, err := p.evictOne()
	if err != nil {
		return 0, nil, err
	}
	f := p.frames[slot]
	for i := range f.Buf {
		f.Buf[i] = 0
	}
	f.File = file
	f.PageID = pageID
	f.Dirty = true
	f.RefBit = false
	f.PinCount = 1
	f.valid = true
	p.resident[frameKey{file, pageID}] = slot
	return pageID, f, nil
}

// UnpinPage releases one pin on the frame holding (file, pageID).
// dirty, if true, marks the frame dirty (sticky: never cleared except
// on writeback).
func (p *Pool) UnpinPage(file *diskfile.File, pageID diskfile.PageIndex, dirty bool) {
	slot, ok := p.resident[frameKey{file, pageID}]
	if !ok {
		return
	}
	f := p.frames[slot]
	if dirty {
		f.Dirty = true
	}
	if f.PinCount > 0 {
		f.PinCount--
	}
}

// evictOne runs the clock sweep until it finds an unpinned frame,
// flushing it to disk if dirty, and returns its slot. Frames that have
// never been used (invalid) are always immediately eligible.
func (p *Pool) evictOne() (int, error) {
	n := len(p.frames)
	for scanned := 0; scanned <= 2*n; scanned++ {
		f := p.frames[p.hand]
		slot := p.hand
		p.hand = (p.hand + 1) % n

		if !f.valid {
			return slot, nil
		}
		if f.PinCount > 0 {
			continue
		}
		if f.RefBit {
			f.RefBit = false
			continue
		}
		if f.Dirty {
			if err := f.File.WritePage(f.PageID, f.Buf[:]); err != nil {
				return 0, fmt.Errorf("evict page %d: %w", f.PageID, err)
			}
		}
		delete(p.resident, frameKey{f.File, f.PageID})
		return slot, nil
	}
	return 0, fmt.Errorf("evict frame: %w", arcerr.ErrOutOfFrames)
}

// FlushFile writes back every dirty frame belonging to file, without
// evicting it. Called from a table or index's own Close.
func (p *Pool) FlushFile(file *diskfile.File) error {
	for _, f := range p.frames {
		if f.valid && f.File == file && f.Dirty {
			if err := file.WritePage(f.PageID, f.Buf[:]); err != nil {
				return fmt.Errorf("flush page %d: %w", f.PageID, err)
			}
			f.Dirty = false
		}
	}
	return nil
}

// FlushAll writes back every dirty frame across every file sharing
// this pool. Called on Store.Close so a clean shutdown never loses
// buffered writes, even if some table or index was left open.
func (p *Pool) FlushAll() error {
	for _, f := range p.frames {
		if f.valid && f.Dirty {
			if err := f.File.WritePage(f.PageID, f.Buf[:]); err != nil {
				return fmt.Errorf("flush page %d: %w", f.PageID, err)
			}
			f.Dirty = false
		}
	}
	return nil
}

// FrameCount returns the pool's fixed capacity.
func (p *Pool) FrameCount() int {
	return len(p.frames)
}

// View is one file's address space onto a shared Pool, exposing the
// same FetchPage/NewPage/UnpinPage surface a single-file pool would,
// so a table or index can address its own pages without carrying its
// *diskfile.File into every call.
type View struct {
	pool *Pool
	file *diskfile.File
}

// NewView opens a view of p scoped to file.
func (p *Pool) NewView(file *diskfile.File) *View {
	return &View{pool: p, file: file}
}

func (v *View) FetchPage(pageID diskfile.PageIndex) (*Frame, error) {
	return v.pool.FetchPage(v.file, pageID)
}

func (v *View) NewPage() (diskfile.PageIndex, *Frame, error) {
	return v.pool.NewPage(v.file)
}

func (v *View) UnpinPage(pageID diskfile.PageIndex, dirty bool) {
	v.pool.UnpinPage(v.file, pageID, dirty)
}

// Flush writes back this view's own dirty frames without touching
// frames belonging to any other file sharing the pool.
func (v *View) Flush() error {
	return v.pool.FlushFile(v.file)
}

// FrameCount returns the shared pool's fixed capacity.
func (v *View) FrameCount() int {
	return v.pool.FrameCount()
}
