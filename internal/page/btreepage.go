package page

import (
	"encoding/binary"
	"fmt"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/diskfile"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
)

// BTreePageType tags the three flavours of page a B+tree index file
// contains.
type BTreePageType uint32

const (
	BTreeInvalid BTreePageType = iota
	BTreeMetadata
	BTreeInternal
	BTreeLeaf
)

func (t BTreePageType) String() string {
	switch t {
	case BTreeMetadata:
		return "metadata"
	case BTreeInternal:
		return "internal"
	case BTreeLeaf:
		return "leaf"
	default:
		return "invalid"
	}
}

// InternalCapacity returns how many (key, child) entries fit on an
// internal page for the given key width.
func InternalCapacity(keySize uint32) int {
	return (diskfile.PageSize - btreeInternalHeaderSize) / (int(keySize) + 4)
}

// LeafCapacity returns how many (key, RowID) entries fit on a leaf page
// for the given key width.
func LeafCapacity(keySize uint32) int {
	return (diskfile.PageSize - btreeLeafHeaderSize) / (int(keySize) + 8)
}

// PageType reads the type tag shared by every B+tree page flavour.
func PageType(buf []byte) BTreePageType {
	return BTreePageType(binary.LittleEndian.Uint32(buf[0:4]))
}

func setPageType(buf []byte, t BTreePageType) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(t))
}

// RowID locates a row within a table: the page it lives on and its
// slot/row index within that page.
type RowID struct {
	PageIndex diskfile.PageIndex
	RowIndex  uint32
}

// --- metadata page ---

const (
	btreeMetaRootOffset    = 4
	btreeMetaKeySizeOffset = 8
	btreeMetaMaxSizeOffset = 12
)

// BTreeMetadataPage is the fixed page-0 header of every B+tree index
// file: root page, key width, and per-page fan-out.
type BTreeMetadataPage struct {
	buf []byte
}

func WrapBTreeMetadataPage(buf []byte) *BTreeMetadataPage { return &BTreeMetadataPage{buf: buf} }

func InitBTreeMetadataPage(buf []byte, root diskfile.PageIndex, keySize, maxPageSize uint32) *BTreeMetadataPage {
	for i := range buf {
		buf[i] = 0
	}
	setPageType(buf, BTreeMetadata)
	m := WrapBTreeMetadataPage(buf)
	m.SetRootPageIndex(root)
	m.SetKeySizeInBytes(keySize)
	m.SetMaxPageSize(maxPageSize)
	return m
}

func (m *BTreeMetadataPage) RootPageIndex() diskfile.PageIndex {
	return diskfile.PageIndex(binary.LittleEndian.Uint32(m.buf[btreeMetaRootOffset:]))
}

func (m *BTreeMetadataPage) SetRootPageIndex(idx diskfile.PageIndex) {
	binary.LittleEndian.PutUint32(m.buf[btreeMetaRootOffset:], uint32(idx))
}

func (m *BTreeMetadataPage) KeySizeInBytes() uint32 {
	return binary.LittleEndian.Uint32(m.buf[btreeMetaKeySizeOffset:])
}

func (m *BTreeMetadataPage) SetKeySizeInBytes(n uint32) {
	binary.LittleEndian.PutUint32(m.buf[btreeMetaKeySizeOffset:], n)
}

func (m *BTreeMetadataPage) MaxPageSize() uint32 {
	return binary.LittleEndian.Uint32(m.buf[btreeMetaMaxSizeOffset:])
}

func (m *BTreeMetadataPage) SetMaxPageSize(n uint32) {
	binary.LittleEndian.PutUint32(m.buf[btreeMetaMaxSizeOffset:], n)
}

// --- internal page ---

const btreeInternalHeaderSize = 8 // type + size

// BTreeInternalPage holds size children: slot 0 is the invalid-key
// leftmost child, slots 1..size-1 pair a separator key with the child
// reached for keys >= that separator.
type BTreeInternalPage struct {
	buf         []byte
	keySize     uint32
	maxPageSize uint32
	keySchema   *rowcodec.Schema
}

func WrapBTreeInternalPage(buf []byte, keySize, maxPageSize uint32, keySchema *rowcodec.Schema) *BTreeInternalPage {
	return &BTreeInternalPage{buf: buf, keySize: keySize, maxPageSize: maxPageSize, keySchema: keySchema}
}

func InitBTreeInternalPage(buf []byte, keySize, maxPageSize uint32, keySchema *rowcodec.Schema) *BTreeInternalPage {
	for i := range buf {
		buf[i] = 0
	}
	setPageType(buf, BTreeInternal)
	p := WrapBTreeInternalPage(buf, keySize, maxPageSize, keySchema)
	p.SetSize(0)
	return p
}

func (p *BTreeInternalPage) entrySize() int { return int(p.keySize) + 4 }

func (p *BTreeInternalPage) Size() int {
	return int(binary.LittleEndian.Uint32(p.buf[4:8]))
}

func (p *BTreeInternalPage) SetSize(n int) {
	binary.LittleEndian.PutUint32(p.buf[4:8], uint32(n))
}

func (p *BTreeInternalPage) MaxEntries() int {
	return (diskfile.PageSize - btreeInternalHeaderSize) / p.entrySize()
}

func (p *BTreeInternalPage) entryOffset(i int) int {
	return btreeInternalHeaderSize + i*p.entrySize()
}

// Key returns the separator key at i. Index 0 has no meaningful key.
func (p *BTreeInternalPage) Key(i int) (rowcodec.Row, error) {
	off := p.entryOffset(i)
	return rowcodec.Unmarshal(p.keySchema, p.buf[off:off+int(p.keySize)])
}

func (p *BTreeInternalPage) Child(i int) diskfile.PageIndex {
	off := p.entryOffset(i)
	return diskfile.PageIndex(binary.LittleEndian.Uint32(p.buf[off+int(p.keySize):]))
}

func (p *BTreeInternalPage) SetChild(i int, child diskfile.PageIndex) {
	off := p.entryOffset(i)
	binary.LittleEndian.PutUint32(p.buf[off+int(p.keySize):], uint32(child))
}

// SetEntry writes key and child at slot i. key is ignored for i == 0.
func (p *BTreeInternalPage) SetEntry(i int, key rowcodec.Row, child diskfile.PageIndex) error {
	off := p.entryOffset(i)
	if i != 0 {
		if _, err := rowcodec.Marshal(p.keySchema, key, p.buf[off:off+int(p.keySize)]); err != nil {
			return fmt.Errorf("set internal entry %d: %w", i, err)
		}
	}
	binary.LittleEndian.PutUint32(p.buf[off+int(p.keySize):], uint32(child))
	return nil
}

// InsertEntry shifts entries at and after i one slot to the right and
// writes key/child at i. Returns false without mutating if the page is
// already at MaxEntries (or the configured max_page_size, if smaller).
func (p *BTreeInternalPage) InsertEntry(i int, key rowcodec.Row, child diskfile.PageIndex) (bool, error) {
	limit := p.MaxEntries()
	if int(p.maxPageSize) < limit {
		limit = int(p.maxPageSize)
	}
	size := p.Size()
	if size >= limit {
		return false, nil
	}
	for j := size - 1; j >= i; j-- {
		k, err := p.Key(j)
		if err != nil {
			return false, err
		}
		if err := p.SetEntry(j+1, k, p.Child(j)); err != nil {
			return false, err
		}
	}
	if err := p.SetEntry(i, key, child); err != nil {
		return false, err
	}
	p.SetSize(size + 1)
	return true, nil
}

// InsertFirstEntry sets slot 0's child, used when allocating a brand
// new root.
func (p *BTreeInternalPage) InsertFirstEntry(child diskfile.PageIndex) error {
	if err := p.SetEntry(0, nil, child); err != nil {
		return err
	}
	p.SetSize(1)
	return nil
}

// Lookup returns the child to descend into for key and the index of
// the separator slot chosen (binary search over slots 1..size-1,
// defaulting to slot 0 when key is smaller than every separator).
func (p *BTreeInternalPage) Lookup(key rowcodec.Row, cmp func(a, b rowcodec.Row) int) (diskfile.PageIndex, int, error) {
	size := p.Size()
	lo, hi := 0, size
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		k, err := p.Key(mid)
		if err != nil {
			return 0, 0, err
		}
		if cmp(key, k) < 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return p.Child(lo), lo, nil
}

// Split moves the upper half of this page's entries into rhs and
// returns the smallest key among the moved entries, which the caller
// promotes into the parent as the new separator.
func (p *BTreeInternalPage) Split(rhs *BTreeInternalPage) (rowcodec.Row, error) {
	all := p.Size()
	lhsSize := all / 2
	rhsSize := all - lhsSize
	var promoted rowcodec.Row
	for i := 0; i < rhsSize; i++ {
		k, err := p.Key(i + lhsSize)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			// Slot 0 never stores a meaningful key (see SetEntry), but
			// this is the key that routed to the child now becoming
			// rhs's leftmost: it is exactly the separator the caller
			// must promote into the parent.
			promoted = k
		}
		if err := rhs.SetEntry(i, k, p.Child(i+lhsSize)); err != nil {
			return nil, err
		}
	}
	rhs.SetSize(rhsSize)
	p.SetSize(lhsSize)
	return promoted, nil
}

// --- leaf page ---

const btreeLeafHeaderSize = 16 // type + size + prev + next

type BTreeLeafPage struct {
	buf       []byte
	keySize   uint32
	keySchema *rowcodec.Schema
}

func WrapBTreeLeafPage(buf []byte, keySize uint32, keySchema *rowcodec.Schema) *BTreeLeafPage {
	return &BTreeLeafPage{buf: buf, keySize: keySize, keySchema: keySchema}
}

func InitBTreeLeafPage(buf []byte, keySize uint32, keySchema *rowcodec.Schema) *BTreeLeafPage {
	for i := range buf {
		buf[i] = 0
	}
	setPageType(buf, BTreeLeaf)
	p := WrapBTreeLeafPage(buf, keySize, keySchema)
	p.SetSize(0)
	p.SetPrevPageIndex(diskfile.InvalidPageIndex)
	p.SetNextPageIndex(diskfile.InvalidPageIndex)
	return p
}

func (p *BTreeLeafPage) entrySize() int { return int(p.keySize) + 8 }

func (p *BTreeLeafPage) Size() int { return int(binary.LittleEndian.Uint32(p.buf[4:8])) }

func (p *BTreeLeafPage) SetSize(n int) { binary.LittleEndian.PutUint32(p.buf[4:8], uint32(n)) }

func (p *BTreeLeafPage) PrevPageIndex() diskfile.PageIndex {
	return diskfile.PageIndex(binary.LittleEndian.Uint32(p.buf[8:12]))
}

func (p *BTreeLeafPage) SetPrevPageIndex(idx diskfile.PageIndex) {
	binary.LittleEndian.PutUint32(p.buf[8:12], uint32(idx))
}

func (p *BTreeLeafPage) NextPageIndex() diskfile.PageIndex {
	return diskfile.PageIndex(binary.LittleEndian.Uint32(p.buf[12:16]))
}

func (p *BTreeLeafPage) SetNextPageIndex(idx diskfile.PageIndex) {
	binary.LittleEndian.PutUint32(p.buf[12:16], uint32(idx))
}

func (p *BTreeLeafPage) MaxEntries() int {
	return (diskfile.PageSize - btreeLeafHeaderSize) / p.entrySize()
}

func (p *BTreeLeafPage) entryOffset(i int) int {
	return btreeLeafHeaderSize + i*p.entrySize()
}

func (p *BTreeLeafPage) Key(i int) (rowcodec.Row, error) {
	off := p.entryOffset(i)
	return rowcodec.Unmarshal(p.keySchema, p.buf[off:off+int(p.keySize)])
}

func (p *BTreeLeafPage) Value(i int) RowID {
	off := p.entryOffset(i) + int(p.keySize)
	return RowID{
		PageIndex: diskfile.PageIndex(binary.LittleEndian.Uint32(p.buf[off:])),
		RowIndex:  binary.LittleEndian.Uint32(p.buf[off+4:]),
	}
}

func (p *BTreeLeafPage) setEntry(i int, key rowcodec.Row, value RowID) error {
	off := p.entryOffset(i)
	if _, err := rowcodec.Marshal(p.keySchema, key, p.buf[off:off+int(p.keySize)]); err != nil {
		return fmt.Errorf("set leaf entry %d: %w", i, err)
	}
	binary.LittleEndian.PutUint32(p.buf[off+int(p.keySize):], uint32(value.PageIndex))
	binary.LittleEndian.PutUint32(p.buf[off+int(p.keySize)+4:], value.RowIndex)
	return nil
}

// Insert places key/value in sorted position. Returns false without
// mutating if the page is full, and an error wrapping ErrDuplicateKey
// if key is already present.
func (p *BTreeLeafPage) Insert(key rowcodec.Row, value RowID, cmp func(a, b rowcodec.Row) int) (bool, error) {
	size := p.Size()
	if size >= p.MaxEntries() {
		return false, nil
	}

	type item struct {
		key rowcodec.Row
		val RowID
	}
	items := make([]item, size)
	for i := 0; i < size; i++ {
		k, err := p.Key(i)
		if err != nil {
			return false, err
		}
		items[i] = item{key: k, val: p.Value(i)}
		if cmp(key, k) == 0 {
			return false, fmt.Errorf("insert leaf key: %w", arcerr.ErrDuplicateKey)
		}
	}
	pos := size
	for i, it := range items {
		if cmp(key, it.key) < 0 {
			pos = i
			break
		}
	}
	items = append(items, item{})
	copy(items[pos+1:], items[pos:])
	items[pos] = item{key: key, val: value}

	for i, it := range items {
		if err := p.setEntry(i, it.key, it.val); err != nil {
			return false, err
		}
	}
	p.SetSize(len(items))
	return true, nil
}

// Lookup returns the row id stored under key, if present.
func (p *BTreeLeafPage) Lookup(key rowcodec.Row, cmp func(a, b rowcodec.Row) int) (RowID, bool, error) {
	size := p.Size()
	if size == 0 {
		return RowID{}, false, nil
	}
	lo, hi := 0, size
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		k, err := p.Key(mid)
		if err != nil {
			return RowID{}, false, err
		}
		c := cmp(k, key)
		if c == 0 {
			return p.Value(mid), true, nil
		} else if c < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	k, err := p.Key(lo)
	if err != nil {
		return RowID{}, false, err
	}
	if cmp(k, key) == 0 {
		return p.Value(lo), true, nil
	}
	return RowID{}, false, nil
}

// Remove deletes key if present and returns whether it was found.
func (p *BTreeLeafPage) Remove(key rowcodec.Row, cmp func(a, b rowcodec.Row) int) (bool, error) {
	size := p.Size()
	found := false
	kept := 0
	for i := 0; i < size; i++ {
		k, err := p.Key(i)
		if err != nil {
			return false, err
		}
		if cmp(k, key) == 0 {
			found = true
			continue
		}
		if kept != i {
			if err := p.setEntry(kept, k, p.Value(i)); err != nil {
				return false, err
			}
		}
		kept++
	}
	p.SetSize(kept)
	return found, nil
}

// Split moves the upper half of this page's entries into rhs.
func (p *BTreeLeafPage) Split(rhs *BTreeLeafPage) error {
	all := p.Size()
	lhsSize := all / 2
	rhsSize := all - lhsSize
	for i := 0; i < rhsSize; i++ {
		k, err := p.Key(i + lhsSize)
		if err != nil {
			return err
		}
		if err := rhs.setEntry(i, k, p.Value(i+lhsSize)); err != nil {
			return err
		}
	}
	rhs.SetSize(rhsSize)
	p.SetSize(lhsSize)
	return nil
}
