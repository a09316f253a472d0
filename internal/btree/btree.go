// Package btree implements the B+tree secondary index: fixed-width
// keys, point lookup, insert-with-split, delete-without-rebalance, and
// both full and predicate-bounded ordered scans.
//
// Grounded on original_source/src/btree.cpp's BTree class, with two
// corrections over the original: internal-node splits now promote the
// correct separator and propagate fully up the path (the original
// throws on a full parent instead of splitting it), and child pointers
// are stored as full 32-bit page indices rather than truncated to one
// byte.
package btree

import (
	"fmt"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/bufpool"
	"github.com/arcflow-db/arcdb/internal/diskfile"
	"github.com/arcflow-db/arcdb/internal/page"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
)

// MetadataPageIndex is always page 0 of an index file.
const MetadataPageIndex diskfile.PageIndex = 0

// Compare orders two index keys column-by-column, matching
// rowcodec.Compare over the first mismatching column.
func Compare(lhs, rhs rowcodec.Row) int {
	return compareRows(lhs, rhs)
}

func compareRows(lhs, rhs rowcodec.Row) int {
	n := len(lhs)
	if len(rhs) < n {
		n = len(rhs)
	}
	for i := 0; i < n; i++ {
		if c := rowcodec.Compare(lhs[i], rhs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(lhs) < len(rhs):
		return -1
	case len(lhs) > len(rhs):
		return 1
	default:
		return 0
	}
}

// Index is a B+tree-backed secondary index over a dedicated disk file,
// addressed through a view onto the store's shared buffer pool.
type Index struct {
	disk      *diskfile.File
	pool      *bufpool.View
	keySchema *rowcodec.Schema
	keySize   uint32
}

// Create initializes a brand new, empty index file at path, addressed
// through a view onto pool.
func Create(path string, keySchema *rowcodec.Schema, bufPool *bufpool.Pool) (*Index, error) {
	disk, err := diskfile.Open(path)
	if err != nil {
		return nil, err
	}
	pool := bufPool.NewView(disk)
	idx := &Index{disk: disk, pool: pool, keySchema: keySchema, keySize: uint32(rowcodec.FixedRowSpace(keySchema))}

	if disk.PageCount() != 0 {
		return nil, fmt.Errorf("create index %s: %w: file already has pages", path, arcerr.ErrStorage)
	}

	metaID, metaFrame, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	if metaID != MetadataPageIndex {
		return nil, fmt.Errorf("create index %s: %w: metadata page must be page 0", path, arcerr.ErrStorage)
	}

	rootID, rootFrame, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	page.InitBTreeLeafPage(rootFrame.Buf[:], idx.keySize, idx.keySchema)
	pool.UnpinPage(rootID, true)

	maxPageSize := uint32(page.InternalCapacity(idx.keySize))
	if leafCap := uint32(page.LeafCapacity(idx.keySize)); leafCap < maxPageSize {
		maxPageSize = leafCap
	}
	page.InitBTreeMetadataPage(metaFrame.Buf[:], rootID, idx.keySize, maxPageSize)
	pool.UnpinPage(metaID, true)

	return idx, nil
}

// Open reopens an existing index file and validates it against
// keySchema's expected fixed width, addressed through a view onto
// bufPool.
func Open(path string, keySchema *rowcodec.Schema, bufPool *bufpool.Pool) (*Index, error) {
	disk, err := diskfile.Open(path)
	if err != nil {
		return nil, err
	}
	pool := bufPool.NewView(disk)
	keySize := uint32(rowcodec.FixedRowSpace(keySchema))

	metaFrame, err := pool.FetchPage(MetadataPageIndex)
	if err != nil {
		return nil, err
	}
	meta := page.WrapBTreeMetadataPage(metaFrame.Buf[:])
	existingKeySize := meta.KeySizeInBytes()
	pool.UnpinPage(MetadataPageIndex, false)
	if existingKeySize != keySize {
		return nil, fmt.Errorf("open index %s: %w: expected key size %d, file has %d", path, arcerr.ErrIndexInconsistency, keySize, existingKeySize)
	}

	return &Index{disk: disk, pool: pool, keySchema: keySchema, keySize: keySize}, nil
}

func (idx *Index) readMeta() (*page.BTreeMetadataPage, *bufpool.Frame, error) {
	f, err := idx.pool.FetchPage(MetadataPageIndex)
	if err != nil {
		return nil, nil, err
	}
	return page.WrapBTreeMetadataPage(f.Buf[:]), f, nil
}

func (idx *Index) maxPageSize() (uint32, error) {
	meta, _, err := idx.readMeta()
	if err != nil {
		return 0, err
	}
	n := meta.MaxPageSize()
	idx.pool.UnpinPage(MetadataPageIndex, false)
	return n, nil
}

// pathEntry records one internal page visited while descending toward
// a leaf, so insert/remove can walk back up to propagate changes.
type pathEntry struct {
	pageID diskfile.PageIndex
	idx    int // the child slot taken at this level
}

// descend walks from the root to the leaf that should contain key,
// recording the internal pages visited.
func (idx *Index) descend(key rowcodec.Row) (diskfile.PageIndex, []pathEntry, error) {
	meta, _, err := idx.readMeta()
	if err != nil {
		return 0, nil, err
	}
	cur := meta.RootPageIndex()
	idx.pool.UnpinPage(MetadataPageIndex, false)

	var path []pathEntry
	for {
		f, err := idx.pool.FetchPage(cur)
		if err != nil {
			return 0, nil, err
		}
		pt := page.PageType(f.Buf[:])
		if pt == page.BTreeLeaf {
			idx.pool.UnpinPage(cur, false)
			return cur, path, nil
		}
		if pt != page.BTreeInternal {
			idx.pool.UnpinPage(cur, false)
			return 0, nil, fmt.Errorf("descend btree: %w: unexpected page type %v", arcerr.ErrIndexInconsistency, pt)
		}
		internal := page.WrapBTreeInternalPage(f.Buf[:], idx.keySize, 0, idx.keySchema)
		child, slot, err := internal.Lookup(key, compareRows)
		idx.pool.UnpinPage(cur, false)
		if err != nil {
			return 0, nil, err
		}
		path = append(path, pathEntry{pageID: cur, idx: slot})
		cur = child
	}
}

// Lookup returns the row id stored under key, if any.
func (idx *Index) Lookup(key rowcodec.Row) (page.RowID, bool, error) {
	leafID, _, err := idx.descend(key)
	if err != nil {
		return page.RowID{}, false, err
	}
	f, err := idx.pool.FetchPage(leafID)
	if err != nil {
		return page.RowID{}, false, err
	}
	defer idx.pool.UnpinPage(leafID, false)
	leaf := page.WrapBTreeLeafPage(f.Buf[:], idx.keySize, idx.keySchema)
	return leaf.Lookup(key, compareRows)
}

// Insert adds key -> value to the index. Returns arcerr.ErrDuplicateKey
// if key is already present.
func (idx *Index) Insert(key rowcodec.Row, value page.RowID) error {
	leafID, path, err := idx.descend(key)
	if err != nil {
		return err
	}
	maxPageSize, err := idx.maxPageSize()
	if err != nil {
		return err
	}

	leafFrame, err := idx.pool.FetchPage(leafID)
	if err != nil {
		return err
	}
	leaf := page.WrapBTreeLeafPage(leafFrame.Buf[:], idx.keySize, idx.keySchema)
	ok, err := leaf.Insert(key, value, compareRows)
	if err != nil {
		idx.pool.UnpinPage(leafID, false)
		return err
	}
	if ok {
		idx.pool.UnpinPage(leafID, true)
		return nil
	}

	// Leaf is full: split it and insert on whichever half key belongs to.
	newLeafID, newLeafFrame, err := idx.pool.NewPage()
	if err != nil {
		idx.pool.UnpinPage(leafID, false)
		return err
	}
	newLeaf := page.InitBTreeLeafPage(newLeafFrame.Buf[:], idx.keySize, idx.keySchema)
	if err := leaf.Split(newLeaf); err != nil {
		return err
	}
	nextID := leaf.NextPageIndex()
	leaf.SetNextPageIndex(newLeafID)
	newLeaf.SetPrevPageIndex(leafID)
	newLeaf.SetNextPageIndex(nextID)
	if nextID != diskfile.InvalidPageIndex {
		nf, err := idx.pool.FetchPage(nextID)
		if err != nil {
			return err
		}
		page.WrapBTreeLeafPage(nf.Buf[:], idx.keySize, idx.keySchema).SetPrevPageIndex(newLeafID)
		idx.pool.UnpinPage(nextID, true)
	}

	separator, err := newLeaf.Key(0)
	if err != nil {
		return err
	}
	if compareRows(key, separator) < 0 {
		if ok, err = leaf.Insert(key, value, compareRows); err != nil || !ok {
			return fmt.Errorf("insert key into split leaf: %w", firstNonNil(err, arcerr.ErrStorage))
		}
	} else {
		if ok, err = newLeaf.Insert(key, value, compareRows); err != nil || !ok {
			return fmt.Errorf("insert key into split leaf: %w", firstNonNil(err, arcerr.ErrStorage))
		}
	}
	idx.pool.UnpinPage(leafID, true)
	idx.pool.UnpinPage(newLeafID, true)

	return idx.propagateSplit(path, separator, leafID, newLeafID, maxPageSize)
}

func firstNonNil(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// propagateSplit inserts (separator -> rightChild) into the parent
// named by the top of path, splitting that parent in turn (and so on up
// the path) whenever it is itself full, and allocating a new root if
// the path is exhausted.
func (idx *Index) propagateSplit(path []pathEntry, separator rowcodec.Row, leftChild, rightChild diskfile.PageIndex, maxPageSize uint32) error {
	for len(path) > 0 {
		top := path[len(path)-1]
		path = path[:len(path)-1]

		f, err := idx.pool.FetchPage(top.pageID)
		if err != nil {
			return err
		}
		internal := page.WrapBTreeInternalPage(f.Buf[:], idx.keySize, maxPageSize, idx.keySchema)
		internal.SetChild(top.idx, leftChild)
		ok, err := internal.InsertEntry(top.idx+1, separator, rightChild)
		if err != nil {
			idx.pool.UnpinPage(top.pageID, false)
			return err
		}
		if ok {
			idx.pool.UnpinPage(top.pageID, true)
			return nil
		}

		// Parent is full: split it too.
		newID, newFrame, err := idx.pool.NewPage()
		if err != nil {
			idx.pool.UnpinPage(top.pageID, false)
			return err
		}
		newInternal := page.InitBTreeInternalPage(newFrame.Buf[:], idx.keySize, maxPageSize, idx.keySchema)
		promoted, err := internal.Split(newInternal)
		if err != nil {
			return err
		}
		if compareRows(separator, promoted) < 0 {
			if ok, err := internal.InsertEntry(top.idx+1, separator, rightChild); err != nil || !ok {
				return fmt.Errorf("insert separator into split internal page: %w", firstNonNil(err, arcerr.ErrStorage))
			}
		} else {
			// Re-target the slot within the new right page: its
			// slot 0 is the promoted key's own (invalid) leftmost
			// child, so locate the separator's position among the
			// remaining entries by linear scan (pages are small).
			pos := newInternal.Size()
			for i := 1; i < newInternal.Size(); i++ {
				k, err := newInternal.Key(i)
				if err != nil {
					return err
				}
				if compareRows(separator, k) < 0 {
					pos = i
					break
				}
			}
			if ok, err := newInternal.InsertEntry(pos, separator, rightChild); err != nil || !ok {
				return fmt.Errorf("insert separator into split internal page: %w", firstNonNil(err, arcerr.ErrStorage))
			}
		}
		idx.pool.UnpinPage(top.pageID, true)
		idx.pool.UnpinPage(newID, true)

		leftChild, rightChild = top.pageID, newID
		separator = promoted
	}

	// Path exhausted: the root itself split. Allocate a fresh root
	// pointing at both halves.
	newRootID, newRootFrame, err := idx.pool.NewPage()
	if err != nil {
		return err
	}
	newRoot := page.InitBTreeInternalPage(newRootFrame.Buf[:], idx.keySize, maxPageSize, idx.keySchema)
	if err := newRoot.InsertFirstEntry(leftChild); err != nil {
		return err
	}
	if err := newRoot.SetEntry(1, separator, rightChild); err != nil {
		return err
	}
	newRoot.SetSize(2)
	idx.pool.UnpinPage(newRootID, true)

	meta, metaFrame, err := idx.readMeta()
	if err != nil {
		return err
	}
	meta.SetRootPageIndex(newRootID)
	idx.pool.UnpinPage(MetadataPageIndex, true)
	_ = metaFrame
	return nil
}

// Remove deletes key from the index, if present. It does not rebalance
// or merge underflowed nodes, matching spec.md's documented choice not
// to implement merge-on-underflow (see DESIGN.md).
func (idx *Index) Remove(key rowcodec.Row) (bool, error) {
	leafID, _, err := idx.descend(key)
	if err != nil {
		return false, err
	}
	f, err := idx.pool.FetchPage(leafID)
	if err != nil {
		return false, err
	}
	defer idx.pool.UnpinPage(leafID, true)
	leaf := page.WrapBTreeLeafPage(f.Buf[:], idx.keySize, idx.keySchema)
	return leaf.Remove(key, compareRows)
}

// leftmostLeaf walks down the leftmost child chain from root to leaf.
func (idx *Index) leftmostLeaf() (diskfile.PageIndex, error) {
	meta, _, err := idx.readMeta()
	if err != nil {
		return 0, err
	}
	cur := meta.RootPageIndex()
	idx.pool.UnpinPage(MetadataPageIndex, false)

	for {
		f, err := idx.pool.FetchPage(cur)
		if err != nil {
			return 0, err
		}
		pt := page.PageType(f.Buf[:])
		if pt == page.BTreeLeaf {
			idx.pool.UnpinPage(cur, false)
			return cur, nil
		}
		internal := page.WrapBTreeInternalPage(f.Buf[:], idx.keySize, 0, idx.keySchema)
		child := internal.Child(0)
		idx.pool.UnpinPage(cur, false)
		cur = child
	}
}

// Scan calls visit for every (key, value) pair in ascending key order,
// following leaf sibling links, until visit returns false or the tree
// is exhausted.
func (idx *Index) Scan(visit func(key rowcodec.Row, value page.RowID) bool) error {
	leafID, err := idx.leftmostLeaf()
	if err != nil {
		return err
	}
	for leafID != diskfile.InvalidPageIndex {
		f, err := idx.pool.FetchPage(leafID)
		if err != nil {
			return err
		}
		leaf := page.WrapBTreeLeafPage(f.Buf[:], idx.keySize, idx.keySchema)
		size := leaf.Size()
		next := leaf.NextPageIndex()
		for i := 0; i < size; i++ {
			k, err := leaf.Key(i)
			if err != nil {
				idx.pool.UnpinPage(leafID, false)
				return err
			}
			if !visit(k, leaf.Value(i)) {
				idx.pool.UnpinPage(leafID, false)
				return nil
			}
		}
		idx.pool.UnpinPage(leafID, false)
		leafID = next
	}
	return nil
}

// ScanRange calls visit for every (key, value) pair with low <= key <
// high in ascending order. A nil bound is unbounded on that side.
func (idx *Index) ScanRange(low, high rowcodec.Row, visit func(key rowcodec.Row, value page.RowID) bool) error {
	var startLeaf diskfile.PageIndex
	var err error
	if low == nil {
		startLeaf, err = idx.leftmostLeaf()
	} else {
		startLeaf, _, err = idx.descend(low)
	}
	if err != nil {
		return err
	}

	leafID := startLeaf
	for leafID != diskfile.InvalidPageIndex {
		f, err := idx.pool.FetchPage(leafID)
		if err != nil {
			return err
		}
		leaf := page.WrapBTreeLeafPage(f.Buf[:], idx.keySize, idx.keySchema)
		size := leaf.Size()
		next := leaf.NextPageIndex()
		for i := 0; i < size; i++ {
			k, err := leaf.Key(i)
			if err != nil {
				idx.pool.UnpinPage(leafID, false)
				return err
			}
			if low != nil && compareRows(k, low) < 0 {
				continue
			}
			if high != nil && compareRows(k, high) >= 0 {
				idx.pool.UnpinPage(leafID, false)
				return nil
			}
			if !visit(k, leaf.Value(i)) {
				idx.pool.UnpinPage(leafID, false)
				return nil
			}
		}
		idx.pool.UnpinPage(leafID, false)
		leafID = next
	}
	return nil
}

// Close flushes this index's own dirty frames and closes its disk
// file, leaving other files sharing the same pool untouched.
func (idx *Index) Close() error {
	if err := idx.pool.Flush(); err != nil {
		return err
	}
	return idx.disk.Close()
}
