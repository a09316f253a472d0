package diskfile

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestAllocateReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if f.PageCount() != 0 {
		t.Fatalf("PageCount = %d, want 0", f.PageCount())
	}

	idx, err := f.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if idx != 0 {
		t.Fatalf("first AllocatePage = %d, want 0", idx)
	}
	if f.PageCount() != 1 {
		t.Fatalf("PageCount = %d, want 1", f.PageCount())
	}

	want := bytes.Repeat([]byte{0xAB}, PageSize)
	if err := f.WritePage(idx, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got := make([]byte, PageSize)
	if err := f.ReadPage(idx, got); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadPage returned different bytes than written")
	}
}

func TestReadPageOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, PageSize)
	if err := f.ReadPage(0, buf); err == nil {
		t.Fatalf("ReadPage on empty file: want error, got nil")
	}
}

func TestReopenPreservesPageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.AllocatePage(); err != nil {
			t.Fatalf("AllocatePage: %v", err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()
	if f2.PageCount() != 3 {
		t.Fatalf("PageCount after reopen = %d, want 3", f2.PageCount())
	}
}
