// Package store ties table files, their persisted schemas, and
// secondary indexes together into one on-disk database directory.
//
// Grounded on original_source/src/catalog.h's Catalog (schema
// persistence as a "<table>_schema" bookkeeping table) layered over a
// directory-of-files database (one backing file per table/index,
// looked up by name) without any in-memory/GOB snapshot machinery,
// which has no place in a page-file-backed engine.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/arcflow-db/arcdb/internal/arcerr"
	"github.com/arcflow-db/arcdb/internal/btree"
	"github.com/arcflow-db/arcdb/internal/bufpool"
	"github.com/arcflow-db/arcdb/internal/rowcodec"
	"github.com/arcflow-db/arcdb/internal/table"
)

// namedIndex is one CREATE INDEX result: the B+tree file plus which
// table.column it was built over, so the interpreter can find a
// usable index for a WHERE predicate without the caller remembering
// index names.
type namedIndex struct {
	idx    *btree.Index
	table  string
	column string
}

// Store owns every table and index file under one directory, all of
// them sharing a single buffer pool rather than caching pages
// per-file.
type Store struct {
	dir  string
	pool *bufpool.Pool

	mu      sync.Mutex
	tables  map[string]*table.Table
	schemas map[string]*rowcodec.Schema
	indexes map[string]*namedIndex // key: index name, per CREATE INDEX name ON ...
}

// Open opens (creating the directory if necessary) the database rooted
// at dir, backed by a shared pool of frameCount frames. Tables are
// opened lazily on first access. Indexes are kept only in memory: an
// index file left by an earlier Store is not reopened, so Index finds
// only indexes created through this Store.
func Open(dir string, frameCount int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open store %s: %w: %v", dir, arcerr.ErrStorage, err)
	}
	return &Store{
		dir:     dir,
		pool:    bufpool.New(frameCount),
		tables:  make(map[string]*table.Table),
		schemas: make(map[string]*rowcodec.Schema),
		indexes: make(map[string]*namedIndex),
	}, nil
}

func (s *Store) tablePath(name string) string      { return filepath.Join(s.dir, name+".tbl") }
func (s *Store) schemaTableName(name string) string { return name + "_schema" }
func (s *Store) indexPath(name string) string       { return filepath.Join(s.dir, name+".idx") }

// TableExists reports whether name has a backing file on disk, matching
// Catalog::connectToTable's checkTableExists/createTable guard.
func (s *Store) TableExists(name string) bool {
	_, err := os.Stat(s.tablePath(name))
	return err == nil
}

// CreateTable creates a new table file for name with schema and
// persists schema into name's catalog sub-table.
func (s *Store) CreateTable(name string, schema *rowcodec.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.TableExists(name) {
		return fmt.Errorf("create table %s: %w: table already exists", name, arcerr.ErrBadQuery)
	}

	tbl, err := table.Create(s.tablePath(name), schema, s.pool)
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	catalogName := s.schemaTableName(name)
	catalogTbl, err := table.Create(s.tablePath(catalogName), catalogSchema(), s.pool)
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	if err := saveTableSchema(catalogTbl, schema); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	if err := catalogTbl.Close(); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	s.tables[name] = tbl
	s.schemas[name] = schema
	return nil
}

// Table returns the open table and its schema, opening the table file
// and reloading its schema from the catalog sub-table on first access.
func (s *Store) Table(name string) (*table.Table, *rowcodec.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableLocked(name)
}

func (s *Store) tableLocked(name string) (*table.Table, *rowcodec.Schema, error) {
	if tbl, ok := s.tables[name]; ok {
		return tbl, s.schemas[name], nil
	}
	if !s.TableExists(name) {
		return nil, nil, fmt.Errorf("table %s: %w", name, arcerr.ErrNotFound)
	}

	catalogTbl, err := table.Open(s.tablePath(s.schemaTableName(name)), catalogSchema(), s.pool)
	if err != nil {
		return nil, nil, fmt.Errorf("open table %s: %w", name, err)
	}
	schema, err := loadTableSchema(catalogTbl)
	if err != nil {
		return nil, nil, fmt.Errorf("open table %s: %w", name, err)
	}
	if err := catalogTbl.Close(); err != nil {
		return nil, nil, fmt.Errorf("open table %s: %w", name, err)
	}

	tbl, err := table.Open(s.tablePath(name), schema, s.pool)
	if err != nil {
		return nil, nil, fmt.Errorf("open table %s: %w", name, err)
	}
	s.tables[name] = tbl
	s.schemas[name] = schema
	return tbl, schema, nil
}

// DropTable atomically removes a table and its catalog sub-table and
// any indexes built on it. Each file is renamed to a uuid-suffixed
// temporary name before removal so a crash mid-drop leaves behind an
// orphaned file rather than a half-deleted table that could be
// reopened into corrupted state.
func (s *Store) DropTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.TableExists(name) {
		return fmt.Errorf("drop table %s: %w", name, arcerr.ErrNotFound)
	}

	for indexName, ni := range s.indexes {
		if ni.table == name {
			_ = ni.idx.Close()
			delete(s.indexes, indexName)
			if err := s.removeAtomically(s.indexPath(indexName)); err != nil {
				return err
			}
		}
	}

	if tbl, ok := s.tables[name]; ok {
		_ = tbl.Close()
		delete(s.tables, name)
	}
	delete(s.schemas, name)

	if err := s.removeAtomically(s.tablePath(s.schemaTableName(name))); err != nil {
		return err
	}
	if err := s.removeAtomically(s.tablePath(name)); err != nil {
		return err
	}
	return nil
}

func (s *Store) removeAtomically(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	tmp := path + "." + uuid.New().String() + ".dropped"
	if err := os.Rename(path, tmp); err != nil {
		return fmt.Errorf("drop %s: %w: %v", path, arcerr.ErrStorage, err)
	}
	if err := os.Remove(tmp); err != nil {
		return fmt.Errorf("drop %s: %w: %v", path, arcerr.ErrStorage, err)
	}
	return nil
}

// CreateIndex builds a new, empty B+tree index named indexName over
// tableName.column, giving the B+tree a SQL surface the base grammar
// never exposed on its own.
func (s *Store) CreateIndex(indexName, tableName, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[indexName]; ok {
		return fmt.Errorf("create index %s: %w: index already exists", indexName, arcerr.ErrBadQuery)
	}

	tbl, schema, err := s.tableLocked(tableName)
	if err != nil {
		return err
	}
	colIdx := schema.ColumnIndex(column)
	if colIdx < 0 {
		return fmt.Errorf("create index %s on %s.%s: %w: unknown column", indexName, tableName, column, arcerr.ErrBadQuery)
	}

	keySchema, err := rowcodec.NewSchema([]rowcodec.ColumnSchema{schema.Columns[colIdx]})
	if err != nil {
		return fmt.Errorf("create index %s: %w", indexName, err)
	}
	idx, err := btree.Create(s.indexPath(indexName), keySchema, s.pool)
	if err != nil {
		return fmt.Errorf("create index %s: %w", indexName, err)
	}

	var scanErr error
	err = tbl.Scan(func(id table.RowID, row rowcodec.Row) bool {
		if insertErr := idx.Insert(rowcodec.Row{row[colIdx]}, id); insertErr != nil {
			scanErr = insertErr
			return false
		}
		return true
	})
	if err == nil {
		err = scanErr
	}
	if err != nil {
		_ = idx.Close()
		_ = s.removeAtomically(s.indexPath(indexName))
		return fmt.Errorf("create index %s: populate from existing rows: %w", indexName, err)
	}

	s.indexes[indexName] = &namedIndex{idx: idx, table: tableName, column: column}
	return nil
}

// DropIndex removes a secondary index by the name it was created with.
func (s *Store) DropIndex(indexName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ni, ok := s.indexes[indexName]
	if !ok {
		return fmt.Errorf("drop index %s: %w", indexName, arcerr.ErrNotFound)
	}
	_ = ni.idx.Close()
	delete(s.indexes, indexName)
	return s.removeAtomically(s.indexPath(indexName))
}

// Index returns the open index on tableName.column, if one exists,
// regardless of the name it was created under. Used by the
// interpreter's automatic index selection for WHERE predicates.
func (s *Store) Index(tableName, column string) (*btree.Index, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ni := range s.indexes {
		if ni.table == tableName && ni.column == column {
			return ni.idx, true
		}
	}
	return nil, false
}

// Close flushes and closes every open table and index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	firstErr := s.pool.FlushAll()
	for _, ni := range s.indexes {
		if err := ni.idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, tbl := range s.tables {
		if err := tbl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
