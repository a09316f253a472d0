// Package arcerr defines the sentinel error taxonomy shared by every
// package in the storage and query engine. Callers wrap these with
// fmt.Errorf("...: %w", err) and compare with errors.Is.
package arcerr

import "errors"

var (
	// ErrStorage covers I/O failures against the underlying disk file.
	ErrStorage = errors.New("storage error")

	// ErrOutOfFrames is returned when the buffer pool cannot find an
	// evictable frame because every frame is pinned.
	ErrOutOfFrames = errors.New("out of buffer frames")

	// ErrSchemaMismatch is returned when a row does not match the
	// schema it is being validated or marshaled against.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrDuplicateKey is returned by index insertion when the key
	// already exists. Callers treat this as an ordinary return value,
	// not an exceptional condition.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrIndexInconsistency is returned when an index's on-disk
	// metadata disagrees with the index being (re)opened against it.
	ErrIndexInconsistency = errors.New("index inconsistency")

	// ErrParse is returned by the SQL front end on malformed input.
	ErrParse = errors.New("parse error")

	// ErrTypeError is returned by the expression evaluator when an
	// operand's runtime type does not match what the operator expects.
	ErrTypeError = errors.New("type error")

	// ErrNotFound is returned when a named table or index does not
	// exist. An unknown column is reported as ErrBadQuery.
	ErrNotFound = errors.New("not found")

	// ErrBadQuery covers statements that parse but are not valid
	// against the current catalog (unknown column or column type, a
	// table or index name already in use, a join with no shared
	// column).
	ErrBadQuery = errors.New("bad query")
)
