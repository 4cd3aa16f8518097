package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no row exists under the requested key.
	ErrNotFound = errors.New("row not found")
	// ErrExists is returned when an append collides with an existing key.
	ErrExists = errors.New("row already exists")
	// ErrUnavailable marks transient backend failures. It is the only
	// error worth retrying; everything else is a fact about the data.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the tabular record contract: rows addressed by (table, key),
// read and written whole, cell 0 holding the key. Appends add rows at
// the end; writes overwrite an existing row completely. Nothing here
// spans rows, and callers must not assume atomicity beyond one row.
type Store interface {
	ReadRow(ctx context.Context, table, id string) ([]string, error)
	WriteRow(ctx context.Context, table, id string, row []string) error
	AppendRow(ctx context.Context, table string, row []string) error
	Rows(ctx context.Context, table string) ([][]string, error)
}
