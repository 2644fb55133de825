// Package cursor persists the position of the next post between runs.
//
// Each run reads the cursor once before selecting a post and writes it once
// after publishing. Runs are expected not to overlap; the scheduler
// guarantees that, nothing here does. A manual run racing a scheduled one
// can lose one of the two updates.
package cursor

import (
	"context"
	"time"
)

// Cursor marks the index of the next record to publish.
type Cursor struct {
	Index int
}

// Store loads and saves the cursor. Load returns the zero Cursor when no
// state has been saved yet. Save overwrites.
type Store interface {
	Load(ctx context.Context) (Cursor, error)
	Save(ctx context.Context, c Cursor) error
}

// Info is a cursor plus the time it was last written.
type Info struct {
	Cursor    Cursor
	UpdatedAt time.Time // zero when never saved
}

// Inspector is implemented by stores that can report when the cursor was
// last written.
type Inspector interface {
	Inspect(ctx context.Context) (Info, error)
}
