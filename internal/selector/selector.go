// Package selector picks the next record in round-robin order.
package selector

import (
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/cursor"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/source"
)

// Select returns the record at the cursor and the cursor advanced past it,
// wrapping after the last record. With no records it returns false and the
// cursor unchanged.
func Select(records []source.Record, cur cursor.Cursor) (source.Record, cursor.Cursor, bool) {
	i, ok := Position(len(records), cur)
	if !ok {
		return source.Record{}, cur, false
	}
	return records[i], cursor.Cursor{Index: (i + 1) % len(records)}, true
}

// Peek returns the record Select would pick without advancing.
func Peek(records []source.Record, cur cursor.Cursor) (source.Record, bool) {
	rec, _, ok := Select(records, cur)
	return rec, ok
}

// Position maps a stored cursor onto a list of n records. A cursor left
// beyond the end by a shrunken file wraps; a negative one starts over.
func Position(n int, cur cursor.Cursor) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	if cur.Index < 0 {
		return 0, true
	}
	return cur.Index % n, true
}
