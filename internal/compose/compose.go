// Package compose turns a record into post text plus a link facet that fits
// the network's length limit.
package compose

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/source"
)

const (
	DefaultMaxLength = 300 // Bluesky counts graphemes
	DefaultSeparator = "\n\n"
	DefaultMarker    = "…"
)

// Options configures a Formatter. Zero fields take the defaults.
type Options struct {
	MaxLength int
	Separator string
	Marker    string
}

// Facet marks Text[ByteStart:ByteEnd] as a link to URI.
type Facet struct {
	ByteStart int
	ByteEnd   int
	URI       string
}

// Post is the text to publish.
type Post struct {
	Text   string
	Facets []Facet

	Truncated       bool // title was shortened or left out
	DroppedHashtags bool // hashtags did not fit next to the URL
}

// FormatError reports a record that can never fit: its URL alone is longer
// than the limit. The record should be skipped rather than retried.
type FormatError struct {
	Row    int
	URL    string
	Length int
	Max    int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("row %d: url is %d characters, post limit is %d", e.Row, e.Length, e.Max)
}

// Formatter builds posts. It holds no state between calls.
type Formatter struct {
	maxLength int
	separator string
	marker    string
}

// New creates a Formatter.
func New(opts Options) *Formatter {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	return &Formatter{
		maxLength: opts.MaxLength,
		separator: opts.Separator,
		marker:    opts.Marker,
	}
}

// MaxLength returns the configured limit.
func (f *Formatter) MaxLength() int {
	return f.maxLength
}

// Format lays out "title, separator, url, separator, hashtags". Only the
// title is shortened to fit. Hashtags are dropped only when the URL and
// hashtags together leave no room at all.
func (f *Formatter) Format(rec source.Record) (Post, error) {
	link := strings.TrimSpace(rec.URL)
	if n := Length(link); n > f.maxLength {
		return Post{}, &FormatError{Row: rec.Row, URL: link, Length: n, Max: f.maxLength}
	}

	title := strings.TrimSpace(norm.NFC.String(rec.Title))
	tags := norm.NFC.String(strings.Join(rec.Hashtags, " "))

	if tags != "" {
		if p, ok := f.fit(title, link, link+f.separator+tags); ok {
			return p, nil
		}
	}
	p, ok := f.fit(title, link, link)
	if !ok {
		// The URL alone fits, so fit never fails without hashtags.
		p = f.build("", link, link)
		p.Truncated = title != ""
	}
	p.DroppedHashtags = tags != ""
	return p, nil
}

// fit places as much of title as possible in front of tail.
func (f *Formatter) fit(title, link, tail string) (Post, bool) {
	if Length(tail) > f.maxLength {
		return Post{}, false
	}
	if title == "" {
		return f.build("", link, tail), true
	}

	if p := f.build(title, link, tail); Length(p.Text) <= f.maxLength {
		return p, true
	}

	budget := f.maxLength - Length(f.separator) - Length(tail) - Length(f.marker)
	for ; budget > 0; budget-- {
		head := truncate(title, budget)
		if head == "" {
			break
		}
		p := f.build(head+f.marker, link, tail)
		if Length(p.Text) <= f.maxLength {
			p.Truncated = true
			return p, true
		}
	}

	p := f.build("", link, tail)
	p.Truncated = true
	return p, true
}

// build joins head and tail; tail always starts with link.
func (f *Formatter) build(head, link, tail string) Post {
	text := tail
	start := 0
	if head != "" {
		text = head + f.separator + tail
		start = len(head) + len(f.separator)
	}
	return Post{
		Text: text,
		Facets: []Facet{{
			ByteStart: start,
			ByteEnd:   start + len(link),
			URI:       link,
		}},
	}
}

// Length counts user-perceived characters (grapheme clusters).
func Length(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// truncate keeps the first n grapheme clusters of s and trims trailing
// whitespace.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	g := uniseg.NewGraphemes(s)
	end := 0
	for i := 0; i < n && g.Next(); i++ {
		_, end = g.Positions()
	}
	return strings.TrimRightFunc(s[:end], unicode.IsSpace)
}
