// Package source loads the prepared post list from a CSV file or an XLSX
// workbook.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Required header columns, matched case-insensitively.
const (
	ColumnTitle    = "title"
	ColumnURL      = "url"
	ColumnHashtags = "hashtags"
)

var requiredColumns = []string{ColumnTitle, ColumnURL, ColumnHashtags}

// Record is a single prepared post.
type Record struct {
	Title    string   // post headline
	URL      string   // absolute http(s) link
	Hashtags []string // each tag starts with '#'
	Row      int      // 1-based row in the source file, header included
}

// Loader reads the full ordered list of records.
type Loader interface {
	// Name returns the loader kind ("csv" or "xlsx").
	Name() string

	// Load returns every data row in file order.
	Load() ([]Record, error)
}

// FormatError reports a malformed source file. It is fatal for the run:
// the file has to be fixed.
type FormatError struct {
	Path string
	Row  int // 0 when the problem is not tied to one row
	Err  error
}

func (e *FormatError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("source %s: row %d: %v", e.Path, e.Row, e.Err)
	}
	return fmt.Sprintf("source %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// New picks a loader for path by its extension. Sheet is only used for
// workbooks; empty means the first sheet.
func New(path, sheet string) (Loader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("source path is required")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return NewXLSX(path, sheet), nil
	case ".csv", ".txt", "":
		return NewCSV(path), nil
	default:
		return nil, fmt.Errorf("source %s: unsupported file type %q (want .csv or .xlsx)", path, filepath.Ext(path))
	}
}

// header maps the required columns to their positions.
type header struct {
	title, url, hashtags int
	width                int
}

func parseHeader(cells []string) (header, error) {
	pos := make(map[string]int, len(cells))
	for i, c := range cells {
		name := strings.ToLower(strings.TrimSpace(c))
		if name == "" {
			continue
		}
		if _, dup := pos[name]; dup {
			return header{}, fmt.Errorf("duplicate column %q", name)
		}
		pos[name] = i
	}

	for _, col := range requiredColumns {
		if _, ok := pos[col]; !ok {
			return header{}, fmt.Errorf("missing header column %q (want %s)", col, strings.Join(requiredColumns, ","))
		}
	}
	if len(pos) != len(requiredColumns) {
		return header{}, fmt.Errorf("unexpected columns in header %q (want %s)", strings.Join(cells, ","), strings.Join(requiredColumns, ","))
	}

	return header{
		title:    pos[ColumnTitle],
		url:      pos[ColumnURL],
		hashtags: pos[ColumnHashtags],
		width:    len(cells),
	}, nil
}

func (h header) record(cells []string, row int) (Record, error) {
	// Invalid bytes would be replaced on the wire and shift the link facet.
	for _, c := range []struct {
		name string
		i    int
	}{{ColumnTitle, h.title}, {ColumnURL, h.url}, {ColumnHashtags, h.hashtags}} {
		if !utf8.ValidString(cells[c.i]) {
			return Record{}, fmt.Errorf("%s is not valid UTF-8 (save the file as UTF-8)", c.name)
		}
	}

	title := strings.TrimSpace(cells[h.title])
	if title == "" {
		return Record{}, errors.New("title is empty")
	}

	link := strings.TrimSpace(cells[h.url])
	if err := validateURL(link); err != nil {
		return Record{}, err
	}

	return Record{
		Title:    title,
		URL:      link,
		Hashtags: ParseHashtags(cells[h.hashtags]),
		Row:      row,
	}, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("url %q is not absolute", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q: unsupported scheme %q", raw, u.Scheme)
	}
	return nil
}

// ParseHashtags splits a hashtags cell on whitespace and commas and makes
// sure every tag starts with '#'.
func ParseHashtags(cell string) []string {
	fields := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimLeft(f, "#")
		if f == "" {
			continue
		}
		tags = append(tags, "#"+f)
	}
	return tags
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
