package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

const csvSourceName = "csv"

// CSVFile loads records from a comma-separated file with a header row.
type CSVFile struct {
	path string
}

// NewCSV creates a loader for the CSV file at path.
func NewCSV(path string) *CSVFile {
	return &CSVFile{path: path}
}

func (c *CSVFile) Name() string {
	return csvSourceName
}

func (c *CSVFile) Load() ([]Record, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = f.Close() }()

	return c.read(f)
}

func (c *CSVFile) read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(stripBOM(r))
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		// A zero-byte file has nothing to post.
		return nil, nil
	}
	if err != nil {
		return nil, &FormatError{Path: c.path, Row: 1, Err: fmt.Errorf("read header: %w", err)}
	}

	h, err := parseHeader(first)
	if err != nil {
		return nil, &FormatError{Path: c.path, Row: 1, Err: err}
	}
	cr.FieldsPerRecord = h.width

	var records []Record
	for {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				if errors.Is(pe.Err, csv.ErrFieldCount) {
					return nil, &FormatError{
						Path: c.path,
						Row:  pe.StartLine,
						Err:  fmt.Errorf("got %d fields, want %d", len(cells), h.width),
					}
				}
				return nil, &FormatError{Path: c.path, Row: pe.StartLine, Err: pe.Err}
			}
			return nil, fmt.Errorf("read source: %w", err)
		}

		line, _ := cr.FieldPos(0)
		if blank(cells) {
			continue
		}

		rec, err := h.record(cells, line)
		if err != nil {
			return nil, &FormatError{Path: c.path, Row: line, Err: err}
		}
		records = append(records, rec)
	}

	return records, nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	ch, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if ch != '\uFEFF' {
		_ = br.UnreadRune()
	}
	return br
}
