package source

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSourceName = "xlsx"

// XLSXFile loads records from one sheet of a workbook.
type XLSXFile struct {
	path  string
	sheet string
}

// NewXLSX creates a workbook loader. An empty sheet selects the first one.
func NewXLSX(path, sheet string) *XLSXFile {
	return &XLSXFile{path: path, sheet: sheet}
}

func (x *XLSXFile) Name() string {
	return xlsxSourceName
}

func (x *XLSXFile) Load() ([]Record, error) {
	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := x.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &FormatError{Path: x.path, Err: errors.New("workbook has no sheets")}
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, &FormatError{Path: x.path, Err: fmt.Errorf("sheet %q not found", sheet)}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	return x.records(rows)
}

func (x *XLSXFile) records(rows [][]string) ([]Record, error) {
	// Leading empty rows come back as empty slices; the header is the first
	// non-blank row.
	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, nil
	}

	h, err := parseHeader(rows[start])
	if err != nil {
		return nil, &FormatError{Path: x.path, Row: start + 1, Err: err}
	}

	var records []Record
	for i := start + 1; i < len(rows); i++ {
		cells := rows[i]
		row := i + 1
		if blank(cells) {
			continue
		}
		if len(cells) > h.width {
			for _, extra := range cells[h.width:] {
				if extra != "" {
					return nil, &FormatError{
						Path: x.path,
						Row:  row,
						Err:  fmt.Errorf("got %d fields, want %d", len(cells), h.width),
					}
				}
			}
			cells = cells[:h.width]
		}
		// GetRows drops trailing empty cells.
		for len(cells) < h.width {
			cells = append(cells, "")
		}

		rec, err := h.record(cells, row)
		if err != nil {
			return nil, &FormatError{Path: x.path, Row: row, Err: err}
		}
		records = append(records, rec)
	}

	return records, nil
}
