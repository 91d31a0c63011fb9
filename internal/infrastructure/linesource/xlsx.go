package linesource

import (
	"fmt"
	"iter"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXSource yields each spreadsheet row as one tab-joined line, sheet by sheet.
type XLSXSource struct {
	file *excelize.File
	err  error
}

func OpenXLSX(path string) (*XLSXSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	return &XLSXSource{file: f}, nil
}

func (s *XLSXSource) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, sheet := range s.file.GetSheetList() {
			if !s.yieldSheet(sheet, yield) {
				return
			}
		}
	}
}

func (s *XLSXSource) yieldSheet(sheet string, yield func(string) bool) bool {
	rows, err := s.file.Rows(sheet)
	if err != nil {
		s.err = fmt.Errorf("read sheet %q: %w", sheet, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			s.err = fmt.Errorf("read row in sheet %q: %w", sheet, err)
			return false
		}
		if !yield(strings.TrimRight(strings.Join(cols, "\t"), "\t")) {
			return false
		}
	}
	if err := rows.Error(); err != nil {
		s.err = fmt.Errorf("iterate sheet %q: %w", sheet, err)
		return false
	}
	return true
}

func (s *XLSXSource) Err() error {
	return s.err
}

func (s *XLSXSource) Close() error {
	return s.file.Close()
}
