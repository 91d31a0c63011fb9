package linesource

import (
	"fmt"
	"iter"
	"os"

	"github.com/ledongthuc/pdf"
)

// PDFSource yields the plain text of each page, one line at a time.
type PDFSource struct {
	file   *os.File
	reader *pdf.Reader
	err    error
}

func OpenPDF(path string) (*PDFSource, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &PDFSource{file: f, reader: reader}, nil
}

func (s *PDFSource) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 1; i <= s.reader.NumPage(); i++ {
			page := s.reader.Page(i)
			if page.V.IsNull() {
				continue
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				s.err = fmt.Errorf("extract pdf page %d: %w", i, err)
				return
			}
			for _, line := range splitLines(text) {
				if !yield(line) {
					return
				}
			}
		}
	}
}

func (s *PDFSource) Err() error {
	return s.err
}

func (s *PDFSource) Close() error {
	return s.file.Close()
}
