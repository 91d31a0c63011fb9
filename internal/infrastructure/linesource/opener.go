package linesource

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/chapterflow/internal/core/ports"
)

// Opener picks a line source by file extension. Anything that is not a PDF
// or a spreadsheet is treated as plain text of unknown encoding.
type Opener struct {
	detector   ports.EncodingDetector
	sampleSize int
}

func NewOpener(detector ports.EncodingDetector, sampleSize int) *Opener {
	if sampleSize <= 0 {
		sampleSize = 4096
	}
	return &Opener{detector: detector, sampleSize: sampleSize}
}

func (o *Opener) Open(_ context.Context, path string) (ports.LineSource, error) {
	var (
		src ports.LineSource
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		src, err = OpenPDF(path)
	case ".xlsx":
		src, err = OpenXLSX(path)
	default:
		src, err = OpenText(path, o.detector, o.sampleSize)
	}
	if err != nil {
		return nil, fmt.Errorf("open line source: %w", err)
	}
	return src, nil
}

// SupportedExtension reports whether uploads with this extension can be ingested.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".text", ".pdf", ".xlsx":
		return true
	default:
		return false
	}
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
