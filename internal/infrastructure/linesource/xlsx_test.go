package linesource

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestXLSXSourceYieldsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"Chapter 1", "Intro"},
		{"line", "two"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	if err := book.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	_ = book.Close()

	src, err := NewOpener(&fixedDetector{}, 0).Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	lines := slices.Collect(src.Lines())
	if err := src.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Chapter 1\tIntro", "line\ttwo"}
	if !slices.Equal(lines, want) {
		t.Fatalf("expected %q, got %q", want, lines)
	}
}
