package linesource

import (
	"bytes"
	"fmt"
	"slices"
	"testing"
)

// buildPDF renders a minimal uncompressed PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	var objects []string
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDFSourceYieldsPageText(t *testing.T) {
	path := writeFile(t, "book.pdf", buildPDF("Chapter 1", "Chapter 2"))
	source, err := OpenPDF(path)
	if err != nil {
		t.Fatalf("OpenPDF() error = %v", err)
	}
	defer source.Close()

	var lines []string
	for line := range source.Lines() {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := source.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if want := []string{"Chapter 1", "Chapter 2"}; !slices.Equal(lines, want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
}

func TestOpenPDFRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{name: "missing", path: func(t *testing.T) string { return t.TempDir() + "/absent.pdf" }},
		{name: "not a pdf", path: func(t *testing.T) string { return writeFile(t, "plain.pdf", []byte("not a pdf at all")) }},
		{name: "truncated", path: func(t *testing.T) string {
			return writeFile(t, "cut.pdf", buildPDF("Chapter 1")[:120])
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := OpenPDF(tt.path(t))
			if err == nil {
				source.Close()
				t.Fatal("OpenPDF() error = nil, want error")
			}
		})
	}
}
