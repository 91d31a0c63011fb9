package linesource

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/core/ports"
)

const readBufferSize = 64 << 10

// TextSource streams a text file line by line, decoding with the encoding the
// detector picked from the leading sample.
type TextSource struct {
	file     *os.File
	guess    domain.EncodingGuess
	reader   *bufio.Reader
	line     []byte
	err      error
	consumed bool
}

func OpenText(path string, detector ports.EncodingDetector, sampleSize int) (*TextSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}

	sample := make([]byte, sampleSize)
	n, err := io.ReadFull(f, sample)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		_ = f.Close()
		return nil, fmt.Errorf("read encoding sample: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rewind source file: %w", err)
	}

	guess := detector.Detect(sample[:n])
	slog.Debug("encoding_detected",
		"path", path,
		"encoding", string(guess.Encoding),
		"label", guess.Label,
		"confidence", guess.Confidence,
	)

	var reader io.Reader = f
	if guess.Encoding == domain.EncodingGBK {
		reader = transform.NewReader(f, simplifiedchinese.GBK.NewDecoder())
	}
	return &TextSource{
		file:   f,
		guess:  guess,
		reader: bufio.NewReaderSize(reader, readBufferSize),
	}, nil
}

func (s *TextSource) Encoding() domain.EncodingGuess {
	return s.guess
}

func (s *TextSource) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.consumed {
			return
		}
		s.consumed = true

		lineNo := 0
		for {
			line, ok, err := s.readLine()
			if err != nil {
				s.err = fmt.Errorf("read source file: %w", err)
				return
			}
			if !ok {
				return
			}
			lineNo++
			if lineNo == 1 {
				line = strings.TrimPrefix(line, "\ufeff")
			}
			if err := s.validate(line); err != nil {
				s.err = domain.WrapError(domain.ErrDecode, fmt.Sprintf("decode line %d", lineNo), err)
				return
			}
			if !yield(line) {
				return
			}
		}
	}
}

// readLine returns the next line without its terminator. "\n", "\r\n" and a
// lone "\r" all end a line, and line length is unbounded. ok is false once
// input is exhausted.
func (s *TextSource) readLine() (line string, ok bool, err error) {
	s.line = s.line[:0]
	for {
		if _, err := s.reader.Peek(1); err != nil {
			if errors.Is(err, io.EOF) {
				if len(s.line) > 0 {
					return string(s.line), true, nil
				}
				return "", false, nil
			}
			return "", false, err
		}
		buf, _ := s.reader.Peek(s.reader.Buffered())
		i := bytes.IndexAny(buf, "\r\n")
		if i < 0 {
			s.line = append(s.line, buf...)
			_, _ = s.reader.Discard(len(buf))
			continue
		}
		s.line = append(s.line, buf[:i]...)
		cr := buf[i] == '\r'
		_, _ = s.reader.Discard(i + 1)
		if cr {
			if next, err := s.reader.Peek(1); err == nil && next[0] == '\n' {
				_, _ = s.reader.Discard(1)
			}
		}
		return string(s.line), true, nil
	}
}

// validate rejects malformed input instead of letting replacement characters
// leak into persisted chapters.
func (s *TextSource) validate(line string) error {
	if s.guess.Encoding == domain.EncodingGBK {
		if strings.ContainsRune(line, utf8.RuneError) {
			return errors.New("malformed GBK byte sequence")
		}
		return nil
	}
	if !utf8.ValidString(line) {
		return errors.New("malformed UTF-8 byte sequence")
	}
	return nil
}

func (s *TextSource) Err() error {
	return s.err
}

func (s *TextSource) Close() error {
	return s.file.Close()
}
