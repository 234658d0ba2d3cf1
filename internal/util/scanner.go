package util

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// LineReader reads newline-delimited records of unbounded length.
// bufio.Scanner caps token size, and single dump lines can run to megabytes,
// so this wraps bufio.Reader instead.
type LineReader struct {
	reader *bufio.Reader
	line   int64
}

// NewLineReader creates a new LineReader with a read buffer of bufSize bytes.
func NewLineReader(r io.Reader, bufSize int) *LineReader {
	return &LineReader{reader: bufio.NewReaderSize(r, bufSize)}
}

// Next returns the next non-blank line with surrounding whitespace trimmed.
// It returns io.EOF once the input is exhausted.
func (lr *LineReader) Next() ([]byte, error) {
	for {
		raw, err := lr.reader.ReadBytes('\n')
		if len(raw) > 0 {
			lr.line++
			trimmed := bytes.TrimSpace(raw)
			if len(trimmed) > 0 {
				return trimmed, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// Line returns the 1-based number of the last line read.
func (lr *LineReader) Line() int64 {
	return lr.line
}
