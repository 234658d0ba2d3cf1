package entity

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"

	"github.com/brensch/dumpstats/internal/util"
)

// Stream decodes a JSON dump one entity per line:
//
//	[
//	{"type":"item","id":"Q1",...},
//	{"type":"property","id":"P1",...}
//	]
//
// It is forward-only and never holds more than one line in memory.
type Stream struct {
	lines   *util.LineReader
	skipped map[string]int64
	records int64
	done    bool
}

// NewStream reads decompressed dump bytes from r.
func NewStream(r io.Reader) *Stream {
	return &Stream{
		lines:   util.NewLineReader(r, 1<<20),
		skipped: make(map[string]int64),
	}
}

type header struct {
	Type string `json:"type"`
}

// Next returns the next item or property. Entities of other types, such as
// lexemes, are skipped and counted. It returns io.EOF at the end of the dump.
func (s *Stream) Next() (Record, error) {
	if s.done {
		return nil, io.EOF
	}
	for {
		line, err := s.lines.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
			}
			return nil, err
		}

		line = bytes.TrimSuffix(line, []byte(","))
		switch {
		case len(line) == 0:
			continue
		case bytes.Equal(line, []byte("[")):
			continue
		case bytes.Equal(line, []byte("]")):
			s.done = true
			return nil, io.EOF
		}

		var h header
		if err := json.Unmarshal(line, &h); err != nil {
			return nil, fmt.Errorf("decode entity on line %d: %w", s.lines.Line(), err)
		}

		var rec Record
		switch h.Type {
		case "item":
			rec = &Item{}
		case "property":
			rec = &Property{}
		default:
			s.skipped[h.Type]++
			continue
		}
		if err := json.Unmarshal(line, rec); err != nil {
			return nil, fmt.Errorf("decode %s on line %d: %w", h.Type, s.lines.Line(), err)
		}
		s.records++
		return rec, nil
	}
}

// Records returns the number of items and properties returned so far.
func (s *Stream) Records() int64 { return s.records }

// Skipped returns how many entities of each unhandled type were skipped.
func (s *Stream) Skipped() map[string]int64 {
	out := make(map[string]int64, len(s.skipped))
	for k, v := range s.skipped {
		out[k] = v
	}
	return out
}
