package cache

import (
	"strings"

	json "github.com/goccy/go-json"
)

// Codec converts a dataset to and from its on-disk form.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(raw []byte) (T, error)
}

// JSONCodec stores a dataset as JSON.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[T]) Decode(raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// ListCodec stores a list of strings as a single comma separated line.
type ListCodec struct{}

func (ListCodec) Encode(v []string) ([]byte, error) {
	return []byte(strings.Join(v, ",")), nil
}

func (ListCodec) Decode(raw []byte) ([]string, error) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return []string{}, nil
	}
	parts := strings.Split(line, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
