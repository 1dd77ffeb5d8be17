package xjson

import (
	"bytes"
	stdjson "encoding/json"
	"io"

	gjson "github.com/goccy/go-json"
)

// Single import site for the JSON codec used across the module.

func Marshal(v any) ([]byte, error) {
	return gjson.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return gjson.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return gjson.Unmarshal(data, v)
}

// Decode reads one JSON value from r into v.
func Decode(r io.Reader, v any) error {
	return gjson.NewDecoder(r).Decode(v)
}

// Encode writes v to w as indented JSON followed by a newline.
func Encode(w io.Writer, v any) error {
	enc := gjson.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Valid reports whether data parses as JSON.
func Valid(data []byte) bool {
	return gjson.Valid(bytes.TrimSpace(data))
}

// RawMessage is kept compatible with encoding/json's RawMessage type.
type RawMessage = stdjson.RawMessage
