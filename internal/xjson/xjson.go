// Package xjson is the single JSON import site; callers never pick between
// encoding/json and goccy/go-json themselves.
package xjson

import (
	"bytes"
	stdjson "encoding/json"

	gjson "github.com/goccy/go-json"
)

// RawMessage stays compatible with encoding/json's RawMessage.
type RawMessage = stdjson.RawMessage

func Marshal(v interface{}) ([]byte, error) {
	return gjson.Marshal(v)
}

func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gjson.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v interface{}) error {
	return gjson.Unmarshal(data, v)
}

// UnmarshalStrict rejects fields the target does not declare.
func UnmarshalStrict(data []byte, v interface{}) error {
	dec := gjson.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func Valid(data []byte) bool {
	return gjson.Valid(data)
}
