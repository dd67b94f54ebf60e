package util

import (
	"bytes"
	"encoding/json"
)

// MarshalNoEscape behaves like json.Marshal but keeps <, >, & intact.
func MarshalNoEscape(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil // drop trailing newline
}

// ContentString encodes v as the JSON string Feishu expects in the
// "content" field of a message body.
func ContentString(v any) (string, error) {
	b, err := MarshalNoEscape(v, false)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
