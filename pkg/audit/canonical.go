package audit

import (
	"bytes"
	"encoding/json"
	"fmt"

	"batch-delete/pkg/model"
)

// Canonicalize encodes entries as JSON with object keys sorted and no
// insignificant whitespace. Equal entry sequences always produce identical
// bytes.
func Canonicalize(entries []model.AuditEntry) ([]byte, error) {
	return CanonicalJSON(entries)
}

// CanonicalJSON re-encodes the JSON form of v through generic maps so that
// keys come out sorted. Numbers are carried through as their literal text.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
