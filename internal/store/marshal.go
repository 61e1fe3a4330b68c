package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/loopmerge/internal/ir"
)

// marshalDelta converts a delta to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalDelta(d ir.Delta) (string, error) {
	data, err := ir.MarshalCanonical(d.Canonical())
	if err != nil {
		return "", fmt.Errorf("marshal delta: %w", err)
	}
	return string(data), nil
}

// marshalDocument converts a run's config or summary to JSON TEXT.
// Uses json.Encoder with HTML escaping disabled so labels such as
// "Ability>Unit" are stored verbatim. Struct field order is fixed, so the
// output is stable for golden traces.
func marshalDocument(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return "{}", nil
		}
		if !json.Valid(raw) {
			return "", fmt.Errorf("marshal document: invalid JSON")
		}
		return string(raw), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalDelta parses canonical JSON TEXT back into a delta.
func unmarshalDelta(data string) (ir.Delta, error) {
	var d ir.Delta
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return ir.Delta{}, fmt.Errorf("unmarshal delta: %w", err)
	}
	return d, nil
}
