package marshal

import (
	"encoding/json"
)

// ParseJSON decodes a string-encoded structured payload into v. what describes
// the payload for the error message, e.g. "EntityData.attributes".
func ParseJSON(data, what string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return &StructuredDataError{What: what, Err: err}
	}
	return nil
}

// ParseObject decodes a JSON object payload. An empty string is malformed.
func ParseObject(data, what string) (map[string]any, error) {
	var out map[string]any
	if err := ParseJSON(data, what, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &StructuredDataError{What: what, Err: errNotObject}
	}
	return out, nil
}
