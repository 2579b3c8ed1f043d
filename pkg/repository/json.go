package repository

import (
	"encoding/json"
	"fmt"
)

// JSONArg marshals v for binding to a JSONB parameter.
func JSONArg(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json arg: %w", err)
	}
	return data, nil
}

// ScanJSON unmarshals a scanned JSONB column into dest.
// Empty and NULL columns leave dest unchanged.
func ScanJSON(raw []byte, dest any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}
