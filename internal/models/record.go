package models

import (
	"encoding/json"
	"fmt"
)

// RecordVersion is the schema version written into every persisted record.
const RecordVersion = 1

// Record is a persisted value that can check its own invariants after decoding.
type Record interface {
	Validate() error
}

// EncodeRecord serializes a record for the key-value store.
func EncodeRecord(r Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(data), nil
}

// DecodeRecord parses raw into r and validates it.
// Any failure wraps ErrInvalidRecord so callers can fall back to a safe default.
func DecodeRecord(raw string, r Record) error {
	if err := json.Unmarshal([]byte(raw), r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

func checkVersion(v int) error {
	if v != RecordVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	return nil
}
