package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalRoundRootRecord serializes a RoundRootRecord to JSON bytes.
func MarshalRoundRootRecord(record *RoundRootRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil RoundRootRecord")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RoundRootRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalRoundRootRecord deserializes a RoundRootRecord from JSON bytes.
func UnmarshalRoundRootRecord(data []byte) (*RoundRootRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record RoundRootRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to RoundRootRecord: %w", err)
	}

	return &record, nil
}

// MarshalRefreshState serializes RefreshState to JSON bytes.
func MarshalRefreshState(rs *RefreshState) ([]byte, error) {
	if rs == nil {
		return nil, fmt.Errorf("cannot marshal nil RefreshState")
	}

	return json.Marshal(rs)
}

// UnmarshalRefreshState deserializes RefreshState from JSON bytes.
func UnmarshalRefreshState(data []byte) (*RefreshState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var rs RefreshState
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to RefreshState: %w", err)
	}

	return &rs, nil
}
