package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestStatus is the lifecycle state of a simulation request.
//
// pending -> processing -> completed | failed
//
// pending may also jump straight to a terminal state when the agent
// answers before dispatch is acknowledged. Values outside the known set
// are kept verbatim and treated as non-terminal.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// String returns the string representation of RequestStatus.
func (s RequestStatus) String() string {
	return string(s)
}

// IsKnown reports whether s is one of the four protocol states.
func (s RequestStatus) IsKnown() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions can happen.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the service may move a request from s to next.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// MarshalJSON encodes the status as a single-key variant object, e.g. {"pending":null}.
func (s RequestStatus) MarshalJSON() ([]byte, error) {
	return marshalVariant(string(s))
}

// UnmarshalJSON accepts both the variant object form and a bare string.
func (s *RequestStatus) UnmarshalJSON(data []byte) error {
	name, err := unmarshalVariant(data)
	if err != nil {
		return fmt.Errorf("decode request status: %w", err)
	}
	*s = RequestStatus(name)
	return nil
}

// SimulationType selects the computation the agent runs.
type SimulationType string

const (
	SimulationTypeMonteCarlo SimulationType = "monte_carlo"
)

// String returns the string representation of SimulationType.
func (t SimulationType) String() string {
	return string(t)
}

// IsValid checks if the simulation type is supported.
func (t SimulationType) IsValid() bool {
	return t == SimulationTypeMonteCarlo
}

// MarshalJSON encodes the type as a single-key variant object.
func (t SimulationType) MarshalJSON() ([]byte, error) {
	return marshalVariant(string(t))
}

// UnmarshalJSON accepts both the variant object form and a bare string.
func (t *SimulationType) UnmarshalJSON(data []byte) error {
	name, err := unmarshalVariant(data)
	if err != nil {
		return fmt.Errorf("decode simulation type: %w", err)
	}
	*t = SimulationType(name)
	return nil
}

func marshalVariant(name string) ([]byte, error) {
	return json.Marshal(map[string]*struct{}{name: nil})
}

func unmarshalVariant(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return "", err
		}
		return name, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	if len(obj) != 1 {
		return "", fmt.Errorf("variant must have exactly one key, got %d", len(obj))
	}
	for name := range obj {
		return name, nil
	}
	return "", nil
}
