package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ArielSltty/Orion/internal/domain"
)

// ErrMissingRequestID rejects callbacks that do not name a request.
var ErrMissingRequestID = errors.New("callback without request_id")

// Callback is the body the agent posts to CallbackPath. Result is the
// summary as a JSON object, or null on failure.
type Callback struct {
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result"`
	Error     *string         `json:"error"`
	Signature *string         `json:"signature"`
}

// Response converts the callback into the service's response form.
// The result object is kept in its serialized form.
func (c Callback) Response() (domain.SimulationResponse, error) {
	if c.RequestID == "" {
		return domain.SimulationResponse{}, ErrMissingRequestID
	}

	resp := domain.SimulationResponse{
		RequestID: c.RequestID,
		Success:   c.Success,
		Error:     c.Error,
		Signature: c.Signature,
	}

	raw := bytes.TrimSpace(c.Result)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return resp, nil
	}

	// A string result is already serialized.
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.SimulationResponse{}, fmt.Errorf("decode result: %w", err)
		}
		resp.Result = &s
		return resp, nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return domain.SimulationResponse{}, fmt.Errorf("decode result: %w", err)
	}
	s := compact.String()
	resp.Result = &s
	return resp, nil
}
