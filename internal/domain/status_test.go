package domain

import (
	"encoding/json"
	"testing"
)

func TestRequestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   RequestStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{RequestStatus("queued"), false},
		{RequestStatus(""), false},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%q.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestRequestStatus_CanTransition(t *testing.T) {
	all := []RequestStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	allowed := map[[2]RequestStatus]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCompleted}:    true,
		{StatusPending, StatusFailed}:       true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]RequestStatus{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestRequestStatus_JSON(t *testing.T) {
	data, err := json.Marshal(StatusProcessing)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"processing":null}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	tests := []struct {
		in   string
		want RequestStatus
	}{
		{`{"completed":null}`, StatusCompleted},
		{`{"failed":{}}`, StatusFailed},
		{`"pending"`, StatusPending},
		{`{"cancelled":null}`, RequestStatus("cancelled")},
	}
	for _, tt := range tests {
		var s RequestStatus
		if err := json.Unmarshal([]byte(tt.in), &s); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", tt.in, err)
		}
		if s != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, s, tt.want)
		}
	}

	var s RequestStatus
	if err := json.Unmarshal([]byte(`{"a":null,"b":null}`), &s); err == nil {
		t.Error("expected error for multi-key variant")
	}
}

func TestUnknownStatus_NonTerminal(t *testing.T) {
	var s RequestStatus
	if err := json.Unmarshal([]byte(`{"archived":null}`), &s); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if s.IsKnown() {
		t.Error("archived must not be known")
	}
	if s.IsTerminal() {
		t.Error("unknown status must be non-terminal")
	}
}

func TestSimulationRequest_Clone(t *testing.T) {
	sig := "sig"
	payload := "{}"
	req := &SimulationRequest{
		ID:             "abc",
		Status:         StatusCompleted,
		AgentSignature: &sig,
		Result:         &SimulationResult{Success: true, Result: &payload},
	}

	c := req.Clone()
	*c.AgentSignature = "changed"
	*c.Result.Result = "changed"

	if *req.AgentSignature != "sig" || *req.Result.Result != "{}" {
		t.Error("Clone shares pointers with the original")
	}
}
