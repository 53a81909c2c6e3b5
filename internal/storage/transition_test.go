package storage

import (
	"errors"
	"testing"

	"github.com/ArielSltty/Orion/internal/domain"
)

func TestApplyUpdate(t *testing.T) {
	payload := `{"mean_price":1}`
	sig := "agent-sig"
	r := &domain.SimulationRequest{ID: "r1", Status: domain.StatusPending}

	if err := ApplyUpdate(r, StatusUpdate{Status: domain.StatusProcessing, UpdatedAt: 10}); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if r.Result != nil {
		t.Error("non-terminal update must not attach a result")
	}

	err := ApplyUpdate(r, StatusUpdate{
		Status:    domain.StatusCompleted,
		Result:    &domain.SimulationResult{Success: true, Result: &payload, Timestamp: 20},
		Signature: &sig,
		UpdatedAt: 20,
	})
	if err != nil {
		t.Fatalf("processing -> completed: %v", err)
	}
	if r.Status != domain.StatusCompleted || r.UpdatedAt != 20 {
		t.Errorf("unexpected state: %s at %d", r.Status, r.UpdatedAt)
	}
	if r.AgentSignature == nil || *r.AgentSignature != sig {
		t.Error("signature not attached")
	}

	err = ApplyUpdate(r, StatusUpdate{Status: domain.StatusFailed, UpdatedAt: 30})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if r.Status != domain.StatusCompleted {
		t.Error("rejected update mutated the request")
	}
}
