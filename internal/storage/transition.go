package storage

import (
	"fmt"

	"github.com/ArielSltty/Orion/internal/domain"
)

// ApplyUpdate validates u against r's current status and applies it to r in place.
// Returns ErrInvalidTransition if the state machine forbids the change.
func ApplyUpdate(r *domain.SimulationRequest, u StatusUpdate) error {
	if !r.Status.CanTransition(u.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, u.Status)
	}

	r.Status = u.Status
	r.UpdatedAt = u.UpdatedAt
	if u.Status.IsTerminal() {
		r.Result = u.Result.Clone()
		if u.Signature != nil {
			sig := *u.Signature
			r.AgentSignature = &sig
		}
	}
	return nil
}
