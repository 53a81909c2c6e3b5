package domain

// SimulationRequest is the service-side record of one submitted simulation.
// Created pending by submit; mutated only by the service.
type SimulationRequest struct {
	ID             string               `json:"id"`
	Status         RequestStatus        `json:"status"`
	Result         *SimulationResult    `json:"result"`          // set once terminal
	Parameters     SimulationParameters `json:"parameters"`      // owned copy of the submitted values
	AgentSignature *string              `json:"agent_signature"` // opaque, never verified
	Timestamp      int64                `json:"timestamp"`       // creation time (unix ns)
	SimulationType SimulationType       `json:"simulation_type"`

	// Service bookkeeping, not part of the wire record.
	Caller    string `json:"-"` // submitting principal
	UpdatedAt int64  `json:"-"` // last state change (unix ns)
}

// Clone returns a deep copy so stores never share pointers with callers.
func (r *SimulationRequest) Clone() *SimulationRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Result = r.Result.Clone()
	c.AgentSignature = cloneString(r.AgentSignature)
	return &c
}

// SimulationResult is the outcome attached to a terminal request.
// Success is authoritative; Result and Error are each optional.
type SimulationResult struct {
	Success   bool    `json:"success"`
	Result    *string `json:"result"` // serialized summary payload
	Error     *string `json:"error"`
	Timestamp int64   `json:"timestamp"` // unix ns
}

// Clone returns a deep copy.
func (r *SimulationResult) Clone() *SimulationResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Result = cloneString(r.Result)
	c.Error = cloneString(r.Error)
	return &c
}

// SimulationResponse is what the agent reports back for a request.
type SimulationResponse struct {
	RequestID string  `json:"request_id"`
	Success   bool    `json:"success"`
	Result    *string `json:"result"`
	Error     *string `json:"error"`
	Signature *string `json:"signature"`
}

// ToResult converts the response into the stored result, stamped at ts.
func (r SimulationResponse) ToResult(ts int64) *SimulationResult {
	return &SimulationResult{
		Success:   r.Success,
		Result:    cloneString(r.Result),
		Error:     cloneString(r.Error),
		Timestamp: ts,
	}
}

// TerminalStatus returns the status a request moves to on this response.
func (r SimulationResponse) TerminalStatus() RequestStatus {
	if r.Success {
		return StatusCompleted
	}
	return StatusFailed
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
