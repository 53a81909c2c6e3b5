package domain

// ResultRecord is the archived, immutable outcome of a terminal request.
type ResultRecord struct {
	RequestID      string
	Caller         string
	SimulationType SimulationType
	Status         RequestStatus // completed | failed
	Parameters     SimulationParameters
	Success        bool
	Result         *string
	Error          *string
	Signature      *string
	SubmittedAt    int64 // unix ns
	CompletedAt    int64 // unix ns
}

// NewResultRecord builds the archive record for a terminal request.
// Returns nil if r is not terminal.
func NewResultRecord(r *SimulationRequest) *ResultRecord {
	if r == nil || !r.Status.IsTerminal() {
		return nil
	}
	rec := &ResultRecord{
		RequestID:      r.ID,
		Caller:         r.Caller,
		SimulationType: r.SimulationType,
		Status:         r.Status,
		Parameters:     r.Parameters,
		Signature:      cloneString(r.AgentSignature),
		SubmittedAt:    r.Timestamp,
		CompletedAt:    r.UpdatedAt,
	}
	if r.Result != nil {
		rec.Success = r.Result.Success
		rec.Result = cloneString(r.Result.Result)
		rec.Error = cloneString(r.Result.Error)
		rec.CompletedAt = r.Result.Timestamp
	}
	return rec
}

// Request rebuilds the wire record from an archived outcome.
func (rec *ResultRecord) Request() *SimulationRequest {
	return &SimulationRequest{
		ID:     rec.RequestID,
		Status: rec.Status,
		Result: &SimulationResult{
			Success:   rec.Success,
			Result:    cloneString(rec.Result),
			Error:     cloneString(rec.Error),
			Timestamp: rec.CompletedAt,
		},
		Parameters:     rec.Parameters,
		AgentSignature: cloneString(rec.Signature),
		Timestamp:      rec.SubmittedAt,
		SimulationType: rec.SimulationType,
		Caller:         rec.Caller,
		UpdatedAt:      rec.CompletedAt,
	}
}
